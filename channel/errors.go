// Package channel provides the synchronisation primitives the executor's
// callers build on: a single-use Oneshot and a bounded multi-producer,
// single-consumer signal channel.
//
// Both can be used from plain goroutines (blocking Recv with a context) and
// from task steps (Poll, which suspends the task instead of blocking its
// worker).
package channel

import "errors"

var (
	// ErrChannelClosed: the peer was dropped before a value was produced or consumed.
	ErrChannelClosed = errors.New("channel: closed")

	// ErrAlreadySent: a Oneshot can carry only one value.
	ErrAlreadySent = errors.New("channel: oneshot already used")

	// ErrEmpty: a non-blocking receive found nothing.
	ErrEmpty = errors.New("channel: empty")

	// ErrFull: a non-blocking send found no free capacity.
	ErrFull = errors.New("channel: full")
)
