package channel

import (
	"context"
	"sync"

	"github.com/Swind/go-task-executor/core"
)

type oneshotState uint8

const (
	oneshotEmpty oneshotState = iota
	oneshotSent
	oneshotTaken
	oneshotSenderClosed
)

type oneshot[T any] struct {
	mu       sync.Mutex
	state    oneshotState
	value    T
	rxClosed bool
	waker    *core.Waker
	done     chan struct{} // closed once a value or a sender close is available
}

// OneshotSender is the sending half of a single-use channel.
type OneshotSender[T any] struct {
	ch *oneshot[T]
}

// OneshotReceiver is the receiving half of a single-use channel.
type OneshotReceiver[T any] struct {
	ch *oneshot[T]
}

// NewOneshot creates a channel that carries exactly one value from one
// sender to one receiver.
func NewOneshot[T any]() (*OneshotSender[T], *OneshotReceiver[T]) {
	ch := &oneshot[T]{done: make(chan struct{})}
	return &OneshotSender[T]{ch: ch}, &OneshotReceiver[T]{ch: ch}
}

// Send delivers v. It fails with ErrAlreadySent on a second call or after
// Close, and with ErrChannelClosed if the receiver is gone.
func (s *OneshotSender[T]) Send(v T) error {
	ch := s.ch
	ch.mu.Lock()
	if ch.state != oneshotEmpty {
		ch.mu.Unlock()
		return ErrAlreadySent
	}
	if ch.rxClosed {
		ch.mu.Unlock()
		return ErrChannelClosed
	}
	ch.value = v
	ch.state = oneshotSent
	close(ch.done)
	w := ch.waker
	ch.waker = nil
	ch.mu.Unlock()

	w.Wake()
	w.Drop()
	return nil
}

// Close drops the sender. A receiver still waiting gets ErrChannelClosed.
// Closing after a successful Send does nothing.
func (s *OneshotSender[T]) Close() {
	ch := s.ch
	ch.mu.Lock()
	if ch.state != oneshotEmpty {
		ch.mu.Unlock()
		return
	}
	ch.state = oneshotSenderClosed
	close(ch.done)
	w := ch.waker
	ch.waker = nil
	ch.mu.Unlock()

	w.Wake()
	w.Drop()
}

// IsClosed reports whether the receiver has been dropped.
func (s *OneshotSender[T]) IsClosed() bool {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	return s.ch.rxClosed
}

// Recv blocks the calling goroutine until the value arrives, the sender is
// dropped (ErrChannelClosed) or ctx ends.
func (r *OneshotReceiver[T]) Recv(ctx context.Context) (T, error) {
	select {
	case <-r.ch.done:
		return r.take()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryRecv returns ErrEmpty instead of blocking.
func (r *OneshotReceiver[T]) TryRecv() (T, error) {
	select {
	case <-r.ch.done:
		return r.take()
	default:
		var zero T
		return zero, ErrEmpty
	}
}

// Poll receives from inside a task step. When Pending, the task is woken by
// Send or Close.
func (r *OneshotReceiver[T]) Poll(cx *core.Context) (T, core.Poll, error) {
	ch := r.ch
	ch.mu.Lock()
	if ch.state == oneshotEmpty {
		if ch.waker != nil && ch.waker.TaskID() == cx.TaskID() {
			ch.mu.Unlock()
			var zero T
			return zero, core.Pending, nil
		}
		old := ch.waker
		ch.waker = cx.Waker()
		ch.mu.Unlock()
		old.Drop()
		var zero T
		return zero, core.Pending, nil
	}
	v, err := ch.takeLocked()
	ch.mu.Unlock()
	return v, core.Ready, err
}

// Close drops the receiver; a later Send fails with ErrChannelClosed.
func (r *OneshotReceiver[T]) Close() {
	ch := r.ch
	ch.mu.Lock()
	ch.rxClosed = true
	w := ch.waker
	ch.waker = nil
	ch.mu.Unlock()
	w.Drop()
}

func (r *OneshotReceiver[T]) take() (T, error) {
	r.ch.mu.Lock()
	defer r.ch.mu.Unlock()
	return r.ch.takeLocked()
}

func (ch *oneshot[T]) takeLocked() (T, error) {
	var zero T
	switch ch.state {
	case oneshotSent:
		v := ch.value
		ch.value = zero
		ch.state = oneshotTaken
		return v, nil
	case oneshotEmpty:
		return zero, ErrEmpty
	default:
		return zero, ErrChannelClosed
	}
}
