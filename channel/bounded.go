package channel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Swind/go-task-executor/core"
)

type bounded[T any] struct {
	ch chan T

	senders  atomic.Int32
	txClosed chan struct{} // closed when the last sender is dropped
	rxClosed chan struct{}
	rxOnce   sync.Once

	waker atomic.Pointer[core.Waker]
}

// Sender is one producer of a bounded channel. Clone it for each producer
// that can be dropped independently.
type Sender[T any] struct {
	ch     *bounded[T]
	closed atomic.Bool
}

// Receiver is the single consumer of a bounded channel.
type Receiver[T any] struct {
	ch *bounded[T]
}

// NewBounded creates a channel holding at most capacity undelivered values.
func NewBounded[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity < 1 {
		capacity = 1
	}
	ch := &bounded[T]{
		ch:       make(chan T, capacity),
		txClosed: make(chan struct{}),
		rxClosed: make(chan struct{}),
	}
	ch.senders.Store(1)
	return &Sender[T]{ch: ch}, &Receiver[T]{ch: ch}
}

// Clone returns another sender for the same channel.
func (s *Sender[T]) Clone() *Sender[T] {
	s.ch.senders.Add(1)
	return &Sender[T]{ch: s.ch}
}

// Send blocks while the channel is full. It fails with ErrChannelClosed if
// the receiver is gone or this sender was closed.
func (s *Sender[T]) Send(ctx context.Context, v T) error {
	if err := s.check(); err != nil {
		return err
	}
	select {
	case s.ch.ch <- v:
		s.ch.notify()
		return nil
	case <-s.ch.rxClosed:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend never blocks; a full channel yields ErrFull.
func (s *Sender[T]) TrySend(v T) error {
	if err := s.check(); err != nil {
		return err
	}
	select {
	case s.ch.ch <- v:
		s.ch.notify()
		return nil
	default:
		return ErrFull
	}
}

func (s *Sender[T]) check() error {
	if s.closed.Load() {
		return ErrChannelClosed
	}
	select {
	case <-s.ch.rxClosed:
		return ErrChannelClosed
	default:
		return nil
	}
}

// Close drops this sender. Once every sender is closed, a receiver that has
// drained the buffer gets ErrChannelClosed.
func (s *Sender[T]) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.ch.senders.Add(-1) == 0 {
		close(s.ch.txClosed)
		s.ch.notify()
	}
}

func (b *bounded[T]) notify() {
	if w := b.waker.Swap(nil); w != nil {
		w.Wake()
		w.Drop()
	}
}

// Recv blocks until a value is available, every sender is gone
// (ErrChannelClosed) or ctx ends. Buffered values are delivered before
// ErrChannelClosed.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	select {
	case v := <-r.ch.ch:
		return v, nil
	default:
	}

	var zero T
	select {
	case v := <-r.ch.ch:
		return v, nil
	case <-r.ch.txClosed:
		select {
		case v := <-r.ch.ch:
			return v, nil
		default:
			return zero, ErrChannelClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// TryRecv returns ErrEmpty, or ErrChannelClosed once every sender is gone,
// instead of blocking.
func (r *Receiver[T]) TryRecv() (T, error) {
	var zero T
	select {
	case v := <-r.ch.ch:
		return v, nil
	default:
	}
	select {
	case <-r.ch.txClosed:
		select {
		case v := <-r.ch.ch:
			return v, nil
		default:
			return zero, ErrChannelClosed
		}
	default:
		return zero, ErrEmpty
	}
}

// Poll receives from inside a task step. When Pending, the next Send or the
// last sender's Close wakes the task.
func (r *Receiver[T]) Poll(cx *core.Context) (T, core.Poll, error) {
	v, err := r.TryRecv()
	if err != ErrEmpty {
		return v, core.Ready, err
	}

	if old := r.ch.waker.Load(); old == nil || old.TaskID() != cx.TaskID() {
		r.ch.waker.Swap(cx.Waker()).Drop()
	}

	// A send may have landed before the waker was published.
	v, err = r.TryRecv()
	if err != ErrEmpty {
		r.ch.waker.Swap(nil).Drop()
		return v, core.Ready, err
	}
	return v, core.Pending, nil
}

// Close drops the receiver; pending and future sends fail with ErrChannelClosed.
func (r *Receiver[T]) Close() {
	r.ch.rxOnce.Do(func() { close(r.ch.rxClosed) })
	r.ch.waker.Swap(nil).Drop()
}

// Len returns the number of buffered values.
func (r *Receiver[T]) Len() int { return len(r.ch.ch) }

// Cap returns the channel capacity.
func (r *Receiver[T]) Cap() int { return cap(r.ch.ch) }
