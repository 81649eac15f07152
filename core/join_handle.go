package core

import (
	"context"
	"sync"
)

// JoinHandle observes the completion of one spawned task.
type JoinHandle struct {
	id   TaskID
	name string
	exec *Executor

	done chan struct{}
	once sync.Once
	err  error

	mu      sync.Mutex
	waiters []*Waker
}

func newJoinHandle(id TaskID, name string, exec *Executor) *JoinHandle {
	return &JoinHandle{
		id:   id,
		name: name,
		exec: exec,
		done: make(chan struct{}),
	}
}

func (j *JoinHandle) ID() TaskID   { return j.id }
func (j *JoinHandle) Name() string { return j.name }

// Done is closed once the task has completed, successfully or not.
func (j *JoinHandle) Done() <-chan struct{} {
	return j.done
}

// Err returns the task's failure after Done is closed: nil, a *PanicError,
// ErrTaskOrphaned or ErrPoolClosed.
func (j *JoinHandle) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Wait blocks the calling goroutine until the task completes, ctx ends, or
// the executor stops with the task still outstanding.
func (j *JoinHandle) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	default:
	}

	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	case <-j.exec.stopped:
		select {
		case <-j.done:
			return j.err
		default:
			return ErrPoolClosed
		}
	}
}

// Poll awaits the task from inside another task's step. When Pending, the
// calling task is woken once the awaited task completes.
func (j *JoinHandle) Poll(cx *Context) (Poll, error) {
	select {
	case <-j.done:
		return Ready, j.err
	default:
	}

	j.mu.Lock()
	select {
	case <-j.done:
		j.mu.Unlock()
		return Ready, j.err
	default:
	}
	for _, w := range j.waiters {
		if w.TaskID() == cx.TaskID() {
			j.mu.Unlock()
			return Pending, nil
		}
	}
	j.waiters = append(j.waiters, cx.Waker())
	j.mu.Unlock()
	return Pending, nil
}

func (j *JoinHandle) resolve(err error) {
	j.once.Do(func() {
		j.err = err
		close(j.done)

		j.mu.Lock()
		waiters := j.waiters
		j.waiters = nil
		j.mu.Unlock()

		for _, w := range waiters {
			w.Wake()
			w.Drop()
		}
	})
}
