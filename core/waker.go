package core

import "sync/atomic"

// Waker re-schedules its task when fired.
//
// Many Wakers may alias one task. Fires that land before the task is stepped
// again coalesce into a single queue entry. Firing a Waker whose task has
// completed, or whose executor has stopped, does nothing.
//
// A nil *Waker is valid and inert.
type Waker struct {
	cell atomic.Pointer[taskCell]
}

func newWaker(c *taskCell) *Waker {
	c.addWaker()
	w := &Waker{}
	w.cell.Store(c)
	return w
}

// Clone returns another handle to the same task.
func (w *Waker) Clone() *Waker {
	if w == nil {
		return nil
	}
	c := w.cell.Load()
	if c == nil {
		return &Waker{}
	}
	return newWaker(c)
}

// Wake schedules the task if it is suspended, or marks it for one more step
// if it is running. The handle stays valid.
func (w *Waker) Wake() {
	if w == nil {
		return
	}
	if c := w.cell.Load(); c != nil {
		c.exec.wakeTask(c)
	}
}

// Drop releases the handle. Dropping the last handle of a suspended task
// completes it with ErrTaskOrphaned. Drop is idempotent.
func (w *Waker) Drop() {
	if w == nil {
		return
	}
	c := w.cell.Swap(nil)
	if c == nil {
		return
	}
	if c.dropWaker() {
		c.exec.orphanTask(c)
	}
}

// WillWake reports whether both handles target the same live task.
func (w *Waker) WillWake(other *Waker) bool {
	if w == nil || other == nil {
		return false
	}
	c := w.cell.Load()
	return c != nil && c == other.cell.Load()
}

// TaskID returns the ID of the target task, or zero after Drop.
func (w *Waker) TaskID() TaskID {
	if w == nil {
		return 0
	}
	if c := w.cell.Load(); c != nil {
		return c.id
	}
	return 0
}
