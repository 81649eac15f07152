package core

import (
	"runtime"
	"runtime/debug"
	"time"
)

// worker is one goroutine running the poll loop:
//
//	Idle -> Polling -> Idle                 [Ready, or Pending and suspended]
//	Idle -> Polling -> Idle-with-requeue    [Pending but woken or yielded]
type worker struct {
	id   int
	exec *Executor
	tick uint32
	cx   Context
}

func (w *worker) run(ready chan<- int) {
	defer w.exec.wg.Done()

	if w.exec.config.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	ready <- w.id

	s := w.exec.scheduler
	stopCh := w.exec.ctx.Done()
	depthEvery := uint32(w.exec.config.GlobalPollInterval)

	for {
		c, ok := s.GetWork(w.id, w.tick, stopCh)
		if !ok {
			// Context canceled
			return
		}
		w.tick++
		if depthEvery > 0 && w.tick%depthEvery == 0 {
			w.exec.metrics.RecordQueueDepth(w.exec.id, s.QueuedTaskCount())
		}
		w.runTask(c)
	}
}

func (w *worker) runTask(c *taskCell) {
	if !c.transitionToRunning() {
		// Abandoned between push and pop.
		return
	}

	s := w.exec.scheduler
	s.OnTaskStart()

	w.cx = Context{cell: c, worker: w}
	startedAt := time.Now()
	poll, err := w.poll(c)
	w.exec.metrics.RecordStepDuration(w.exec.id, time.Since(startedAt))
	yielded := w.cx.yield
	w.cx = Context{}

	c.polls++
	c.lastOn = w.id
	s.OnTaskEnd()

	if err != nil || poll == Ready {
		c.transitionToCompleted(TaskRunning)
		w.exec.finishTask(c, err)
		return
	}

	switch c.transitionToIdle(yielded) {
	case idleRequeue:
		s.Schedule(c, w.id)
	case idleOrphaned:
		w.exec.orphanTask(c)
	}
}

// poll runs one step, turning a panic into a *PanicError.
func (w *worker) poll(c *taskCell) (p Poll, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			err = &PanicError{TaskID: c.id, Value: r, Stack: stack}
			w.exec.panicHandler.HandlePanic(w.exec.ctx, w.exec.id, w.id, r, stack)
			w.exec.metrics.RecordTaskPanic(w.exec.id, r)
		}
	}()
	return c.step(&w.cx), nil
}
