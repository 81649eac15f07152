package core

import (
	"sync/atomic"
	"time"
)

const (
	stateMask   uint32 = 0x7
	notifiedBit uint32 = 1 << 3

	// Live Waker handles are counted in the bits above the flags so that
	// suspension and the orphan check see one consistent word.
	wakerShift        = 4
	wakerOne   uint32 = 1 << wakerShift
)

type idleOutcome int

const (
	idleSuspended idleOutcome = iota
	idleRequeue
	idleOrphaned
)

// taskCell is the heap-resident wrapper around a spawned Step.
//
// State transitions (all via CAS on state):
//
//	Scheduled -> Running            [worker pop]
//	Running   -> Running|notified   [wake during step]
//	Running   -> Suspended          [step returned Pending, not notified]
//	Running   -> Scheduled          [step returned Pending, notified or yielded]
//	Suspended -> Scheduled          [wake]
//	Running   -> Completed          [step returned Ready or panicked]
//	Running   -> Completed          [step returned Pending with no live waker]
//	Suspended -> Completed          [last waker dropped]
//	Scheduled -> Completed          [abandoned at hard stop]
//
// Completed is terminal and only ever stored once.
type taskCell struct {
	id   TaskID
	name string
	exec *Executor
	step Step
	join *JoinHandle

	state atomic.Uint32

	// Written only by the worker holding the Running state.
	polls     uint32
	lastOn    int
	spawnedAt time.Time
}

func newTaskCell(exec *Executor, name string, step Step) *taskCell {
	id := GenerateTaskID()
	c := &taskCell{
		id:     id,
		name:   name,
		exec:   exec,
		step:   step,
		lastOn: -1,
	}
	c.join = newJoinHandle(id, name, exec)
	c.state.Store(uint32(TaskScheduled))
	return c
}

func (c *taskCell) State() TaskState {
	return TaskState(c.state.Load() & stateMask)
}

func (c *taskCell) wakerCount() int {
	return int(c.state.Load() >> wakerShift)
}

func withState(s uint32, to TaskState) uint32 {
	return s&^(stateMask|notifiedBit) | uint32(to)
}

// transitionToRunning claims the cell for one step.
func (c *taskCell) transitionToRunning() bool {
	for {
		s := c.state.Load()
		if TaskState(s&stateMask) != TaskScheduled {
			return false
		}
		if c.state.CompareAndSwap(s, withState(s, TaskRunning)) {
			return true
		}
	}
}

// transitionToIdle ends a step that returned Pending.
func (c *taskCell) transitionToIdle(yielded bool) idleOutcome {
	for {
		s := c.state.Load()
		switch {
		case yielded || s&notifiedBit != 0:
			if c.state.CompareAndSwap(s, withState(s, TaskScheduled)) {
				return idleRequeue
			}
		case s>>wakerShift == 0:
			if c.state.CompareAndSwap(s, withState(s, TaskCompleted)) {
				return idleOrphaned
			}
		default:
			if c.state.CompareAndSwap(s, withState(s, TaskSuspended)) {
				return idleSuspended
			}
		}
	}
}

// wake records a wake-up. It reports whether the caller must push the cell.
func (c *taskCell) wake() bool {
	for {
		s := c.state.Load()
		switch TaskState(s & stateMask) {
		case TaskSuspended:
			if c.state.CompareAndSwap(s, withState(s, TaskScheduled)) {
				return true
			}
		case TaskRunning:
			if s&notifiedBit != 0 {
				return false
			}
			if c.state.CompareAndSwap(s, s|notifiedBit) {
				return false
			}
		default:
			// Scheduled coalesces, Completed ignores.
			return false
		}
	}
}

// transitionToCompleted claims completion from the given state.
func (c *taskCell) transitionToCompleted(from TaskState) bool {
	for {
		s := c.state.Load()
		if TaskState(s&stateMask) != from {
			return false
		}
		if c.state.CompareAndSwap(s, withState(s, TaskCompleted)) {
			return true
		}
	}
}

func (c *taskCell) addWaker() {
	c.state.Add(wakerOne)
}

// dropWaker releases one handle. It reports whether that was the last
// handle of a suspended task, which then becomes Completed.
func (c *taskCell) dropWaker() bool {
	for {
		s := c.state.Load()
		n := s - wakerOne
		orphaned := n>>wakerShift == 0 && TaskState(n&stateMask) == TaskSuspended
		if orphaned {
			n = withState(n, TaskCompleted)
		}
		if c.state.CompareAndSwap(s, n) {
			return orphaned
		}
	}
}

// release drops the step so captured state can be collected.
func (c *taskCell) release() {
	c.step = nil
}
