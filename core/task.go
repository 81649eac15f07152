package core

import (
	"context"
	"strconv"
	"sync/atomic"
)

// Poll is the outcome of driving a task one step.
type Poll int

const (
	// Pending: the task registered a Waker (or asked to yield) and will not
	// run again until it is woken.
	Pending Poll = iota

	// Ready: the task has finished.
	Ready
)

func (p Poll) String() string {
	if p == Ready {
		return "ready"
	}
	return "pending"
}

// Step is one resumption of a cooperatively scheduled computation.
//
// The resume point lives in the variables the closure captures, so a Step
// value belongs to exactly one task and must not be spawned twice.
// A step that never returns Pending keeps its worker for its whole lifetime.
type Step func(cx *Context) Poll

// =============================================================================
// TaskID
// =============================================================================

// TaskID identifies one spawn. Zero is never generated.
type TaskID uint64

var taskIDSeq atomic.Uint64

// GenerateTaskID returns a process-unique, non-zero TaskID.
func GenerateTaskID() TaskID {
	return TaskID(taskIDSeq.Add(1))
}

func (id TaskID) IsZero() bool {
	return id == 0
}

func (id TaskID) String() string {
	return "task-" + strconv.FormatUint(uint64(id), 10)
}

// =============================================================================
// TaskState
// =============================================================================

type TaskState uint32

const (
	TaskIdle TaskState = iota
	TaskScheduled
	TaskRunning
	TaskSuspended
	TaskCompleted
)

func (s TaskState) String() string {
	switch s {
	case TaskIdle:
		return "idle"
	case TaskScheduled:
		return "scheduled"
	case TaskRunning:
		return "running"
	case TaskSuspended:
		return "suspended"
	case TaskCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// =============================================================================
// Context: what a step sees while it runs
// =============================================================================

// Context is handed to a Step for the duration of one call. It must not be
// retained after the step returns; use Waker or Handle for that.
type Context struct {
	cell   *taskCell
	worker *worker
	yield  bool
}

// Context returns the executor's context. It is cancelled on hard stop.
func (cx *Context) Context() context.Context {
	return cx.cell.exec.ctx
}

// TaskID returns the ID of the running task.
func (cx *Context) TaskID() TaskID {
	return cx.cell.id
}

// WorkerID returns the index of the worker stepping the task.
func (cx *Context) WorkerID() int {
	if cx.worker == nil {
		return -1
	}
	return cx.worker.id
}

// Waker returns a new handle that re-schedules the running task when fired.
// Callers that stop needing it should Drop it.
func (cx *Context) Waker() *Waker {
	return newWaker(cx.cell)
}

// Yield asks for the task to be re-scheduled right after this step and
// returns Pending. The step should return the result directly.
func (cx *Context) Yield() Poll {
	cx.yield = true
	return Pending
}

// Handle returns a Handle of the executor running this task.
func (cx *Context) Handle() *Handle {
	return cx.cell.exec.Handle()
}

// Spawn spawns a task onto the current worker's local queue.
func (cx *Context) Spawn(step Step) (*JoinHandle, error) {
	return cx.cell.exec.spawn("", step, cx.worker)
}

// SpawnNamed is Spawn with an explicit task name.
func (cx *Context) SpawnNamed(name string, step Step) (*JoinHandle, error) {
	return cx.cell.exec.spawn(name, step, cx.worker)
}
