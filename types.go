package taskexec

import "github.com/Swind/go-task-executor/core"

// Re-export commonly used types from core so most callers import only taskexec.

// Executor runs tasks on a pool of worker goroutines.
type Executor = core.Executor

// ExecutorConfig configures an Executor. Zero fields take defaults.
type ExecutorConfig = core.ExecutorConfig

// Step is one resumable slice of a task.
type Step = core.Step

// Poll is the result of a step.
type Poll = core.Poll

// Context is passed to every step.
type Context = core.Context

// Waker reschedules a suspended task.
type Waker = core.Waker

// Handle spawns onto an executor.
type Handle = core.Handle

// JoinHandle observes one task's completion.
type JoinHandle = core.JoinHandle

type (
	TaskID       = core.TaskID
	TaskState    = core.TaskState
	PoolStats    = core.PoolStats
	ShutdownMode = core.ShutdownMode
	PanicError   = core.PanicError
	Logger       = core.Logger
)

const (
	Pending = core.Pending
	Ready   = core.Ready

	ShutdownDrain   = core.ShutdownDrain
	ShutdownAbandon = core.ShutdownAbandon
)

var (
	ErrPoolClosed    = core.ErrPoolClosed
	ErrTaskOrphaned  = core.ErrTaskOrphaned
	ErrInvalidConfig = core.ErrInvalidConfig
	ErrNilStep       = core.ErrNilStep
)

// Step combinators
var (
	Func     = core.Func
	Yield    = core.Yield
	Await    = core.Await
	Sequence = core.Sequence
)

// DefaultExecutorConfig returns a config with default handlers.
var DefaultExecutorConfig = core.DefaultExecutorConfig
