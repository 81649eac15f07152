package core

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

const (
	// maxAllowedWorkers bounds ExecutorConfig.Workers.
	// Values higher than this could lead to excessive goroutine creation and memory exhaustion.
	maxAllowedWorkers = 10000

	defaultStealAttempts      = 4
	defaultGlobalPollInterval = 61
	defaultStartTimeout       = 5 * time.Second
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task step panics.
// The task completes with a *PanicError; the worker keeps running.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a step panics.
	//
	// Parameters:
	// - ctx: The executor context
	// - poolID: The ID of the executor where the panic occurred
	// - workerID: The index of the worker that was stepping the task
	// - panicInfo: The panic value recovered from the step
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics through Logger (DefaultLogger when nil).
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic with its stack trace at Error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("pool", poolID),
		F("worker", workerID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting executor metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast; they run on worker goroutines.
type Metrics interface {
	// RecordStepDuration records how long one step of a task took.
	RecordStepDuration(poolID string, duration time.Duration)

	// RecordTaskPanic records that a step panicked.
	RecordTaskPanic(poolID string, panicInfo any)

	// RecordQueueDepth records the number of runnable tasks waiting in queues.
	RecordQueueDepth(poolID string, depth int)

	// RecordTaskRejected records that a spawn was rejected (e.g., during shutdown).
	RecordTaskRejected(poolID string, reason string)

	// RecordSteal records that a worker took count tasks from a sibling.
	RecordSteal(poolID string, count int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordStepDuration(poolID string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(poolID string, panicInfo any)             {}
func (m *NilMetrics) RecordQueueDepth(poolID string, depth int)                {}
func (m *NilMetrics) RecordTaskRejected(poolID string, reason string)          {}
func (m *NilMetrics) RecordSteal(poolID string, count int)                     {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a spawn is rejected. The caller also
// receives ErrPoolClosed, so lost work is never silent.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(poolID string, reason string)
}

// DefaultRejectedTaskHandler logs rejected tasks at Warn level.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

func (h *DefaultRejectedTaskHandler) HandleRejectedTask(poolID string, reason string) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Warn("task rejected", F("pool", poolID), F("reason", reason))
}

// =============================================================================
// ExecutorConfig
// =============================================================================

// ShutdownMode selects what Shutdown does with in-flight tasks.
type ShutdownMode int

const (
	// ShutdownDrain waits for every live task to complete before stopping.
	ShutdownDrain ShutdownMode = iota

	// ShutdownAbandon stops workers after their current step; queued and
	// suspended tasks are abandoned in place.
	ShutdownAbandon
)

func (m ShutdownMode) String() string {
	switch m {
	case ShutdownDrain:
		return "drain"
	case ShutdownAbandon:
		return "abandon"
	default:
		return "unknown"
	}
}

// ParseShutdownMode accepts "drain" or "abandon".
func ParseShutdownMode(s string) (ShutdownMode, error) {
	switch s {
	case "drain", "":
		return ShutdownDrain, nil
	case "abandon":
		return ShutdownAbandon, nil
	default:
		return 0, fmt.Errorf("%w: unknown shutdown mode %q", ErrInvalidConfig, s)
	}
}

// ExecutorConfig holds configuration options for an Executor.
// Zero values fall back to defaults; all handlers are optional.
type ExecutorConfig struct {
	// ID names the executor in logs and metrics. Defaults to a random ID.
	ID string

	// Workers is the number of worker goroutines. Defaults to runtime.NumCPU().
	Workers int

	// LocalQueueCapacity bounds each worker's local ring. Defaults to 256.
	LocalQueueCapacity int

	// StealAttempts is how many random siblings an idle worker tries before parking.
	StealAttempts int

	// GlobalPollInterval makes a worker check the injector first every N pops,
	// so a busy local queue cannot starve external spawns.
	GlobalPollInterval int

	// LockOSThread pins each worker goroutine to its own OS thread.
	LockOSThread bool

	// ShutdownMode is applied by Shutdown.
	ShutdownMode ShutdownMode

	// StartTimeout bounds how long NewExecutor waits for workers to come up.
	StartTimeout time.Duration

	// HistoryCapacity keeps the last N completed task records. 0 disables history.
	HistoryCapacity int

	// PanicHandler is called when a step panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record executor metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a spawn is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger receives lifecycle logs. Defaults to DefaultLogger.
	Logger Logger
}

// DefaultExecutorConfig returns a config with default handlers.
func DefaultExecutorConfig() *ExecutorConfig {
	logger := NewDefaultLogger()
	return &ExecutorConfig{
		Workers:             runtime.NumCPU(),
		LocalQueueCapacity:  defaultLocalQueueCap,
		StealAttempts:       defaultStealAttempts,
		GlobalPollInterval:  defaultGlobalPollInterval,
		StartTimeout:        defaultStartTimeout,
		PanicHandler:        &DefaultPanicHandler{Logger: logger},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{Logger: logger},
		Logger:              logger,
	}
}

// Validate reports the first invalid field.
func (c *ExecutorConfig) Validate() error {
	if c.Workers < 0 || c.Workers > maxAllowedWorkers {
		return fmt.Errorf("%w: workers must be in [0, %d], got %d", ErrInvalidConfig, maxAllowedWorkers, c.Workers)
	}
	if c.LocalQueueCapacity < 0 {
		return fmt.Errorf("%w: negative local queue capacity %d", ErrInvalidConfig, c.LocalQueueCapacity)
	}
	if c.StealAttempts < 0 {
		return fmt.Errorf("%w: negative steal attempts %d", ErrInvalidConfig, c.StealAttempts)
	}
	if c.GlobalPollInterval < 0 {
		return fmt.Errorf("%w: negative global poll interval %d", ErrInvalidConfig, c.GlobalPollInterval)
	}
	if c.HistoryCapacity < 0 {
		return fmt.Errorf("%w: negative history capacity %d", ErrInvalidConfig, c.HistoryCapacity)
	}
	if c.ShutdownMode != ShutdownDrain && c.ShutdownMode != ShutdownAbandon {
		return fmt.Errorf("%w: unknown shutdown mode %d", ErrInvalidConfig, c.ShutdownMode)
	}
	return nil
}

// withDefaults returns a copy with every zero field filled in.
func (c *ExecutorConfig) withDefaults() ExecutorConfig {
	out := *c
	if out.Workers == 0 {
		out.Workers = runtime.NumCPU()
	}
	if out.LocalQueueCapacity == 0 {
		out.LocalQueueCapacity = defaultLocalQueueCap
	}
	if out.StealAttempts == 0 {
		out.StealAttempts = defaultStealAttempts
	}
	if out.GlobalPollInterval == 0 {
		out.GlobalPollInterval = defaultGlobalPollInterval
	}
	if out.StartTimeout <= 0 {
		out.StartTimeout = defaultStartTimeout
	}
	if out.Logger == nil {
		out.Logger = NewDefaultLogger()
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{Logger: out.Logger}
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.RejectedTaskHandler == nil {
		out.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: out.Logger}
	}
	return out
}
