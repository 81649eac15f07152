package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Executor is a fixed pool of workers stepping cooperative tasks.
//
// Spawn is safe from any goroutine, including from inside a running step.
// Each Executor is independent; tasks reach theirs through the Context or a
// captured Handle, never through package state.
type Executor struct {
	id        string
	config    ExecutorConfig
	scheduler *TaskScheduler
	workers   []*worker
	handle    *Handle

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	running   bool
	runningMu sync.RWMutex
	closing   atomic.Bool
	stopOnce  sync.Once

	live      atomic.Int64
	spawned   atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
	rejected  atomic.Uint64

	logger              Logger
	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler

	history executionHistory
}

// NewExecutor validates config, starts its workers and waits for all of them
// to report in. A nil config means DefaultExecutorConfig().
func NewExecutor(config *ExecutorConfig) (*Executor, error) {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cfg := config.withDefaults()
	if cfg.ID == "" {
		cfg.ID = "executor-" + uuid.NewString()[:8]
	}

	e := &Executor{
		id:                  cfg.ID,
		config:              cfg,
		stopped:             make(chan struct{}),
		logger:              cfg.Logger,
		panicHandler:        cfg.PanicHandler,
		metrics:             cfg.Metrics,
		rejectedTaskHandler: cfg.RejectedTaskHandler,
		history:             newExecutionHistory(cfg.HistoryCapacity),
	}
	e.handle = &Handle{exec: e}
	e.scheduler = NewTaskScheduler(cfg.Workers, &cfg)
	e.ctx, e.cancel = context.WithCancel(context.Background())

	if err := e.start(); err != nil {
		e.Stop()
		return nil, err
	}

	e.logger.Info("executor started",
		F("pool", e.id),
		F("workers", cfg.Workers),
		F("shutdown_mode", cfg.ShutdownMode))
	return e, nil
}

func (e *Executor) start() error {
	e.runningMu.Lock()
	defer e.runningMu.Unlock()

	n := e.config.Workers
	ready := make(chan int, n)
	e.workers = make([]*worker, n)
	for i := range n {
		w := &worker{id: i, exec: e}
		e.workers[i] = w
		e.wg.Add(1)
		go w.run(ready)
	}
	e.running = true

	timer := time.NewTimer(e.config.StartTimeout)
	defer timer.Stop()
	for started := 0; started < n; started++ {
		select {
		case <-ready:
		case <-timer.C:
			return fmt.Errorf("%w: %d of %d workers up after %v", ErrWorkerStart, started, n, e.config.StartTimeout)
		}
	}
	return nil
}

// =============================================================================
// Spawn
// =============================================================================

// Spawn wraps step in a task and queues it. It returns ErrPoolClosed once
// shutdown has begun.
func (e *Executor) Spawn(step Step) (*JoinHandle, error) {
	return e.spawn("", step, nil)
}

// SpawnNamed is Spawn with a task name used in history records.
func (e *Executor) SpawnNamed(name string, step Step) (*JoinHandle, error) {
	return e.spawn(name, step, nil)
}

// SpawnFunc spawns a run-to-completion closure.
func (e *Executor) SpawnFunc(f func(ctx context.Context)) (*JoinHandle, error) {
	return e.spawn("", Func(f), nil)
}

func (e *Executor) spawn(name string, step Step, from *worker) (*JoinHandle, error) {
	if step == nil {
		return nil, ErrNilStep
	}

	// live is raised before the closing check so a draining Shutdown either
	// sees this task or this spawn sees closing.
	e.live.Add(1)
	if e.closing.Load() {
		e.live.Add(-1)
		e.reject("shutting down")
		return nil, ErrPoolClosed
	}

	if name == "" && e.history.Enabled() {
		name = resolveTaskName(step, "")
	}
	c := newTaskCell(e, name, step)
	if e.history.Enabled() {
		c.spawnedAt = time.Now()
	}
	e.spawned.Add(1)

	wid := -1
	if from != nil && from.exec == e {
		wid = from.id
	}
	e.enqueue(c, wid)
	return c.join, nil
}

// enqueue schedules c. A push that lands after Stop has drained the queues
// is abandoned here instead.
func (e *Executor) enqueue(c *taskCell, from int) {
	e.scheduler.Schedule(c, from)
	if e.isStopped() {
		e.abandonQueued()
	}
}

func (e *Executor) abandonQueued() {
	for _, c := range e.scheduler.Drain() {
		if c.transitionToCompleted(TaskScheduled) {
			e.finishTask(c, ErrPoolClosed)
		}
	}
}

func (e *Executor) reject(reason string) {
	e.rejected.Add(1)
	e.rejectedTaskHandler.HandleRejectedTask(e.id, reason)
	e.metrics.RecordTaskRejected(e.id, reason)
}

// Handle returns a copyable reference for spawning from code that outlives
// the caller, such as tasks that spawn their successors.
func (e *Executor) Handle() *Handle {
	return e.handle
}

// =============================================================================
// Task lifecycle callbacks
// =============================================================================

func (e *Executor) wakeTask(c *taskCell) {
	if !c.wake() {
		return
	}
	if e.isStopped() {
		if c.transitionToCompleted(TaskScheduled) {
			e.finishTask(c, ErrPoolClosed)
		}
		return
	}
	e.enqueue(c, -1)
}

// orphanTask finishes a cell that reached Completed because no Waker can
// ever step it again.
func (e *Executor) orphanTask(c *taskCell) {
	e.logger.Warn("pending task has no live waker",
		F("pool", e.id),
		F("task", c.id))
	e.finishTask(c, ErrTaskOrphaned)
}

// finishTask runs once per cell, after it reached Completed.
func (e *Executor) finishTask(c *taskCell, err error) {
	_, panicked := err.(*PanicError)
	if panicked {
		e.panicked.Add(1)
	}
	e.completed.Add(1)
	e.live.Add(-1)

	if e.history.Enabled() {
		finishedAt := time.Now()
		e.history.Add(TaskExecutionRecord{
			TaskID:     c.id,
			Name:       c.name,
			PoolID:     e.id,
			WorkerID:   c.lastOn,
			Polls:      int(c.polls),
			SpawnedAt:  c.spawnedAt,
			FinishedAt: finishedAt,
			Duration:   finishedAt.Sub(c.spawnedAt),
			Panicked:   panicked,
			Err:        err,
		})
	}

	c.release()
	c.join.resolve(err)
}

// =============================================================================
// Shutdown
// =============================================================================

// Shutdown stops accepting spawns and then, per ShutdownMode, either waits
// for live tasks to finish (bounded by ctx) or abandons them. Workers are
// always joined before it returns. If draining is cut short by ctx, the
// remaining tasks are abandoned and ctx's error is returned.
//
// Shutdown must not be called from inside a step.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.closing.Store(true)

	var err error
	if e.config.ShutdownMode == ShutdownDrain {
		if err = e.waitDrained(ctx); err != nil {
			e.logger.Warn("drain cut short, abandoning tasks",
				F("pool", e.id),
				F("live", e.live.Load()),
				F("error", err))
		}
	}

	e.Stop()
	return err
}

// ShutdownGraceful drains for at most timeout regardless of ShutdownMode.
func (e *Executor) ShutdownGraceful(timeout time.Duration) error {
	e.closing.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := e.waitDrained(ctx)
	e.Stop()
	if err != nil {
		return fmt.Errorf("shutdown graceful timeout after %v, abandoned %d tasks: %w", timeout, e.live.Load(), err)
	}
	return nil
}

func (e *Executor) waitDrained(ctx context.Context) error {
	if e.live.Load() == 0 {
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Microsecond
	policy.MaxInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		if n := e.live.Load(); n > 0 {
			return fmt.Errorf("%d tasks still live", n)
		}
		return nil
	}, backoff.WithContext(policy, ctx))
}

// Stop is a hard stop: no new spawns, workers exit after their current
// step, queued tasks are completed with ErrPoolClosed. Idempotent.
func (e *Executor) Stop() {
	e.closing.Store(true)

	e.stopOnce.Do(func() {
		e.cancel()
		e.wg.Wait()

		e.abandonQueued()
		close(e.stopped)

		e.runningMu.Lock()
		e.running = false
		e.runningMu.Unlock()

		e.logger.Info("executor stopped",
			F("pool", e.id),
			F("completed", e.completed.Load()),
			F("abandoned", e.live.Load()))
	})
}

func (e *Executor) isStopped() bool {
	select {
	case <-e.stopped:
		return true
	default:
		return e.ctx.Err() != nil
	}
}

// Done is closed once the executor has stopped and joined its workers.
func (e *Executor) Done() <-chan struct{} {
	return e.stopped
}

// =============================================================================
// Introspection
// =============================================================================

func (e *Executor) ID() string {
	return e.id
}

func (e *Executor) IsRunning() bool {
	e.runningMu.RLock()
	defer e.runningMu.RUnlock()
	return e.running
}

// IsClosed reports whether shutdown has begun.
func (e *Executor) IsClosed() bool {
	return e.closing.Load()
}

func (e *Executor) WorkerCount() int {
	return e.config.Workers
}

func (e *Executor) QueuedTaskCount() int {
	return e.scheduler.QueuedTaskCount()
}

func (e *Executor) ActiveTaskCount() int {
	return e.scheduler.ActiveTaskCount()
}

// LiveTaskCount counts spawned tasks that have not completed yet.
func (e *Executor) LiveTaskCount() int {
	return int(e.live.Load())
}

// Stats returns current observability data for this executor.
func (e *Executor) Stats() PoolStats {
	return PoolStats{
		ID:        e.id,
		Workers:   e.config.Workers,
		Queued:    e.QueuedTaskCount(),
		Active:    e.ActiveTaskCount(),
		Live:      e.LiveTaskCount(),
		Running:   e.IsRunning(),
		Closing:   e.IsClosed(),
		Spawned:   e.spawned.Load(),
		Completed: e.completed.Load(),
		Panicked:  e.panicked.Load(),
		Rejected:  e.rejected.Load(),
		Steals:    e.scheduler.StealCount(),
	}
}

// RecentTasks returns completed task records in newest-first order.
// It is empty unless HistoryCapacity was set.
func (e *Executor) RecentTasks(limit int) []TaskExecutionRecord {
	return e.history.Recent(limit)
}
