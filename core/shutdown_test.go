package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestShutdown_SpawnAfterShutdownRejected verifies spawns fail once shutdown began
// Given: An executor with a recording rejected-task handler
// When: Shutdown completes and Spawn is called
// Then: Spawn returns ErrPoolClosed and the rejection is counted and reported
func TestShutdown_SpawnAfterShutdownRejected(t *testing.T) {
	// Arrange
	rejected := &recordingRejectedHandler{}
	e := newTestExecutorWith(t, &ExecutorConfig{Workers: 2, RejectedTaskHandler: rejected})

	// Act
	if err := e.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	_, err := e.Spawn(func(cx *Context) Poll { return Ready })

	// Assert
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Spawn() error = %v, want ErrPoolClosed", err)
	}
	if rejected.calls.Load() != 1 {
		t.Errorf("rejected handler calls = %d, want 1", rejected.calls.Load())
	}
	if e.Stats().Rejected != 1 {
		t.Errorf("Stats().Rejected = %d, want 1", e.Stats().Rejected)
	}
	if _, err := e.Handle().Spawn(func(cx *Context) Poll { return Ready }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Handle().Spawn() error = %v, want ErrPoolClosed", err)
	}
}

// TestShutdown_DrainFinishesLiveTasks verifies drain mode runs queued work to completion
// Given: An executor in drain mode with 50 tasks that each yield 100 times
// When: Shutdown is called right after spawning
// Then: Every task completes without error before Shutdown returns
func TestShutdown_DrainFinishesLiveTasks(t *testing.T) {
	// Arrange
	e := newTestExecutorWith(t, &ExecutorConfig{Workers: 4, ShutdownMode: ShutdownDrain})
	var finished atomic.Int32
	handles := make([]*JoinHandle, 0, 50)
	for range 50 {
		h, err := e.Spawn(Yield(100, func(cx *Context) Poll {
			finished.Add(1)
			return Ready
		}))
		if err != nil {
			t.Fatalf("Spawn() error = %v", err)
		}
		handles = append(handles, h)
	}

	// Act
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := e.Shutdown(ctx)

	// Assert
	if err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := finished.Load(); got != 50 {
		t.Errorf("finished = %d, want 50", got)
	}
	for i, h := range handles {
		if err := h.Err(); err != nil {
			t.Errorf("handle %d: Err() = %v, want nil", i, err)
		}
	}
}

// TestShutdown_SpawnFromTaskDuringDrain verifies in-task spawns are refused once shutdown begins
// Given: A task that spawns a never-ending yielder on every step
// When: Shutdown drains with a 100ms deadline after the first spawn succeeded
// Then: The next in-task spawn is refused and the drain is cut short by the yielders
func TestShutdown_SpawnFromTaskDuringDrain(t *testing.T) {
	// Arrange
	e := newTestExecutorWith(t, &ExecutorConfig{Workers: 2})
	var refused atomic.Int32
	spawned := make(chan struct{})
	var once sync.Once

	loop := func(cx *Context) Poll {
		if _, err := cx.Spawn(func(cx *Context) Poll { return cx.Yield() }); err != nil {
			refused.Add(1)
			return Ready
		}
		once.Do(func() { close(spawned) })
		return cx.Yield()
	}
	if _, err := e.Spawn(loop); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	<-spawned

	// Act
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := e.Shutdown(ctx)

	// Assert
	// The spawned yielders never finish, so the drain is cut short.
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want context.DeadlineExceeded", err)
	}
	if refused.Load() != 1 {
		t.Errorf("refused spawns = %d, want 1", refused.Load())
	}
}

// TestShutdown_DrainTimeoutAbandons verifies a drain bounded by ctx gives up
// Given: A task suspended on a waker nobody fires
// When: Shutdown runs with a 50ms deadline
// Then: Shutdown returns DeadlineExceeded and the task's handle reports ErrPoolClosed
func TestShutdown_DrainTimeoutAbandons(t *testing.T) {
	// Arrange
	e := newTestExecutor(t, 1)
	wakers := make(chan *Waker, 1)
	h, _ := e.Spawn(func(cx *Context) Poll {
		wakers <- cx.Waker()
		return Pending
	})
	w := <-wakers
	defer w.Drop()

	// Act
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := e.Shutdown(ctx)

	// Assert
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown() error = %v, want context.DeadlineExceeded", err)
	}
	if err := h.Wait(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Wait() error = %v, want ErrPoolClosed", err)
	}
	if e.IsRunning() {
		t.Error("IsRunning() = true after Shutdown")
	}
}

// TestShutdown_AbandonReturnsPromptly verifies abandon mode does not wait for live tasks
func TestShutdown_AbandonReturnsPromptly(t *testing.T) {
	// Arrange
	e := newTestExecutorWith(t, &ExecutorConfig{Workers: 2, ShutdownMode: ShutdownAbandon})
	wakers := make(chan *Waker, 1)
	h, _ := e.Spawn(func(cx *Context) Poll {
		wakers <- cx.Waker()
		return Pending
	})
	w := <-wakers

	// Act
	start := time.Now()
	err := e.Shutdown(context.Background())

	// Assert
	if err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Shutdown took %v in abandon mode", elapsed)
	}
	if err := h.Wait(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Wait() error = %v, want ErrPoolClosed", err)
	}

	// A wake after stop completes the abandoned task instead of queueing it.
	w.Wake()
	if err := h.Err(); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Err() after late wake = %v, want ErrPoolClosed", err)
	}
	if got := e.LiveTaskCount(); got != 0 {
		t.Errorf("LiveTaskCount() = %d, want 0", got)
	}
	w.Drop()
}

// TestShutdown_StopCompletesQueuedTasks verifies Stop fails tasks still in the queues
func TestShutdown_StopCompletesQueuedTasks(t *testing.T) {
	// Arrange
	e := newTestExecutor(t, 1)
	gate := make(chan struct{})
	started := make(chan struct{})
	e.SpawnFunc(func(ctx context.Context) {
		close(started)
		select {
		case <-gate:
		case <-ctx.Done():
		}
	})
	<-started
	var queued []*JoinHandle
	for range 10 {
		h, _ := e.Spawn(func(cx *Context) Poll { return Ready })
		queued = append(queued, h)
	}

	// Act
	e.Stop()
	e.Stop()

	// Assert
	for i, h := range queued {
		select {
		case <-h.Done():
		default:
			t.Fatalf("handle %d not done after Stop", i)
		}
		if !errors.Is(h.Err(), ErrPoolClosed) {
			t.Errorf("handle %d: Err() = %v, want ErrPoolClosed", i, h.Err())
		}
	}
	if got := e.QueuedTaskCount(); got != 0 {
		t.Errorf("QueuedTaskCount() = %d, want 0", got)
	}
}

// TestShutdownGraceful_Timeout verifies ShutdownGraceful reports abandoned work
func TestShutdownGraceful_Timeout(t *testing.T) {
	e := newTestExecutor(t, 1)
	wakers := make(chan *Waker, 1)
	e.Spawn(func(cx *Context) Poll {
		wakers <- cx.Waker()
		return Pending
	})
	w := <-wakers
	defer w.Drop()

	err := e.ShutdownGraceful(30 * time.Millisecond)

	if err == nil {
		t.Fatal("ShutdownGraceful() error = nil, want timeout")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ShutdownGraceful() error = %v, want it to wrap DeadlineExceeded", err)
	}
}

// TestShutdown_WaitUnblocksOnStop verifies a blocked Wait returns when the executor stops
func TestShutdown_WaitUnblocksOnStop(t *testing.T) {
	e := newTestExecutor(t, 1)
	wakers := make(chan *Waker, 1)
	h, _ := e.Spawn(func(cx *Context) Poll {
		wakers <- cx.Waker()
		return Pending
	})
	w := <-wakers
	defer w.Drop()

	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait(context.Background()) }()
	e.Stop()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrPoolClosed) {
			t.Errorf("Wait() error = %v, want ErrPoolClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait() still blocked after Stop")
	}
}

type recordingRejectedHandler struct {
	calls atomic.Int32
}

func (h *recordingRejectedHandler) HandleRejectedTask(poolID string, reason string) {
	h.calls.Add(1)
}
