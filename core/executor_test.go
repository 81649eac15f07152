package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestExecutor(t *testing.T, workers int) *Executor {
	t.Helper()
	return newTestExecutorWith(t, &ExecutorConfig{Workers: workers})
}

func newTestExecutorWith(t *testing.T, cfg *ExecutorConfig) *Executor {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = NewNoOpLogger()
	}
	e, err := NewExecutor(cfg)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	t.Cleanup(e.Stop)
	return e
}

func waitAll(t *testing.T, handles []*JoinHandle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i, h := range handles {
		if err := h.Wait(ctx); err != nil {
			t.Fatalf("handle %d: Wait() error = %v", i, err)
		}
	}
}

// TestExecutor_SpawnManyRunsEachOnce verifies every spawned task runs exactly once
// Given: An executor with 4 workers
// When: 10,000 tasks are spawned from the test goroutine, each incrementing a counter
// Then: The counter is exactly 10,000 and stats agree
func TestExecutor_SpawnManyRunsEachOnce(t *testing.T) {
	// Arrange
	e := newTestExecutor(t, 4)
	const n = 10000
	var counter atomic.Int64

	// Act
	handles := make([]*JoinHandle, 0, n)
	for range n {
		h, err := e.SpawnFunc(func(ctx context.Context) { counter.Add(1) })
		if err != nil {
			t.Fatalf("SpawnFunc() error = %v", err)
		}
		handles = append(handles, h)
	}
	waitAll(t, handles)

	// Assert
	if got := counter.Load(); got != n {
		t.Errorf("counter = %d, want %d", got, n)
	}
	stats := e.Stats()
	if stats.Spawned != n || stats.Completed != n {
		t.Errorf("Spawned/Completed = %d/%d, want %d/%d", stats.Spawned, stats.Completed, n, n)
	}
	if stats.Live != 0 {
		t.Errorf("Live = %d, want 0", stats.Live)
	}
}

// TestExecutor_YieldSteppedOncePerYield verifies a task yielding Y times is stepped Y+1 times
func TestExecutor_YieldSteppedOncePerYield(t *testing.T) {
	// Arrange
	e := newTestExecutor(t, 2)
	const yields = 100
	var polls atomic.Int32

	// Act
	h, err := e.Spawn(func(cx *Context) Poll {
		if polls.Add(1) <= yields {
			return cx.Yield()
		}
		return Ready
	})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	waitAll(t, []*JoinHandle{h})

	// Assert
	if got := polls.Load(); got != yields+1 {
		t.Errorf("polls = %d, want %d", got, yields+1)
	}
}

// TestExecutor_PanicIsolation verifies a panicking step fails only its own task
// Given: An executor with a recording panic handler
// When: One task panics and another task is spawned afterwards
// Then: The first JoinHandle reports a *PanicError, the handler saw it, and the second task still runs
func TestExecutor_PanicIsolation(t *testing.T) {
	// Arrange
	var handled atomic.Int32
	e := newTestExecutorWith(t, &ExecutorConfig{
		Workers:      1,
		PanicHandler: panicHandlerFunc(func() { handled.Add(1) }),
	})

	// Act
	bad, _ := e.Spawn(func(cx *Context) Poll { panic("boom") })
	err := bad.Wait(context.Background())

	var ran atomic.Bool
	good, _ := e.SpawnFunc(func(ctx context.Context) { ran.Store(true) })
	waitAll(t, []*JoinHandle{good})

	// Assert
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("Wait() error = %v, want *PanicError", err)
	}
	if pe.Value != "boom" || pe.TaskID != bad.ID() || len(pe.Stack) == 0 {
		t.Errorf("PanicError = %+v, want value boom for %s with a stack", pe, bad.ID())
	}
	if handled.Load() != 1 {
		t.Errorf("panic handler calls = %d, want 1", handled.Load())
	}
	if !ran.Load() {
		t.Error("task after the panic did not run")
	}
	if got := e.Stats().Panicked; got != 1 {
		t.Errorf("Stats().Panicked = %d, want 1", got)
	}
}

// TestExecutor_PanicErrorUnwrap verifies an error panic value is reachable with errors.Is
func TestExecutor_PanicErrorUnwrap(t *testing.T) {
	e := newTestExecutor(t, 1)
	sentinel := errors.New("sentinel")

	h, _ := e.Spawn(func(cx *Context) Poll { panic(sentinel) })
	err := h.Wait(context.Background())

	if !errors.Is(err, sentinel) {
		t.Errorf("Wait() error = %v, want it to wrap sentinel", err)
	}
}

// TestExecutor_SpawnNil verifies a nil step is refused
func TestExecutor_SpawnNil(t *testing.T) {
	e := newTestExecutor(t, 1)

	if _, err := e.Spawn(nil); !errors.Is(err, ErrNilStep) {
		t.Errorf("Spawn(nil) error = %v, want ErrNilStep", err)
	}
}

// TestExecutor_ChainedSpawn verifies tasks spawned from inside steps all run
// Given: A task that spawns its successor through the Context until depth 1000
// When: The chain runs
// Then: Every link runs once and the final link closes done
func TestExecutor_ChainedSpawn(t *testing.T) {
	// Arrange
	e := newTestExecutor(t, 4)
	const depth = 1000
	var links atomic.Int32
	done := make(chan struct{})

	var link func(n int) Step
	link = func(n int) Step {
		return func(cx *Context) Poll {
			links.Add(1)
			if n == depth {
				close(done)
				return Ready
			}
			if _, err := cx.Spawn(link(n + 1)); err != nil {
				t.Errorf("cx.Spawn() error = %v", err)
			}
			return Ready
		}
	}

	// Act
	if _, err := e.Spawn(link(1)); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	// Assert
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("chain stalled at %d links", links.Load())
	}
	if got := links.Load(); got != depth {
		t.Errorf("links = %d, want %d", got, depth)
	}
}

// TestExecutor_HandleSpawnFromGoroutines verifies Handle spawns are safe across goroutines
func TestExecutor_HandleSpawnFromGoroutines(t *testing.T) {
	e := newTestExecutor(t, 4)
	h := e.Handle()
	var counter atomic.Int64

	var wg sync.WaitGroup
	var mu sync.Mutex
	var handles []*JoinHandle
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 250 {
				j, err := h.SpawnFunc(func(ctx context.Context) { counter.Add(1) })
				if err != nil {
					t.Errorf("SpawnFunc() error = %v", err)
					return
				}
				mu.Lock()
				handles = append(handles, j)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	waitAll(t, handles)

	if got := counter.Load(); got != 2000 {
		t.Errorf("counter = %d, want 2000", got)
	}
	if h.ExecutorID() != e.ID() {
		t.Errorf("ExecutorID() = %q, want %q", h.ExecutorID(), e.ID())
	}
}

// TestExecutor_WorkStealing verifies a burst spawned on one worker spreads to others
// Given: An executor with 4 workers and a root task that spawns 256 blocking-ish children locally
// When: The children run
// Then: More than one worker steps them and the steal counter moves
func TestExecutor_WorkStealing(t *testing.T) {
	// Arrange
	e := newTestExecutor(t, 4)
	var mu sync.Mutex
	seen := map[int]bool{}
	var children []*JoinHandle
	spawned := make(chan struct{})

	// Act
	root, _ := e.Spawn(func(cx *Context) Poll {
		for range 256 {
			j, _ := cx.Spawn(func(cx *Context) Poll {
				mu.Lock()
				seen[cx.WorkerID()] = true
				mu.Unlock()
				time.Sleep(200 * time.Microsecond)
				return Ready
			})
			children = append(children, j)
		}
		close(spawned)
		return Ready
	})
	waitAll(t, []*JoinHandle{root})
	<-spawned
	waitAll(t, children)

	// Assert
	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 {
		t.Errorf("children ran on %d workers, want at least 2", len(seen))
	}
	if e.Stats().Steals == 0 {
		t.Error("Stats().Steals = 0, want > 0")
	}
}

// TestExecutor_Introspection verifies basic accessors
func TestExecutor_Introspection(t *testing.T) {
	e := newTestExecutorWith(t, &ExecutorConfig{ID: "pool-a", Workers: 3})

	if e.ID() != "pool-a" {
		t.Errorf("ID() = %q, want pool-a", e.ID())
	}
	if e.WorkerCount() != 3 {
		t.Errorf("WorkerCount() = %d, want 3", e.WorkerCount())
	}
	if !e.IsRunning() || e.IsClosed() {
		t.Errorf("IsRunning/IsClosed = %v/%v, want true/false", e.IsRunning(), e.IsClosed())
	}

	e.Stop()

	if e.IsRunning() || !e.IsClosed() {
		t.Errorf("after Stop IsRunning/IsClosed = %v/%v, want false/true", e.IsRunning(), e.IsClosed())
	}
	select {
	case <-e.Done():
	default:
		t.Error("Done() not closed after Stop")
	}
}

// TestExecutor_GeneratedID verifies a default ID is assigned
func TestExecutor_GeneratedID(t *testing.T) {
	e := newTestExecutor(t, 1)

	if len(e.ID()) <= len("executor-") {
		t.Errorf("ID() = %q, want executor-<random>", e.ID())
	}
}

// TestNewExecutor_InvalidConfig verifies validation errors surface from NewExecutor
func TestNewExecutor_InvalidConfig(t *testing.T) {
	_, err := NewExecutor(&ExecutorConfig{Workers: -1})

	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewExecutor() error = %v, want ErrInvalidConfig", err)
	}
}

type panicHandlerFunc func()

func (f panicHandlerFunc) HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte) {
	f()
}
