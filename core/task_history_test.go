package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// TestExecutor_RecentTasks_NamedAndFallback verifies history records names
// Given: An executor with history enabled
// When: A named task and an unnamed task built by core.Func complete
// Then: RecentTasks returns both newest first, using the explicit name and the builder name
func TestExecutor_RecentTasks_NamedAndFallback(t *testing.T) {
	// Arrange
	e := newTestExecutorWith(t, &ExecutorConfig{Workers: 1, HistoryCapacity: 8})

	// Act
	named, _ := e.SpawnNamed("load-config", func(cx *Context) Poll { return Ready })
	waitAll(t, []*JoinHandle{named})
	anon, _ := e.SpawnFunc(func(ctx context.Context) {})
	waitAll(t, []*JoinHandle{anon})

	// Assert
	recs := e.RecentTasks(0)
	if len(recs) != 2 {
		t.Fatalf("len(RecentTasks) = %d, want 2", len(recs))
	}
	if recs[0].TaskID != anon.ID() || recs[1].TaskID != named.ID() {
		t.Errorf("order = %s,%s, want %s,%s", recs[0].TaskID, recs[1].TaskID, anon.ID(), named.ID())
	}
	if recs[1].Name != "load-config" {
		t.Errorf("named record Name = %q, want load-config", recs[1].Name)
	}
	if recs[0].Name == "" || recs[0].Name == "anonymous" {
		t.Errorf("fallback Name = %q, want the step function symbol", recs[0].Name)
	}
	if recs[1].Polls != 1 || recs[1].WorkerID != 0 || recs[1].PoolID != e.ID() {
		t.Errorf("record = %+v, want 1 poll on worker 0 of %s", recs[1], e.ID())
	}
}

// TestExecutor_RecentTasks_PanicRecorded verifies panicked tasks are flagged
func TestExecutor_RecentTasks_PanicRecorded(t *testing.T) {
	e := newTestExecutorWith(t, &ExecutorConfig{
		Workers:         1,
		HistoryCapacity: 4,
		PanicHandler:    panicHandlerFunc(func() {}),
	})

	h, _ := e.SpawnNamed("explode", func(cx *Context) Poll { panic("kaboom") })
	h.Wait(context.Background())

	recs := e.RecentTasks(1)
	if len(recs) != 1 {
		t.Fatalf("len(RecentTasks(1)) = %d, want 1", len(recs))
	}
	var pe *PanicError
	if !recs[0].Panicked || !errors.As(recs[0].Err, &pe) {
		t.Errorf("record = %+v, want a panicked record carrying *PanicError", recs[0])
	}
}

// TestExecutor_RecentTasks_LimitAndOrder verifies the ring keeps only the newest entries
// Given: A history capacity of 3
// When: 5 tasks complete one after another
// Then: RecentTasks(2) returns task-4 and task-3 by name, and RecentTasks(0) returns 3 records
func TestExecutor_RecentTasks_LimitAndOrder(t *testing.T) {
	// Arrange
	e := newTestExecutorWith(t, &ExecutorConfig{Workers: 1, HistoryCapacity: 3})

	// Act
	for i := range 5 {
		h, _ := e.SpawnNamed(fmt.Sprintf("job-%d", i), func(cx *Context) Poll { return Ready })
		waitAll(t, []*JoinHandle{h})
	}

	// Assert
	recs := e.RecentTasks(2)
	if len(recs) != 2 || recs[0].Name != "job-4" || recs[1].Name != "job-3" {
		t.Errorf("RecentTasks(2) = %v, want job-4, job-3", names(recs))
	}
	if got := len(e.RecentTasks(0)); got != 3 {
		t.Errorf("len(RecentTasks(0)) = %d, want 3", got)
	}
}

// TestExecutor_RecentTasks_Disabled verifies history is empty by default
func TestExecutor_RecentTasks_Disabled(t *testing.T) {
	e := newTestExecutor(t, 1)
	h, _ := e.Spawn(func(cx *Context) Poll { return Ready })
	waitAll(t, []*JoinHandle{h})

	if recs := e.RecentTasks(0); len(recs) != 0 {
		t.Errorf("RecentTasks = %v, want empty", recs)
	}
}

func TestExecutionHistory_Last(t *testing.T) {
	h := newExecutionHistory(2)
	if _, ok := h.Last(); ok {
		t.Fatal("Last() on empty history ok = true")
	}
	h.Add(TaskExecutionRecord{Name: "a"})
	h.Add(TaskExecutionRecord{Name: "b"})
	h.Add(TaskExecutionRecord{Name: "c"})

	last, ok := h.Last()
	if !ok || last.Name != "c" {
		t.Errorf("Last() = %q, %v, want c, true", last.Name, ok)
	}
}

func names(recs []TaskExecutionRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Name
	}
	return out
}
