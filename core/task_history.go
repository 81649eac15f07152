package core

import (
	"reflect"
	"runtime"
	"sync"
)

// executionHistory is a fixed-size ring of the most recent completions.
// A zero capacity disables it.
type executionHistory struct {
	mu    sync.Mutex
	items []TaskExecutionRecord
	head  int
	count int
}

func newExecutionHistory(capacity int) executionHistory {
	if capacity < 1 {
		return executionHistory{}
	}
	return executionHistory{items: make([]TaskExecutionRecord, capacity)}
}

func (h *executionHistory) Enabled() bool {
	return len(h.items) > 0
}

func (h *executionHistory) Add(record TaskExecutionRecord) {
	if len(h.items) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

// Recent returns up to limit records, newest first. limit <= 0 means all.
func (h *executionHistory) Recent(limit int) []TaskExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]TaskExecutionRecord, 0, limit)
	for i := range limit {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

func (h *executionHistory) Last() (TaskExecutionRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return TaskExecutionRecord{}, false
	}

	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx], true
}

// resolveTaskName names a task after its step's function symbol when no
// explicit name was given. Closures carry their enclosing function's name,
// which inlining may extend with the caller's.
func resolveTaskName(step Step, explicit string) string {
	if explicit != "" {
		return explicit
	}

	if step == nil {
		return "anonymous"
	}

	pc := reflect.ValueOf(step).Pointer()
	if pc == 0 {
		return "anonymous"
	}

	fn := runtime.FuncForPC(pc)
	if fn == nil || fn.Name() == "" {
		return "anonymous"
	}
	return fn.Name()
}
