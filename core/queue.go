package core

import "sync"

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4

	defaultLocalQueueCap = 256
)

// runQueue is the push/pop contract of a run queue. Local queues follow it
// loosely: their push may hand back overflow.
type runQueue interface {
	Push(c *taskCell)
	Pop() (*taskCell, bool)
	Len() int
	Drain() []*taskCell
}

var _ runQueue = (*InjectorQueue)(nil)

// =============================================================================
// InjectorQueue: unbounded global FIFO
// =============================================================================

// InjectorQueue receives external spawns, cross-thread wakes and local
// overflow. It grows without bound.
type InjectorQueue struct {
	mu    sync.Mutex
	tasks []*taskCell
}

func NewInjectorQueue() *InjectorQueue {
	return &InjectorQueue{
		tasks: make([]*taskCell, 0, defaultQueueCap),
	}
}

func (q *InjectorQueue) Push(c *taskCell) {
	q.mu.Lock()
	q.tasks = append(q.tasks, c)
	q.mu.Unlock()
}

// PushBatch appends cells in order under a single lock.
func (q *InjectorQueue) PushBatch(cells []*taskCell) {
	if len(cells) == 0 {
		return
	}
	q.mu.Lock()
	q.tasks = append(q.tasks, cells...)
	q.mu.Unlock()
}

func (q *InjectorQueue) Pop() (*taskCell, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	c := q.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	q.maybeCompactLocked()

	return c, true
}

// PopUpTo removes at most max cells from the front.
func (q *InjectorQueue) PopUpTo(max int) []*taskCell {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.tasks)
	if n == 0 || max <= 0 {
		return nil
	}
	if n > max {
		n = max
	}

	batch := make([]*taskCell, n)
	copy(batch, q.tasks[:n])
	for i := range n {
		q.tasks[i] = nil
	}
	q.tasks = q.tasks[n:]
	q.maybeCompactLocked()

	return batch
}

func (q *InjectorQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]*taskCell, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]*taskCell, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}

func (q *InjectorQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *InjectorQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Drain empties the queue and returns what it held.
func (q *InjectorQueue) Drain() []*taskCell {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.tasks
	q.tasks = make([]*taskCell, 0, defaultQueueCap)
	return out
}

// =============================================================================
// localQueue: per-worker bounded ring
// =============================================================================

// localQueue is owned by one worker for push/pop; siblings may steal half.
type localQueue struct {
	mu   sync.Mutex
	buf  []*taskCell
	head int
	n    int
}

func newLocalQueue(capacity int) *localQueue {
	if capacity < 2 {
		capacity = defaultLocalQueueCap
	}
	return &localQueue{buf: make([]*taskCell, capacity)}
}

// push appends c. If the ring is full, the older half plus c is handed back
// as overflow for the injector.
func (q *localQueue) push(c *taskCell) []*taskCell {
	q.mu.Lock()
	defer q.mu.Unlock()

	size := len(q.buf)
	if q.n < size {
		q.buf[(q.head+q.n)%size] = c
		q.n++
		return nil
	}

	half := q.n / 2
	overflow := make([]*taskCell, 0, half+1)
	for range half {
		overflow = append(overflow, q.buf[q.head])
		q.buf[q.head] = nil
		q.head = (q.head + 1) % size
	}
	q.n -= half
	overflow = append(overflow, c)
	return overflow
}

// pushBatch inserts cells that are known to fit; anything that does not is
// returned.
func (q *localQueue) pushBatch(cells []*taskCell) []*taskCell {
	q.mu.Lock()
	defer q.mu.Unlock()

	size := len(q.buf)
	for i, c := range cells {
		if q.n == size {
			return cells[i:]
		}
		q.buf[(q.head+q.n)%size] = c
		q.n++
	}
	return nil
}

func (q *localQueue) Pop() (*taskCell, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == 0 {
		return nil, false
	}
	c := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return c, true
}

// stealHalf removes the older half (rounded up) of q.
func (q *localQueue) stealHalf() []*taskCell {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == 0 {
		return nil
	}
	k := (q.n + 1) / 2
	out := make([]*taskCell, k)
	for i := range k {
		out[i] = q.buf[q.head]
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
	}
	q.n -= k
	return out
}

func (q *localQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

func (q *localQueue) Drain() []*taskCell {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*taskCell, 0, q.n)
	for q.n > 0 {
		out = append(out, q.buf[q.head])
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
		q.n--
	}
	return out
}
