package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-task-executor/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshotProvider provides current executor stats snapshots.
// *core.Executor implements it.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

var _ PoolSnapshotProvider = (*core.Executor)(nil)

// SnapshotPoller periodically exports executor Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	poolQueued    *prom.GaugeVec
	poolActive    *prom.GaugeVec
	poolLive      *prom.GaugeVec
	poolWorkers   *prom.GaugeVec
	poolRunning   *prom.GaugeVec
	poolSpawned   *prom.GaugeVec
	poolCompleted *prom.GaugeVec
	poolSteals    *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: defaultNamespace,
			Name:      name,
			Help:      help,
		}, []string{"pool"})
	}

	p := &SnapshotPoller{
		interval:      interval,
		pools:         make(map[string]PoolSnapshotProvider),
		poolQueued:    gauge("pool_queued", "Tasks waiting in run queues per pool."),
		poolActive:    gauge("pool_active", "Tasks being stepped per pool."),
		poolLive:      gauge("pool_live", "Spawned tasks not yet completed per pool."),
		poolWorkers:   gauge("pool_workers", "Worker count per pool."),
		poolRunning:   gauge("pool_running", "Pool running state (1=running, 0=stopped)."),
		poolSpawned:   gauge("pool_spawned", "Tasks spawned per pool, snapshot of a counter."),
		poolCompleted: gauge("pool_completed", "Tasks completed per pool, snapshot of a counter."),
		poolSteals:    gauge("pool_steals", "Tasks moved by stealing per pool, snapshot of a counter."),
	}

	for _, g := range []**prom.GaugeVec{
		&p.poolQueued, &p.poolActive, &p.poolLive, &p.poolWorkers,
		&p.poolRunning, &p.poolSpawned, &p.poolCompleted, &p.poolSteals,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}
	return p, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			// One last sample so a stopped pool is reported as such.
			p.collectOnce()
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.poolsMu.RLock()
	defer p.poolsMu.RUnlock()

	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolLive.WithLabelValues(name).Set(float64(stats.Live))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolSpawned.WithLabelValues(name).Set(float64(stats.Spawned))
		p.poolCompleted.WithLabelValues(name).Set(float64(stats.Completed))
		p.poolSteals.WithLabelValues(name).Set(float64(stats.Steals))
		if stats.Running {
			p.poolRunning.WithLabelValues(name).Set(1)
		} else {
			p.poolRunning.WithLabelValues(name).Set(0)
		}
	}
}
