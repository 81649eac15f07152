package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-task-executor/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "taskexec"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	// StepBuckets are histogram buckets for single-step durations. Steps are
	// short, so the default starts at one microsecond.
	StepBuckets []float64
}

var defaultStepBuckets = prom.ExponentialBuckets(1e-6, 4, 10)

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	stepDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	taskRejectedTotal   *prom.CounterVec
	taskStealTotal      *prom.CounterVec
	queueDepth          *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.StepBuckets
	if len(buckets) == 0 {
		buckets = defaultStepBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "step_duration_seconds",
		Help:      "Duration of a single task step in seconds.",
		Buckets:   buckets,
	}, []string{"pool"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"pool"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected spawns.",
	}, []string{"pool", "reason"})
	stealVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_steal_total",
		Help:      "Total number of tasks moved between workers by stealing.",
	}, []string{"pool"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Tasks waiting in run queues, sampled by workers.",
	}, []string{"pool"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if stealVec, err = registerCollector(reg, stealVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		stepDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		taskRejectedTotal:   rejectedVec,
		taskStealTotal:      stealVec,
		queueDepth:          queueDepthVec,
	}, nil
}

// RecordStepDuration records how long one step took.
func (m *MetricsExporter) RecordStepDuration(poolID string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDurationSeconds.WithLabelValues(normalizeLabel(poolID, "unknown")).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(poolID string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(poolID, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(poolID string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(poolID, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records spawn rejections.
func (m *MetricsExporter) RecordTaskRejected(poolID string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(poolID, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordSteal records tasks taken from a sibling worker.
func (m *MetricsExporter) RecordSteal(poolID string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.taskStealTotal.WithLabelValues(normalizeLabel(poolID, "unknown")).Add(float64(count))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
