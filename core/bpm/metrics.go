package bpm

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OpenTelemetry instruments the buffer pool manager
// publishes, adapted from the gRPC gateway metrics the teacher registers
// the same way (see DESIGN.md). They are exported through whatever
// exporter pkg/telemetry wired up for the process (a Prometheus /metrics
// endpoint by default).
type Metrics struct {
	loadsTotal            metric.Int64Counter
	evictionsTotal        metric.Int64Counter
	evictionFailuresTotal metric.Int64Counter
	optimisticHitsTotal   metric.Int64Counter
	optimisticMissesTotal metric.Int64Counter
	ioLatency             metric.Float64Histogram
	freeFramesGauge       metric.Int64ObservableGauge
	loadedFramesGauge     metric.Int64ObservableGauge
}

// newMetrics registers all instruments against meter. meter may be a
// no-op meter (telemetry disabled); the instruments still work, they just
// never get exported anywhere.
func newMetrics(meter metric.Meter, fp *framePool) (*Metrics, error) {
	loadsTotal, err := meter.Int64Counter(
		"bpm.page.loads_total",
		metric.WithDescription("Total number of pages loaded from the backing store."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	evictionsTotal, err := meter.Int64Counter(
		"bpm.eviction.pages_evicted_total",
		metric.WithDescription("Total number of pages evicted and returned to the free channel."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	evictionFailuresTotal, err := meter.Int64Counter(
		"bpm.eviction.writeback_failures_total",
		metric.WithDescription("Total number of failed eviction writebacks."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	optimisticHitsTotal, err := meter.Int64Counter(
		"bpm.latch.optimistic_hits_total",
		metric.WithDescription("Total number of optimistic reads that validated successfully."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	optimisticMissesTotal, err := meter.Int64Counter(
		"bpm.latch.optimistic_misses_total",
		metric.WithDescription("Total number of optimistic reads that failed validation and fell back to a pessimistic lock."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	ioLatency, err := meter.Float64Histogram(
		"bpm.io.completion_latency",
		metric.WithDescription("Latency between submitting and awaiting completion of a disk read or write."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	freeFramesGauge, err := meter.Int64ObservableGauge(
		"bpm.frames.free",
		metric.WithDescription("Current number of frames sitting in the free channel."),
		metric.WithUnit("1"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(fp.freeCount()))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	loadedFramesGauge, err := meter.Int64ObservableGauge(
		"bpm.pages.loaded",
		metric.WithDescription("Current number of frames owned by a loaded page."),
		metric.WithUnit("1"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(len(fp.frames) - fp.freeCount()))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		loadsTotal:            loadsTotal,
		evictionsTotal:        evictionsTotal,
		evictionFailuresTotal: evictionFailuresTotal,
		optimisticHitsTotal:   optimisticHitsTotal,
		optimisticMissesTotal: optimisticMissesTotal,
		ioLatency:             ioLatency,
		freeFramesGauge:       freeFramesGauge,
		loadedFramesGauge:     loadedFramesGauge,
	}, nil
}

func (m *Metrics) observeLoad() {
	if m == nil {
		return
	}
	m.loadsTotal.Add(context.Background(), 1)
}

func (m *Metrics) observeEviction() {
	if m == nil {
		return
	}
	m.evictionsTotal.Add(context.Background(), 1)
}

func (m *Metrics) observeEvictionFailure() {
	if m == nil {
		return
	}
	m.evictionFailuresTotal.Add(context.Background(), 1)
}

func (m *Metrics) observeOptimisticHit() {
	if m == nil {
		return
	}
	m.optimisticHitsTotal.Add(context.Background(), 1)
}

func (m *Metrics) observeOptimisticMiss() {
	if m == nil {
		return
	}
	m.optimisticMissesTotal.Add(context.Background(), 1)
}

func (m *Metrics) observeIOLatencyMS(ms float64) {
	if m == nil {
		return
	}
	m.ioLatency.Record(context.Background(), ms)
}
