package pool

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// poolMetrics holds the pool's OTel counters. A noop meter keeps all of
// this free when telemetry is disabled.
type poolMetrics struct {
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	evictions metric.Int64Counter
	flushes   metric.Int64Counter
}

func newPoolMetrics(meter metric.Meter) (*poolMetrics, error) {
	hits, err := meter.Int64Counter("grove_buffer_pool_hits_total",
		metric.WithDescription("Page requests served from a resident frame"))
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64Counter("grove_buffer_pool_misses_total",
		metric.WithDescription("Page requests that faulted the page in from disk"))
	if err != nil {
		return nil, err
	}
	evictions, err := meter.Int64Counter("grove_buffer_pool_evictions_total",
		metric.WithDescription("Frames reclaimed through the replacer"))
	if err != nil {
		return nil, err
	}
	flushes, err := meter.Int64Counter("grove_buffer_pool_flushes_total",
		metric.WithDescription("Dirty pages written back to disk"))
	if err != nil {
		return nil, err
	}
	return &poolMetrics{hits: hits, misses: misses, evictions: evictions, flushes: flushes}, nil
}

func (pm *poolMetrics) inc(c metric.Int64Counter) {
	c.Add(context.Background(), 1)
}
