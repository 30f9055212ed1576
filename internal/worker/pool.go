// Package worker provides a bounded-concurrency pool for background tasks.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultWorkers is used when a pool is created with no worker count.
const DefaultWorkers = 16

// ErrNilProcessor is returned by NewPool when no processor is given.
var ErrNilProcessor = errors.New("worker: processor is nil")

// Pool processes batches of work items of type T with at most a fixed
// number of items in flight.
type Pool[T any] struct {
	workers   int
	processor func(context.Context, T) error
	metrics   *Metrics
}

// Option represents a configuration option for the worker pool.
type Option[T any] func(*Pool[T])

// WithMetrics records pool activity in m.
func WithMetrics[T any](m *Metrics) Option[T] {
	return func(p *Pool[T]) { p.metrics = m }
}

// NewPool creates a pool running processor on up to workers items at once.
func NewPool[T any](workers int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}
	p := &Pool[T]{workers: workers, processor: processor}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stats summarizes one Run.
type Stats struct {
	Submitted int64
	Processed int64
	Failed    int64
	// Skipped counts items never started because the context ended.
	Skipped int64
}

// Run processes every item and returns once all started items are done.
// When ctx ends, items not yet started are skipped. Processor errors are
// counted; handling them is up to the processor.
func (p *Pool[T]) Run(ctx context.Context, items []T) Stats {
	var (
		stats Stats
		wg    sync.WaitGroup
		work  = make(chan T)
	)

	workers := min(p.workers, len(items))
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				p.process(ctx, item, &stats)
			}
		}()
	}

feed:
	for i, item := range items {
		if ctx.Err() != nil {
			stats.Skipped = int64(len(items) - i)
			break
		}
		select {
		case <-ctx.Done():
			stats.Skipped = int64(len(items) - i)
			break feed
		case work <- item:
			stats.Submitted++
			if p.metrics != nil {
				p.metrics.submitted.Inc()
			}
		}
	}
	close(work)
	wg.Wait()
	return stats
}

func (p *Pool[T]) process(ctx context.Context, item T, stats *Stats) {
	if p.metrics != nil {
		p.metrics.inFlight.Inc()
		defer p.metrics.inFlight.Dec()
	}

	start := time.Now()
	err := p.processor(ctx, item)
	duration := time.Since(start)

	atomic.AddInt64(&stats.Processed, 1)
	if err != nil {
		atomic.AddInt64(&stats.Failed, 1)
	}
	if p.metrics != nil {
		p.metrics.processed.Inc()
		status := "success"
		if err != nil {
			p.metrics.failed.Inc()
			status = "error"
		}
		p.metrics.processingTime.WithLabelValues(status).Observe(duration.Seconds())
	}
}

// Metrics holds Prometheus metrics for worker pool monitoring.
type Metrics struct {
	inFlight       prometheus.Gauge
	submitted      prometheus.Counter
	processed      prometheus.Counter
	failed         prometheus.Counter
	processingTime *prometheus.HistogramVec
}

// NewMetrics creates pool metrics named with prefix and registers them
// with reg.
func NewMetrics(reg prometheus.Registerer, prefix string) (*Metrics, error) {
	m := &Metrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_in_flight",
			Help: "Work items currently being processed",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_submitted_total",
			Help: "Total work items submitted",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_processed_total",
			Help: "Total work items processed",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_failed_total",
			Help: "Total work items that failed processing",
		}),
		processingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_processing_duration_seconds",
			Help:    "Time spent processing work items",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
	}
	for _, c := range []prometheus.Collector{m.inFlight, m.submitted, m.processed, m.failed, m.processingTime} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
