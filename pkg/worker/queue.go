// Package worker provides a serial, delay-aware work queue for ordered task processing
package worker

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/speechcore/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Ticket identifies a submitted work item within one queue.
type Ticket uint64

// Queue is a single-consumer queue that hands work items of type T to its
// processor one at a time, in order of eligibility time (submission time plus
// delay), ties broken by submission order.
type Queue[T any] struct {
	// Configuration
	queueSize int
	processor func(context.Context, T) error

	// Runtime state
	mu      sync.Mutex
	pending itemHeap[T]
	byID    map[Ticket]*item[T]
	next    Ticket
	wake    chan struct{}
	done    chan struct{}
	metrics *Metrics
	wg      sync.WaitGroup

	// Lifecycle management
	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	// Statistics (atomic)
	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	removed   atomic.Int64
	rejected  atomic.Int64

	// Metrics configuration
	metricsRegistry *metric.MetricsRegistry
	metricsPrefix   string
}

// Metrics holds Prometheus metrics for queue monitoring
type Metrics struct {
	queueDepth     prometheus.Gauge
	submitted      prometheus.Counter
	processed      prometheus.Counter
	failed         prometheus.Counter
	removed        prometheus.Counter
	rejected       prometheus.Counter
	processingTime *prometheus.HistogramVec
}

// Option represents a configuration option for the queue
type Option[T any] func(*Queue[T])

// WithMetricsRegistry configures the queue to register metrics with the framework's registry
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(q *Queue[T]) {
		q.metricsRegistry = registry
		q.metricsPrefix = prefix
	}
}

// NewQueue creates a new serial queue with optional configuration
func NewQueue[T any](queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Queue[T] {
	if queueSize <= 0 {
		queueSize = 10000 // Default queue size
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	q := &Queue[T]{
		queueSize: queueSize,
		processor: processor,
		byID:      make(map[Ticket]*item[T]),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(q)
	}

	if q.metricsRegistry != nil && q.metricsPrefix != "" {
		q.initializeMetrics()
	}

	return q
}

// initializeMetrics creates and registers metrics with the framework's registry
func (q *Queue[T]) initializeMetrics() {
	prefix := q.metricsPrefix

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_queue_depth",
		Help: "Current number of pending work items",
	})
	submitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_submitted_total",
		Help: "Total work items submitted",
	})
	processed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_processed_total",
		Help: "Total work items processed",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_failed_total",
		Help: "Total work items that failed processing",
	})
	removed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_removed_total",
		Help: "Total work items removed before processing",
	})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_rejected_total",
		Help: "Total work items rejected because the queue was full or stopped",
	})
	processingTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    prefix + "_processing_duration_seconds",
		Help:    "Time spent processing work items",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"status"})

	serviceName := "worker_queue"
	_ = q.metricsRegistry.RegisterGauge(serviceName, prefix+"_queue_depth", queueDepth)
	_ = q.metricsRegistry.RegisterCounter(serviceName, prefix+"_submitted_total", submitted)
	_ = q.metricsRegistry.RegisterCounter(serviceName, prefix+"_processed_total", processed)
	_ = q.metricsRegistry.RegisterCounter(serviceName, prefix+"_failed_total", failed)
	_ = q.metricsRegistry.RegisterCounter(serviceName, prefix+"_removed_total", removed)
	_ = q.metricsRegistry.RegisterCounter(serviceName, prefix+"_rejected_total", rejected)
	_ = q.metricsRegistry.RegisterHistogramVec(serviceName, prefix+"_processing_duration_seconds", processingTime)

	q.metrics = &Metrics{
		queueDepth:     queueDepth,
		submitted:      submitted,
		processed:      processed,
		failed:         failed,
		removed:        removed,
		rejected:       rejected,
		processingTime: processingTime,
	}
}

// Submit queues work to become eligible after delay. A non-positive delay makes
// it eligible immediately. Returns an error if the queue is not running or full.
func (q *Queue[T]) Submit(work T, delay time.Duration) (Ticket, error) {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()

	if !q.started {
		q.reject()
		return 0, ErrQueueNotStarted
	}
	if q.stopped {
		q.reject()
		return 0, ErrQueueStopped
	}

	if delay < 0 {
		delay = 0
	}

	q.mu.Lock()
	if len(q.pending) >= q.queueSize {
		q.mu.Unlock()
		q.reject()
		return 0, ErrQueueFull
	}
	q.next++
	it := &item[T]{ticket: q.next, work: work, eligible: time.Now().Add(delay)}
	heap.Push(&q.pending, it)
	q.byID[it.ticket] = it
	depth := len(q.pending)
	q.mu.Unlock()

	q.submitted.Add(1)
	if q.metrics != nil {
		q.metrics.submitted.Inc()
		q.metrics.queueDepth.Set(float64(depth))
	}
	q.signal()
	return it.ticket, nil
}

// Remove takes a pending item out of the queue before it is processed.
// Returns false if the item already started, was removed, or is unknown.
func (q *Queue[T]) Remove(ticket Ticket) (T, bool) {
	q.mu.Lock()
	it, ok := q.byID[ticket]
	if ok {
		heap.Remove(&q.pending, it.index)
		delete(q.byID, ticket)
	}
	depth := len(q.pending)
	q.mu.Unlock()

	if !ok {
		var zero T
		return zero, false
	}

	q.removed.Add(1)
	if q.metrics != nil {
		q.metrics.removed.Inc()
		q.metrics.queueDepth.Set(float64(depth))
	}
	q.signal()
	return it.work, true
}

// Drain removes every pending item and returns them in eligibility order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	out := make([]T, 0, len(q.pending))
	for len(q.pending) > 0 {
		it := heap.Pop(&q.pending).(*item[T])
		delete(q.byID, it.ticket)
		out = append(out, it.work)
	}
	q.mu.Unlock()

	q.removed.Add(int64(len(out)))
	if q.metrics != nil {
		q.metrics.removed.Add(float64(len(out)))
		q.metrics.queueDepth.Set(0)
	}
	return out
}

// Start starts the queue's worker goroutine
func (q *Queue[T]) Start(ctx context.Context) error {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()

	if q.started {
		return ErrQueueAlreadyStarted
	}

	q.wg.Add(1)
	go q.worker(ctx)

	q.started = true
	return nil
}

// Stop stops accepting work and waits for the item in flight, if any, to
// finish. Items still pending stay queued; use Drain to collect them.
func (q *Queue[T]) Stop(timeout time.Duration) error {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()

	if !q.started || q.stopped {
		return nil
	}

	q.stopped = true
	close(q.done)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns current queue statistics
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	depth := len(q.pending)
	q.mu.Unlock()

	return QueueStats{
		QueueSize:  q.queueSize,
		QueueDepth: depth,
		Submitted:  q.submitted.Load(),
		Processed:  q.processed.Load(),
		Failed:     q.failed.Load(),
		Removed:    q.removed.Load(),
		Rejected:   q.rejected.Load(),
	}
}

// QueueStats represents queue statistics
type QueueStats struct {
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Removed    int64 `json:"removed"`
	Rejected   int64 `json:"rejected"`
}

func (q *Queue[T]) reject() {
	q.rejected.Add(1)
	if q.metrics != nil {
		q.metrics.rejected.Inc()
	}
}

func (q *Queue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// nextItem blocks until an item is eligible or the queue is shutting down.
func (q *Queue[T]) nextItem(ctx context.Context) (*item[T], bool) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-q.done:
			return nil, false
		default:
		}

		var wait <-chan time.Time

		q.mu.Lock()
		if len(q.pending) > 0 {
			head := q.pending[0]
			d := time.Until(head.eligible)
			if d <= 0 {
				heap.Pop(&q.pending)
				delete(q.byID, head.ticket)
				depth := len(q.pending)
				q.mu.Unlock()
				if q.metrics != nil {
					q.metrics.queueDepth.Set(float64(depth))
				}
				return head, true
			}
			if timer == nil {
				timer = time.NewTimer(d)
			} else {
				timer.Reset(d)
			}
			wait = timer.C
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.done:
			return nil, false
		case <-q.wake:
		case <-wait:
		}
	}
}

// worker processes items one at a time
func (q *Queue[T]) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		it, ok := q.nextItem(ctx)
		if !ok {
			return
		}

		start := time.Now()
		err := q.processor(ctx, it.work)
		duration := time.Since(start)

		q.processed.Add(1)
		if err != nil {
			q.failed.Add(1)
		}

		if q.metrics != nil {
			q.metrics.processed.Inc()
			status := "success"
			if err != nil {
				q.metrics.failed.Inc()
				status = "error"
			}
			q.metrics.processingTime.WithLabelValues(status).Observe(duration.Seconds())
		}
	}
}
