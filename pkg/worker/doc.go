// Package worker provides a serial, delay-aware work queue.
//
// # Overview
//
// Queue hands work items to a single processor goroutine, one at a time. Items
// become eligible at submission time plus an optional delay and are processed in
// eligibility order; items eligible at the same instant keep submission order.
// With no delays the queue is strictly FIFO.
//
// A pending item can be taken back with Remove (using the Ticket returned by
// Submit) or all at once with Drain. An item that has been handed to the
// processor can no longer be removed.
//
// # Observability
//
// Statistics are always tracked with atomics and returned by Stats. Prometheus
// metrics are optional:
//
//	registry := metric.NewMetricsRegistry()
//	q := worker.NewQueue[Job](
//	    1000, processJob,
//	    worker.WithMetricsRegistry[Job](registry, "lane_background"),
//	)
//
//	// Metrics exposed:
//	// - lane_background_queue_depth
//	// - lane_background_submitted_total
//	// - lane_background_processed_total
//	// - lane_background_failed_total
//	// - lane_background_removed_total
//	// - lane_background_rejected_total
//	// - lane_background_processing_duration_seconds (histogram by status)
//
// # Lifecycle
//
//	if err := q.Start(ctx); err != nil {
//	    return err
//	}
//	ticket, err := q.Submit(job, 50*time.Millisecond)
//	...
//	_ = q.Stop(5 * time.Second) // waits for the item in flight
//	leftovers := q.Drain()      // items that never ran
//
// Submit fails with ErrQueueNotStarted before Start, ErrQueueStopped after Stop
// and ErrQueueFull at capacity; rejections are counted, never silent.
//
// # Thread Safety
//
// All public methods are safe for concurrent use.
package worker
