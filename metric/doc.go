// Package metric provides Prometheus-based metrics collection and an HTTP
// endpoint for the speechcore runtime.
//
// A MetricsRegistry owns a private Prometheus registry with three groups of
// collectors:
//
//  1. Core metrics (Metrics): component status, task outcomes per lane,
//     audio chunks and bytes pumped, errors by class, active sessions.
//  2. Component metrics registered through MetricsRegistrar, keyed by
//     service and metric name. Registering the same key twice is an invalid
//     error; Prometheus name conflicts are reported the same way.
//  3. Go runtime and process collectors.
//
// Basic usage:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() { _ = server.Start() }()
//	defer server.Stop(ctx)
//
//	registry.CoreMetrics().RecordTask("background", "executed", d)
//
// Components that want their own collectors accept a *MetricsRegistry
// option and register under a unique prefix, as pkg/worker does.
package metric
