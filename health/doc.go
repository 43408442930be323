// Package health tracks the health of the runtime's long-lived parts and
// serves an aggregate over HTTP.
//
// A Status is healthy, degraded or unhealthy. Monitor holds the latest Status
// per named part and aggregates them: any unhealthy part makes the whole
// unhealthy, otherwise any degraded part makes it degraded.
//
// Builders translate runtime facts into statuses:
//
//	monitor := health.NewMonitor()
//	monitor.Update("user-lane", health.FromLaneStats("user-lane", ts.Stats().User))
//	monitor.Update("session", health.FromCancellation("session", info))
//	mux.Handle("/health", monitor.Handler("speechcore"))
//
// Messages derived from errors are sanitized: file paths, URLs, addresses
// and credentials are replaced with placeholders before they are exposed.
package health
