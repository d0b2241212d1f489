// Package metrics records what the monitor observes.
//
// Counters and gauges are exported in Prometheus format:
//   - probes by result (reachable, unreachable)
//   - status transitions by new status
//   - scan passes and their duration
//   - queued and failed registry updates
//   - active check workers
//
// Alongside the Prometheus series the package keeps a per-group and
// per-instance view (last scan, last known status) that the status endpoint
// serves as JSON.
//
// Example usage:
//
//	m := metrics.New()
//	m.RecordProbe("web/10.0.0.1:80", true)
//	m.RecordScan("web", 2, 15*time.Millisecond)
//
//	http.Handle("/metrics", m.Handler())
//	snapshot := m.Snapshot()
//
// All methods are safe for concurrent use and are no-ops on a nil *Metrics.
package metrics
