// Package prometheus exposes a goSession manager's counters and renewal latency
// histogram as a client_golang Collector.
//
// Register the exporter with your own registry, or mount [PrometheusExporter.Handler]
// which serves it from a private one. Counter names follow gosession_*_total and the
// histogram is gosession_renew_latency_seconds.
package prometheus
