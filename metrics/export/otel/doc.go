// Package otel publishes goSession metrics through OpenTelemetry observable instruments.
//
// [NewOTelExporter] registers one observable counter per goSession counter and one
// gauge per renewal-latency bucket, plus count and sum gauges. A single callback reads
// [goSession.Manager.MetricsSnapshot] per collection cycle. The caller owns the
// MeterProvider.
package otel
