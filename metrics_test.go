package goSession

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("disabled snapshot should be empty, got %v", snap.Counters)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricRenewSuccess)
	m.Observe(MetricRenewLatency, time.Second)
	if m.Value(MetricRenewSuccess) != 0 || m.Enabled() {
		t.Fatal("nil metrics must be inert")
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRenewCoalesced)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRenewCoalesced); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	observations := []time.Duration{
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		3 * time.Second,
	}
	for _, d := range observations {
		m.Observe(MetricRenewLatency, d)
	}
	m.Observe(MetricRenewSuccess, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricRenewLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d: expected 1, got %d", i, v)
		}
	}

	var total time.Duration
	for _, d := range observations {
		total += d
	}
	if got := m.Snapshot().Sums[MetricRenewLatency]; got != total {
		t.Fatalf("expected latency sum %v, got %v", total, got)
	}
}

func TestMetricsSnapshotExcludesHistogramFromCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLogout)

	snap := m.Snapshot()
	if snap.Counters[MetricLogout] != 1 {
		t.Fatalf("expected logout=1, got %d", snap.Counters[MetricLogout])
	}
	if _, ok := snap.Counters[MetricRenewLatency]; ok {
		t.Fatal("latency histogram must not appear as a counter")
	}
	if _, ok := snap.Histograms[MetricRenewLatency]; ok {
		t.Fatal("histograms are off unless EnableLatencyHistograms is set")
	}
}

func TestMetricIDNames(t *testing.T) {
	for id := MetricID(0); id < metricIDCount; id++ {
		if id.String() == "" {
			t.Fatalf("metric %d has no name", id)
		}
	}
	if MetricID(999).String() != "unknown" {
		t.Fatal("out of range id should be unknown")
	}
}
