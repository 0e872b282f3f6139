package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID names one counter or histogram in [Metrics].
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricMFARequired
	MetricRenewSuccess
	MetricRenewFailure
	// MetricRenewCoalesced counts callers that joined an in-flight renewal instead of
	// starting one.
	MetricRenewCoalesced
	MetricRenewNoRefreshToken
	MetricSchedulerArmed
	MetricSchedulerMalformed
	MetricInterceptorRetry
	// MetricInterceptorUnauthorized counts 401s handed back to the caller after the one
	// permitted retry.
	MetricInterceptorUnauthorized
	MetricWSAuthSuccess
	MetricWSAuthFailure
	MetricWSAuthTimeout
	MetricWSAuthCancelled
	MetricLogout
	MetricRenewLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:            "login_success",
	MetricLoginFailure:            "login_failure",
	MetricMFARequired:             "mfa_required",
	MetricRenewSuccess:            "renew_success",
	MetricRenewFailure:            "renew_failure",
	MetricRenewCoalesced:          "renew_coalesced",
	MetricRenewNoRefreshToken:     "renew_no_refresh_token",
	MetricSchedulerArmed:          "scheduler_armed",
	MetricSchedulerMalformed:      "scheduler_malformed_token",
	MetricInterceptorRetry:        "interceptor_retry",
	MetricInterceptorUnauthorized: "interceptor_unauthorized",
	MetricWSAuthSuccess:           "ws_auth_success",
	MetricWSAuthFailure:           "ws_auth_failure",
	MetricWSAuthTimeout:           "ws_auth_timeout",
	MetricWSAuthCancelled:         "ws_auth_cancelled",
	MetricLogout:                  "logout",
	MetricRenewLatency:            "renew_latency",
}

func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
	sumNano uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters. The zero value and nil are both usable and
// record nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every metric. Histograms hold per-bucket
// (non-cumulative) counts; Sums holds the total observed duration per histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	Sums       map[MetricID]time.Duration
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the latency histogram for id. Only histogram metrics accept it.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricRenewLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
	if d > 0 {
		atomic.AddUint64(&m.histograms[id].sumNano, uint64(d))
	}
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
			Sums:       map[MetricID]time.Duration{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
		Sums:       make(map[MetricID]time.Duration, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricRenewLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRenewLatency].buckets[i])
		}
		s.Histograms[MetricRenewLatency] = buckets
		s.Sums[MetricRenewLatency] = time.Duration(atomic.LoadUint64(&m.histograms[MetricRenewLatency].sumNano))
	}
	return s
}

// Renewals cross the network, so the buckets are wider than an in-process timer would need.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 10:
		return 0
	case ms <= 25:
		return 1
	case ms <= 50:
		return 2
	case ms <= 100:
		return 3
	case ms <= 250:
		return 4
	case ms <= 500:
		return 5
	case ms <= 1000:
		return 6
	default:
		return 7
	}
}
