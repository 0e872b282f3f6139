package internaldefs

import (
	"time"

	goSession "github.com/MrEthical07/goSession"
)

// Namespace prefixes every exported metric name.
const Namespace = "gosession"

// CounterDef binds a counter to its exported name.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef binds a latency histogram to its exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Logins that established a session."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Logins rejected by the server or transport."},
	{ID: goSession.MetricMFARequired, Name: "gosession_mfa_required_total", Help: "Logins that ended in an MFA challenge."},
	{ID: goSession.MetricRenewSuccess, Name: "gosession_renew_success_total", Help: "Successful token renewals."},
	{ID: goSession.MetricRenewFailure, Name: "gosession_renew_failure_total", Help: "Failed token renewals; each clears the session."},
	{ID: goSession.MetricRenewCoalesced, Name: "gosession_renew_coalesced_total", Help: "Callers that joined an in-flight renewal."},
	{ID: goSession.MetricRenewNoRefreshToken, Name: "gosession_renew_no_refresh_token_total", Help: "Renewals attempted without a refresh token."},
	{ID: goSession.MetricSchedulerArmed, Name: "gosession_scheduler_armed_total", Help: "Proactive renewal timers armed."},
	{ID: goSession.MetricSchedulerMalformed, Name: "gosession_scheduler_malformed_token_total", Help: "Access tokens whose expiry could not be decoded."},
	{ID: goSession.MetricInterceptorRetry, Name: "gosession_interceptor_retry_total", Help: "Requests retried after a renewal triggered by 401."},
	{ID: goSession.MetricInterceptorUnauthorized, Name: "gosession_interceptor_unauthorized_total", Help: "401 responses returned after the single retry."},
	{ID: goSession.MetricWSAuthSuccess, Name: "gosession_ws_auth_success_total", Help: "Successful WebSocket authentications."},
	{ID: goSession.MetricWSAuthFailure, Name: "gosession_ws_auth_failure_total", Help: "WebSocket authentications rejected by the server."},
	{ID: goSession.MetricWSAuthTimeout, Name: "gosession_ws_auth_timeout_total", Help: "WebSocket authentications that timed out."},
	{ID: goSession.MetricWSAuthCancelled, Name: "gosession_ws_auth_cancelled_total", Help: "WebSocket authentications cancelled by the caller."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Logouts."},
}

var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRenewLatency, Name: "gosession_renew_latency_seconds", Help: "Round-trip latency of token renewals."},
}

// HistogramUpperBounds mirrors the bucket layout of [goSession.Metrics]. The final
// bucket is unbounded and is not listed.
var HistogramUpperBounds = []time.Duration{
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// HistogramBoundSuffix names each bucket, including +Inf, for exporters that model
// buckets as individual instruments.
var HistogramBoundSuffix = []string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

const bucketCount = 8

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [bucketCount]uint64 {
	var out [bucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [bucketCount]uint64) [bucketCount]uint64 {
	var out [bucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
