package goSession

import (
	"net"
	"net/url"
	"strings"
	"time"
)

// LintSeverity ranks a [LintWarning].
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintLow
	LintMedium
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "info"
	case LintLow:
		return "low"
	case LintMedium:
		return "medium"
	case LintHigh:
		return "high"
	default:
		return "unknown"
	}
}

// LintWarning is a configuration that validates but is probably not what you want.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintWarnings is the result of [Config.Lint].
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (ws LintWarnings) BySeverity(min LintSeverity) LintWarnings {
	var out LintWarnings
	for _, w := range ws {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// Lint reports soft problems. It never fails; run [Config.Validate] for hard errors.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.Schedule.MinDelay >= c.Schedule.LeadTime {
		add("min_delay_exceeds_lead", LintHigh,
			"Schedule MinDelay >= LeadTime: tokens issued close to expiry are renewed after they expire")
	}
	if c.Schedule.LeadTime > c.Schedule.ExpiringSoonWindow {
		add("expiring_soon_after_renewal", LintMedium,
			"Schedule ExpiringSoonWindow < LeadTime: the expiring-soon signal only appears once renewal is already due")
	}
	if insecureRemote(c.BaseURL, "http") {
		add("base_url_plaintext", LintHigh, "BaseURL uses http for a non-loopback host; tokens travel in clear text")
	}
	if c.WebSocket.Enabled && insecureRemote(c.WebSocket.URL, "ws", "http") {
		add("websocket_plaintext", LintHigh, "WebSocket URL is unencrypted for a non-loopback host; credentials travel in clear text")
	}
	if c.HTTP.Timeout == 0 {
		add("http_timeout_unbounded", LintMedium, "HTTP Timeout is zero; a stalled request holds its renewal forever")
	}
	if c.WebSocket.Enabled && c.WebSocket.AuthTimeout > 30*time.Second {
		add("ws_auth_timeout_long", LintLow, "WebSocket AuthTimeout above 30s leaves the login form waiting")
	}
	if c.Persistence.Backend == PersistMemory {
		add("persistence_memory", LintInfo, "tokens are kept in memory only and are lost on restart")
	}
	if c.Persistence.Backend == PersistRedis && c.Persistence.RedisTTL > 0 && c.Persistence.RedisTTL < c.Schedule.LeadTime {
		add("redis_ttl_short", LintLow, "Persistence RedisTTL is shorter than LeadTime; restored sessions may be missing before renewal")
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		add("audit_blocking", LintLow, "Audit DropIfFull is false; a slow sink delays renewals and logouts")
	}
	if !c.Metrics.Enabled {
		add("metrics_disabled", LintInfo, "metrics are disabled; MetricsSnapshot stays empty")
	}

	return ws
}

func insecureRemote(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	plain := false
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			plain = true
		}
	}
	if !plain {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return false
	}
	ip := net.ParseIP(host)
	return ip == nil || !ip.IsLoopback()
}
