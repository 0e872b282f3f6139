package goSession

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/MrEthical07/goSession/schedule"
	"github.com/MrEthical07/goSession/wsauth"
)

// Config holds everything a [Manager] needs besides injected clients. Start from
// [DefaultConfig] and override fields; [Builder.Build] validates the result.
type Config struct {
	Portal Portal
	// BaseURL is the auth API origin, for example "https://api.example.com".
	BaseURL string

	HTTP        HTTPConfig
	Schedule    ScheduleConfig
	WebSocket   WebSocketConfig
	Persistence PersistenceConfig
	Metrics     MetricsConfig
	Audit       AuditConfig
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig configures the authenticated client returned by [Manager.HTTPClient].
type HTTPConfig struct {
	Timeout time.Duration
	// VendorDomain is sent with logins on multi-vendor deployments.
	VendorDomain string
}

/*
====================================
SCHEDULE CONFIG
====================================
*/

// ScheduleConfig controls proactive renewal timing.
type ScheduleConfig struct {
	// LeadTime is how long before expiry a renewal fires.
	LeadTime time.Duration
	// MinDelay is the floor between arming and firing, so an almost-expired token does not
	// cause an immediate renewal loop.
	MinDelay           time.Duration
	ExpiringSoonWindow time.Duration
}

/*
====================================
WEBSOCKET CONFIG
====================================
*/

type WebSocketConfig struct {
	Enabled      bool
	URL          string
	AuthTimeout  time.Duration
	DialAttempts uint
	DialDelay    time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

/*
====================================
PERSISTENCE CONFIG
====================================
*/

// Persistence backends.
const (
	PersistMemory = "memory"
	PersistRedis  = "redis"
	PersistFile   = "file"
)

// PersistenceConfig selects where the portal's token pair survives restarts.
type PersistenceConfig struct {
	Backend string
	// RedisPrefix is prepended to the portal's key names.
	RedisPrefix string
	// RedisTTL bounds how long a persisted pair lives. Zero keeps it until cleared.
	RedisTTL time.Duration
	FilePath string
}

/*
====================================
METRICS / AUDIT CONFIG
====================================
*/

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the client portal configuration with in-memory persistence.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Portal: PortalClient,
		HTTP: HTTPConfig{
			Timeout: 10 * time.Second,
		},
		Schedule: ScheduleConfig{
			LeadTime:           schedule.DefaultLeadTime,
			MinDelay:           schedule.DefaultMinDelay,
			ExpiringSoonWindow: schedule.DefaultExpiringSoonWindow,
		},
		WebSocket: WebSocketConfig{
			Enabled:      false,
			AuthTimeout:  wsauth.DefaultAuthTimeout,
			DialAttempts: wsauth.DefaultDialAttempts,
			DialDelay:    wsauth.DefaultDialDelay,
			DialTimeout:  wsauth.DefaultDialTimeout,
			WriteTimeout: wsauth.DefaultWriteTimeout,
		},
		Persistence: PersistenceConfig{
			Backend:     PersistMemory,
			RedisPrefix: "portal:",
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first hard configuration error.
func (c *Config) Validate() error {
	if !c.Portal.Valid() {
		return fmt.Errorf("unknown portal %q", c.Portal)
	}
	if err := validateURL("BaseURL", c.BaseURL, "http", "https"); err != nil {
		return err
	}

	// HTTP
	if c.HTTP.Timeout < 0 {
		return errors.New("HTTP Timeout must be >= 0")
	}

	// Schedule
	if c.Schedule.LeadTime <= 0 {
		return errors.New("Schedule LeadTime must be > 0")
	}
	if c.Schedule.MinDelay <= 0 {
		return errors.New("Schedule MinDelay must be > 0")
	}
	if c.Schedule.ExpiringSoonWindow <= 0 {
		return errors.New("Schedule ExpiringSoonWindow must be > 0")
	}

	// WebSocket
	if c.WebSocket.Enabled {
		if err := validateURL("WebSocket URL", c.WebSocket.URL, "ws", "wss", "http", "https"); err != nil {
			return err
		}
		if c.WebSocket.AuthTimeout <= 0 {
			return errors.New("WebSocket AuthTimeout must be > 0")
		}
		if c.WebSocket.DialAttempts < 1 {
			return errors.New("WebSocket DialAttempts must be >= 1")
		}
	}

	// Persistence
	switch c.Persistence.Backend {
	case PersistMemory:
	case PersistRedis:
		if c.Persistence.RedisTTL < 0 {
			return errors.New("Persistence RedisTTL must be >= 0")
		}
	case PersistFile:
		if c.Persistence.FilePath == "" {
			return errors.New("Persistence FilePath required for file backend")
		}
	default:
		return fmt.Errorf("unsupported persistence backend %q", c.Persistence.Backend)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s invalid: %w", field, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s scheme %q not supported", field, u.Scheme)
}
