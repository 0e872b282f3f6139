package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	goSession "github.com/MrEthical07/goSession"
)

// Config is the CLI configuration. Every key can be set in an optional .env file or in
// the environment; the environment wins.
type Config struct {
	// BaseURL is the auth API origin the client talks to.
	BaseURL      string `mapstructure:"SESSIONCTL_BASE_URL"`
	Portal       string `mapstructure:"SESSIONCTL_PORTAL"`
	VendorDomain string `mapstructure:"SESSIONCTL_VENDOR_DOMAIN"`
	// WSURL defaults to BaseURL with a ws(s) scheme and path /ws.
	WSURL string `mapstructure:"SESSIONCTL_WS_URL"`

	// Store is memory, file or redis. The CLI defaults to file so that separate
	// invocations share one session.
	Store     string `mapstructure:"SESSIONCTL_STORE"`
	StorePath string `mapstructure:"SESSIONCTL_STORE_PATH"`
	RedisAddr string `mapstructure:"SESSIONCTL_REDIS_ADDR"`

	HTTPTimeout   time.Duration `mapstructure:"SESSIONCTL_HTTP_TIMEOUT"`
	LeadTime      time.Duration `mapstructure:"SESSIONCTL_LEAD_TIME"`
	MinDelay      time.Duration `mapstructure:"SESSIONCTL_MIN_DELAY"`
	WSAuthTimeout time.Duration `mapstructure:"SESSIONCTL_WS_AUTH_TIMEOUT"`

	Email    string `mapstructure:"SESSIONCTL_EMAIL"`
	Password string `mapstructure:"SESSIONCTL_PASSWORD"`

	LogLevel string `mapstructure:"SESSIONCTL_LOG_LEVEL"`
	// LogFile switches logging from stderr to a size-rotated file.
	LogFile     string `mapstructure:"SESSIONCTL_LOG_FILE"`
	Audit       bool   `mapstructure:"SESSIONCTL_AUDIT"`
	MetricsAddr string `mapstructure:"SESSIONCTL_METRICS_ADDR"`

	// serve-dev only.
	DevAddr      string        `mapstructure:"SESSIONCTL_DEV_ADDR"`
	DevAccessTTL time.Duration `mapstructure:"SESSIONCTL_DEV_ACCESS_TTL"`
}

// LoadConfig reads envFile (if present), then the environment. A missing file is ignored.
func LoadConfig(envFile string) (*Config, error) {
	v := viper.New()

	if envFile == "" {
		envFile = ".env"
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	defaults := goSession.DefaultConfig()
	v.SetDefault("SESSIONCTL_BASE_URL", "http://127.0.0.1:8080")
	v.SetDefault("SESSIONCTL_PORTAL", string(goSession.PortalClient))
	v.SetDefault("SESSIONCTL_VENDOR_DOMAIN", "")
	v.SetDefault("SESSIONCTL_WS_URL", "")
	v.SetDefault("SESSIONCTL_STORE", goSession.PersistFile)
	v.SetDefault("SESSIONCTL_STORE_PATH", ".sessionctl/session")
	v.SetDefault("SESSIONCTL_REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("SESSIONCTL_HTTP_TIMEOUT", defaults.HTTP.Timeout.String())
	v.SetDefault("SESSIONCTL_LEAD_TIME", defaults.Schedule.LeadTime.String())
	v.SetDefault("SESSIONCTL_MIN_DELAY", defaults.Schedule.MinDelay.String())
	v.SetDefault("SESSIONCTL_WS_AUTH_TIMEOUT", defaults.WebSocket.AuthTimeout.String())
	v.SetDefault("SESSIONCTL_EMAIL", "")
	v.SetDefault("SESSIONCTL_PASSWORD", "")
	v.SetDefault("SESSIONCTL_LOG_LEVEL", "info")
	v.SetDefault("SESSIONCTL_LOG_FILE", "")
	v.SetDefault("SESSIONCTL_AUDIT", false)
	v.SetDefault("SESSIONCTL_METRICS_ADDR", "")
	v.SetDefault("SESSIONCTL_DEV_ADDR", "127.0.0.1:8080")
	v.SetDefault("SESSIONCTL_DEV_ACCESS_TTL", "15m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if !goSession.Portal(cfg.Portal).Valid() {
		return nil, fmt.Errorf("config: SESSIONCTL_PORTAL %q is not a known portal", cfg.Portal)
	}
	switch cfg.Store {
	case goSession.PersistMemory, goSession.PersistFile, goSession.PersistRedis:
	default:
		return nil, fmt.Errorf("config: SESSIONCTL_STORE %q must be memory, file or redis", cfg.Store)
	}
	if cfg.Store == goSession.PersistFile && cfg.StorePath == "" {
		return nil, errors.New("config: SESSIONCTL_STORE_PATH must be set for the file store")
	}
	if cfg.WSURL == "" {
		ws, err := deriveWSURL(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		cfg.WSURL = ws
	}
	return &cfg, nil
}

// Session maps the CLI settings onto a manager configuration.
func (c *Config) Session(websocket bool) goSession.Config {
	out := goSession.DefaultConfig()
	out.Portal = goSession.Portal(c.Portal)
	out.BaseURL = c.BaseURL
	out.HTTP.Timeout = c.HTTPTimeout
	out.HTTP.VendorDomain = c.VendorDomain
	out.Schedule.LeadTime = c.LeadTime
	out.Schedule.MinDelay = c.MinDelay
	out.Persistence.Backend = c.Store
	out.Persistence.FilePath = c.StorePath + "." + c.Portal
	out.WebSocket.Enabled = websocket
	out.WebSocket.URL = c.WSURL
	out.WebSocket.AuthTimeout = c.WSAuthTimeout
	out.Audit.Enabled = c.Audit
	return out
}

func deriveWSURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("config: SESSIONCTL_BASE_URL %q is not an absolute URL", base)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}
