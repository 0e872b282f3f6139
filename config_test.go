package goSession

import (
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseURL = "http://127.0.0.1:3000"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "defaults with base url", mutate: func(*Config) {}, wantValid: true},
		{
			name:      "unknown portal",
			mutate:    func(c *Config) { c.Portal = "vendor" },
			wantValid: false,
		},
		{
			name:      "every known portal",
			mutate:    func(c *Config) { c.Portal = PortalSuperAdmin },
			wantValid: true,
		},
		{
			name:      "missing base url",
			mutate:    func(c *Config) { c.BaseURL = "" },
			wantValid: false,
		},
		{
			name:      "base url without host",
			mutate:    func(c *Config) { c.BaseURL = "http:///api" },
			wantValid: false,
		},
		{
			name:      "base url bad scheme",
			mutate:    func(c *Config) { c.BaseURL = "ftp://auth.example.com" },
			wantValid: false,
		},
		{
			name:      "zero lead time",
			mutate:    func(c *Config) { c.Schedule.LeadTime = 0 },
			wantValid: false,
		},
		{
			name:      "zero min delay",
			mutate:    func(c *Config) { c.Schedule.MinDelay = 0 },
			wantValid: false,
		},
		{
			name:      "negative expiring window",
			mutate:    func(c *Config) { c.Schedule.ExpiringSoonWindow = -time.Second },
			wantValid: false,
		},
		{
			name:      "negative http timeout",
			mutate:    func(c *Config) { c.HTTP.Timeout = -time.Second },
			wantValid: false,
		},
		{
			name: "websocket enabled without url",
			mutate: func(c *Config) {
				c.WebSocket.Enabled = true
			},
			wantValid: false,
		},
		{
			name: "websocket enabled",
			mutate: func(c *Config) {
				c.WebSocket.Enabled = true
				c.WebSocket.URL = "ws://127.0.0.1:3000/ws"
			},
			wantValid: true,
		},
		{
			name: "websocket zero attempts",
			mutate: func(c *Config) {
				c.WebSocket.Enabled = true
				c.WebSocket.URL = "wss://auth.example.com/ws"
				c.WebSocket.DialAttempts = 0
			},
			wantValid: false,
		},
		{
			name:      "file backend needs path",
			mutate:    func(c *Config) { c.Persistence.Backend = PersistFile },
			wantValid: false,
		},
		{
			name: "file backend",
			mutate: func(c *Config) {
				c.Persistence.Backend = PersistFile
				c.Persistence.FilePath = "/var/lib/portal/session.bin"
			},
			wantValid: true,
		},
		{
			name:      "unknown backend",
			mutate:    func(c *Config) { c.Persistence.Backend = "sqlite" },
			wantValid: false,
		},
		{
			name: "audit zero buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestDefaultConfigMatchesRenewalTiming(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Schedule.LeadTime != 5*time.Minute || cfg.Schedule.MinDelay != time.Minute {
		t.Fatalf("unexpected schedule defaults %+v", cfg.Schedule)
	}
	if cfg.Schedule.ExpiringSoonWindow != 10*time.Minute {
		t.Fatalf("unexpected expiring-soon window %v", cfg.Schedule.ExpiringSoonWindow)
	}
	if cfg.WebSocket.AuthTimeout != 10*time.Second || cfg.WebSocket.DialAttempts != 3 {
		t.Fatalf("unexpected websocket defaults %+v", cfg.WebSocket)
	}
	if cfg.HTTP.Timeout != 10*time.Second {
		t.Fatalf("unexpected http timeout %v", cfg.HTTP.Timeout)
	}
}

func TestPortalSlots(t *testing.T) {
	cases := map[Portal][2]string{
		PortalAdmin:      {"admin_token", "admin_refresh_token"},
		PortalClient:     {"token", "refresh_token"},
		PortalEmployee:   {"employee_token", "employee_refresh_token"},
		PortalSuperAdmin: {"super_admin_token", "super_admin_refresh_token"},
	}
	for p, keys := range cases {
		slot := p.Slot()
		if slot.AccessKey != keys[0] || slot.RefreshKey != keys[1] {
			t.Fatalf("%s: unexpected slot %+v", p, slot)
		}
	}
	if Portal("vendor").Valid() {
		t.Fatal("unknown portal must be invalid")
	}
}
