package cfg

import (
	"flag"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:            60,
		ShutdownBudgetSeconds:   90,
		APIPort:                 8080,
		AlertStoreURL:           "https://alerts.example.com",
		AlertStoreToken:         "test-token-123",
		SnapshotRefreshSeconds:  60,
		SnapshotPerPage:         100,
		HeartbeatTimeoutSeconds: 45,
		MaxReconnectAttempts:    10,
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.SnapshotRefreshSeconds != 60 {
		t.Errorf("SnapshotRefreshSeconds = %d, want 60", c.SnapshotRefreshSeconds)
	}
	if c.SnapshotPerPage != 100 {
		t.Errorf("SnapshotPerPage = %d, want 100", c.SnapshotPerPage)
	}
	if c.HeartbeatTimeoutSeconds != 45 {
		t.Errorf("HeartbeatTimeoutSeconds = %d, want 45", c.HeartbeatTimeoutSeconds)
	}
	if c.MaxReconnectAttempts != 10 {
		t.Errorf("MaxReconnectAttempts = %d, want 10", c.MaxReconnectAttempts)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-alert-store-url", "https://alerts.internal",
		"-alert-store-token", "tok-override",
		"-stream-url", "https://stream.internal/api/v1/events",
		"-snapshot-refresh-seconds", "120",
		"-heartbeat-timeout-seconds", "30",
		"-max-reconnect-attempts", "5",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.AlertStoreURL != "https://alerts.internal" {
		t.Errorf("AlertStoreURL = %q", c.AlertStoreURL)
	}
	if c.AlertStoreToken != "tok-override" {
		t.Errorf("AlertStoreToken = %q", c.AlertStoreToken)
	}
	if c.StreamURL != "https://stream.internal/api/v1/events" {
		t.Errorf("StreamURL = %q", c.StreamURL)
	}
	if c.SnapshotRefreshSeconds != 120 {
		t.Errorf("SnapshotRefreshSeconds = %d, want 120", c.SnapshotRefreshSeconds)
	}
	if c.HeartbeatTimeoutSeconds != 30 {
		t.Errorf("HeartbeatTimeoutSeconds = %d, want 30", c.HeartbeatTimeoutSeconds)
	}
	if c.MaxReconnectAttempts != 5 {
		t.Errorf("MaxReconnectAttempts = %d, want 5", c.MaxReconnectAttempts)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	mod := func(f func(*Config)) Config {
		c := validBase()
		f(&c)
		return c
	}

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "base is valid",
			cfg:     validBase(),
			wantErr: false,
		},
		{
			name:      "drain zero",
			cfg:       mod(func(c *Config) { c.DrainSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			cfg:       mod(func(c *Config) { c.DrainSeconds = 301; c.ShutdownBudgetSeconds = 302 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "budget equals drain",
			cfg:       mod(func(c *Config) { c.ShutdownBudgetSeconds = 60 }),
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:      "port zero",
			cfg:       mod(func(c *Config) { c.APIPort = 0 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			cfg:       mod(func(c *Config) { c.APIPort = 65536 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "alert store url required",
			cfg:       mod(func(c *Config) { c.AlertStoreURL = "" }),
			wantErr:   true,
			errSubstr: []string{"ALERT_STORE_URL"},
		},
		{
			name:      "alert store url must be http(s)",
			cfg:       mod(func(c *Config) { c.AlertStoreURL = "ftp://alerts" }),
			wantErr:   true,
			errSubstr: []string{"ALERT_STORE_URL"},
		},
		{
			name:      "stream url must be http(s) when set",
			cfg:       mod(func(c *Config) { c.StreamURL = "ws://stream" }),
			wantErr:   true,
			errSubstr: []string{"STREAM_URL"},
		},
		{
			name:    "stream url may be empty",
			cfg:     mod(func(c *Config) { c.StreamURL = "" }),
			wantErr: false,
		},
		{
			name:      "refresh below min",
			cfg:       mod(func(c *Config) { c.SnapshotRefreshSeconds = 4 }),
			wantErr:   true,
			errSubstr: []string{"SNAPSHOT_REFRESH_SECONDS"},
		},
		{
			name:      "per page above max",
			cfg:       mod(func(c *Config) { c.SnapshotPerPage = 501 }),
			wantErr:   true,
			errSubstr: []string{"SNAPSHOT_PER_PAGE"},
		},
		{
			name:      "heartbeat below min",
			cfg:       mod(func(c *Config) { c.HeartbeatTimeoutSeconds = 4 }),
			wantErr:   true,
			errSubstr: []string{"HEARTBEAT_TIMEOUT_SECONDS"},
		},
		{
			name:      "max attempts zero",
			cfg:       mod(func(c *Config) { c.MaxReconnectAttempts = 0 }),
			wantErr:   true,
			errSubstr: []string{"MAX_RECONNECT_ATTEMPTS"},
		},
		{
			name: "multiple failures joined",
			cfg: mod(func(c *Config) {
				c.APIPort = 0
				c.AlertStoreURL = ""
				c.MaxReconnectAttempts = 101
			}),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT", "ALERT_STORE_URL", "MAX_RECONNECT_ATTEMPTS"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				for _, sub := range tt.errSubstr {
					if !strings.Contains(err.Error(), sub) {
						t.Errorf("error %q missing substring %q", err, sub)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestEffectiveStreamURL(t *testing.T) {
	t.Parallel()

	c := validBase()
	if got := c.EffectiveStreamURL(); got != "https://alerts.example.com/api/v1/events" {
		t.Errorf("derived stream url = %q", got)
	}

	c.AlertStoreURL = "https://alerts.example.com/"
	if got := c.EffectiveStreamURL(); got != "https://alerts.example.com/api/v1/events" {
		t.Errorf("derived stream url with trailing slash = %q", got)
	}

	c.StreamURL = "https://stream.example.com/events"
	if got := c.EffectiveStreamURL(); got != "https://stream.example.com/events" {
		t.Errorf("explicit stream url = %q", got)
	}
}
