package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

// Config adds pulse-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds            int
	ShutdownBudgetSeconds   int
	APIPort                 int
	APIBearerToken          string
	AlertStoreURL           string
	AlertStoreToken         string
	StreamURL               string
	DatabaseURL             string
	SlackWebhookURL         string
	SnapshotRefreshSeconds  int
	SnapshotPerPage         int
	HeartbeatTimeoutSeconds int
	MaxReconnectAttempts    int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIBearerToken, "api-bearer-token", "", "bearer token required on API requests (empty = no auth)")
	fs.StringVar(&c.AlertStoreURL, "alert-store-url", "", "base URL of the authoritative Alert Store API")
	fs.StringVar(&c.AlertStoreToken, "alert-store-token", "", "bearer token for Alert Store requests")
	fs.StringVar(&c.StreamURL, "stream-url", "", "URL of the Alert Store event stream (empty = alert-store-url + /api/v1/events)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for the claim audit trail (empty = in-memory store)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for override/escalation notifications")
	fs.IntVar(&c.SnapshotRefreshSeconds, "snapshot-refresh-seconds", 60, "seconds between snapshot reseeds (5..3600)")
	fs.IntVar(&c.SnapshotPerPage, "snapshot-per-page", 100, "alerts fetched per snapshot page (1..500)")
	fs.IntVar(&c.HeartbeatTimeoutSeconds, "heartbeat-timeout-seconds", 45, "seconds of stream silence before a forced reconnect (5..600)")
	fs.IntVar(&c.MaxReconnectAttempts, "max-reconnect-attempts", 10, "stream reconnect attempts before requiring an explicit reconnect (1..100)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// The Alert Store is the authoritative source; pulse cannot run without it
	if c.AlertStoreURL == "" {
		errs = append(errs, errors.New("ALERT_STORE_URL is required"))
	} else if !strings.HasPrefix(c.AlertStoreURL, "http://") && !strings.HasPrefix(c.AlertStoreURL, "https://") {
		errs = append(errs, fmt.Errorf("invalid ALERT_STORE_URL %q (must be http(s))", c.AlertStoreURL))
	}

	if c.StreamURL != "" && !strings.HasPrefix(c.StreamURL, "http://") && !strings.HasPrefix(c.StreamURL, "https://") {
		errs = append(errs, fmt.Errorf("invalid STREAM_URL %q (must be http(s))", c.StreamURL))
	}

	if c.SnapshotRefreshSeconds < 5 || c.SnapshotRefreshSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid SNAPSHOT_REFRESH_SECONDS %d (must be 5..3600)", c.SnapshotRefreshSeconds))
	}
	if c.SnapshotPerPage <= 0 || c.SnapshotPerPage > 500 {
		errs = append(errs, fmt.Errorf("invalid SNAPSHOT_PER_PAGE %d (must be 1..500)", c.SnapshotPerPage))
	}
	if c.HeartbeatTimeoutSeconds < 5 || c.HeartbeatTimeoutSeconds > 600 {
		errs = append(errs, fmt.Errorf("invalid HEARTBEAT_TIMEOUT_SECONDS %d (must be 5..600)", c.HeartbeatTimeoutSeconds))
	}
	if c.MaxReconnectAttempts <= 0 || c.MaxReconnectAttempts > 100 {
		errs = append(errs, fmt.Errorf("invalid MAX_RECONNECT_ATTEMPTS %d (must be 1..100)", c.MaxReconnectAttempts))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EffectiveStreamURL returns the stream endpoint, deriving it from the
// Alert Store base URL when not set explicitly.
func (c *Config) EffectiveStreamURL() string {
	if c.StreamURL != "" {
		return c.StreamURL
	}
	return strings.TrimSuffix(c.AlertStoreURL, "/") + "/api/v1/events"
}
