// Package stream maintains the single push-stream connection a session
// holds to the Alert Store. It consumes named server-sent events,
// reconnects with capped exponential backoff and jitter, and treats a
// silently stalled connection as dead via a heartbeat watchdog.
package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/pulse/internal/alert"
)

const (
	defaultBackoffBase      = 1 * time.Second
	defaultBackoffCap       = 30 * time.Second
	defaultJitterMax        = 1 * time.Second
	defaultMaxAttempts      = 10
	defaultHeartbeatTimeout = 45 * time.Second
)

// State is where the connection is in its lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Status is a point-in-time snapshot of the connection for the
// consumer's connection indicator.
type Status struct {
	State    State  `json:"state"`
	Attempts int    `json:"attempts"`
	GaveUp   bool   `json:"gave_up"`
	LastErr  string `json:"last_error,omitempty"`
}

// Handler receives each decoded event, including heartbeats.
type Handler func(ev alert.Event)

// Options tunes the reconnect and watchdog behavior. Zero values take
// the defaults above.
type Options struct {
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	MaxAttempts      int
	HeartbeatTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.BackoffBase <= 0 {
		out.BackoffBase = defaultBackoffBase
	}
	if out.BackoffCap <= 0 {
		out.BackoffCap = defaultBackoffCap
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = defaultMaxAttempts
	}
	if out.HeartbeatTimeout <= 0 {
		out.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	return out
}

// Client owns one event-stream connection. All timers it schedules are
// bound to its lifetime: Close cancels the stream, any backoff wait,
// and the watchdog synchronously with teardown.
type Client struct {
	url     string
	token   string
	handler Handler
	logger  log.Logger
	metrics *Metrics
	opts    Options

	// streaming reads must not have a whole-request timeout
	httpClient *http.Client

	mu       sync.Mutex
	state    State
	attempts int
	gaveUp   bool
	lastErr  error
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	kick     chan struct{}
}

// New creates a stream client. The handler is invoked from the read
// loop goroutine; it must be safe for that single logical writer.
func New(url, token string, handler Handler, logger log.Logger, metrics *Metrics, opts Options) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		url:        url,
		token:      token,
		handler:    handler,
		logger:     logger,
		metrics:    metrics,
		opts:       opts.withDefaults(),
		httpClient: &http.Client{},
		state:      StateDisconnected,
		kick:       make(chan struct{}, 1),
	}
}

// Connect starts the connection loop. Calling it while already running
// is a no-op.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.startLocked(ctx)
}

// Reconnect resets the attempt counter and retries immediately. It
// clears a gave-up state and is idempotent.
func (c *Client) Reconnect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = 0
	c.gaveUp = false
	if c.running {
		// interrupt any backoff wait
		select {
		case c.kick <- struct{}{}:
		default:
		}
		return
	}
	c.startLocked(ctx)
}

// Close tears down the stream and cancels all pending timers. It is
// idempotent and safe to call concurrently with Connect.
func (c *Client) Close() {
	c.mu.Lock()
	if !c.running {
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{State: c.state, Attempts: c.attempts, GaveUp: c.gaveUp}
	if c.lastErr != nil {
		s.LastErr = c.lastErr.Error()
	}
	return s
}

// startLocked launches the run loop. Caller holds c.mu.
func (c *Client) startLocked(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	go c.run(runCtx)
}

func (c *Client) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		close(c.done)
		c.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		c.setState(StateConnecting)
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		c.lastErr = err
		c.attempts++
		attempt := c.attempts
		maxed := attempt >= c.opts.MaxAttempts
		if maxed {
			c.gaveUp = true
		}
		c.mu.Unlock()
		c.setState(StateError)
		if c.metrics != nil {
			c.metrics.Disconnects.Inc()
		}

		if maxed {
			// Stop retrying. The persistent gave-up status tells the
			// consumer an explicit Reconnect is required; we still wait
			// for that kick rather than exiting, so the session keeps
			// one loop to kick.
			c.logger.Error(ctx, err, "event stream gave up after max attempts",
				"attempts", attempt,
			)
			select {
			case <-ctx.Done():
				return
			case <-c.kick:
				continue
			}
		}

		delay := c.backoffDelay(attempt)
		c.logger.Warn(ctx, "event stream disconnected, retrying",
			"error", err,
			"attempt", attempt,
			"backoff", delay,
		)

		select {
		case <-ctx.Done():
			return
		case <-c.kick:
		case <-time.After(delay):
		}
	}
}

// consume opens the stream and reads events until the connection drops,
// the watchdog fires, or ctx is cancelled.
func (c *Client) consume(ctx context.Context) error {
	// per-connection context so the watchdog can sever a stalled read
	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: base URL is set at construction from config, not request input
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	// A stalled connection must not be trusted: if nothing arrives
	// within the heartbeat window, cut the read and reconnect.
	var stalled bool
	var stalledMu sync.Mutex
	watchdog := time.AfterFunc(c.opts.HeartbeatTimeout, func() {
		stalledMu.Lock()
		stalled = true
		stalledMu.Unlock()
		connCancel()
	})
	defer watchdog.Stop()

	first := true
	err = c.readEvents(resp.Body, func(name string, data []byte) {
		watchdog.Reset(c.opts.HeartbeatTimeout)
		if first {
			first = false
			c.onConnected(ctx)
		}
		c.dispatch(ctx, name, data)
	})

	stalledMu.Lock()
	wasStalled := stalled
	stalledMu.Unlock()
	if wasStalled {
		return fmt.Errorf("no message within %s, forcing reconnect", c.opts.HeartbeatTimeout)
	}
	if err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return fmt.Errorf("stream closed by server")
}

// onConnected marks the first message of a connection: transition to
// Connected and reset the attempt counter.
func (c *Client) onConnected(ctx context.Context) {
	c.mu.Lock()
	c.attempts = 0
	c.gaveUp = false
	c.lastErr = nil
	c.mu.Unlock()
	c.setState(StateConnected)
	if c.metrics != nil {
		c.metrics.Connects.Inc()
	}
	c.logger.Info(ctx, "event stream connected")
}

func (c *Client) dispatch(ctx context.Context, name string, data []byte) {
	ev, err := alert.ParseEvent(name, data)
	if err != nil {
		// bad envelopes are logged and skipped, not fatal to the stream
		c.logger.Warn(ctx, "dropping malformed stream event", "event", name, "error", err)
		if c.metrics != nil {
			c.metrics.EventsDropped.Inc()
		}
		return
	}
	if c.metrics != nil {
		c.metrics.Events.WithLabelValues(string(ev.Type)).Inc()
	}
	if c.handler != nil {
		c.handler(ev)
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.SetState(s)
	}
}

// backoffDelay is min(base*2^(attempt-1), cap) plus up to jitterMax of
// random jitter so reconnecting sessions do not stampede the store.
func (c *Client) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := c.opts.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.opts.BackoffCap {
			d = c.opts.BackoffCap
			break
		}
	}
	if d > c.opts.BackoffCap {
		d = c.opts.BackoffCap
	}
	return d + time.Duration(rand.Int63n(int64(defaultJitterMax)))
}

// readEvents parses text/event-stream frames, invoking emit once per
// complete event. Multi-line data fields are joined with newlines per
// the SSE spec; comment and id lines are ignored.
func (c *Client) readEvents(body io.Reader, emit func(name string, data []byte)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if eventName != "" || len(dataLines) > 0 {
				name := eventName
				if name == "" {
					name = "message"
				}
				emit(name, []byte(strings.Join(dataLines, "\n")))
			}
			eventName = ""
			dataLines = nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := line, ""
		if i := strings.Index(line, ":"); i >= 0 {
			field = line[:i]
			value = strings.TrimPrefix(line[i+1:], " ")
		}
		switch field {
		case "event":
			eventName = value
		case "data":
			dataLines = append(dataLines, value)
		}
	}
	return scanner.Err()
}
