// Package stream keeps the single server-push connection of a screen session
// alive and turns its messages into typed events.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"waitboard/internal/event"
	"waitboard/internal/metrics"
)

// DefaultReconnectDelay is used when Options leaves the delay unset.
const DefaultReconnectDelay = 5 * time.Second

// HealthSink receives every health transition of the stream.
type HealthSink interface {
	SetConnected(connected bool)
}

// Handler is called for each decoded event, in arrival order, on the stream
// goroutine.
type Handler func(ev event.Event)

// Options configures a Client.
type Options struct {
	BaseURL   string
	SessionID string
	Role      string
	// HTTPClient must not carry a total timeout; the stream is long-lived.
	HTTPClient      *http.Client
	Decorate        func(req *http.Request)
	ReconnectDelay  time.Duration
	ReconnectJitter time.Duration
	Health          HealthSink
	Handler         Handler
	Logger          *zap.Logger
}

// Client owns at most one live stream connection at a time.
type Client struct {
	opts Options
	log  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	healthy  atomic.Bool
	attempts atomic.Int64
}

// New creates a disconnected client.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Handler == nil {
		opts.Handler = func(event.Event) {}
	}
	return &Client{opts: opts, log: opts.Logger.Named("stream")}
}

// Connect opens the stream for channel. A previous connection is torn down,
// and its goroutine has exited, before the new one starts.
func (c *Client) Connect(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	c.attempts.Store(0)
	go c.run(ctx, channel, done)
}

// Disconnect closes the stream. It is safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.setHealthy(false)
}

// Connected reports the current health.
func (c *Client) Connected() bool {
	return c.healthy.Load()
}

func (c *Client) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel, c.done = nil, nil
}

func (c *Client) run(ctx context.Context, channel string, done chan struct{}) {
	defer close(done)
	for {
		err := c.session(ctx, channel)
		c.setHealthy(false)
		if ctx.Err() != nil {
			return
		}

		attempt := c.attempts.Add(1)
		delay := c.reconnectDelay()
		c.log.Warn("stream lost, reconnecting",
			zap.String("channel", channel),
			zap.Int64("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Client) reconnectDelay() time.Duration {
	delay := c.opts.ReconnectDelay
	if c.opts.ReconnectJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(c.opts.ReconnectJitter)))
	}
	return delay
}

func (c *Client) streamURL(channel string) string {
	q := url.Values{}
	q.Set("channel", channel)
	if c.opts.SessionID != "" {
		q.Set("session_id", c.opts.SessionID)
	}
	if c.opts.Role != "" {
		q.Set("role", c.opts.Role)
	}
	return c.opts.BaseURL + "/sse/stream?" + q.Encode()
}

// session runs one connection until it fails or ctx is cancelled.
func (c *Client) session(ctx context.Context, channel string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.streamURL(channel), nil)
	if err != nil {
		return fmt.Errorf("failed to create stream request: %w", err)
	}
	if c.opts.Decorate != nil {
		c.opts.Decorate(req)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		metrics.StreamConnects.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.StreamConnects.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("stream open received status code %d", resp.StatusCode)
	}
	metrics.StreamConnects.WithLabelValues(metrics.ResultOK).Inc()

	c.attempts.Store(0)
	c.setHealthy(true)
	c.log.Info("stream connected", zap.String("channel", channel))

	r := newReader(resp.Body)
	for {
		msg, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("stream closed by server")
			}
			return fmt.Errorf("stream read failed: %w", err)
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg message) {
	ev, err := event.Decode(msg.Event, msg.Data)
	if err != nil {
		metrics.StreamMalformed.Inc()
		c.log.Warn("dropping malformed event",
			zap.String("event", msg.Event),
			zap.String("id", msg.ID),
			zap.Error(err))
		return
	}
	label := string(ev.Type())
	if _, ok := ev.(event.Unknown); ok {
		label = "unknown"
	}
	metrics.StreamEvents.WithLabelValues(label).Inc()
	c.opts.Handler(ev)
}

func (c *Client) setHealthy(v bool) {
	if c.healthy.Swap(v) == v {
		return
	}
	if v {
		metrics.StreamConnected.Set(1)
	} else {
		metrics.StreamConnected.Set(0)
	}
	if c.opts.Health != nil {
		c.opts.Health.SetConnected(v)
	}
}
