package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roach88/quadrant/internal/protocol"
)

// Client errors.
var (
	ErrNotConnected   = errors.New("channel: not connected")
	ErrDisconnected   = errors.New("channel: connection lost before reply")
	ErrRequestTimeout = errors.New("channel: request timed out")
	ErrClientClosed   = errors.New("channel: client closed")
)

// FailedError is an operation-failed reply to a request.
type FailedError struct {
	Code   string
	Reason string
	Event  string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("%s failed (%s): %s", e.Event, e.Code, e.Reason)
}

// ConnState reports connection transitions to the subscriber.
type ConnState int

const (
	StateConnected ConnState = iota + 1
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Subscriber receives inbound envelopes and connection transitions.
// Calls are made from the client's read goroutine, one at a time and in
// arrival order; a slow subscriber stalls the connection.
type Subscriber interface {
	HandleEnvelope(env protocol.Envelope)
	HandleState(state ConnState)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	URL            string
	Owner          string
	RequestTimeout time.Duration
	Backoff        Backoff
	Logger         *slog.Logger
	Dialer         *websocket.Dialer
}

// Client is the client side of the event channel.
//
// Thread-safety: Send and Request are safe from any goroutine. Run must be
// called from exactly one goroutine.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger
	rng    *rand.Rand

	subMu sync.Mutex
	sub   Subscriber

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan protocol.Envelope
	closed  bool

	writeMu sync.Mutex
}

// NewClient creates a client. Call Run to connect.
func NewClient(cfg ClientConfig) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		pending: make(map[string]chan protocol.Envelope),
	}
}

// Subscribe sets the single subscriber. Replaces any previous one.
func (c *Client) Subscribe(s Subscriber) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.sub = s
}

func (c *Client) subscriber() Subscriber {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return c.sub
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run connects and keeps reconnecting until ctx is cancelled.
// Returns ctx.Err() on cancellation.
func (c *Client) Run(ctx context.Context) error {
	defer c.shutdown()

	attempt := 0
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempt++
			delay := c.cfg.Backoff.Delay(attempt, c.rng)
			c.logger.Warn("connect failed", "url", c.cfg.URL, "attempt", attempt, "retry_in", delay, "error", err)
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			continue
		}

		attempt = 0
		c.logger.Info("connected", "url", c.cfg.URL)
		c.serve(ctx, conn)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("connection lost, reconnecting", "url", c.cfg.URL)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if c.cfg.Owner != "" {
		q := u.Query()
		q.Set(OwnerParam, c.cfg.Owner)
		u.RawQuery = q.Encode()
	}

	conn, _, err := c.cfg.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return conn, nil
}

// serve reads from conn until it fails or ctx is cancelled.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetReadLimit(maxMessageSize)
	if s := c.subscriber(); s != nil {
		s.HandleState(StateConnected)
	}

	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Debug("read ended", "error", err)
			}
			break
		}
		c.dispatch(env)
	}

	c.detach(conn)
	if s := c.subscriber(); s != nil {
		s.HandleState(StateDisconnected)
	}
}

// dispatch hands env to the subscriber, then resolves any pending request,
// so a resolved request always observes its own effect.
func (c *Client) dispatch(env protocol.Envelope) {
	if s := c.subscriber(); s != nil {
		s.HandleEnvelope(env)
	}

	if env.RequestID == "" {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[env.RequestID]
	delete(c.pending, env.RequestID)
	c.mu.Unlock()
	if ok {
		ch <- env
	}
}

// detach forgets conn and fails every pending request.
func (c *Client) detach(conn *websocket.Conn) {
	conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Send writes one envelope without waiting for a reply.
func (c *Client) Send(env protocol.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClientClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}

// Request sends eventType with a fresh requestId and waits for the reply
// correlated to it. An operation-failed reply is returned as *FailedError.
// Each request resolves exactly once: by reply, timeout, disconnect or ctx.
func (c *Client) Request(ctx context.Context, eventType string, payload any) (protocol.Envelope, error) {
	env, err := protocol.New(eventType, payload)
	if err != nil {
		return protocol.Envelope{}, err
	}
	env.RequestID = uuid.NewString()

	ch := make(chan protocol.Envelope, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.Envelope{}, ErrClientClosed
	}
	c.pending[env.RequestID] = ch
	c.mu.Unlock()

	if err := c.Send(env); err != nil {
		c.forget(env.RequestID)
		return protocol.Envelope{}, err
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case reply, ok := <-ch:
		if !ok {
			return protocol.Envelope{}, ErrDisconnected
		}
		if reply.Type == protocol.EventOperationFailed {
			var fp protocol.FailurePayload
			if err := reply.Decode(&fp); err != nil {
				return reply, err
			}
			return reply, &FailedError{Code: fp.Code, Reason: fp.Reason, Event: fp.OriginalEvent}
		}
		return reply, nil

	case <-timer.C:
		c.forget(env.RequestID)
		return protocol.Envelope{}, fmt.Errorf("%s: %w", eventType, ErrRequestTimeout)

	case <-ctx.Done():
		c.forget(env.RequestID)
		return protocol.Envelope{}, ctx.Err()
	}
}

func (c *Client) forget(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, requestID)
}

// PendingRequests returns the number of requests awaiting a reply.
func (c *Client) PendingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// sleep waits for d or ctx. Returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
