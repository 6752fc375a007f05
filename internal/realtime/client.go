package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yegors/jetstream/pkg/logger"
)

var (
	// ErrConnectTimeout is returned when the handshake does not finish in time
	ErrConnectTimeout = errors.New("connection handshake timed out")
	// ErrNotConnected is returned by operations that need a live socket
	ErrNotConnected = errors.New("transport not connected")

	errProbeTimeout = errors.New("health probe unanswered")
)

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Options tunes the transport
type Options struct {
	ConnectTimeout       time.Duration
	WriteTimeout         time.Duration
	ProbeInterval        time.Duration
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HealthWindow         int // probe and dial outcomes kept for latency and error rate
	Header               http.Header
	Dialer               Dialer
}

// DefaultOptions returns the production transport settings
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:       10 * time.Second,
		WriteTimeout:         5 * time.Second,
		ProbeInterval:        15 * time.Second,
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		HealthWindow:         20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = d.ProbeInterval
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if o.ReconnectBaseDelay <= 0 {
		o.ReconnectBaseDelay = d.ReconnectBaseDelay
	}
	if o.ReconnectMaxDelay <= 0 {
		o.ReconnectMaxDelay = d.ReconnectMaxDelay
	}
	if o.HealthWindow <= 0 {
		o.HealthWindow = d.HealthWindow
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}

// Client owns one duplex connection to the backend and fans channel
// messages out to subscribed handlers. Construct one per backend and pass it
// to every consumer.
type Client struct {
	url      string
	opts     Options
	logger   *logger.Logger
	registry *registry
	health   *healthTracker

	mu              sync.Mutex
	conn            *websocket.Conn
	lifeCtx         context.Context // cancelled by Disconnect
	lifeCancel      context.CancelFunc
	sessionCancel   context.CancelFunc // probe loop of the current connection
	reconnectCancel context.CancelFunc
	pending         map[string]time.Time // probe id -> sent at

	// subMu orders registry changes with the subscribe/unsubscribe frames
	// they produce, so the server sees them in the same order
	subMu   sync.Mutex
	writeMu sync.Mutex
}

// NewClient creates a transport for the websocket endpoint at url
func NewClient(url string, opts Options, logger *logger.Logger) *Client {
	opts = opts.withDefaults()
	return &Client{
		url:      url,
		opts:     opts,
		logger:   logger.Named("realtime"),
		registry: newRegistry(),
		health:   newHealthTracker(opts.HealthWindow),
		pending:  make(map[string]time.Time),
	}
}

// Connect dials the backend and waits for its ready frame.
// It is a no-op when already connected. On failure the error is returned
// and the bounded reconnection loop takes over in the background.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	if c.lifeCtx == nil || c.lifeCtx.Err() != nil {
		c.lifeCtx, c.lifeCancel = context.WithCancel(context.Background())
	}
	c.mu.Unlock()

	c.stopReconnect()
	c.setStatus(StatusConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.health.recordFailure(err)
		c.logger.Warn("Failed to connect", logger.String("url", c.url), logger.Error(err))

		c.mu.Lock()
		lifeCtx := c.lifeCtx
		c.mu.Unlock()
		// A failed handshake is retried like a drop unless the caller gave up
		if ctx.Err() == nil && lifeCtx != nil && lifeCtx.Err() == nil {
			c.startReconnect(lifeCtx)
		} else {
			c.setStatus(StatusDisconnected)
		}
		return err
	}

	c.attach(conn)
	c.logger.Info("Connected", logger.String("url", c.url))
	return nil
}

// Reconnect restarts the connection after a terminal disconnect
func (c *Client) Reconnect(ctx context.Context) error {
	c.stopReconnect()
	c.health.setRetryCount(0)
	return c.Connect(ctx)
}

// Disconnect closes the connection and forgets every subscription.
// Calling it more than once is safe.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.lifeCancel != nil {
		c.lifeCancel()
	}
	if c.reconnectCancel != nil {
		c.reconnectCancel()
		c.reconnectCancel = nil
	}
	if c.sessionCancel != nil {
		c.sessionCancel()
		c.sessionCancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.registry.clear()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
		c.logger.Info("Disconnected", logger.String("url", c.url))
	}

	c.setStatus(StatusDisconnected)
}

// Subscribe registers h for messages on channel and returns a function that
// removes it again. Registering the same handler twice stores it once.
func (c *Client) Subscribe(channel string, h Handler) (unsubscribe func()) {
	c.subMu.Lock()
	added, first := c.registry.add(channel, h)
	if added && first {
		c.sendIfConnected(Frame{Type: FrameSubscribe, Channel: channel})
	}
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			removed, last := c.registry.remove(channel, h)
			if removed && last {
				c.sendIfConnected(Frame{Type: FrameUnsubscribe, Channel: channel})
			}
		})
	}
}

// Publish sends v as the payload of a publish frame on channel
func (c *Client) Publish(ctx context.Context, channel string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", channel, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	if err := c.send(conn, Frame{Type: FramePublish, Channel: channel, Data: data}); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", channel, err)
	}
	return nil
}

// Health returns a snapshot of the connection health
func (c *Client) Health() Health {
	return c.health.snapshot()
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	return c.health.currentStatus()
}

// SubscriberCount returns how many handlers are registered on channel
func (c *Client) SubscriberCount(channel string) int {
	return c.registry.count(channel)
}

func (c *Client) currentConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// dial opens a socket and waits for the ready frame, bounded by ConnectTimeout
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	conn, resp, err := c.opts.Dialer.DialContext(dialCtx, c.url, c.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: dialing %s", ErrConnectTimeout, c.url)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", c.url, err)
	}

	if err := c.awaitReady(dialCtx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Client) awaitReady(ctx context.Context, conn *websocket.Conn) error {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: waiting for ready from %s", ErrConnectTimeout, c.url)
		}
		return fmt.Errorf("failed to read handshake: %w", err)
	}

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("failed to parse handshake: %w", err)
	}
	if frame.Type != FrameReady {
		return fmt.Errorf("unexpected handshake frame: %s", frame.Type)
	}

	conn.SetReadDeadline(time.Time{})
	return nil
}

// attach installs a freshly dialed connection, re-subscribes live channels
// and starts the read and probe loops. It returns false if the connection
// lost a race with another attach or with Disconnect.
func (c *Client) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.conn != nil || c.lifeCtx == nil || c.lifeCtx.Err() != nil {
		c.mu.Unlock()
		conn.Close()
		return false
	}
	sessionCtx, cancel := context.WithCancel(c.lifeCtx)
	c.conn = conn
	c.sessionCancel = cancel
	c.pending = make(map[string]time.Time)
	c.mu.Unlock()

	c.health.setRetryCount(0)
	c.health.recordSuccess()

	c.subMu.Lock()
	for _, channel := range c.registry.channelNames() {
		if err := c.send(conn, Frame{Type: FrameSubscribe, Channel: channel}); err != nil {
			c.logger.Warn("Failed to re-subscribe", logger.String("channel", channel), logger.Error(err))
		}
	}
	c.subMu.Unlock()

	c.setStatus(StatusConnected)

	go c.readLoop(conn)
	go c.probeLoop(sessionCtx, conn)
	return true
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, err)
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("Dropping malformed frame", logger.Error(err))
			continue
		}
		c.handleFrame(conn, frame)
	}
}

func (c *Client) handleFrame(conn *websocket.Conn, frame Frame) {
	switch frame.Type {
	case FrameMessage:
		msg := Message{Channel: frame.Channel, Data: frame.Data, Timestamp: frame.Timestamp}
		for _, h := range c.registry.handlers(frame.Channel) {
			h.HandleMessage(msg)
		}
	case FramePong:
		c.mu.Lock()
		sent, ok := c.pending[frame.ID]
		delete(c.pending, frame.ID)
		c.mu.Unlock()
		if ok {
			c.health.recordLatency(time.Since(sent))
		}
	case FramePing:
		if err := c.send(conn, Frame{Type: FramePong, ID: frame.ID}); err != nil {
			c.logger.Debug("Failed to answer ping", logger.Error(err))
		}
	case FrameError:
		c.logger.Warn("Server reported error",
			logger.String("channel", frame.Channel),
			logger.String("error", frame.Error))
	default:
		c.logger.Debug("Ignoring frame", logger.String("type", string(frame.Type)))
	}
}

// handleDrop runs when the read loop of conn fails
func (c *Client) handleDrop(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// Disconnect or a newer connection already replaced it
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.sessionCancel != nil {
		c.sessionCancel()
		c.sessionCancel = nil
	}
	lifeCtx := c.lifeCtx
	c.mu.Unlock()

	conn.Close()
	if lifeCtx == nil || lifeCtx.Err() != nil {
		return
	}

	c.health.recordFailure(err)
	c.logger.Warn("Connection dropped, reconnecting", logger.Error(err))
	c.startReconnect(lifeCtx)
}

func (c *Client) startReconnect(parent context.Context) {
	c.mu.Lock()
	if c.reconnectCancel != nil {
		c.reconnectCancel()
	}
	ctx, cancel := context.WithCancel(parent)
	c.reconnectCancel = cancel
	c.mu.Unlock()

	c.setStatus(StatusReconnecting)
	go c.reconnectLoop(ctx)
}

func (c *Client) stopReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnectCancel != nil {
		c.reconnectCancel()
		c.reconnectCancel = nil
	}
}

func (c *Client) reconnectLoop(ctx context.Context) {
	for attempt := 1; attempt <= c.opts.MaxReconnectAttempts; attempt++ {
		delay := c.backoff(attempt)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		c.health.setRetryCount(attempt)
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.health.recordFailure(err)
			c.logger.Warn("Reconnection attempt failed",
				logger.Int("attempt", attempt),
				logger.Int("max_attempts", c.opts.MaxReconnectAttempts),
				logger.Duration("delay", delay),
				logger.Error(err))
			continue
		}

		if c.attach(conn) {
			c.logger.Info("Reconnected", logger.Int("attempt", attempt))
		}
		return
	}

	if ctx.Err() != nil {
		return
	}
	c.logger.Error("Reconnection attempts exhausted",
		logger.Int("max_attempts", c.opts.MaxReconnectAttempts),
		logger.String("url", c.url))
	c.setStatus(StatusDisconnected)
}

// backoff doubles the base delay per attempt, capped at ReconnectMaxDelay
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.opts.ReconnectBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.opts.ReconnectMaxDelay {
			return c.opts.ReconnectMaxDelay
		}
	}
	if delay > c.opts.ReconnectMaxDelay {
		return c.opts.ReconnectMaxDelay
	}
	return delay
}

func (c *Client) probeLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.probe(conn)
		}
	}
}

// probe sends one ping. Pings still unanswered after a full interval count
// as failures.
func (c *Client) probe(conn *websocket.Conn) {
	now := time.Now()
	id := uuid.NewString()

	c.mu.Lock()
	expired := 0
	for pid, sent := range c.pending {
		if now.Sub(sent) >= c.opts.ProbeInterval {
			delete(c.pending, pid)
			expired++
		}
	}
	c.pending[id] = now
	c.mu.Unlock()

	for i := 0; i < expired; i++ {
		c.health.recordFailure(errProbeTimeout)
	}

	if err := c.send(conn, Frame{Type: FramePing, ID: id}); err != nil {
		c.logger.Debug("Failed to send probe", logger.Error(err))
	}
}

func (c *Client) sendIfConnected(frame Frame) {
	conn := c.currentConn()
	if conn == nil {
		// Sent on the next attach
		return
	}
	if err := c.send(conn, frame); err != nil {
		c.logger.Warn("Failed to send frame",
			logger.String("type", string(frame.Type)),
			logger.String("channel", frame.Channel),
			logger.Error(err))
	}
}

func (c *Client) send(conn *websocket.Conn, frame Frame) error {
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now().UTC()
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return conn.WriteJSON(frame)
}

// setStatus records a transition and tells every StateHandler about it
func (c *Client) setStatus(status ConnectionStatus) {
	if !c.health.setStatus(status) {
		return
	}

	c.logger.Debug("Connection status changed", logger.String("status", string(status)))

	snap := c.health.snapshot()
	for _, h := range c.registry.stateHandlers() {
		h.HandleState(snap)
	}
}
