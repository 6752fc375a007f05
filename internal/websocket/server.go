package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"

	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/internal/realtime"
	"github.com/yegors/jetstream/pkg/logger"
)

// ErrClosed is returned by Publish after Close
var ErrClosed = errors.New("websocket server closed")

// ControlHandler is told about every accepted tracking command
type ControlHandler func(clientID string, cmd fleet.TrackingCommand)

// Options configures the hub
type Options struct {
	SendBufferSize int
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// Server is the websocket hub. Clients subscribe to channels and receive
// every message published on them.
type Server struct {
	opts     Options
	upgrader gws.Upgrader
	logger   *logger.Logger
	tracking *TrackingRegistry

	mu       sync.RWMutex
	clients  map[string]*client
	channels map[string]map[*client]bool
	control  ControlHandler
	closed   bool
}

type client struct {
	id   string
	conn *gws.Conn
	send chan []byte
	subs map[string]bool // guarded by Server.mu
}

// NewServer creates a hub
func NewServer(opts Options, log *logger.Logger) *Server {
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	s := &Server{
		opts:     opts,
		logger:   log.Named("websocket"),
		tracking: NewTrackingRegistry(),
		clients:  make(map[string]*client),
		channels: make(map[string]map[*client]bool),
	}
	s.upgrader = gws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// SetControlHandler installs the callback for tracking commands
func (s *Server) SetControlHandler(h ControlHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.control = h
}

// Tracking returns the registry of tracked aircraft
func (s *Server) Tracking() *TrackingRegistry {
	return s.tracking
}

// ServeHTTP upgrades the request and serves the client until it disconnects
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", logger.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, s.opts.SendBufferSize),
		subs: make(map[string]bool),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c.id] = c
	s.mu.Unlock()

	s.logger.WithClient(c.id).Debug("Client connected", logger.String("remote_addr", r.RemoteAddr))

	go s.writePump(c)
	s.enqueue(c, realtime.Frame{Type: realtime.FrameReady, ID: c.id})
	s.readPump(c)
}

func (s *Server) readPump(c *client) {
	defer s.unregister(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if gws.IsUnexpectedCloseError(err, gws.CloseGoingAway, gws.CloseNormalClosure) {
				s.logger.WithClient(c.id).Debug("Client read failed", logger.Error(err))
			}
			return
		}

		var frame realtime.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.enqueue(c, realtime.Frame{Type: realtime.FrameError, Error: "malformed frame"})
			continue
		}
		s.handleFrame(c, frame)
	}
}

func (s *Server) writePump(c *client) {
	defer c.conn.Close()

	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
		if err := c.conn.WriteMessage(gws.TextMessage, data); err != nil {
			s.logger.WithClient(c.id).Debug("Client write failed", logger.Error(err))
			return
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	c.conn.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, ""))
}

func (s *Server) handleFrame(c *client, frame realtime.Frame) {
	switch frame.Type {
	case realtime.FrameSubscribe:
		if frame.Channel == "" {
			s.enqueue(c, realtime.Frame{Type: realtime.FrameError, ID: frame.ID, Error: "subscribe without channel"})
			return
		}
		s.subscribe(c, frame.Channel)
	case realtime.FrameUnsubscribe:
		s.unsubscribe(c, frame.Channel)
	case realtime.FramePing:
		s.enqueue(c, realtime.Frame{Type: realtime.FramePong, ID: frame.ID})
	case realtime.FramePong:
	case realtime.FramePublish:
		if frame.Channel != fleet.TrackingControlChannel {
			s.enqueue(c, realtime.Frame{
				Type:    realtime.FrameError,
				Channel: frame.Channel,
				ID:      frame.ID,
				Error:   "publishing is only allowed on " + fleet.TrackingControlChannel,
			})
			return
		}
		if err := s.handleControl(c, frame.Data); err != nil {
			s.enqueue(c, realtime.Frame{Type: realtime.FrameError, Channel: frame.Channel, ID: frame.ID, Error: err.Error()})
		}
	default:
		s.enqueue(c, realtime.Frame{Type: realtime.FrameError, ID: frame.ID, Error: fmt.Sprintf("unsupported frame type %q", frame.Type)})
	}
}

func (s *Server) handleControl(c *client, data json.RawMessage) error {
	var cmd fleet.TrackingCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("malformed tracking command: %w", err)
	}
	if err := cmd.Validate(); err != nil {
		return err
	}

	var changed bool
	switch cmd.Action {
	case fleet.TrackingStart:
		changed = s.tracking.Start(c.id, cmd)
	case fleet.TrackingStop:
		changed = s.tracking.Stop(c.id, cmd.AircraftID)
	}

	s.logger.WithClient(c.id).Debug("Tracking command",
		logger.String("action", string(cmd.Action)),
		logger.String("aircraft_id", cmd.AircraftID),
		logger.Bool("changed", changed))

	if changed {
		s.publishTrackingEvent(cmd.Action, cmd.AircraftID)
	}

	s.mu.RLock()
	control := s.control
	s.mu.RUnlock()
	if control != nil {
		control(c.id, cmd)
	}
	return nil
}

func (s *Server) publishTrackingEvent(action fleet.TrackingAction, aircraftID string) {
	event := fleet.TrackingCommand{Action: action, AircraftID: aircraftID}
	if err := s.Publish(fleet.TrackingChannel(aircraftID), event); err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Warn("Failed to publish tracking event", logger.Error(err))
	}
}

func (s *Server) subscribe(c *client, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[c.id] != c {
		return
	}
	c.subs[channel] = true
	subscribers, ok := s.channels[channel]
	if !ok {
		subscribers = make(map[*client]bool)
		s.channels[channel] = subscribers
	}
	subscribers[c] = true
}

func (s *Server) unsubscribe(c *client, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(c.subs, channel)
	if subscribers, ok := s.channels[channel]; ok {
		delete(subscribers, c)
		if len(subscribers) == 0 {
			delete(s.channels, channel)
		}
	}
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	if s.clients[c.id] != c {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c.id)
	for channel := range c.subs {
		if subscribers, ok := s.channels[channel]; ok {
			delete(subscribers, c)
			if len(subscribers) == 0 {
				delete(s.channels, channel)
			}
		}
	}
	close(c.send)
	s.mu.Unlock()

	for _, aircraftID := range s.tracking.RemoveClient(c.id) {
		s.publishTrackingEvent(fleet.TrackingStop, aircraftID)
	}

	s.logger.WithClient(c.id).Debug("Client disconnected")
}

// enqueue queues a frame for one client, dropping it if the client is gone
// or its buffer is full
func (s *Server) enqueue(c *client, frame realtime.Frame) {
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("Failed to encode frame", logger.Error(err))
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.clients[c.id] != c {
		return
	}
	select {
	case c.send <- data:
	default:
		s.logger.WithClient(c.id).Warn("Client send buffer full, dropping frame")
	}
}

// Publish sends v as a message on channel to every subscribed client
func (s *Server) Publish(channel string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	data, err := json.Marshal(realtime.Frame{
		Type:      realtime.FrameMessage,
		Channel:   channel,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	for c := range s.channels[channel] {
		select {
		case c.send <- data:
		default:
			s.logger.Warn("Client send buffer full, dropping message",
				logger.String("client_id", c.id),
				logger.String("channel", channel))
		}
	}
	return nil
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// SubscriberCount returns the number of clients subscribed to channel
func (s *Server) SubscriberCount(channel string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels[channel])
}

// Close disconnects every client and rejects new ones
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*gws.Conn, 0, len(s.clients))
	for _, c := range s.clients {
		conns = append(conns, c.conn)
	}
	s.mu.Unlock()

	// Closing the sockets ends each read pump, which unregisters the client
	for _, conn := range conns {
		conn.Close()
	}
	return nil
}
