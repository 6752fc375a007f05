package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/google/uuid"

	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/internal/realtime"
	"github.com/yegors/jetstream/internal/ringbuf"
	"github.com/yegors/jetstream/internal/tracker"
	"github.com/yegors/jetstream/pkg/logger"
)

// Level is the severity of a notification
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one entry of the notification panel
type Notification struct {
	ID         string    `json:"id"`
	Level      Level     `json:"level"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	AircraftID string    `json:"aircraft_id,omitempty"`
	Time       time.Time `json:"time"`
}

// Options configures a Center
type Options struct {
	HistorySize int
	// Desktop also raises a desktop notification for warnings and errors
	Desktop  bool
	IconPath string
}

// Center collects notifications about aircraft and the transport. Only the
// last HistorySize entries are kept.
type Center struct {
	opts   Options
	logger *logger.Logger
	alert  func(title, message string) error

	mu         sync.Mutex
	history    *ringbuf.Ring[Notification]
	lastStatus map[string]fleet.Status
	lastErr    map[string]string
	lastConn   realtime.ConnectionStatus
}

// NewCenter creates a notification center
func NewCenter(opts Options, log *logger.Logger) *Center {
	if opts.HistorySize <= 0 {
		opts.HistorySize = 50
	}
	c := &Center{
		opts:       opts,
		logger:     log.Named("notify"),
		history:    ringbuf.New[Notification](opts.HistorySize),
		lastStatus: make(map[string]fleet.Status),
		lastErr:    make(map[string]string),
	}
	c.alert = func(title, message string) error {
		return beeep.Notify(title, message, c.opts.IconPath)
	}
	return c
}

// Push records n, filling in its id and time when missing
func (c *Center) Push(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	c.mu.Lock()
	c.history.Push(n)
	c.mu.Unlock()

	c.logger.Info(n.Title,
		logger.String("level", string(n.Level)),
		logger.String("message", n.Message),
		logger.String("aircraft_id", n.AircraftID))

	if c.opts.Desktop && n.Level != LevelInfo {
		if err := c.alert(n.Title, n.Message); err != nil {
			c.logger.Warn("Failed to raise desktop notification", logger.Error(err))
		}
	}
	return n
}

// Recent returns the kept notifications, newest first
func (c *Center) Recent() []Notification {
	c.mu.Lock()
	items := c.history.Items()
	c.mu.Unlock()

	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items
}

// ObserveState is meant for tracker.Options.OnChange. It notifies when an
// aircraft's status changes after it was first seen and when a load fails.
func (c *Center) ObserveState(s tracker.State) {
	var pending []Notification

	c.mu.Lock()
	if s.Aircraft != nil {
		prev, seen := c.lastStatus[s.AircraftID]
		c.lastStatus[s.AircraftID] = s.Aircraft.Status
		if seen && prev != s.Aircraft.Status {
			level := LevelInfo
			if s.Aircraft.Status != fleet.StatusActive {
				level = LevelWarning
			}
			pending = append(pending, Notification{
				Level:      level,
				Title:      fmt.Sprintf("%s is %s", s.Aircraft.DisplayName(), s.Aircraft.Status),
				Message:    fmt.Sprintf("Status changed from %s to %s", prev, s.Aircraft.Status),
				AircraftID: s.AircraftID,
			})
		}
	}

	errText := ""
	if s.Err != nil {
		errText = s.Err.Error()
	}
	if errText != "" && errText != c.lastErr[s.AircraftID] {
		pending = append(pending, Notification{
			Level:      LevelError,
			Title:      fmt.Sprintf("Failed to load %s", s.AircraftID),
			Message:    errText,
			AircraftID: s.AircraftID,
		})
	}
	c.lastErr[s.AircraftID] = errText
	c.mu.Unlock()

	for _, n := range pending {
		c.Push(n)
	}
}

// HandleState watches the transport health. Reaching disconnected from any
// other state is reported as an error; recovering is reported as info.
func (c *Center) HandleState(h realtime.Health) {
	c.mu.Lock()
	prev := c.lastConn
	c.lastConn = h.Status
	c.mu.Unlock()

	switch {
	case h.Status == realtime.StatusDisconnected && prev != "" && prev != realtime.StatusDisconnected:
		msg := "Live updates stopped"
		if h.LastError != "" {
			msg = fmt.Sprintf("Live updates stopped after %d attempts: %s", h.RetryCount, h.LastError)
		}
		c.Push(Notification{Level: LevelError, Title: "Connection lost", Message: msg})
	case h.Status == realtime.StatusConnected && prev == realtime.StatusReconnecting:
		c.Push(Notification{Level: LevelInfo, Title: "Connection restored", Message: "Live updates resumed"})
	}
}

// Forget drops the remembered status of an aircraft that is no longer tracked
func (c *Center) Forget(aircraftID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lastStatus, aircraftID)
	delete(c.lastErr, aircraftID)
}
