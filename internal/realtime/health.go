package realtime

import (
	"sync"
	"time"

	"github.com/yegors/jetstream/internal/ringbuf"
)

// ConnectionStatus is the state of the transport connection
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
)

// Health is a snapshot of the transport's connection health
type Health struct {
	Status      ConnectionStatus `json:"status"`
	Latency     time.Duration    `json:"latency"`      // mean over the probe window
	LastLatency time.Duration    `json:"last_latency"` // most recent probe
	LastUpdate  time.Time        `json:"last_update"`
	RetryCount  int              `json:"retry_count"`
	ErrorRate   float64          `json:"error_rate"` // failures / outcomes over the window
	LastError   string           `json:"last_error,omitempty"`
}

// healthTracker owns the mutable health state. Only the Client writes to it.
type healthTracker struct {
	mu         sync.Mutex
	status     ConnectionStatus
	latencies  *ringbuf.Ring[time.Duration]
	outcomes   *ringbuf.Ring[bool] // true = failure
	lastUpdate time.Time
	retryCount int
	lastError  string
}

func newHealthTracker(window int) *healthTracker {
	return &healthTracker{
		status:    StatusDisconnected,
		latencies: ringbuf.New[time.Duration](window),
		outcomes:  ringbuf.New[bool](window),
	}
}

// setStatus records a status transition and reports whether it changed
func (h *healthTracker) setStatus(status ConnectionStatus) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status == status {
		return false
	}
	h.status = status
	h.lastUpdate = time.Now()
	return true
}

func (h *healthTracker) currentStatus() ConnectionStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *healthTracker) recordLatency(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latencies.Push(d)
	h.outcomes.Push(false)
	h.lastUpdate = time.Now()
}

func (h *healthTracker) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outcomes.Push(false)
	h.lastUpdate = time.Now()
}

func (h *healthTracker) recordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outcomes.Push(true)
	if err != nil {
		h.lastError = err.Error()
	}
	h.lastUpdate = time.Now()
}

func (h *healthTracker) setRetryCount(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retryCount = n
}

func (h *healthTracker) snapshot() Health {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := Health{
		Status:     h.status,
		LastUpdate: h.lastUpdate,
		RetryCount: h.retryCount,
		LastError:  h.lastError,
	}

	if samples := h.latencies.Items(); len(samples) > 0 {
		var total time.Duration
		for _, s := range samples {
			total += s
		}
		snap.Latency = total / time.Duration(len(samples))
		snap.LastLatency = samples[len(samples)-1]
	}

	if outcomes := h.outcomes.Items(); len(outcomes) > 0 {
		failures := 0
		for _, failed := range outcomes {
			if failed {
				failures++
			}
		}
		snap.ErrorRate = float64(failures) / float64(len(outcomes))
	}

	return snap
}
