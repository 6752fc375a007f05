package websocket

import (
	"sort"
	"sync"

	"github.com/yegors/jetstream/internal/fleet"
)

// TrackedAircraft summarizes the clients tracking one aircraft
type TrackedAircraft struct {
	AircraftID string `json:"aircraft_id"`
	Clients    int    `json:"clients"`
	// UpdateIntervalMs is the fastest interval any client asked for, 0 if none did
	UpdateIntervalMs int `json:"update_interval_ms,omitempty"`
	RetryAttempts    int `json:"retry_attempts,omitempty"`
}

// TrackingRegistry records which clients asked to track which aircraft
type TrackingRegistry struct {
	mu       sync.RWMutex
	aircraft map[string]map[string]fleet.TrackingCommand // aircraft id -> client id -> start command
}

// NewTrackingRegistry creates an empty registry
func NewTrackingRegistry() *TrackingRegistry {
	return &TrackingRegistry{aircraft: make(map[string]map[string]fleet.TrackingCommand)}
}

// Start records a start command and reports whether the aircraft was not
// tracked before
func (r *TrackingRegistry) Start(clientID string, cmd fleet.TrackingCommand) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients, ok := r.aircraft[cmd.AircraftID]
	if !ok {
		clients = make(map[string]fleet.TrackingCommand)
		r.aircraft[cmd.AircraftID] = clients
	}
	clients[clientID] = cmd
	return !ok
}

// Stop removes a client's interest and reports whether nobody tracks the
// aircraft any more
func (r *TrackingRegistry) Stop(clientID, aircraftID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked(clientID, aircraftID)
}

func (r *TrackingRegistry) stopLocked(clientID, aircraftID string) bool {
	clients, ok := r.aircraft[aircraftID]
	if !ok {
		return false
	}
	if _, ok := clients[clientID]; !ok {
		return false
	}
	delete(clients, clientID)
	if len(clients) == 0 {
		delete(r.aircraft, aircraftID)
		return true
	}
	return false
}

// RemoveClient drops every command of a client and returns the aircraft that
// are no longer tracked, sorted
func (r *TrackingRegistry) RemoveClient(clientID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var untracked []string
	for aircraftID := range r.aircraft {
		if r.stopLocked(clientID, aircraftID) {
			untracked = append(untracked, aircraftID)
		}
	}
	sort.Strings(untracked)
	return untracked
}

// IsTracked reports whether any client tracks the aircraft
func (r *TrackingRegistry) IsTracked(aircraftID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.aircraft[aircraftID]) > 0
}

// List returns every tracked aircraft, sorted by id
func (r *TrackingRegistry) List() []TrackedAircraft {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]TrackedAircraft, 0, len(r.aircraft))
	for aircraftID, clients := range r.aircraft {
		entry := TrackedAircraft{AircraftID: aircraftID, Clients: len(clients)}
		for _, cmd := range clients {
			if cmd.UpdateIntervalMs > 0 && (entry.UpdateIntervalMs == 0 || cmd.UpdateIntervalMs < entry.UpdateIntervalMs) {
				entry.UpdateIntervalMs = cmd.UpdateIntervalMs
			}
			if cmd.RetryAttempts > entry.RetryAttempts {
				entry.RetryAttempts = cmd.RetryAttempts
			}
		}
		list = append(list, entry)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].AircraftID < list[j].AircraftID
	})
	return list
}
