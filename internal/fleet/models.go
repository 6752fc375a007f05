package fleet

import (
	"fmt"
	"strings"
	"time"
)

// Status is the operational state of an aircraft
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusInactive    Status = "INACTIVE"
	StatusMaintenance Status = "MAINTENANCE"
)

// Statuses lists every known status in display order
var Statuses = []Status{StatusActive, StatusInactive, StatusMaintenance}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusMaintenance:
		return true
	}
	return false
}

// ParseStatus parses a status name, ignoring case and surrounding space
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown aircraft status: %q", s)
	}
	return status, nil
}

// Aircraft is a tracked aircraft as owned by the backend.
// Clients never edit it in place; a status event replaces it wholesale.
type Aircraft struct {
	ID           string    `json:"id"`
	Registration string    `json:"registration"`
	Category     string    `json:"category"`
	Operator     string    `json:"operator"`
	Status       Status    `json:"status"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// IsActive reports whether the aircraft is in service
func (a *Aircraft) IsActive() bool {
	return a != nil && a.Status == StatusActive
}

// DisplayName returns the registration, falling back to the id
func (a *Aircraft) DisplayName() string {
	if a == nil {
		return "???"
	}
	if a.Registration != "" {
		return a.Registration
	}
	return a.ID
}

// Position is one location/attitude reading for an aircraft
type Position struct {
	AircraftID  string    `json:"aircraft_id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Altitude    float64   `json:"altitude"`     // feet
	GroundSpeed float64   `json:"ground_speed"` // knots
	Heading     float64   `json:"heading"`      // degrees
	Timestamp   time.Time `json:"timestamp"`
}

// Equal reports whether p and o describe the same reading
func (p Position) Equal(o Position) bool {
	ts := p.Timestamp
	p.Timestamp = o.Timestamp
	return p == o && ts.Equal(o.Timestamp)
}

// TrackingAction is the verb carried on tracking channels
type TrackingAction string

const (
	TrackingStart TrackingAction = "start"
	TrackingStop  TrackingAction = "stop"
)

// TrackingCommand starts or stops server-side tracking of an aircraft.
// The same shape is used for the per-aircraft tracking event.
type TrackingCommand struct {
	Action           TrackingAction `json:"action"`
	AircraftID       string         `json:"aircraft_id"`
	UpdateIntervalMs int            `json:"update_interval_ms,omitempty"`
	RetryAttempts    int            `json:"retry_attempts,omitempty"`
}

// Validate checks the command's action and target
func (c TrackingCommand) Validate() error {
	if c.AircraftID == "" {
		return fmt.Errorf("tracking command without aircraft id")
	}
	if c.Action != TrackingStart && c.Action != TrackingStop {
		return fmt.Errorf("unknown tracking action: %q", c.Action)
	}
	if c.UpdateIntervalMs < 0 || c.RetryAttempts < 0 {
		return fmt.Errorf("negative tracking tuning for %s", c.AircraftID)
	}
	return nil
}
