package tracker

import (
	"context"

	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/internal/realtime"
	"github.com/yegors/jetstream/pkg/logger"
)

// handlers binds one activation of a tracker. The three channel handlers are
// distinct types over the same value so each is its own registry entry.
type handlers struct {
	t   *Tracker
	gen uint64
}

type (
	positionHandler handlers
	statusHandler   handlers
	trackingHandler handlers
)

// HandleMessage applies a live position sample if it passes validation
func (h *positionHandler) HandleMessage(msg realtime.Message) {
	t := h.t
	var position fleet.Position
	if err := msg.Decode(&position); err != nil {
		t.logger.Warn("Dropping undecodable position", logger.Error(err))
		return
	}
	if err := fleet.ValidatePosition(&position); err != nil {
		t.logger.Warn("Dropping invalid position", logger.Error(err))
		return
	}
	if position.AircraftID != t.id {
		t.logger.Warn("Dropping position for another aircraft",
			logger.String("payload_aircraft_id", position.AircraftID))
		return
	}

	t.apply(h.gen, func() {
		t.state.Position = &position
		t.history.Push(position)
		t.positionSeq++
	})
}

// HandleState refreshes subscribers on connection changes and re-sends the
// tracking start command once the transport is connected again.
func (h *positionHandler) HandleState(health realtime.Health) {
	t := h.t
	applied := t.apply(h.gen, func() {})
	if !applied || health.Status != realtime.StatusConnected {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.opts.FetchTimeout)
	defer cancel()
	t.publishTracking(ctx, fleet.TrackingStart)
}

// HandleMessage replaces the aircraft record wholesale
func (h *statusHandler) HandleMessage(msg realtime.Message) {
	t := h.t
	var aircraft fleet.Aircraft
	if err := msg.Decode(&aircraft); err != nil {
		t.logger.Warn("Dropping undecodable status change", logger.Error(err))
		return
	}
	if err := fleet.ValidateAircraft(&aircraft); err != nil {
		t.logger.Warn("Dropping invalid status change", logger.Error(err))
		return
	}
	if aircraft.ID != t.id {
		t.logger.Warn("Dropping status change for another aircraft",
			logger.String("payload_aircraft_id", aircraft.ID))
		return
	}

	t.apply(h.gen, func() {
		t.state.Aircraft = &aircraft
		t.aircraftSeq++
	})
}

// HandleMessage toggles the tracking flag
func (h *trackingHandler) HandleMessage(msg realtime.Message) {
	t := h.t
	var cmd fleet.TrackingCommand
	if err := msg.Decode(&cmd); err != nil {
		t.logger.Warn("Dropping undecodable tracking event", logger.Error(err))
		return
	}
	if err := cmd.Validate(); err != nil || cmd.AircraftID != t.id {
		t.logger.Warn("Dropping invalid tracking event",
			logger.String("payload_aircraft_id", cmd.AircraftID),
			logger.Any("error", err))
		return
	}

	t.apply(h.gen, func() {
		t.state.Tracking = cmd.Action == fleet.TrackingStart
	})
}
