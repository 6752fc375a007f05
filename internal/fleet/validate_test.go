package fleet

import (
	"errors"
	"math"
	"testing"
	"time"
)

func validPosition() Position {
	return Position{
		AircraftID:  "A1",
		Latitude:    42.0,
		Longitude:   -71.0,
		Altitude:    35000,
		GroundSpeed: 450,
		Heading:     270,
		Timestamp:   time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestValidatePosition(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(p *Position)
		wantField string
	}{
		{name: "valid", mutate: func(p *Position) {}},
		{name: "latitude at north pole", mutate: func(p *Position) { p.Latitude = 90 }},
		{name: "latitude at south pole", mutate: func(p *Position) { p.Latitude = -90 }},
		{name: "latitude too high", mutate: func(p *Position) { p.Latitude = 150 }, wantField: "latitude"},
		{name: "latitude too low", mutate: func(p *Position) { p.Latitude = -90.0001 }, wantField: "latitude"},
		{name: "latitude NaN", mutate: func(p *Position) { p.Latitude = math.NaN() }, wantField: "latitude"},
		{name: "longitude edge", mutate: func(p *Position) { p.Longitude = -180 }},
		{name: "longitude too high", mutate: func(p *Position) { p.Longitude = 180.5 }, wantField: "longitude"},
		{name: "longitude infinite", mutate: func(p *Position) { p.Longitude = math.Inf(-1) }, wantField: "longitude"},
		{name: "altitude on ground", mutate: func(p *Position) { p.Altitude = 0 }},
		{name: "altitude negative", mutate: func(p *Position) { p.Altitude = -10 }, wantField: "altitude"},
		{name: "altitude above ceiling", mutate: func(p *Position) { p.Altitude = 60001 }, wantField: "altitude"},
		{name: "speed max", mutate: func(p *Position) { p.GroundSpeed = 1000 }},
		{name: "speed negative", mutate: func(p *Position) { p.GroundSpeed = -1 }, wantField: "ground_speed"},
		{name: "speed too fast", mutate: func(p *Position) { p.GroundSpeed = 1200 }, wantField: "ground_speed"},
		{name: "heading max", mutate: func(p *Position) { p.Heading = 359 }},
		{name: "heading 360", mutate: func(p *Position) { p.Heading = 360 }, wantField: "heading"},
		{name: "heading negative", mutate: func(p *Position) { p.Heading = -5 }, wantField: "heading"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPosition()
			tt.mutate(&p)
			err := ValidatePosition(&p)

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidatePosition() = %v, want nil", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ValidatePosition() = %v, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("field = %s, want %s", verr.Field, tt.wantField)
			}
		})
	}
}

func TestValidatePositionRequiresAircraftID(t *testing.T) {
	p := validPosition()
	p.AircraftID = ""
	if err := ValidatePosition(&p); err == nil {
		t.Error("expected error for missing aircraft id")
	}
	if err := ValidatePosition(nil); err == nil {
		t.Error("expected error for nil position")
	}
}

func TestValidateAircraft(t *testing.T) {
	tests := []struct {
		name    string
		ac      *Aircraft
		wantErr bool
	}{
		{name: "valid", ac: &Aircraft{ID: "A1", Status: StatusActive}},
		{name: "nil", ac: nil, wantErr: true},
		{name: "no id", ac: &Aircraft{Status: StatusActive}, wantErr: true},
		{name: "bad status", ac: &Aircraft{ID: "A1", Status: "FLYING"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAircraft(tt.ac)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAircraft() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	got, err := ParseStatus(" maintenance ")
	if err != nil || got != StatusMaintenance {
		t.Errorf("ParseStatus = %q, %v", got, err)
	}
	if _, err := ParseStatus("grounded"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestIsActive(t *testing.T) {
	var nilAircraft *Aircraft
	if nilAircraft.IsActive() {
		t.Error("nil aircraft reported active")
	}
	if !(&Aircraft{Status: StatusActive}).IsActive() {
		t.Error("ACTIVE aircraft not active")
	}
	if (&Aircraft{Status: StatusMaintenance}).IsActive() {
		t.Error("MAINTENANCE aircraft reported active")
	}
}

func TestChannelAircraftID(t *testing.T) {
	for _, ch := range AircraftChannels("N123JS") {
		id, ok := ChannelAircraftID(ch)
		if !ok || id != "N123JS" {
			t.Errorf("ChannelAircraftID(%q) = %q, %v", ch, id, ok)
		}
	}
	if _, ok := ChannelAircraftID(TrackingControlChannel); ok {
		t.Error("control channel should not carry an aircraft id")
	}
}

func TestTrackingCommandValidate(t *testing.T) {
	if err := (TrackingCommand{Action: TrackingStart, AircraftID: "A1"}).Validate(); err != nil {
		t.Errorf("valid command rejected: %v", err)
	}
	if err := (TrackingCommand{Action: "pause", AircraftID: "A1"}).Validate(); err == nil {
		t.Error("unknown action accepted")
	}
	if err := (TrackingCommand{Action: TrackingStop}).Validate(); err == nil {
		t.Error("missing aircraft id accepted")
	}
}
