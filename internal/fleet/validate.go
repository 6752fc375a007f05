package fleet

import (
	"fmt"
	"math"
)

// Accepted ranges for position samples
const (
	MinLatitude    = -90.0
	MaxLatitude    = 90.0
	MinLongitude   = -180.0
	MaxLongitude   = 180.0
	MinAltitudeFt  = 0.0
	MaxAltitudeFt  = 60000.0
	MinGroundSpeed = 0.0
	MaxGroundSpeed = 1000.0
	MinHeading     = 0.0
	MaxHeading     = 359.0
)

// ValidationError names the first field of a payload that failed a check
type ValidationError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %v outside [%v, %v]", e.Field, e.Value, e.Min, e.Max)
}

type rangeCheck struct {
	field    string
	value    float64
	min, max float64
}

// ValidatePosition checks every numeric field of p against its range.
// NaN and infinities are always out of range.
func ValidatePosition(p *Position) error {
	if p == nil {
		return fmt.Errorf("nil position")
	}
	if p.AircraftID == "" {
		return fmt.Errorf("position without aircraft id")
	}

	checks := []rangeCheck{
		{"latitude", p.Latitude, MinLatitude, MaxLatitude},
		{"longitude", p.Longitude, MinLongitude, MaxLongitude},
		{"altitude", p.Altitude, MinAltitudeFt, MaxAltitudeFt},
		{"ground_speed", p.GroundSpeed, MinGroundSpeed, MaxGroundSpeed},
		{"heading", p.Heading, MinHeading, MaxHeading},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || c.value < c.min || c.value > c.max {
			return &ValidationError{Field: c.field, Value: c.value, Min: c.min, Max: c.max}
		}
	}

	return nil
}

// ValidateAircraft checks that an aircraft record can be accepted
func ValidateAircraft(a *Aircraft) error {
	if a == nil {
		return fmt.Errorf("nil aircraft")
	}
	if a.ID == "" {
		return fmt.Errorf("aircraft without id")
	}
	if !a.Status.Valid() {
		return fmt.Errorf("aircraft %s: unknown status %q", a.ID, a.Status)
	}
	return nil
}
