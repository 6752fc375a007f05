package dashboard

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/internal/realtime"
	"github.com/yegors/jetstream/internal/tracker"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testStates() []tracker.State {
	return []tracker.State{
		{
			AircraftID: "A1",
			Aircraft:   &fleet.Aircraft{ID: "A1", Registration: "N300JS", Operator: "JetStream", Category: "light-jet", Status: fleet.StatusActive},
			Position:   &fleet.Position{AircraftID: "A1", Latitude: 42, Longitude: -71, Altitude: 35000, Timestamp: now.Add(-10 * time.Second)},
			Tracking:   true,
		},
		{
			AircraftID: "B2",
			Aircraft:   &fleet.Aircraft{ID: "B2", Registration: "N100JS", Operator: "JetStream", Category: "midsize", Status: fleet.StatusMaintenance},
			Position:   &fleet.Position{AircraftID: "B2", Latitude: 40, Longitude: -74, Timestamp: now.Add(-time.Hour)},
			Tracking:   true,
		},
		{
			AircraftID: "C3",
			Aircraft:   &fleet.Aircraft{ID: "C3", Registration: "N200XA", Operator: "Other Air", Category: "light-jet", Status: fleet.StatusActive},
			Tracking:   false,
		},
		{
			AircraftID: "D4",
			Err:        errors.New("fetch failed"),
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(testStates(), Filter{StaleAfter: 5 * time.Minute}, now)

	if s.Total != 4 || s.Active != 2 || s.Tracked != 2 || s.Errors != 1 {
		t.Errorf("totals = %d/%d/%d/%d, want 4/2/2/1", s.Total, s.Active, s.Tracked, s.Errors)
	}
	// B2 is an hour old, C3 and D4 never had a sample
	if s.Stale != 3 {
		t.Errorf("Stale = %d, want 3", s.Stale)
	}
	if s.ByStatus[fleet.StatusActive] != 2 || s.ByStatus[fleet.StatusMaintenance] != 1 {
		t.Errorf("ByStatus = %v", s.ByStatus)
	}

	var order []string
	for _, row := range s.Rows {
		order = append(order, row.Registration)
	}
	want := "D4,N100JS,N200XA,N300JS"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("row order = %s, want %s", got, want)
	}
}

func TestSummarizeFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"status", Filter{Status: fleet.StatusActive}, []string{"C3", "A1"}},
		{"operator", Filter{Operator: "jetstream"}, []string{"B2", "A1"}},
		{"category", Filter{Category: "light-jet"}, []string{"C3", "A1"}},
		{"operator and category", Filter{Operator: "JetStream", Category: "midsize"}, []string{"B2"}},
		{"none", Filter{}, []string{"D4", "B2", "C3", "A1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(testStates(), tt.filter, now)
			if len(s.Rows) != len(tt.want) {
				t.Fatalf("rows = %+v, want ids %v", s.Rows, tt.want)
			}
			for i, id := range tt.want {
				if s.Rows[i].AircraftID != id {
					t.Errorf("row %d = %s, want %s", i, s.Rows[i].AircraftID, id)
				}
			}
		})
	}
}

func TestRender(t *testing.T) {
	s := Summarize(testStates(), Filter{StaleAfter: 5 * time.Minute}, now)
	health := realtime.Health{
		Status:     realtime.StatusConnected,
		Latency:    20 * time.Millisecond,
		LastUpdate: now.Add(-2 * time.Minute),
	}

	out := Render(s, health)
	for _, want := range []string{"connected", "N300JS", "35,000", "2 minutes ago", "fetch failed", "not tracking"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	empty := Render(Summarize(nil, Filter{}, now), realtime.Health{Status: realtime.StatusDisconnected})
	if !strings.Contains(empty, "No aircraft") || !strings.Contains(empty, "never") {
		t.Errorf("empty output:\n%s", empty)
	}
}
