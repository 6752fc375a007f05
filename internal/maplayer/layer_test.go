package maplayer

import (
	"encoding/json"
	"testing"

	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/pkg/logger"
)

type countingRenderer struct {
	created map[string]int
	moved   map[string]int
	removed map[string]int
	drawn   map[string][]*Marker // every marker handed to the renderer, per aircraft
}

func newCountingRenderer() *countingRenderer {
	return &countingRenderer{
		created: make(map[string]int),
		moved:   make(map[string]int),
		removed: make(map[string]int),
		drawn:   make(map[string][]*Marker),
	}
}

func (r *countingRenderer) CreateMarker(m *Marker) {
	r.created[m.AircraftID]++
	r.drawn[m.AircraftID] = append(r.drawn[m.AircraftID], m)
}

func (r *countingRenderer) MoveMarker(m *Marker) {
	r.moved[m.AircraftID]++
	r.drawn[m.AircraftID] = append(r.drawn[m.AircraftID], m)
}

func (r *countingRenderer) RemoveMarker(m *Marker) { r.removed[m.AircraftID]++ }

func item(id string, lat, lon, heading float64) Item {
	return Item{
		ID:       id,
		Aircraft: &fleet.Aircraft{ID: id, Registration: "N-" + id, Status: fleet.StatusActive},
		Position: &fleet.Position{AircraftID: id, Latitude: lat, Longitude: lon, Altitude: 30000, GroundSpeed: 400, Heading: heading},
		Tracking: true,
	}
}

func TestMarkerCreatedOnceAndRemovedOnce(t *testing.T) {
	r := newCountingRenderer()
	layer := New(r, nil, logger.NewNop())

	changes := layer.Sync([]Item{item("E", 42, -71, 270)})
	if len(changes) != 1 || changes[0].Type != ChangeAdded {
		t.Fatalf("first sync changes = %+v", changes)
	}

	for i := 1; i <= 5; i++ {
		changes = layer.Sync([]Item{item("E", 42+float64(i)*0.1, -71, 270)})
		if len(changes) != 1 || changes[0].Type != ChangeUpdated {
			t.Fatalf("update %d changes = %+v", i, changes)
		}
	}
	for i, m := range r.drawn["E"] {
		if m != r.drawn["E"][0] {
			t.Fatalf("renderer call %d got a different marker", i)
		}
	}
	if m, _ := layer.Marker("E"); m.Latitude != 42.5 {
		t.Errorf("Latitude = %v, want 42.5", m.Latitude)
	}

	// Unchanged input produces no change
	if changes := layer.Sync([]Item{item("E", 42.5, -71, 270)}); len(changes) != 0 {
		t.Errorf("no-op sync changes = %+v", changes)
	}

	layer.Sync(nil)
	layer.Sync(nil)

	if r.created["E"] != 1 || r.moved["E"] != 5 || r.removed["E"] != 1 {
		t.Errorf("created=%d moved=%d removed=%d, want 1/5/1", r.created["E"], r.moved["E"], r.removed["E"])
	}
	if layer.Len() != 0 {
		t.Errorf("Len() = %d after removal", layer.Len())
	}
}

func TestReappearingAircraftGetsNewMarker(t *testing.T) {
	r := newCountingRenderer()
	layer := New(r, nil, logger.NewNop())

	layer.Sync([]Item{item("E", 1, 1, 0)})
	layer.Sync(nil)
	layer.Sync([]Item{item("E", 1, 1, 0)})

	if r.created["E"] != 2 {
		t.Fatalf("created = %d, want 2", r.created["E"])
	}
	if drawn := r.drawn["E"]; drawn[0] == drawn[1] {
		t.Error("reappearing aircraft reused the old marker")
	}
}

func TestReturnedMarkersAreSnapshots(t *testing.T) {
	layer := New(newCountingRenderer(), nil, logger.NewNop())

	changes := layer.Sync([]Item{item("E", 42, -71, 270)})
	before, ok := layer.Marker("E")
	if !ok {
		t.Fatal("Marker(E) missing after sync")
	}

	before.Latitude = 0
	changes[0].Marker.Longitude = 0
	if m, _ := layer.Marker("E"); m.Latitude != 42 || m.Longitude != -71 {
		t.Errorf("layer marker = %+v after editing returned copies", m)
	}

	updated := layer.Sync([]Item{item("E", 43, -72, 90)})
	if len(updated) != 1 || updated[0].Marker.Latitude != 43 {
		t.Fatalf("update changes = %+v", updated)
	}
	if before.Latitude != 0 || before.Heading != 270 {
		t.Errorf("earlier snapshot changed by Sync: %+v", before)
	}
	if changes[0].Marker.Latitude != 42 {
		t.Errorf("earlier change changed by Sync: %+v", changes[0].Marker)
	}
	if _, ok := layer.Marker("missing"); ok {
		t.Error("Marker(missing) reported ok")
	}
}

func TestItemsWithoutMarker(t *testing.T) {
	tests := []struct {
		name string
		item Item
	}{
		{"no position", Item{ID: "A", Aircraft: &fleet.Aircraft{ID: "A"}, Tracking: true}},
		{"tracking stopped", func() Item { it := item("A", 1, 1, 0); it.Tracking = false; return it }()},
		{"no id", func() Item { it := item("A", 1, 1, 0); it.ID = ""; return it }()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer := New(newCountingRenderer(), nil, logger.NewNop())
			if changes := layer.Sync([]Item{tt.item}); len(changes) != 0 {
				t.Errorf("changes = %+v, want none", changes)
			}
		})
	}
}

func TestTrackingStopRemovesMarker(t *testing.T) {
	r := newCountingRenderer()
	layer := New(r, nil, logger.NewNop())

	it := item("E", 1, 1, 0)
	layer.Sync([]Item{it})
	it.Tracking = false
	changes := layer.Sync([]Item{it})
	if len(changes) != 1 || changes[0].Type != ChangeRemoved {
		t.Errorf("changes = %+v", changes)
	}
}

func TestActivate(t *testing.T) {
	var selected []string
	layer := New(newCountingRenderer(), func(id string) { selected = append(selected, id) }, logger.NewNop())
	layer.Sync([]Item{item("A1", 1, 1, 0)})

	tests := []struct {
		id      string
		trigger Trigger
		fired   bool
	}{
		{"A1", TriggerClick, true},
		{"A1", TriggerFromKey("Enter"), true},
		{"A1", TriggerFromKey(" "), true},
		{"A1", TriggerFromKey("Escape"), false},
		{"A1", TriggerFromKey("a"), false},
		{"B2", TriggerClick, false},
	}

	for _, tt := range tests {
		if got := layer.Activate(tt.id, tt.trigger); got != tt.fired {
			t.Errorf("Activate(%s, %d) = %v, want %v", tt.id, tt.trigger, got, tt.fired)
		}
	}
	if len(selected) != 3 {
		t.Errorf("onSelect called %d times, want 3: %v", len(selected), selected)
	}
}

func TestFeatureCollection(t *testing.T) {
	fc := NewFeatureCollection()
	layer := New(fc, nil, logger.NewNop())

	layer.Sync([]Item{item("B", 10, 20, 90), item("A", 42, -71, 270)})
	v := fc.Version()

	data, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Type     string    `json:"type"`
		Features []Feature `json:"features"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != "FeatureCollection" || len(decoded.Features) != 2 {
		t.Fatalf("decoded = %+v", decoded)
	}
	a := decoded.Features[0]
	if a.ID != "A" || a.Geometry.Coordinates != [2]float64{-71, 42} {
		t.Errorf("first feature = %+v", a)
	}
	if a.Properties["registration"] != "N-A" || a.Properties["heading"] != 270.0 {
		t.Errorf("properties = %+v", a.Properties)
	}

	layer.Sync([]Item{item("A", 42, -71, 270)})
	if fc.Version() == v {
		t.Error("version unchanged after removal")
	}
	if features := fc.Features(); len(features) != 1 || features[0].ID != "A" {
		t.Errorf("features = %+v", features)
	}
}
