package maplayer

import (
	"sort"
	"sync"

	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/internal/tracker"
	"github.com/yegors/jetstream/pkg/logger"
)

// Change types returned by Sync
const (
	ChangeAdded   = "added"
	ChangeUpdated = "updated"
	ChangeRemoved = "removed"
)

// Trigger is the user action that activated a marker
type Trigger int

const (
	TriggerOther Trigger = iota
	TriggerClick
	TriggerEnter
	TriggerSpace
)

// TriggerFromKey maps a key name to a trigger
func TriggerFromKey(key string) Trigger {
	switch key {
	case "Enter", "enter":
		return TriggerEnter
	case " ", "Space", "space":
		return TriggerSpace
	}
	return TriggerOther
}

func (t Trigger) selects() bool {
	return t == TriggerClick || t == TriggerEnter || t == TriggerSpace
}

// Marker is the visual representation of one aircraft. A marker keeps its
// identity for as long as the aircraft stays on the layer; moves update it
// in place.
type Marker struct {
	AircraftID string
	Label      string
	Status     fleet.Status
	Latitude   float64
	Longitude  float64
	Altitude   float64
	Heading    float64 // rotation in degrees
}

// Renderer draws markers on a map surface. Its methods are called with the
// layer locked and must not call back into the layer. The marker passed in
// is the layer's own and is only valid for the duration of the call.
type Renderer interface {
	CreateMarker(m *Marker)
	MoveMarker(m *Marker)
	RemoveMarker(m *Marker)
}

// Item is one aircraft the caller wants visualized
type Item struct {
	ID       string
	Aircraft *fleet.Aircraft
	Position *fleet.Position
	Tracking bool
}

// ItemFromState converts a tracker snapshot to a layer item
func ItemFromState(s tracker.State) Item {
	return Item{
		ID:       s.AircraftID,
		Aircraft: s.Aircraft,
		Position: s.Position,
		Tracking: s.Tracking,
	}
}

// ItemsFromStates converts tracker snapshots to layer items
func ItemsFromStates(states []tracker.State) []Item {
	items := make([]Item, 0, len(states))
	for _, s := range states {
		items = append(items, ItemFromState(s))
	}
	return items
}

// Change is one marker transition produced by Sync
type Change struct {
	Type       string // "added", "updated", "removed"
	AircraftID string
	Marker     *Marker // snapshot taken when the change was made
}

// Layer keeps one marker per tracked aircraft with a known position
type Layer struct {
	renderer Renderer
	onSelect func(aircraftID string)
	logger   *logger.Logger

	mu      sync.Mutex
	markers map[string]*Marker
}

// New creates an empty layer. onSelect may be nil.
func New(renderer Renderer, onSelect func(aircraftID string), log *logger.Logger) *Layer {
	return &Layer{
		renderer: renderer,
		onSelect: onSelect,
		logger:   log.Named("maplayer"),
		markers:  make(map[string]*Marker),
	}
}

// Sync reconciles the markers with items. Items without a position or with
// tracking stopped have no marker.
func (l *Layer) Sync(items []Item) []Change {
	l.mu.Lock()
	defer l.mu.Unlock()

	changes := []Change{}
	current := make(map[string]bool, len(items))

	for _, item := range items {
		if item.ID == "" || item.Position == nil || !item.Tracking {
			continue
		}
		if current[item.ID] {
			continue
		}
		current[item.ID] = true

		if marker, exists := l.markers[item.ID]; exists {
			if applyItem(marker, item) {
				l.renderer.MoveMarker(marker)
				changes = append(changes, Change{Type: ChangeUpdated, AircraftID: item.ID, Marker: marker.clone()})
			}
			continue
		}

		marker := &Marker{AircraftID: item.ID}
		applyItem(marker, item)
		l.markers[item.ID] = marker
		l.renderer.CreateMarker(marker)
		changes = append(changes, Change{Type: ChangeAdded, AircraftID: item.ID, Marker: marker.clone()})
		l.logger.Debug("Marker added", logger.String("aircraft_id", item.ID))
	}

	var removed []string
	for id := range l.markers {
		if !current[id] {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		marker := l.markers[id]
		delete(l.markers, id)
		l.renderer.RemoveMarker(marker)
		changes = append(changes, Change{Type: ChangeRemoved, AircraftID: id, Marker: marker})
		l.logger.Debug("Marker removed", logger.String("aircraft_id", id))
	}

	return changes
}

func (m *Marker) clone() *Marker {
	cp := *m
	return &cp
}

// applyItem copies the item's presentation fields into m and reports
// whether anything changed
func applyItem(m *Marker, item Item) bool {
	next := *m
	next.Latitude = item.Position.Latitude
	next.Longitude = item.Position.Longitude
	next.Altitude = item.Position.Altitude
	next.Heading = item.Position.Heading
	next.Label = item.ID
	next.Status = ""
	if item.Aircraft != nil {
		next.Label = item.Aircraft.DisplayName()
		next.Status = item.Aircraft.Status
	}
	if next == *m {
		return false
	}
	*m = next
	return true
}

// Activate handles a click or key press on the marker for aircraftID.
// Click, Enter and Space invoke the selection callback exactly once;
// anything else is ignored. It reports whether the callback fired.
func (l *Layer) Activate(aircraftID string, trigger Trigger) bool {
	if !trigger.selects() {
		return false
	}

	l.mu.Lock()
	_, exists := l.markers[aircraftID]
	l.mu.Unlock()
	if !exists || l.onSelect == nil {
		return false
	}

	l.onSelect(aircraftID)
	return true
}

// Marker returns a copy of the marker for aircraftID
func (l *Layer) Marker(aircraftID string) (*Marker, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.markers[aircraftID]
	if !ok {
		return nil, false
	}
	return m.clone(), true
}

// Len returns the number of markers on the layer
func (l *Layer) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.markers)
}

// Clear removes every marker
func (l *Layer) Clear() {
	l.Sync(nil)
}
