package maplayer

import (
	"encoding/json"
	"sort"
	"sync"
)

// Geometry is a GeoJSON point
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"` // lon, lat
}

// Feature is one marker as a GeoJSON feature
type Feature struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id"`
	Geometry   Geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// FeatureCollection is a Renderer that keeps the markers as GeoJSON for a
// web map. It is safe for concurrent use.
type FeatureCollection struct {
	mu       sync.RWMutex
	features map[string]Feature
	version  uint64
}

// NewFeatureCollection creates an empty collection
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{features: make(map[string]Feature)}
}

func markerFeature(m *Marker) Feature {
	return Feature{
		Type: "Feature",
		ID:   m.AircraftID,
		Geometry: Geometry{
			Type:        "Point",
			Coordinates: [2]float64{m.Longitude, m.Latitude},
		},
		Properties: map[string]interface{}{
			"registration": m.Label,
			"status":       string(m.Status),
			"heading":      m.Heading,
			"altitude":     m.Altitude,
		},
	}
}

// CreateMarker adds a feature for m
func (fc *FeatureCollection) CreateMarker(m *Marker) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.features[m.AircraftID] = markerFeature(m)
	fc.version++
}

// MoveMarker replaces the feature for m
func (fc *FeatureCollection) MoveMarker(m *Marker) {
	fc.CreateMarker(m)
}

// RemoveMarker drops the feature for m
func (fc *FeatureCollection) RemoveMarker(m *Marker) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	delete(fc.features, m.AircraftID)
	fc.version++
}

// Features returns the features sorted by aircraft id
func (fc *FeatureCollection) Features() []Feature {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	features := make([]Feature, 0, len(fc.features))
	for _, f := range fc.features {
		features = append(features, f)
	}
	sort.Slice(features, func(i, j int) bool {
		return features[i].ID < features[j].ID
	})
	return features
}

// Version increments on every change, so writers can skip unchanged output
func (fc *FeatureCollection) Version() uint64 {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.version
}

// MarshalJSON encodes a snapshot of the collection
func (fc *FeatureCollection) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string    `json:"type"`
		Features []Feature `json:"features"`
	}{
		Type:     "FeatureCollection",
		Features: fc.Features(),
	})
}
