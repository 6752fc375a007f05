package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/pkg/logger"
)

func newTestStorage(t *testing.T) *AircraftStorage {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "jetstream.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	storage, err := NewAircraftStorage(db, logger.NewNop())
	if err != nil {
		t.Fatalf("NewAircraftStorage: %v", err)
	}
	return storage
}

func seedAircraft(t *testing.T, s *AircraftStorage) {
	t.Helper()
	for _, a := range []*fleet.Aircraft{
		{ID: "A1", Registration: "N300JS", Operator: "JetStream", Status: fleet.StatusActive},
		{ID: "B2", Registration: "N100JS", Operator: "JetStream", Status: fleet.StatusInactive},
	} {
		if err := s.Upsert(a); err != nil {
			t.Fatalf("Upsert(%s): %v", a.ID, err)
		}
	}
}

func TestAircraftCRUD(t *testing.T) {
	s := newTestStorage(t)
	seedAircraft(t, s)

	a, err := s.Get("A1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.Registration != "N300JS" || a.Status != fleet.StatusActive || a.UpdatedAt.IsZero() {
		t.Errorf("Get = %+v", a)
	}

	if _, err := s.Get("ZZ"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(ZZ) = %v, want ErrNotFound", err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "B2" || list[1].ID != "A1" {
		t.Errorf("List order = %v, %v", list[0].ID, list[1].ID)
	}

	// Upsert replaces
	if err := s.Upsert(&fleet.Aircraft{ID: "A1", Registration: "N301JS", Status: fleet.StatusActive}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if a, _ := s.Get("A1"); a.Registration != "N301JS" || a.Operator != "" {
		t.Errorf("after upsert = %+v", a)
	}

	if err := s.Upsert(&fleet.Aircraft{ID: "C3", Status: "GROUNDED"}); err == nil {
		t.Error("Upsert accepted an unknown status")
	}
}

func TestUpdateStatus(t *testing.T) {
	s := newTestStorage(t)
	seedAircraft(t, s)

	a, err := s.UpdateStatus("A1", fleet.StatusMaintenance)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if a.Status != fleet.StatusMaintenance {
		t.Errorf("status = %s", a.Status)
	}

	if _, err := s.UpdateStatus("ZZ", fleet.StatusActive); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateStatus(ZZ) = %v, want ErrNotFound", err)
	}
	if _, err := s.UpdateStatus("A1", "flying"); err == nil {
		t.Error("UpdateStatus accepted an unknown status")
	}
}

func TestPositions(t *testing.T) {
	s := newTestStorage(t)
	seedAircraft(t, s)

	if _, err := s.LatestPosition("A1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestPosition before samples = %v, want ErrNotFound", err)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		p := &fleet.Position{
			AircraftID: "A1",
			Latitude:   42 + float64(i),
			Longitude:  -71,
			Altitude:   35000,
			Heading:    270,
			// Received in order, timestamps going backwards
			Timestamp: base.Add(-time.Duration(i) * time.Second),
		}
		if _, err := s.InsertPosition(p); err != nil {
			t.Fatalf("InsertPosition %d: %v", i, err)
		}
	}

	latest, err := s.LatestPosition("A1")
	if err != nil {
		t.Fatalf("LatestPosition: %v", err)
	}
	if latest.Latitude != 46 || !latest.Timestamp.Equal(base.Add(-4*time.Second)) {
		t.Errorf("latest = %+v", latest)
	}

	history, err := s.PositionHistory("A1", 3)
	if err != nil {
		t.Fatalf("PositionHistory: %v", err)
	}
	if len(history) != 3 || history[0].Latitude != 46 || history[2].Latitude != 44 {
		t.Errorf("history = %+v", history)
	}

	tests := []struct {
		name string
		p    *fleet.Position
		want error
	}{
		{"unknown aircraft", &fleet.Position{AircraftID: "ZZ"}, ErrNotFound},
		{"invalid latitude", &fleet.Position{AircraftID: "A1", Latitude: 150}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.InsertPosition(tt.p)
			if err == nil {
				t.Fatal("InsertPosition returned nil error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPrunePositions(t *testing.T) {
	s := newTestStorage(t)
	seedAircraft(t, s)

	for _, id := range []string{"A1", "B2"} {
		for i := 0; i < 4; i++ {
			if _, err := s.InsertPosition(&fleet.Position{AircraftID: id, Latitude: float64(i)}); err != nil {
				t.Fatalf("InsertPosition: %v", err)
			}
		}
	}

	deleted, err := s.PrunePositions(2)
	if err != nil {
		t.Fatalf("PrunePositions: %v", err)
	}
	if deleted != 4 {
		t.Errorf("deleted = %d, want 4", deleted)
	}

	for _, id := range []string{"A1", "B2"} {
		history, _ := s.PositionHistory(id, 10)
		if len(history) != 2 || history[0].Latitude != 3 || history[1].Latitude != 2 {
			t.Errorf("%s history after prune = %+v", id, history)
		}
	}
}

func TestOpenMemory(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	s, err := NewAircraftStorage(db, logger.NewNop())
	if err != nil {
		t.Fatalf("NewAircraftStorage: %v", err)
	}
	seedAircraft(t, s)
	if list, _ := s.List(); len(list) != 2 {
		t.Errorf("List = %d aircraft", len(list))
	}
}
