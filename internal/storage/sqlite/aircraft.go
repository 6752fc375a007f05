package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/pkg/logger"
)

// ErrNotFound is returned when an aircraft or position does not exist
var ErrNotFound = errors.New("not found")

// timeFormat sorts lexically in time order
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

// AircraftStorage handles storage of aircraft records and position samples
type AircraftStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewAircraftStorage creates the aircraft storage and its tables
func NewAircraftStorage(db *sql.DB, log *logger.Logger) (*AircraftStorage, error) {
	storage := &AircraftStorage{
		db:     db,
		logger: log.Named("sqlite-aircraft"),
	}

	if err := storage.initDB(); err != nil {
		return nil, err
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *AircraftStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS aircraft (
			id TEXT PRIMARY KEY,
			registration TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			operator TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create aircraft table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			aircraft_id TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			altitude REAL NOT NULL,
			ground_speed REAL NOT NULL,
			heading REAL NOT NULL,
			timestamp TEXT NOT NULL,
			received_at TEXT NOT NULL,
			FOREIGN KEY (aircraft_id) REFERENCES aircraft(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create positions table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_aircraft_status ON aircraft(status)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_aircraft_id ON positions(aircraft_id, id)`,
	}

	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create aircraft index: %w", err)
		}
	}

	return nil
}

// Upsert inserts or replaces an aircraft record. A zero UpdatedAt is set to now.
func (s *AircraftStorage) Upsert(a *fleet.Aircraft) error {
	if err := fleet.ValidateAircraft(a); err != nil {
		return err
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO aircraft (id, registration, category, operator, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			registration = excluded.registration,
			category = excluded.category,
			operator = excluded.operator,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		a.ID,
		a.Registration,
		a.Category,
		a.Operator,
		string(a.Status),
		formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert aircraft: %w", err)
	}

	return nil
}

// Get returns one aircraft
func (s *AircraftStorage) Get(id string) (*fleet.Aircraft, error) {
	rows, err := s.db.Query(
		`SELECT id, registration, category, operator, status, updated_at
		FROM aircraft
		WHERE id = ?`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query aircraft: %w", err)
	}
	defer rows.Close()

	aircraft, err := s.scanAircraftRows(rows)
	if err != nil {
		return nil, err
	}
	if len(aircraft) == 0 {
		return nil, ErrNotFound
	}
	return aircraft[0], nil
}

// List returns every aircraft ordered by registration
func (s *AircraftStorage) List() ([]*fleet.Aircraft, error) {
	rows, err := s.db.Query(
		`SELECT id, registration, category, operator, status, updated_at
		FROM aircraft
		ORDER BY registration, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query aircraft list: %w", err)
	}
	defer rows.Close()

	return s.scanAircraftRows(rows)
}

// UpdateStatus sets the status of an aircraft and returns the updated record
func (s *AircraftStorage) UpdateStatus(id string, status fleet.Status) (*fleet.Aircraft, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown aircraft status: %q", status)
	}

	result, err := s.db.Exec(
		`UPDATE aircraft
		SET status = ?, updated_at = ?
		WHERE id = ?`,
		string(status),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update aircraft status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	return s.Get(id)
}

// InsertPosition stores a validated sample for a known aircraft
func (s *AircraftStorage) InsertPosition(p *fleet.Position) (int64, error) {
	if err := fleet.ValidatePosition(p); err != nil {
		return 0, err
	}
	if _, err := s.Get(p.AircraftID); err != nil {
		return 0, err
	}

	timestamp := p.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	result, err := s.db.Exec(
		`INSERT INTO positions
		(aircraft_id, latitude, longitude, altitude, ground_speed, heading, timestamp, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.AircraftID,
		p.Latitude,
		p.Longitude,
		p.Altitude,
		p.GroundSpeed,
		p.Heading,
		formatTime(timestamp),
		formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert position: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// LatestPosition returns the most recently received sample for an aircraft
func (s *AircraftStorage) LatestPosition(aircraftID string) (*fleet.Position, error) {
	positions, err := s.PositionHistory(aircraftID, 1)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, ErrNotFound
	}
	return positions[0], nil
}

// PositionHistory returns up to limit samples for an aircraft, newest first
func (s *AircraftStorage) PositionHistory(aircraftID string, limit int) ([]*fleet.Position, error) {
	rows, err := s.db.Query(
		`SELECT aircraft_id, latitude, longitude, altitude, ground_speed, heading, timestamp
		FROM positions
		WHERE aircraft_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		aircraftID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	return s.scanPositionRows(rows)
}

// PrunePositions keeps the newest keep samples per aircraft and returns the
// number of deleted rows
func (s *AircraftStorage) PrunePositions(keep int) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM positions
		WHERE id NOT IN (
			SELECT p.id FROM positions p
			WHERE p.aircraft_id = positions.aircraft_id
			ORDER BY p.id DESC
			LIMIT ?
		)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune positions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n > 0 {
		s.logger.Debug("Pruned positions", logger.Int64("deleted", n), logger.Int("keep", keep))
	}
	return n, nil
}

// scanAircraftRows scans database rows into Aircraft structs
func (s *AircraftStorage) scanAircraftRows(rows *sql.Rows) ([]*fleet.Aircraft, error) {
	var records []*fleet.Aircraft
	for rows.Next() {
		var a fleet.Aircraft
		var status, updatedAt string

		if err := rows.Scan(&a.ID, &a.Registration, &a.Category, &a.Operator, &status, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan aircraft: %w", err)
		}

		var err error
		a.Status = fleet.Status(status)
		a.UpdatedAt, err = parseTime(updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}

		records = append(records, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate aircraft: %w", err)
	}
	return records, nil
}

// scanPositionRows scans database rows into Position structs
func (s *AircraftStorage) scanPositionRows(rows *sql.Rows) ([]*fleet.Position, error) {
	var records []*fleet.Position
	for rows.Next() {
		var p fleet.Position
		var timestamp string

		if err := rows.Scan(&p.AircraftID, &p.Latitude, &p.Longitude, &p.Altitude, &p.GroundSpeed, &p.Heading, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}

		var err error
		p.Timestamp, err = parseTime(timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}

		records = append(records, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}
	return records, nil
}
