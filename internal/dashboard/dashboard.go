package dashboard

import (
	"sort"
	"strings"
	"time"

	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/internal/tracker"
)

// Filter narrows the aircraft list. Empty fields match everything.
type Filter struct {
	Status   fleet.Status
	Operator string
	Category string
	// StaleAfter marks aircraft whose last sample is older than this; 0 disables
	StaleAfter time.Duration
}

func (f Filter) matches(a *fleet.Aircraft) bool {
	if f.Status == "" && f.Operator == "" && f.Category == "" {
		return true
	}
	if a == nil {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Operator != "" && !strings.EqualFold(a.Operator, f.Operator) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(a.Category, f.Category) {
		return false
	}
	return true
}

// Row is one aircraft line of the dashboard
type Row struct {
	AircraftID   string
	Registration string
	Operator     string
	Status       fleet.Status
	Position     *fleet.Position
	Tracking     bool
	Loading      bool
	Stale        bool
	Err          string
	UpdatedAt    time.Time
}

// Summary aggregates tracker states for the list views
type Summary struct {
	Total     int
	ByStatus  map[fleet.Status]int
	Active    int
	Tracked   int
	Errors    int
	Stale     int
	Rows      []Row
	Generated time.Time
}

// Summarize builds a summary of the states that pass filter at now
func Summarize(states []tracker.State, filter Filter, now time.Time) Summary {
	s := Summary{
		ByStatus:  make(map[fleet.Status]int, len(fleet.Statuses)),
		Generated: now,
	}

	for _, state := range states {
		if !filter.matches(state.Aircraft) {
			continue
		}

		row := Row{
			AircraftID:   state.AircraftID,
			Registration: state.Aircraft.DisplayName(),
			Position:     state.Position,
			Tracking:     state.Tracking,
			Loading:      state.Loading,
			UpdatedAt:    state.UpdatedAt,
		}
		if state.Aircraft != nil {
			row.Operator = state.Aircraft.Operator
			row.Status = state.Aircraft.Status
			s.ByStatus[state.Aircraft.Status]++
		} else {
			row.Registration = state.AircraftID
		}
		if state.Err != nil {
			row.Err = state.Err.Error()
			s.Errors++
		}
		if filter.StaleAfter > 0 && !state.Loading {
			if state.Position == nil || now.Sub(state.Position.Timestamp) > filter.StaleAfter {
				row.Stale = true
				s.Stale++
			}
		}

		s.Total++
		if state.Aircraft.IsActive() {
			s.Active++
		}
		if state.Tracking {
			s.Tracked++
		}
		s.Rows = append(s.Rows, row)
	}

	sort.Slice(s.Rows, func(i, j int) bool {
		if s.Rows[i].Registration != s.Rows[j].Registration {
			return s.Rows[i].Registration < s.Rows[j].Registration
		}
		return s.Rows[i].AircraftID < s.Rows[j].AircraftID
	})

	return s
}
