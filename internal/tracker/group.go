package tracker

import (
	"context"
	"sort"
	"sync"

	"github.com/yegors/jetstream/pkg/logger"
)

// Group owns one Tracker per aircraft over a shared Source and Transport
type Group struct {
	source    Source
	transport Transport
	opts      Options
	logger    *logger.Logger

	mu       sync.Mutex
	trackers map[string]*Tracker
}

// NewGroup creates an empty group. opts is applied to every tracker.
func NewGroup(source Source, transport Transport, opts Options, log *logger.Logger) *Group {
	return &Group{
		source:    source,
		transport: transport,
		opts:      opts,
		logger:    log,
		trackers:  make(map[string]*Tracker),
	}
}

// Track activates a tracker for id, reusing an existing one.
// The returned error is the initial load error, if any.
func (g *Group) Track(ctx context.Context, id string) (*Tracker, error) {
	g.mu.Lock()
	t, ok := g.trackers[id]
	if !ok {
		t = New(id, g.source, g.transport, g.opts, g.logger)
		g.trackers[id] = t
	}
	g.mu.Unlock()

	return t, t.Activate(ctx)
}

// Untrack deactivates and forgets the tracker for id
func (g *Group) Untrack(id string) {
	g.mu.Lock()
	t, ok := g.trackers[id]
	delete(g.trackers, id)
	g.mu.Unlock()

	if ok {
		t.Deactivate()
	}
}

// Get returns the tracker for id
func (g *Group) Get(id string) (*Tracker, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.trackers[id]
	return t, ok
}

// States returns a snapshot of every tracker, sorted by aircraft id
func (g *Group) States() []State {
	g.mu.Lock()
	trackers := make([]*Tracker, 0, len(g.trackers))
	for _, t := range g.trackers {
		trackers = append(trackers, t)
	}
	g.mu.Unlock()

	states := make([]State, 0, len(trackers))
	for _, t := range trackers {
		states = append(states, t.State())
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].AircraftID < states[j].AircraftID
	})
	return states
}

// Close deactivates every tracker
func (g *Group) Close() {
	g.mu.Lock()
	trackers := g.trackers
	g.trackers = make(map[string]*Tracker)
	g.mu.Unlock()

	for _, t := range trackers {
		t.Deactivate()
	}
}
