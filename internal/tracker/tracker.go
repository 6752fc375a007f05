package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/internal/fleetapi"
	"github.com/yegors/jetstream/internal/realtime"
	"github.com/yegors/jetstream/internal/ringbuf"
	"github.com/yegors/jetstream/pkg/logger"
)

// ErrInactive is returned by operations that need an activated tracker
var ErrInactive = errors.New("tracker is not active")

// Source fetches the initial state of an aircraft. *fleetapi.Client satisfies it.
type Source interface {
	GetAircraft(ctx context.Context, id string) (*fleet.Aircraft, error)
	GetPosition(ctx context.Context, id string) (*fleet.Position, error)
}

// Transport is the realtime connection shared by all trackers.
// *realtime.Client satisfies it.
type Transport interface {
	Subscribe(channel string, h realtime.Handler) (unsubscribe func())
	Publish(ctx context.Context, channel string, v interface{}) error
	Health() realtime.Health
}

// Options tunes a tracker
type Options struct {
	// UpdateInterval and RetryAttempts are forwarded to the server with the
	// tracking start command. The tracker never retries on its own.
	UpdateInterval time.Duration
	RetryAttempts  int
	FetchTimeout   time.Duration
	HistorySize    int
	// OnChange is called after every accepted change, outside any lock
	OnChange func(State)
}

func (o Options) withDefaults() Options {
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 100
	}
	return o
}

// State is a snapshot of one tracked aircraft. Aircraft and Position point to
// values that are replaced, never mutated, so sharing them is safe.
type State struct {
	AircraftID string
	Aircraft   *fleet.Aircraft
	Position   *fleet.Position // nil until the first sample
	Tracking   bool
	Loading    bool
	Err        error
	Health     realtime.Health
	UpdatedAt  time.Time
}

// Tracker follows one aircraft: it loads the initial record and position over
// HTTP, then applies validated live updates from the transport.
type Tracker struct {
	id        string
	source    Source
	transport Transport
	opts      Options
	logger    *logger.Logger

	mu           sync.Mutex
	state        State
	history      *ringbuf.Ring[fleet.Position]
	active       bool
	generation   uint64 // bumped on every activate/deactivate; stale work compares against it
	positionSeq  uint64
	aircraftSeq  uint64
	cancel       context.CancelFunc
	unsubscribes []func()
}

// New creates an inactive tracker for aircraft id
func New(id string, source Source, transport Transport, opts Options, log *logger.Logger) *Tracker {
	opts = opts.withDefaults()
	return &Tracker{
		id:        id,
		source:    source,
		transport: transport,
		opts:      opts,
		logger:    log.Named("tracker").WithAircraft(id),
		state:     State{AircraftID: id},
		history:   ringbuf.New[fleet.Position](opts.HistorySize),
	}
}

// ID returns the tracked aircraft id
func (t *Tracker) ID() string {
	return t.id
}

// Activate subscribes to the aircraft's channels, asks the server to start
// tracking it and loads its initial state. A load failure is returned and
// kept in State().Err; it is not retried.
func (t *Tracker) Activate(ctx context.Context) error {
	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return nil
	}
	t.active = true
	t.generation++
	gen := t.generation
	activeCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.state = State{AircraftID: t.id, Tracking: true, Loading: true}
	t.mu.Unlock()

	h := &handlers{t: t, gen: gen}
	unsubscribes := []func(){
		t.transport.Subscribe(fleet.PositionChannel(t.id), (*positionHandler)(h)),
		t.transport.Subscribe(fleet.StatusChannel(t.id), (*statusHandler)(h)),
		t.transport.Subscribe(fleet.TrackingChannel(t.id), (*trackingHandler)(h)),
	}

	t.mu.Lock()
	if t.generation != gen {
		// Deactivated while subscribing
		t.mu.Unlock()
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
		return nil
	}
	t.unsubscribes = unsubscribes
	t.mu.Unlock()

	t.publishTracking(activeCtx, fleet.TrackingStart)

	t.logger.Debug("Tracker activated")
	return t.load(activeCtx, gen)
}

// Deactivate removes every subscription, tells the server to stop tracking
// and discards the aircraft state. Results of in-flight fetches are ignored.
func (t *Tracker) Deactivate() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.generation++
	cancel := t.cancel
	unsubscribes := t.unsubscribes
	t.cancel = nil
	t.unsubscribes = nil
	t.state = State{AircraftID: t.id}
	t.history.Reset()
	t.mu.Unlock()

	cancel()
	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}

	ctx, done := context.WithTimeout(context.Background(), t.opts.FetchTimeout)
	defer done()
	t.publishTracking(ctx, fleet.TrackingStop)

	t.logger.Debug("Tracker deactivated")
}

// Refresh re-issues both initial requests
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return ErrInactive
	}
	gen := t.generation
	t.state.Loading = true
	t.mu.Unlock()

	return t.load(ctx, gen)
}

// State returns the current snapshot, including transport health
func (t *Tracker) State() State {
	t.mu.Lock()
	s := t.state
	t.mu.Unlock()
	s.Health = t.transport.Health()
	return s
}

// History returns the last accepted samples, oldest first
func (t *Tracker) History() []fleet.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.Items()
}

// Active reports whether the tracker is activated
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Tracker) load(ctx context.Context, gen uint64) error {
	t.mu.Lock()
	positionSeq, aircraftSeq := t.positionSeq, t.aircraftSeq
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, t.opts.FetchTimeout)
	defer cancel()

	var (
		aircraft    *fleet.Aircraft
		position    *fleet.Position
		aircraftErr error
		positionErr error
		wg          sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		aircraft, aircraftErr = t.source.GetAircraft(ctx, t.id)
	}()
	go func() {
		defer wg.Done()
		position, positionErr = t.source.GetPosition(ctx, t.id)
	}()
	wg.Wait()

	// No sample yet is a normal state, not a failure
	if errors.Is(positionErr, fleetapi.ErrNotFound) {
		positionErr = nil
		position = nil
	}
	if aircraftErr == nil && aircraft != nil {
		aircraftErr = fleet.ValidateAircraft(aircraft)
	}
	if positionErr == nil && position != nil {
		positionErr = fleet.ValidatePosition(position)
	}
	err := multierr.Combine(aircraftErr, positionErr)

	t.mu.Lock()
	if !t.active || t.generation != gen {
		t.mu.Unlock()
		t.logger.Debug("Discarding load result after deactivation")
		return nil
	}

	t.state.Loading = false
	t.state.Err = err
	// A live update received while the request was in flight is newer
	if aircraftErr == nil && aircraft != nil && t.aircraftSeq == aircraftSeq {
		t.state.Aircraft = aircraft
	}
	if positionErr == nil && position != nil && t.positionSeq == positionSeq {
		// Refreshing an aircraft that has not moved returns the sample already held
		if t.state.Position == nil || !t.state.Position.Equal(*position) {
			t.history.Push(*position)
		}
		t.state.Position = position
	}
	t.state.UpdatedAt = time.Now()
	snap := t.state
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn("Failed to load aircraft state", logger.Error(err))
	}
	t.notify(snap)
	return err
}

func (t *Tracker) publishTracking(ctx context.Context, action fleet.TrackingAction) {
	cmd := fleet.TrackingCommand{
		Action:           action,
		AircraftID:       t.id,
		UpdateIntervalMs: int(t.opts.UpdateInterval / time.Millisecond),
		RetryAttempts:    t.opts.RetryAttempts,
	}
	if err := t.transport.Publish(ctx, fleet.TrackingControlChannel, cmd); err != nil {
		t.logger.Warn("Failed to send tracking command",
			logger.String("action", string(action)),
			logger.Error(err))
	}
}

// apply runs fn under the lock if gen is still current and notifies on change
func (t *Tracker) apply(gen uint64, fn func()) bool {
	t.mu.Lock()
	if !t.active || t.generation != gen {
		t.mu.Unlock()
		return false
	}
	fn()
	t.state.UpdatedAt = time.Now()
	snap := t.state
	t.mu.Unlock()

	t.notify(snap)
	return true
}

func (t *Tracker) notify(s State) {
	if t.opts.OnChange == nil {
		return
	}
	s.Health = t.transport.Health()
	t.opts.OnChange(s)
}
