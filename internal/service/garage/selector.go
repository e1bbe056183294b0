package garage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/greasemonkey-ai/voicecore/internal/model/vehicle"
	"github.com/greasemonkey-ai/voicecore/internal/service/prefs"
)

// DefaultQuietWindow is how long a selection must hold still before it
// settles.
const DefaultQuietWindow = 150 * time.Millisecond

// Selector debounces the active-vehicle selection. Raw updates immediately on
// user action; settled updates only after the quiet window elapses without
// further changes, and is the only value that triggers history loads.
type Selector struct {
	mu         sync.Mutex
	roster     vehicle.Roster
	store      prefs.Store
	log        zerolog.Logger
	quiet      time.Duration
	raw        string
	settled    string
	hasSettled bool
	timer      *time.Timer
	onSettle   func(vehicleID string)
	closed     bool
}

// NewSelector builds a selector over the garage roster. onSettle fires once
// per settle, outside the selector lock.
func NewSelector(roster vehicle.Roster, store prefs.Store, quiet time.Duration, onSettle func(vehicleID string), log zerolog.Logger) *Selector {
	if quiet <= 0 {
		quiet = DefaultQuietWindow
	}
	return &Selector{
		roster:   roster,
		store:    store,
		log:      log.With().Str("component", "garage").Logger(),
		quiet:    quiet,
		onSettle: onSettle,
	}
}

// OnSettle replaces the settle hook. Install it before the first selection
// or restore so no settle fires unobserved.
func (s *Selector) OnSettle(fn func(vehicleID string)) {
	s.mu.Lock()
	s.onSettle = fn
	s.mu.Unlock()
}

// Select records a user selection. Rapid toggling inside the quiet window
// collapses to a single settle of the final target.
func (s *Selector) Select(vehicleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.raw = vehicleID
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.quiet, s.settle)
}

func (s *Selector) settle() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.settled = s.raw
	s.hasSettled = true
	settled := s.settled
	cb := s.onSettle
	s.mu.Unlock()

	s.persist(settled)
	if cb != nil {
		cb(settled)
	}
}

func (s *Selector) persist(vehicleID string) {
	current, err := s.store.Load()
	if err != nil {
		s.log.Warn().Err(err).Msg("reading preferences before persisting selection")
		current = prefs.Default()
	}
	current.VehicleID = vehicleID
	if err := s.store.Save(current); err != nil {
		s.log.Warn().Err(err).Msg("persisting settled vehicle selection")
	}
}

// Restore initializes the selection from durable storage at startup. A stored
// id that no longer exists in the roster falls back to the first available
// vehicle, or to no selection when the garage is empty. The restored value
// settles immediately, without the quiet window.
func (s *Selector) Restore() string {
	stored, err := s.store.Load()
	if err != nil {
		s.log.Warn().Err(err).Msg("reading persisted selection, starting fresh")
	}

	chosen := ""
	if _, ok := s.roster.FindByID(stored.VehicleID); ok {
		chosen = stored.VehicleID
	} else if vehicles := s.roster.List(); len(vehicles) > 0 {
		chosen = vehicles[0].ID
	}

	s.mu.Lock()
	s.raw = chosen
	s.settled = chosen
	s.hasSettled = true
	cb := s.onSettle
	s.mu.Unlock()

	if chosen != stored.VehicleID {
		s.persist(chosen)
	}
	if cb != nil {
		cb(chosen)
	}
	return chosen
}

// Raw returns the immediate, possibly not yet settled selection.
func (s *Selector) Raw() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw
}

// Settled returns the debounced selection and whether anything ever settled.
func (s *Selector) Settled() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settled, s.hasSettled
}

// ActiveVehicle resolves the settled selection against the roster.
func (s *Selector) ActiveVehicle() (vehicle.Vehicle, bool) {
	s.mu.Lock()
	settled, ok := s.settled, s.hasSettled
	s.mu.Unlock()
	if !ok || settled == "" {
		return vehicle.Vehicle{}, false
	}
	return s.roster.FindByID(settled)
}

// Close stops any pending settle. Further Select calls are ignored.
func (s *Selector) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
