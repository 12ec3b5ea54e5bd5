package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
)

// MatchState describes where the transport matcher is in its lookup
// cycle. The UI must distinguish all four so it can render a selector
// when candidates exist and a free-text fallback when none do.
type MatchState string

// Matcher states.
const (
	MatchIdle    MatchState = "idle"    // no qualifying address, nothing fetched
	MatchLoading MatchState = "loading" // a match request is pending or in flight
	MatchFound   MatchState = "found"   // completed with one or more candidates
	MatchNone    MatchState = "none"    // completed with zero candidates, or manual entry
)

// Observability constants for the TransportMatcher.
const (
	// Metrics.
	MatcherQueriesTotal     = metricz.Key("matcher.queries.total")
	MatcherImmediateTotal   = metricz.Key("matcher.immediate.total")
	MatcherEmptyClearsTotal = metricz.Key("matcher.empty_clears.total")
	MatcherManualTotal      = metricz.Key("matcher.manual.total")

	// Hook event keys.
	MatcherEventState = hookz.Key("matcher.state")
)

// MatcherEvent describes a transport-matcher state change, emitted via
// hooks whenever the state or candidate list changes.
type MatcherEvent struct {
	Name       Name         // Matcher name
	State      MatchState   // State after the change
	Candidates int          // Size of the candidate list
	Query      AddressQuery // Address that drove the change
	Timestamp  time.Time    // When the event occurred
}

// TransportMatcher derives a candidate shipping-transport list from a
// possibly partial address. Every qualifying address change re-runs
// the match through the debounced, generation-guarded scheduler; an
// explicit customer selection runs it immediately via MatchNow since a
// selection is a discrete event, not a keystroke stream.
//
// When all three address fields empty out, the candidate list is
// cleared with zero network calls, idempotently. A failed match
// degrades to MatchNone so transport selection is never blocked by a
// lookup failure; the free-text fallback stays available.
type TransportMatcher struct {
	match      *Debounced[AddressQuery, []TransportCandidate]
	name       Name
	mu         sync.Mutex
	state      MatchState
	candidates []TransportCandidate
	lastQuery  AddressQuery
	metrics    *metricz.Registry
	hooks      *hookz.Hooks[MatcherEvent]
}

// NewTransportMatcher creates a TransportMatcher backed by the given
// Backend's address match. The matching semantics are the backend's;
// the matcher treats it as a black box returning zero or more
// candidates.
func NewTransportMatcher(name Name, backend Backend) *TransportMatcher {
	metrics := metricz.New()
	metrics.Counter(MatcherQueriesTotal)
	metrics.Counter(MatcherImmediateTotal)
	metrics.Counter(MatcherEmptyClearsTotal)
	metrics.Counter(MatcherManualTotal)

	m := &TransportMatcher{
		name:    name,
		state:   MatchIdle,
		metrics: metrics,
		hooks:   hookz.New[MatcherEvent](),
	}
	m.match = NewDebounced(name,
		func(ctx context.Context, query AddressQuery) ([]TransportCandidate, error) {
			return backend.MatchTransportsByAddress(ctx, query)
		},
		m.applyCandidates,
	)
	return m
}

// Name returns the name of this matcher.
func (m *TransportMatcher) Name() Name {
	return m.name
}

// SetAddress records an address-field edit. A fully empty address
// clears the candidate list without any network call; anything else
// schedules a debounced match and moves the matcher to MatchLoading.
func (m *TransportMatcher) SetAddress(ctx context.Context, query AddressQuery) {
	if query.Empty() {
		m.clear(ctx, query)
		return
	}

	m.mu.Lock()
	m.state = MatchLoading
	m.lastQuery = query
	m.mu.Unlock()

	m.metrics.Counter(MatcherQueriesTotal).Inc()
	m.emit(ctx, MatchLoading, 0, query)
	m.match.Schedule(ctx, query)
}

// MatchNow runs the match immediately, without the debounce delay.
// Used when the address arrives from an explicit customer selection.
// Any match still in flight for a previous address state becomes inert
// at settlement, so a stale response can never overwrite this one.
func (m *TransportMatcher) MatchNow(ctx context.Context, query AddressQuery) {
	if query.Empty() {
		m.clear(ctx, query)
		return
	}

	m.mu.Lock()
	m.state = MatchLoading
	m.lastQuery = query
	m.mu.Unlock()

	m.metrics.Counter(MatcherImmediateTotal).Inc()
	m.emit(ctx, MatchLoading, 0, query)
	m.match.Invoke(ctx, query)
}

// UseManualEntry is the explicit "enter custom name" escape option:
// the candidate list reverts to free-text presentation without
// re-issuing a network request. A match still pending or in flight is
// canceled so it cannot repopulate the list afterward.
func (m *TransportMatcher) UseManualEntry(ctx context.Context) {
	m.mu.Lock()
	m.candidates = nil
	m.state = MatchNone
	query := m.lastQuery
	m.mu.Unlock()

	m.match.Cancel()
	m.metrics.Counter(MatcherManualTotal).Inc()
	m.emit(ctx, MatchNone, 0, query)
}

// State returns the current matcher state.
func (m *TransportMatcher) State() MatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Candidates returns a copy of the current candidate list.
func (m *TransportMatcher) Candidates() []TransportCandidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TransportCandidate, len(m.candidates))
	copy(out, m.candidates)
	return out
}

// Match exposes the underlying scheduler for delay and clock tuning.
func (m *TransportMatcher) Match() *Debounced[AddressQuery, []TransportCandidate] {
	return m.match
}

// Metrics returns the matcher's metrics registry.
func (m *TransportMatcher) Metrics() *metricz.Registry {
	return m.metrics
}

// OnState registers a handler for matcher state changes.
// The handler is called asynchronously.
func (m *TransportMatcher) OnState(handler func(context.Context, MatcherEvent) error) error {
	_, err := m.hooks.Hook(MatcherEventState, handler)
	return err
}

// Dispose shuts the matcher down: pending matches are canceled,
// in-flight results become inert, and hooks close.
func (m *TransportMatcher) Dispose() {
	m.match.Dispose()
	m.hooks.Close()
}

// clear empties the candidate list with zero network calls. Idempotent
// regardless of prior state.
func (m *TransportMatcher) clear(ctx context.Context, query AddressQuery) {
	m.mu.Lock()
	m.candidates = nil
	m.state = MatchIdle
	m.lastQuery = query
	m.mu.Unlock()

	m.match.Cancel()
	m.metrics.Counter(MatcherEmptyClearsTotal).Inc()
	m.emit(ctx, MatchIdle, 0, query)
}

// applyCandidates is the generation-gated sink for match results. A
// swallowed lookup failure arrives as a nil slice and lands in
// MatchNone, the safe default enabling manual entry. Runs with the
// scheduler's lock held.
func (m *TransportMatcher) applyCandidates(candidates []TransportCandidate) {
	m.mu.Lock()
	m.candidates = candidates
	if len(candidates) > 0 {
		m.state = MatchFound
	} else {
		m.state = MatchNone
	}
	state := m.state
	query := m.lastQuery
	m.mu.Unlock()

	m.emit(context.Background(), state, len(candidates), query)
}

func (m *TransportMatcher) emit(ctx context.Context, state MatchState, candidates int, query AddressQuery) {
	_ = m.hooks.Emit(ctx, MatcherEventState, MatcherEvent{ //nolint:errcheck
		Name:       m.name,
		State:      state,
		Candidates: candidates,
		Query:      query,
		Timestamp:  time.Now(),
	})
}
