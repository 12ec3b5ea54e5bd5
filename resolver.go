package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
)

// Observability constants for the CustomerResolver.
const (
	// Metrics.
	ResolverQueriesTotal     = metricz.Key("resolver.queries.total")
	ResolverSuppressedTotal  = metricz.Key("resolver.suppressed.total")
	ResolverSelectionsTotal  = metricz.Key("resolver.selections.total")
	ResolverInvalidatedTotal = metricz.Key("resolver.invalidated.total")

	// Hook event keys.
	ResolverEventSuggestions      = hookz.Key("resolver.suggestions")
	ResolverEventSelected         = hookz.Key("resolver.selected")
	ResolverEventSelectionCleared = hookz.Key("resolver.selection_cleared")
)

// ResolverEvent describes a customer-resolution state change. Emitted
// via hooks when the suggestion list is replaced, a candidate is
// selected, or an existing selection is invalidated by re-typing.
type ResolverEvent struct {
	Name        Name            // Resolver name
	Query       string          // Query text at the time of the event
	Suggestions int             // Size of the suggestion list
	Selected    CustomerSummary // Selected candidate (selected event only)
	Timestamp   time.Time       // When the event occurred
}

// CustomerResolver turns a free-text name fragment into a ranked list
// of candidate customers through a debounced, generation-guarded
// search, and freezes one candidate as the current selection.
//
// Fragments shorter than two runes never reach the network: the
// suggestion list is cleared and any pending search is canceled,
// avoiding overly broad matches and wasted calls.
//
// Re-typing over a selected candidate's name invalidates the selection
// immediately, so stale selection state cannot survive a correction.
// Selecting a candidate replaces any previous selection even when the
// addresses are identical.
//
// Suggestion visibility is plain presentational state: the host owns
// focus and outside-click detection and reports the outcome through
// ShowSuggestions and HideSuggestions.
type CustomerResolver struct {
	search      *Debounced[string, []CustomerSummary]
	name        Name
	mu          sync.Mutex
	query       string
	suggestions []CustomerSummary
	selected    *CustomerSummary
	visible     bool
	metrics     *metricz.Registry
	hooks       *hookz.Hooks[ResolverEvent]
}

// NewCustomerResolver creates a CustomerResolver backed by the given
// Backend's customer search. Result ordering is the backend's; no
// client-side re-ranking happens.
func NewCustomerResolver(name Name, backend Backend) *CustomerResolver {
	metrics := metricz.New()
	metrics.Counter(ResolverQueriesTotal)
	metrics.Counter(ResolverSuppressedTotal)
	metrics.Counter(ResolverSelectionsTotal)
	metrics.Counter(ResolverInvalidatedTotal)

	r := &CustomerResolver{
		name:    name,
		metrics: metrics,
		hooks:   hookz.New[ResolverEvent](),
	}
	r.search = NewDebounced(name,
		func(ctx context.Context, fragment string) ([]CustomerSummary, error) {
			return backend.SearchCustomers(ctx, fragment)
		},
		r.applySuggestions,
	)
	return r
}

// Name returns the name of this resolver.
func (r *CustomerResolver) Name() Name {
	return r.name
}

// SetQuery records a keystroke-stream update to the search text.
// Fragments under two runes clear the suggestion list and suppress the
// network entirely; anything longer is scheduled through the debounce.
// A live selection whose display name no longer matches the new text
// is invalidated before any scheduling decision.
func (r *CustomerResolver) SetQuery(ctx context.Context, fragment string) {
	trimmed := strings.TrimSpace(fragment)

	r.mu.Lock()
	r.query = fragment
	invalidated := false
	if r.selected != nil && fragment != r.selected.FullName {
		r.selected = nil
		invalidated = true
	}
	suppress := len([]rune(trimmed)) < 2
	if suppress {
		r.suggestions = nil
	}
	r.mu.Unlock()

	if invalidated {
		r.metrics.Counter(ResolverInvalidatedTotal).Inc()
		r.emit(ctx, ResolverEventSelectionCleared, fragment, 0, CustomerSummary{})
	}

	if suppress {
		r.metrics.Counter(ResolverSuppressedTotal).Inc()
		r.search.Cancel()
		r.emit(ctx, ResolverEventSuggestions, fragment, 0, CustomerSummary{})
		return
	}

	r.metrics.Counter(ResolverQueriesTotal).Inc()
	r.search.Schedule(ctx, trimmed)
}

// Select freezes the chosen candidate as the current selection,
// replaces the query text with its display name, and closes the
// suggestion list. Any pending or in-flight search becomes inert.
// Downstream effects (immediate transport match, purchase-history
// seeding) are driven by the owning Form.
func (r *CustomerResolver) Select(ctx context.Context, candidate CustomerSummary) {
	r.mu.Lock()
	c := candidate
	r.selected = &c
	r.query = candidate.FullName
	r.suggestions = nil
	r.visible = false
	r.mu.Unlock()

	r.search.Cancel()
	r.metrics.Counter(ResolverSelectionsTotal).Inc()
	r.emit(ctx, ResolverEventSelected, candidate.FullName, 0, candidate)
}

// ClearSelection resets the resolver to no selection without touching
// the query text.
func (r *CustomerResolver) ClearSelection(ctx context.Context) {
	r.mu.Lock()
	had := r.selected != nil
	r.selected = nil
	query := r.query
	r.mu.Unlock()

	if had {
		r.emit(ctx, ResolverEventSelectionCleared, query, 0, CustomerSummary{})
	}
}

// Selection returns the currently selected candidate, if any.
func (r *CustomerResolver) Selection() (CustomerSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == nil {
		return CustomerSummary{}, false
	}
	return *r.selected, true
}

// Query returns the current query text.
func (r *CustomerResolver) Query() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.query
}

// Suggestions returns a copy of the current suggestion list.
func (r *CustomerResolver) Suggestions() []CustomerSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CustomerSummary, len(r.suggestions))
	copy(out, r.suggestions)
	return out
}

// ShowSuggestions marks the suggestion list visible (input focused or
// list interaction in progress).
func (r *CustomerResolver) ShowSuggestions() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible = true
}

// HideSuggestions marks the suggestion list hidden (blur or outside
// click, as detected by the host).
func (r *CustomerResolver) HideSuggestions() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible = false
}

// SuggestionsVisible reports the presentational visibility flag.
func (r *CustomerResolver) SuggestionsVisible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}

// Search exposes the underlying scheduler for delay and clock tuning.
func (r *CustomerResolver) Search() *Debounced[string, []CustomerSummary] {
	return r.search
}

// Metrics returns the resolver's metrics registry.
func (r *CustomerResolver) Metrics() *metricz.Registry {
	return r.metrics
}

// OnSuggestions registers a handler for suggestion-list replacements.
// The handler is called asynchronously.
func (r *CustomerResolver) OnSuggestions(handler func(context.Context, ResolverEvent) error) error {
	_, err := r.hooks.Hook(ResolverEventSuggestions, handler)
	return err
}

// OnSelected registers a handler for candidate selection.
// The handler is called asynchronously.
func (r *CustomerResolver) OnSelected(handler func(context.Context, ResolverEvent) error) error {
	_, err := r.hooks.Hook(ResolverEventSelected, handler)
	return err
}

// OnSelectionCleared registers a handler for selection invalidation.
// The handler is called asynchronously.
func (r *CustomerResolver) OnSelectionCleared(handler func(context.Context, ResolverEvent) error) error {
	_, err := r.hooks.Hook(ResolverEventSelectionCleared, handler)
	return err
}

// Dispose shuts the resolver down: the pending search (if any) is
// canceled, in-flight results become inert, and hooks close.
func (r *CustomerResolver) Dispose() {
	r.search.Dispose()
	r.hooks.Close()
}

// applySuggestions is the generation-gated sink for search results.
// Runs with the scheduler's lock held.
func (r *CustomerResolver) applySuggestions(customers []CustomerSummary) {
	r.mu.Lock()
	r.suggestions = customers
	query := r.query
	r.mu.Unlock()

	r.emit(context.Background(), ResolverEventSuggestions, query, len(customers), CustomerSummary{})
}

func (r *CustomerResolver) emit(ctx context.Context, key hookz.Key, query string, suggestions int, selected CustomerSummary) {
	_ = r.hooks.Emit(ctx, key, ResolverEvent{ //nolint:errcheck
		Name:        r.name,
		Query:       query,
		Suggestions: suggestions,
		Selected:    selected,
		Timestamp:   time.Now(),
	})
}
