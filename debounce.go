package dispatch

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// DefaultDebounceDelay is the quiescence interval applied to keystroke
// streams before a lookup is issued. Chosen to match interactive search
// feel; override per scheduler with WithDelay.
const DefaultDebounceDelay = 600 * time.Millisecond

// Observability constants for the Debounced scheduler.
const (
	// Metrics.
	DebounceScheduledTotal  = metricz.Key("debounce.scheduled.total")
	DebounceInvokedTotal    = metricz.Key("debounce.invoked.total")
	DebounceFiredTotal      = metricz.Key("debounce.fired.total")
	DebounceSupersededTotal = metricz.Key("debounce.superseded.total")
	DebounceStaleTotal      = metricz.Key("debounce.stale.total")
	DebounceFailuresTotal   = metricz.Key("debounce.failures.total")

	// Spans.
	DebounceLookupSpan = tracez.Key("debounce.lookup")

	// Tags.
	DebounceTagName       = tracez.Tag("debounce.name")
	DebounceTagGeneration = tracez.Tag("debounce.generation")
	DebounceTagError      = tracez.Tag("debounce.error")
)

// Debounced schedules a lookup after its input has been quiescent for a
// fixed delay, and guarantees that only the most recently issued
// invocation is allowed to apply its result. One Debounced instance
// serves one logical key (customer search, transport match); the query
// and result types are fixed per key.
//
// CRITICAL: Debounced is a STATEFUL scheduler carrying a monotonic
// generation counter. Create it once per form session and reuse it -
// a fresh instance per keystroke would defeat both the debounce and
// the staleness guard.
//
// Three invariants hold regardless of network settlement order:
//
//   - A pending timer that is superseded by a newer Schedule, Invoke,
//     or Cancel never fires: the timer wait is abandoned outright and
//     no lookup is issued for it.
//   - Every invocation is tagged with a generation taken under lock;
//     at settlement the result is applied only if the generation still
//     matches, so an early-issued lookup that settles late can never
//     overwrite a fresher result.
//   - After Dispose, nothing is applied ever again, even for lookups
//     already in flight.
//
// A failed lookup is swallowed into the zero result for the key and
// applied through the same gate, so a single failed request degrades
// to an empty result instead of crashing the form. The failure is
// recorded in metrics and the lookup span for diagnostics only.
//
// The apply callback runs with the scheduler's lock held so that the
// generation comparison and the state mutation are atomic; it must not
// call back into the scheduler.
//
// Example:
//
//	search := dispatch.NewDebounced("customer-search",
//	    func(ctx context.Context, fragment string) ([]CustomerSummary, error) {
//	        return backend.SearchCustomers(ctx, fragment)
//	    },
//	    func(customers []CustomerSummary) {
//	        // runs only for the freshest generation
//	    },
//	)
//	search.Schedule(ctx, "ram")   // keystroke stream, debounced
//	search.Invoke(ctx, "ramesh")  // discrete event, immediate
type Debounced[Q, R any] struct {
	lookup     func(context.Context, Q) (R, error)
	apply      func(R)
	clock      clockz.Clock
	stop       chan struct{} // pending timer cancel, nil when no timer pending
	name       Name
	mu         sync.Mutex
	delay      time.Duration
	generation uint64
	disposed   bool
	metrics    *metricz.Registry
	tracer     *tracez.Tracer
}

// NewDebounced creates a Debounced scheduler for one logical key.
// The lookup runs off the caller's goroutine once the delay elapses;
// apply receives its result only while that invocation is the latest.
func NewDebounced[Q, R any](name Name, lookup func(context.Context, Q) (R, error), apply func(R)) *Debounced[Q, R] {
	metrics := metricz.New()
	metrics.Counter(DebounceScheduledTotal)
	metrics.Counter(DebounceInvokedTotal)
	metrics.Counter(DebounceFiredTotal)
	metrics.Counter(DebounceSupersededTotal)
	metrics.Counter(DebounceStaleTotal)
	metrics.Counter(DebounceFailuresTotal)

	return &Debounced[Q, R]{
		name:    name,
		lookup:  lookup,
		apply:   apply,
		delay:   DefaultDebounceDelay,
		clock:   clockz.RealClock,
		metrics: metrics,
		tracer:  tracez.New(),
	}
}

// Name returns the name of this scheduler.
func (d *Debounced[Q, R]) Name() Name {
	return d.name
}

// Schedule restarts the quiescence timer for the key. If a timer is
// already pending it is canceled outright; when the new timer fires,
// the lookup runs and its result is applied subject to the generation
// gate. Scheduling after Dispose is a no-op.
func (d *Debounced[Q, R]) Schedule(ctx context.Context, query Q) {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.generation++
	gen := d.generation
	if d.stop != nil {
		close(d.stop)
		d.metrics.Counter(DebounceSupersededTotal).Inc()
	}
	stop := make(chan struct{})
	d.stop = stop
	delay := d.delay
	clock := d.clock
	d.mu.Unlock()

	d.metrics.Counter(DebounceScheduledTotal).Inc()

	go func() {
		select {
		case <-clock.After(delay):
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
		d.mu.Lock()
		if d.stop == stop {
			d.stop = nil
		}
		d.mu.Unlock()
		d.run(ctx, gen, query)
	}()
}

// Invoke bypasses the debounce delay for discrete, deliberate events
// (a customer selection is not a keystroke stream). It cancels any
// pending timer and bumps the generation, so any earlier lookup still
// in flight becomes inert at settlement.
func (d *Debounced[Q, R]) Invoke(ctx context.Context, query Q) {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.generation++
	gen := d.generation
	d.cancelPendingLocked()
	d.mu.Unlock()

	d.metrics.Counter(DebounceInvokedTotal).Inc()
	go d.run(ctx, gen, query)
}

// Cancel drops any pending timer without issuing new work and renders
// any in-flight lookup inert. Used when the input empties out and the
// state has been cleared directly.
func (d *Debounced[Q, R]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return
	}
	d.generation++
	d.cancelPendingLocked()
}

// Dispose permanently shuts the scheduler down: the pending timer (if
// any) is canceled and no result, in flight or future, is ever applied
// again. Safe to call more than once.
func (d *Debounced[Q, R]) Dispose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return
	}
	d.disposed = true
	d.generation++
	d.cancelPendingLocked()
	d.tracer.Close()
}

// cancelPendingLocked closes the pending timer's stop channel. Caller
// must hold d.mu.
func (d *Debounced[Q, R]) cancelPendingLocked() {
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
		d.metrics.Counter(DebounceSupersededTotal).Inc()
	}
}

// run executes the lookup for one generation and applies the result
// through the generation gate.
func (d *Debounced[Q, R]) run(ctx context.Context, gen uint64, query Q) {
	d.metrics.Counter(DebounceFiredTotal).Inc()

	ctx, span := d.tracer.StartSpan(ctx, DebounceLookupSpan)
	span.SetTag(DebounceTagName, string(d.name))
	span.SetTag(DebounceTagGeneration, strconv.FormatUint(gen, 10))

	result, err := d.lookup(ctx, query)
	if err != nil {
		// Degrade to the neutral result; the form must keep working.
		d.metrics.Counter(DebounceFailuresTotal).Inc()
		span.SetTag(DebounceTagError, err.Error())
		var zero R
		result = zero
	}
	span.Finish()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed || gen != d.generation {
		d.metrics.Counter(DebounceStaleTotal).Inc()
		return
	}
	d.apply(result)
}

// WithDelay sets the quiescence interval.
func (d *Debounced[Q, R]) WithDelay(delay time.Duration) *Debounced[Q, R] {
	if delay <= 0 {
		return d
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
	return d
}

// WithClock sets a custom clock for testing.
func (d *Debounced[Q, R]) WithClock(clock clockz.Clock) *Debounced[Q, R] {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clock = clock
	return d
}

// GetDelay returns the current quiescence interval.
func (d *Debounced[Q, R]) GetDelay() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delay
}

// Generation returns the current generation counter.
func (d *Debounced[Q, R]) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation
}

// Metrics returns the scheduler's metrics registry.
func (d *Debounced[Q, R]) Metrics() *metricz.Registry {
	return d.metrics
}

// Tracer returns the scheduler's tracer for span collection.
func (d *Debounced[Q, R]) Tracer() *tracez.Tracer {
	return d.tracer
}
