package dispatch

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Phase is the submission button's lifecycle state.
type Phase string

// Submission phases.
const (
	PhaseIdle       Phase = "idle"       // nothing in progress
	PhaseConfirming Phase = "confirming" // user must explicitly confirm intent
	PhaseSubmitting Phase = "submitting" // requests in flight, button disabled
	PhaseSucceeded  Phase = "succeeded"  // all creations succeeded, dismissal pending
	PhaseFailed     Phase = "failed"     // validation or creation failure, form retained
)

// DefaultDismissDelay is how long a success banner stays up before the
// dismissal event fires.
const DefaultDismissDelay = 1500 * time.Millisecond

// Observability constants for the Submitter.
const (
	// Metrics.
	SubmitAttemptsTotal       = metricz.Key("submit.attempts.total")
	SubmitSuccessesTotal      = metricz.Key("submit.successes.total")
	SubmitPartialTotal        = metricz.Key("submit.partial.total")
	SubmitValidationFailTotal = metricz.Key("submit.validation_fail.total")
	SubmitItemsTotal          = metricz.Key("submit.items.total")
	SubmitItemFailuresTotal   = metricz.Key("submit.item_failures.total")
	SubmitDurationMs          = metricz.Key("submit.duration.ms")

	// Spans.
	SubmitProcessSpan = tracez.Key("submit.process")
	SubmitItemSpan    = tracez.Key("submit.item")

	// Tags.
	SubmitTagName      = tracez.Tag("submit.name")
	SubmitTagItemCount = tracez.Tag("submit.item_count")
	SubmitTagFailed    = tracez.Tag("submit.failed")
	SubmitTagItemID    = tracez.Tag("submit.item_id")
	SubmitTagError     = tracez.Tag("submit.error")

	// Hook event keys.
	SubmitEventPhase        = hookz.Key("submit.phase")
	SubmitEventItemComplete = hookz.Key("submit.item_complete")
	SubmitEventComplete     = hookz.Key("submit.complete")
	SubmitEventDismissed    = hookz.Key("submit.dismissed")
)

// SubmitEvent describes a submission lifecycle event: phase changes,
// per-item completions, the aggregated outcome, and the clock-driven
// success dismissal.
type SubmitEvent struct {
	Name         Name          // Submitter name
	Phase        Phase         // Phase after the event
	Item         LineItem      // Completed item (item_complete only)
	Err          error         // Item or validation error, if any
	TotalItems   int           // Valid items in the attempt (complete only)
	FailedItems  int           // Failed creations (complete only)
	AllSucceeded bool          // Whether every creation succeeded (complete only)
	Duration     time.Duration // Attempt duration (complete only)
	Timestamp    time.Time     // When the event occurred
}

// Submitter turns a finalized dispatch draft into one creation request
// per valid line item, issued concurrently, and aggregates the
// outcomes into a single Result.
//
// Items are independent and their ordering has no semantic meaning, so
// the fan-out is issued together and joined together. There is NO
// transactional guarantee across the creation calls: the remote side
// exposes no multi-record primitive, so the contract is best-effort
// fan-out with explicit partial-failure reporting. On partial failure
// the successes stand, nothing is rolled back or retried
// automatically, and the Result names exactly which items failed.
//
// The phase machine gates the submission button:
//
//	idle -> confirming -> submitting -> succeeded | failed
//
// Confirm is required before every attempt, including a retry after
// failure. A retry re-issues ALL currently-valid items; the engine
// does not track which succeeded last time and does not deduplicate.
// Success schedules a clock-driven dismissal event after the dismiss
// delay, returning the phase to idle.
type Submitter struct {
	backend      Backend
	clock        clockz.Clock
	name         Name
	mu           sync.Mutex
	phase        Phase
	dismissDelay time.Duration
	metrics      *metricz.Registry
	tracer       *tracez.Tracer
	hooks        *hookz.Hooks[SubmitEvent]
}

// NewSubmitter creates a Submitter in PhaseIdle.
func NewSubmitter(name Name, backend Backend) *Submitter {
	metrics := metricz.New()
	metrics.Counter(SubmitAttemptsTotal)
	metrics.Counter(SubmitSuccessesTotal)
	metrics.Counter(SubmitPartialTotal)
	metrics.Counter(SubmitValidationFailTotal)
	metrics.Counter(SubmitItemsTotal)
	metrics.Counter(SubmitItemFailuresTotal)
	metrics.Gauge(SubmitDurationMs)

	return &Submitter{
		name:         name,
		backend:      backend,
		phase:        PhaseIdle,
		dismissDelay: DefaultDismissDelay,
		clock:        clockz.RealClock,
		metrics:      metrics,
		tracer:       tracez.New(),
		hooks:        hookz.New[SubmitEvent](),
	}
}

// Name returns the name of this submitter.
func (s *Submitter) Name() Name {
	return s.name
}

// Phase returns the current submission phase.
func (s *Submitter) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Confirm moves idle (or failed, for a retry) to confirming. The user
// has expressed intent but nothing has been sent yet.
func (s *Submitter) Confirm(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseIdle && s.phase != PhaseFailed {
		s.mu.Unlock()
		return ErrBadPhase
	}
	s.phase = PhaseConfirming
	s.mu.Unlock()

	s.emitPhase(ctx, PhaseConfirming, nil)
	return nil
}

// CancelConfirm abandons a pending confirmation.
func (s *Submitter) CancelConfirm(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseConfirming {
		s.mu.Unlock()
		return ErrBadPhase
	}
	s.phase = PhaseIdle
	s.mu.Unlock()

	s.emitPhase(ctx, PhaseIdle, nil)
	return nil
}

// Reset returns a terminal phase to idle without side effects.
func (s *Submitter) Reset(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseSucceeded && s.phase != PhaseFailed {
		s.mu.Unlock()
		return ErrBadPhase
	}
	s.phase = PhaseIdle
	s.mu.Unlock()

	s.emitPhase(ctx, PhaseIdle, nil)
	return nil
}

// Submit runs one submission attempt from PhaseConfirming.
//
// The draft's items are filtered to valid ones first; with zero valid
// items the attempt fails fast with ErrNoLineItems before any network
// activity and the phase moves to failed. Otherwise one creation call
// per item goes out concurrently, all are joined, and the aggregated
// Result is returned with outcomes in item order. Creation failures
// live in the Result, not in the error return.
func (s *Submitter) Submit(ctx context.Context, draft Draft) (Result, error) {
	s.mu.Lock()
	if s.phase != PhaseConfirming {
		s.mu.Unlock()
		return Result{}, ErrBadPhase
	}
	s.phase = PhaseSubmitting
	dismissDelay := s.dismissDelay
	clock := s.clock
	s.mu.Unlock()

	s.metrics.Counter(SubmitAttemptsTotal).Inc()
	s.emitPhase(ctx, PhaseSubmitting, nil)

	valid := make([]LineItem, 0, len(draft.Items))
	for _, item := range draft.Items {
		if item.Valid() {
			valid = append(valid, item)
		}
	}

	if len(valid) == 0 {
		s.metrics.Counter(SubmitValidationFailTotal).Inc()
		s.setPhase(ctx, PhaseFailed, ErrNoLineItems)
		return Result{}, ErrNoLineItems
	}

	ctx, span := s.tracer.StartSpan(ctx, SubmitProcessSpan)
	span.SetTag(SubmitTagName, string(s.name))
	span.SetTag(SubmitTagItemCount, strconv.Itoa(len(valid)))
	start := time.Now()

	outcomes := make([]ItemOutcome, len(valid))
	var wg sync.WaitGroup
	for i, item := range valid {
		wg.Add(1)
		s.metrics.Counter(SubmitItemsTotal).Inc()
		go func(i int, item LineItem) {
			defer wg.Done()
			outcomes[i] = s.createOne(ctx, draft, item)
		}(i, item)
	}
	wg.Wait()

	result := Result{AllSucceeded: true, Items: outcomes}
	for _, o := range outcomes {
		if o.Err != nil {
			result.AllSucceeded = false
			break
		}
	}

	elapsed := time.Since(start)
	s.metrics.Gauge(SubmitDurationMs).Set(float64(elapsed.Milliseconds()))
	span.SetTag(SubmitTagFailed, strconv.Itoa(result.FailedCount()))
	span.Finish()

	if result.AllSucceeded {
		s.metrics.Counter(SubmitSuccessesTotal).Inc()
		s.setPhase(ctx, PhaseSucceeded, nil)
		s.scheduleDismiss(ctx, clock, dismissDelay)
	} else {
		s.metrics.Counter(SubmitPartialTotal).Inc()
		s.setPhase(ctx, PhaseFailed, nil)
	}

	_ = s.hooks.Emit(ctx, SubmitEventComplete, SubmitEvent{ //nolint:errcheck
		Name:         s.name,
		Phase:        s.Phase(),
		TotalItems:   len(valid),
		FailedItems:  result.FailedCount(),
		AllSucceeded: result.AllSucceeded,
		Duration:     elapsed,
		Timestamp:    time.Now(),
	})

	return result, nil
}

// createOne issues the creation call for a single line item.
func (s *Submitter) createOne(ctx context.Context, draft Draft, item LineItem) ItemOutcome {
	ctx, span := s.tracer.StartSpan(ctx, SubmitItemSpan)
	span.SetTag(SubmitTagItemID, strconv.Itoa(item.ID))
	defer span.Finish()

	start := time.Now()
	err := s.backend.CreateDispatchRecord(ctx, draft.record(item))
	if err != nil {
		s.metrics.Counter(SubmitItemFailuresTotal).Inc()
		span.SetTag(SubmitTagError, err.Error())
		err = &ItemError{
			Item:      item,
			Err:       err,
			Timestamp: time.Now(),
			Duration:  time.Since(start),
		}
	}

	_ = s.hooks.Emit(ctx, SubmitEventItemComplete, SubmitEvent{ //nolint:errcheck
		Name:      s.name,
		Phase:     PhaseSubmitting,
		Item:      item,
		Err:       err,
		Timestamp: time.Now(),
	})

	return ItemOutcome{Item: item, Err: err}
}

// scheduleDismiss fires the dismissal event after the dismiss delay,
// returning the phase to idle unless something moved it first.
func (s *Submitter) scheduleDismiss(ctx context.Context, clock clockz.Clock, delay time.Duration) {
	go func() {
		select {
		case <-clock.After(delay):
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
		if s.phase != PhaseSucceeded {
			s.mu.Unlock()
			return
		}
		s.phase = PhaseIdle
		s.mu.Unlock()

		_ = s.hooks.Emit(ctx, SubmitEventDismissed, SubmitEvent{ //nolint:errcheck
			Name:      s.name,
			Phase:     PhaseIdle,
			Timestamp: time.Now(),
		})
	}()
}

// WithDismissDelay sets how long the success phase lingers before the
// dismissal event.
func (s *Submitter) WithDismissDelay(delay time.Duration) *Submitter {
	if delay <= 0 {
		return s
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismissDelay = delay
	return s
}

// WithClock sets a custom clock for testing.
func (s *Submitter) WithClock(clock clockz.Clock) *Submitter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

// Metrics returns the submitter's metrics registry.
func (s *Submitter) Metrics() *metricz.Registry {
	return s.metrics
}

// Tracer returns the submitter's tracer for span collection.
func (s *Submitter) Tracer() *tracez.Tracer {
	return s.tracer
}

// OnPhase registers a handler for phase changes.
// The handler is called asynchronously.
func (s *Submitter) OnPhase(handler func(context.Context, SubmitEvent) error) error {
	_, err := s.hooks.Hook(SubmitEventPhase, handler)
	return err
}

// OnItemComplete registers a handler for per-item completions.
// The handler is called asynchronously.
func (s *Submitter) OnItemComplete(handler func(context.Context, SubmitEvent) error) error {
	_, err := s.hooks.Hook(SubmitEventItemComplete, handler)
	return err
}

// OnComplete registers a handler for the aggregated attempt outcome.
// The handler is called asynchronously.
func (s *Submitter) OnComplete(handler func(context.Context, SubmitEvent) error) error {
	_, err := s.hooks.Hook(SubmitEventComplete, handler)
	return err
}

// OnDismissed registers a handler for the success banner dismissal.
// The handler is called asynchronously.
func (s *Submitter) OnDismissed(handler func(context.Context, SubmitEvent) error) error {
	_, err := s.hooks.Hook(SubmitEventDismissed, handler)
	return err
}

// Close shuts down the submitter's tracer and hooks.
func (s *Submitter) Close() error {
	s.tracer.Close()
	s.hooks.Close()
	return nil
}

func (s *Submitter) setPhase(ctx context.Context, phase Phase, err error) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
	s.emitPhase(ctx, phase, err)
}

func (s *Submitter) emitPhase(ctx context.Context, phase Phase, err error) {
	_ = s.hooks.Emit(ctx, SubmitEventPhase, SubmitEvent{ //nolint:errcheck
		Name:      s.name,
		Phase:     phase,
		Err:       err,
		Timestamp: time.Now(),
	})
}
