// Package dispatch implements the dispatch-composition workflow of the
// store-management console: resolving a typed name fragment to a
// customer record, deriving candidate shipping transports from that
// customer's address, rehydrating purchase history into dispatch line
// items, and submitting one dispatch record per item as a single
// logical operation with partial-failure reporting.
//
// # Core Concepts
//
// The engine is built from five components, leaf-first:
//
//   - Debounced[Q, R]: a per-key query scheduler that delays a lookup
//     until input has been quiescent, cancels superseded timers
//     outright, and gates result application behind a monotonic
//     generation counter so a stale response can never overwrite a
//     fresher one.
//   - CustomerResolver: debounced customer search with selection
//     freezing and retype invalidation.
//   - TransportMatcher: address-driven candidate matching, debounced
//     for keystrokes and immediate for selections, degrading to
//     manual entry on empty or failed lookups.
//   - LineItems: the ordered item collection with monotonic id
//     allocation and submission-time validity filtering.
//   - Submitter: the concurrent, non-transactional per-item fan-out
//     with ordered outcome aggregation and a confirm/submit/dismiss
//     phase machine.
//
// Form composes all five into one dispatch-creation session and owns
// their teardown: after Close, pending timers are canceled and any
// late-arriving responses are inert.
//
// # Usage Example
//
//	backend := dispatch.NewHTTPBackend("https://store.example.com", nil)
//	form := dispatch.NewForm(backend)
//	defer form.Close()
//
//	form.SetQuery(ctx, "ram")                      // debounced search
//	form.SelectCustomer(ctx, candidate)            // immediate match + history seed
//	form.Items().Append("Steel Pan")
//
//	form.Submitter().Confirm(ctx)
//	result, err := form.Submit(ctx, "Sharma Travels", "Box", "LLR-104")
//	if err == nil && !result.AllSucceeded {
//	    // partial failure: result.FailedCount() creations failed,
//	    // the rest stand; nothing is rolled back.
//	}
//
// # Concurrency Model
//
// All waiting is asynchronous; nothing blocks the caller. Overlapping
// lookups for the same key are serialized by outcome, not by issue
// order: only the highest generation's settlement mutates state, even
// when an earlier request settles later. Independent keys proceed
// fully independently. The submission fan-out issues its requests
// together and joins them together, with no ordering or mutual
// visibility between items.
//
// # Observability
//
// Components expose metricz registries (Metrics), tracez spans around
// every remote call (Tracer), and typed hookz events (OnXxx) that
// serve as the engine's UI-feedback channel. Lookup failures are
// swallowed into empty results and recorded there; they never crash
// the form.
package dispatch
