package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestCustomerResolver(t *testing.T) {
	ramesh := CustomerSummary{
		ID:       "c-104",
		FullName: "Ramesh Kumar",
		Phone:    "9876501234",
		Address:  "14 Gandhi Road",
		City:     "Salem",
		State:    "Tamil Nadu",
		Pincode:  "636001",
	}

	t.Run("Short Fragment Suppresses Network", func(t *testing.T) {
		backend := &stubBackend{}
		clock := clockz.NewFakeClock()
		r := NewCustomerResolver("customer-search", backend)
		r.Search().WithClock(clock).WithDelay(100 * time.Millisecond)

		r.SetQuery(context.Background(), "r")
		r.SetQuery(context.Background(), "")
		r.SetQuery(context.Background(), "   a   ")
		time.Sleep(10 * time.Millisecond)
		clock.Advance(100 * time.Millisecond)
		clock.BlockUntilReady()
		time.Sleep(20 * time.Millisecond)

		if n := atomic.LoadInt32(&backend.searchCalls); n != 0 {
			t.Errorf("expected 0 search calls for short fragments, got %d", n)
		}
		if len(r.Suggestions()) != 0 {
			t.Error("expected empty suggestions")
		}
		if suppressed := r.Metrics().Counter(ResolverSuppressedTotal).Value(); suppressed != 3 {
			t.Errorf("expected 3 suppressed queries, got %f", suppressed)
		}
	})

	t.Run("Debounced Search Populates Suggestions", func(t *testing.T) {
		backend := &stubBackend{
			searchFn: func(_ context.Context, fragment string) ([]CustomerSummary, error) {
				if fragment != "ram" {
					t.Errorf("expected trimmed fragment ram, got %q", fragment)
				}
				return []CustomerSummary{ramesh}, nil
			},
		}
		clock := clockz.NewFakeClock()
		r := NewCustomerResolver("customer-search", backend)
		r.Search().WithClock(clock).WithDelay(100 * time.Millisecond)

		r.SetQuery(context.Background(), "  ram  ")
		time.Sleep(10 * time.Millisecond)
		clock.Advance(100 * time.Millisecond)
		clock.BlockUntilReady()

		waitFor(t, func() bool { return len(r.Suggestions()) == 1 }, "suggestions to populate")
		if got := r.Suggestions()[0].FullName; got != "Ramesh Kumar" {
			t.Errorf("expected Ramesh Kumar, got %s", got)
		}
		if n := atomic.LoadInt32(&backend.searchCalls); n != 1 {
			t.Errorf("expected 1 search call, got %d", n)
		}
	})

	t.Run("Select Freezes Candidate And Closes Suggestions", func(t *testing.T) {
		backend := &stubBackend{}
		r := NewCustomerResolver("customer-search", backend)

		r.ShowSuggestions()
		r.Select(context.Background(), ramesh)

		selected, ok := r.Selection()
		if !ok {
			t.Fatal("expected a selection")
		}
		if selected.ID != "c-104" {
			t.Errorf("expected c-104, got %s", selected.ID)
		}
		if r.Query() != "Ramesh Kumar" {
			t.Errorf("expected query to become display name, got %q", r.Query())
		}
		if len(r.Suggestions()) != 0 {
			t.Error("expected suggestions cleared on select")
		}
		if r.SuggestionsVisible() {
			t.Error("expected suggestion list hidden on select")
		}
	})

	t.Run("Select Replaces Previous Selection", func(t *testing.T) {
		backend := &stubBackend{}
		r := NewCustomerResolver("customer-search", backend)

		other := ramesh
		other.ID = "c-105"
		other.FullName = "Ramesh K"

		r.Select(context.Background(), ramesh)
		r.Select(context.Background(), other)

		selected, ok := r.Selection()
		if !ok || selected.ID != "c-105" {
			t.Errorf("expected the newer selection c-105, got %+v ok=%v", selected, ok)
		}
	})

	t.Run("Retype Invalidates Selection", func(t *testing.T) {
		backend := &stubBackend{}
		clock := clockz.NewFakeClock()
		r := NewCustomerResolver("customer-search", backend)
		r.Search().WithClock(clock).WithDelay(100 * time.Millisecond)

		r.Select(context.Background(), ramesh)
		r.SetQuery(context.Background(), "Ramesh Kuma")

		if _, ok := r.Selection(); ok {
			t.Error("expected selection invalidated by retyping")
		}
		if invalidated := r.Metrics().Counter(ResolverInvalidatedTotal).Value(); invalidated != 1 {
			t.Errorf("expected 1 invalidation, got %f", invalidated)
		}
	})

	t.Run("Matching Retype Keeps Selection", func(t *testing.T) {
		backend := &stubBackend{}
		clock := clockz.NewFakeClock()
		r := NewCustomerResolver("customer-search", backend)
		r.Search().WithClock(clock).WithDelay(100 * time.Millisecond)

		r.Select(context.Background(), ramesh)
		r.SetQuery(context.Background(), "Ramesh Kumar")

		if _, ok := r.Selection(); !ok {
			t.Error("expected selection kept when text still matches")
		}
	})

	t.Run("Search Failure Yields Empty Suggestions", func(t *testing.T) {
		backend := &stubBackend{
			searchFn: func(_ context.Context, _ string) ([]CustomerSummary, error) {
				return nil, errors.New("lookup timeout")
			},
		}
		clock := clockz.NewFakeClock()
		r := NewCustomerResolver("customer-search", backend)
		r.Search().WithClock(clock).WithDelay(100 * time.Millisecond)

		r.SetQuery(context.Background(), "ram")
		time.Sleep(10 * time.Millisecond)
		clock.Advance(100 * time.Millisecond)
		clock.BlockUntilReady()

		waitFor(t, func() bool {
			return r.Search().Metrics().Counter(DebounceFailuresTotal).Value() == 1
		}, "search failure to be recorded")
		if len(r.Suggestions()) != 0 {
			t.Error("expected empty suggestions on failure")
		}
	})

	t.Run("Select Cancels Pending Search", func(t *testing.T) {
		backend := &stubBackend{}
		clock := clockz.NewFakeClock()
		r := NewCustomerResolver("customer-search", backend)
		r.Search().WithClock(clock).WithDelay(100 * time.Millisecond)

		r.SetQuery(context.Background(), "ram")
		time.Sleep(10 * time.Millisecond)
		r.Select(context.Background(), ramesh)
		clock.Advance(100 * time.Millisecond)
		clock.BlockUntilReady()
		time.Sleep(20 * time.Millisecond)

		if n := atomic.LoadInt32(&backend.searchCalls); n != 0 {
			t.Errorf("expected pending search canceled by selection, got %d calls", n)
		}
	})
}
