package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestForm(t *testing.T) {
	ramesh := CustomerSummary{
		ID:       "c-104",
		FullName: "Ramesh Kumar",
		Phone:    "9876501234",
		Address:  "14 Gandhi Road",
		City:     "Salem",
		State:    "Tamil Nadu",
		Pincode:  "636001",
	}
	sharma := TransportCandidate{ID: "t-1", TravelsName: "Sharma Travels", City: "Salem"}

	t.Run("Selection Triggers Immediate Match And History Seed", func(t *testing.T) {
		backend := &stubBackend{
			productsFn: func(_ context.Context, name string) ([]ProductRef, error) {
				if name != "Ramesh Kumar" {
					t.Errorf("expected history fetch for Ramesh Kumar, got %q", name)
				}
				return []ProductRef{{Name: "Steel Pan"}, {Code: "LID-20"}}, nil
			},
			matchFn: func(_ context.Context, q AddressQuery) ([]TransportCandidate, error) {
				if q.City != "Salem" || q.Pincode != "636001" {
					t.Errorf("expected the candidate's address, got %+v", q)
				}
				return []TransportCandidate{sharma}, nil
			},
		}
		form := NewForm(backend)
		defer form.Close()

		if err := form.SelectCustomer(context.Background(), ramesh); err != nil {
			t.Fatalf("select failed: %v", err)
		}

		// The match runs immediately, no debounce delay and no clock
		// advancement involved.
		waitFor(t, func() bool { return form.Matcher().State() == MatchFound }, "immediate match")
		waitFor(t, func() bool { return form.Items().Len() == 2 }, "history seed")

		if got := form.Address(); got.City != "Salem" || got.State != "Tamil Nadu" {
			t.Errorf("expected address populated from candidate, got %+v", got)
		}
		items := form.Items().Items()
		if items[0].Name != "Steel Pan" || items[1].Name != "LID-20" {
			t.Errorf("unexpected seeded items %+v", items)
		}
		if immediate := form.Matcher().Metrics().Counter(MatcherImmediateTotal).Value(); immediate != 1 {
			t.Errorf("expected 1 immediate match, got %f", immediate)
		}
	})

	t.Run("History Failure Seeds Empty List", func(t *testing.T) {
		backend := &stubBackend{
			productsFn: func(_ context.Context, _ string) ([]ProductRef, error) {
				return nil, errors.New("history unavailable")
			},
		}
		form := NewForm(backend)
		defer form.Close()

		form.Items().Append("Leftover")
		_ = form.SelectCustomer(context.Background(), ramesh)

		waitFor(t, func() bool { return form.Items().Len() == 0 }, "empty seed on failure")

		// Manual entry still works afterwards.
		if _, ok := form.Items().Append("Manual Item"); !ok {
			t.Error("expected manual append to work after failed seed")
		}
	})

	t.Run("Stale History Fetch Cannot Clobber Newer Selection", func(t *testing.T) {
		releaseSlow := make(chan struct{})
		backend := &stubBackend{
			productsFn: func(_ context.Context, name string) ([]ProductRef, error) {
				if name == "Ramesh Kumar" {
					<-releaseSlow
					return []ProductRef{{Name: "Stale Pan"}}, nil
				}
				return []ProductRef{{Name: "Fresh Cooker"}}, nil
			},
		}
		form := NewForm(backend)
		defer form.Close()

		suresh := ramesh
		suresh.ID = "c-105"
		suresh.FullName = "Suresh Babu"

		_ = form.SelectCustomer(context.Background(), ramesh) // blocks in flight
		_ = form.SelectCustomer(context.Background(), suresh) // settles first

		waitFor(t, func() bool {
			items := form.Items().Items()
			return len(items) == 1 && items[0].Name == "Fresh Cooker"
		}, "newer selection's seed")

		close(releaseSlow)
		time.Sleep(20 * time.Millisecond)

		items := form.Items().Items()
		if len(items) != 1 || items[0].Name != "Fresh Cooker" {
			t.Errorf("stale history clobbered newer selection: %+v", items)
		}
	})

	t.Run("Address Edits Re-Trigger Debounced Match", func(t *testing.T) {
		backend := &stubBackend{
			matchFn: func(_ context.Context, _ AddressQuery) ([]TransportCandidate, error) {
				return []TransportCandidate{sharma}, nil
			},
		}
		form := NewForm(backend)
		defer form.Close()
		clock := clockz.NewFakeClock()
		form.Matcher().Match().WithClock(clock).WithDelay(100 * time.Millisecond)

		_ = form.SetCity(context.Background(), "Salem")
		_ = form.SetState(context.Background(), "Tamil Nadu")
		_ = form.SetPincode(context.Background(), "636001")

		time.Sleep(10 * time.Millisecond)
		clock.Advance(100 * time.Millisecond)
		clock.BlockUntilReady()

		waitFor(t, func() bool { return form.Matcher().State() == MatchFound }, "debounced match")
		if n := atomic.LoadInt32(&backend.matchCalls); n != 1 {
			t.Errorf("expected 1 match call for the edit burst, got %d", n)
		}

		// Clearing every field clears candidates with no further call.
		_ = form.SetCity(context.Background(), "")
		_ = form.SetState(context.Background(), "")
		_ = form.SetPincode(context.Background(), "")
		if form.Matcher().State() != MatchIdle {
			t.Errorf("expected idle after clearing address, got %s", form.Matcher().State())
		}
		if n := atomic.LoadInt32(&backend.matchCalls); n != 1 {
			t.Errorf("expected no further calls after clearing, got %d total", n)
		}
	})

	t.Run("Draft Requires A Selection", func(t *testing.T) {
		form := NewForm(&stubBackend{})
		defer form.Close()

		if _, err := form.Draft("Sharma Travels", "Box", "LLR-104"); !errors.Is(err, ErrNoCustomer) {
			t.Errorf("expected ErrNoCustomer, got %v", err)
		}
	})

	t.Run("Submit Uses Current Form State", func(t *testing.T) {
		var recorded atomic.Pointer[DispatchRecord]
		backend := &stubBackend{
			productsFn: func(_ context.Context, _ string) ([]ProductRef, error) {
				return []ProductRef{{Name: "Steel Pan"}}, nil
			},
			createFn: func(_ context.Context, rec DispatchRecord) error {
				recorded.Store(&rec)
				return nil
			},
		}
		form := NewForm(backend)
		defer form.Close()

		_ = form.SelectCustomer(context.Background(), ramesh)
		waitFor(t, func() bool { return form.Items().Len() == 1 }, "history seed")

		if err := form.Submitter().Confirm(context.Background()); err != nil {
			t.Fatalf("confirm failed: %v", err)
		}
		result, err := form.Submit(context.Background(), "Sharma Travels", "Box", "LLR-104")
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		if !result.AllSucceeded {
			t.Fatalf("expected success, got %+v", result)
		}

		rec := recorded.Load()
		if rec == nil {
			t.Fatal("expected a creation call")
		}
		if rec.Customer != "Ramesh Kumar" || rec.ItemName != "Steel Pan" ||
			rec.TransportName != "Sharma Travels" || rec.City != "Salem" ||
			rec.LLRNumber != "LLR-104" {
			t.Errorf("record missing shared header fields: %+v", rec)
		}
	})

	t.Run("Close Renders Late Responses Inert", func(t *testing.T) {
		releaseHistory := make(chan struct{})
		backend := &stubBackend{
			productsFn: func(_ context.Context, _ string) ([]ProductRef, error) {
				<-releaseHistory
				return []ProductRef{{Name: "Late Pan"}}, nil
			},
		}
		form := NewForm(backend)

		_ = form.SelectCustomer(context.Background(), ramesh)
		if err := form.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		close(releaseHistory)
		time.Sleep(20 * time.Millisecond)

		if form.Items().Len() != 0 {
			t.Error("expected no mutation after close")
		}
		if err := form.SetQuery(context.Background(), "ram"); !errors.Is(err, ErrFormClosed) {
			t.Errorf("expected ErrFormClosed, got %v", err)
		}
		if err := form.SelectCustomer(context.Background(), ramesh); !errors.Is(err, ErrFormClosed) {
			t.Errorf("expected ErrFormClosed, got %v", err)
		}
		if err := form.SetCity(context.Background(), "Salem"); !errors.Is(err, ErrFormClosed) {
			t.Errorf("expected ErrFormClosed, got %v", err)
		}
		// Close is idempotent.
		if err := form.Close(); err != nil {
			t.Errorf("second close failed: %v", err)
		}
	})

	t.Run("Sessions Are Independent", func(t *testing.T) {
		backend := &stubBackend{}
		a := NewForm(backend)
		b := NewForm(backend)
		defer a.Close()
		defer b.Close()

		if a.SessionID() == b.SessionID() {
			t.Error("expected distinct session ids")
		}
		a.Items().Append("Only In A")
		if b.Items().Len() != 0 {
			t.Error("expected no state sharing between form instances")
		}
	})
}
