package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// stubBackend is a configurable Backend for tests. Unset functions
// return empty results. Call counts are atomic so concurrent fan-outs
// and overlapping lookups can assert on them safely.
type stubBackend struct {
	searchFn   func(context.Context, string) ([]CustomerSummary, error)
	productsFn func(context.Context, string) ([]ProductRef, error)
	matchFn    func(context.Context, AddressQuery) ([]TransportCandidate, error)
	createFn   func(context.Context, DispatchRecord) error

	searchCalls   int32
	productsCalls int32
	matchCalls    int32
	createCalls   int32
}

func (b *stubBackend) SearchCustomers(ctx context.Context, fragment string) ([]CustomerSummary, error) {
	atomic.AddInt32(&b.searchCalls, 1)
	if b.searchFn != nil {
		return b.searchFn(ctx, fragment)
	}
	return nil, nil
}

func (b *stubBackend) GetCustomerProducts(ctx context.Context, customerName string) ([]ProductRef, error) {
	atomic.AddInt32(&b.productsCalls, 1)
	if b.productsFn != nil {
		return b.productsFn(ctx, customerName)
	}
	return nil, nil
}

func (b *stubBackend) MatchTransportsByAddress(ctx context.Context, query AddressQuery) ([]TransportCandidate, error) {
	atomic.AddInt32(&b.matchCalls, 1)
	if b.matchFn != nil {
		return b.matchFn(ctx, query)
	}
	return nil, nil
}

func (b *stubBackend) CreateDispatchRecord(ctx context.Context, record DispatchRecord) error {
	atomic.AddInt32(&b.createCalls, 1)
	if b.createFn != nil {
		return b.createFn(ctx, record)
	}
	return nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
