package dispatch

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Component names used by Form.
const (
	KeyCustomerSearch Name = "customer-search"
	KeyTransportMatch Name = "transport-match"
	KeySubmit         Name = "dispatch-submit"
)

// Form owns one dispatch-creation session: the resolver, matcher,
// line items, and submitter, plus the address fields as currently
// edited. All of that state belongs exclusively to this instance and
// is discarded on Close; nothing is shared across concurrent forms.
//
// Selecting a customer triggers the two downstream actions the
// workflow hinges on: an immediate (non-debounced) transport match
// from the candidate's address, and a purchase-history fetch seeding
// the line items. Both are guarded so that a slow response belonging
// to an earlier selection, or arriving after Close, mutates nothing.
type Form struct {
	sessionID string
	backend   Backend
	resolver  *CustomerResolver
	matcher   *TransportMatcher
	items     *LineItems
	submitter *Submitter

	mu      sync.Mutex
	address AddressQuery
	seedGen uint64 // selection generation guarding history seeds
	closed  bool
}

// NewForm creates a dispatch-creation form session over the given
// backend.
func NewForm(backend Backend) *Form {
	return &Form{
		sessionID: uuid.NewString(),
		backend:   backend,
		resolver:  NewCustomerResolver(KeyCustomerSearch, backend),
		matcher:   NewTransportMatcher(KeyTransportMatch, backend),
		items:     NewLineItems(),
		submitter: NewSubmitter(KeySubmit, backend),
	}
}

// SessionID returns this form instance's unique id.
func (f *Form) SessionID() string {
	return f.sessionID
}

// Resolver returns the customer resolver.
func (f *Form) Resolver() *CustomerResolver { return f.resolver }

// Matcher returns the transport matcher.
func (f *Form) Matcher() *TransportMatcher { return f.matcher }

// Items returns the line-item collection.
func (f *Form) Items() *LineItems { return f.items }

// Submitter returns the submission orchestrator.
func (f *Form) Submitter() *Submitter { return f.submitter }

// SetQuery forwards a customer-search keystroke to the resolver.
func (f *Form) SetQuery(ctx context.Context, fragment string) error {
	if f.isClosed() {
		return ErrFormClosed
	}
	f.resolver.SetQuery(ctx, fragment)
	return nil
}

// SelectCustomer freezes the candidate and runs both downstream
// actions: the address fields populate and match immediately, and the
// candidate's purchase history seeds the line items. A failed or empty
// history fetch leaves the item list empty rather than erroring, so
// items can still be added manually.
func (f *Form) SelectCustomer(ctx context.Context, candidate CustomerSummary) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFormClosed
	}
	f.seedGen++
	gen := f.seedGen
	f.address = AddressQuery{
		City:    candidate.City,
		State:   candidate.State,
		Pincode: candidate.Pincode,
	}
	address := f.address
	f.mu.Unlock()

	f.resolver.Select(ctx, candidate)
	f.matcher.MatchNow(ctx, address)

	go func() {
		products, err := f.backend.GetCustomerProducts(ctx, candidate.FullName)
		if err != nil {
			products = nil
		}
		f.mu.Lock()
		stale := f.closed || gen != f.seedGen
		f.mu.Unlock()
		if stale {
			return
		}
		f.items.BulkPopulate(products)
	}()
	return nil
}

// Address returns the address query as currently edited.
func (f *Form) Address() AddressQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.address
}

// SetCity updates the city field and re-triggers the debounced match.
func (f *Form) SetCity(ctx context.Context, city string) error {
	return f.setAddressField(ctx, func(q *AddressQuery) { q.City = city })
}

// SetState updates the state field and re-triggers the debounced match.
func (f *Form) SetState(ctx context.Context, state string) error {
	return f.setAddressField(ctx, func(q *AddressQuery) { q.State = state })
}

// SetPincode updates the pincode field and re-triggers the debounced
// match.
func (f *Form) SetPincode(ctx context.Context, pincode string) error {
	return f.setAddressField(ctx, func(q *AddressQuery) { q.Pincode = pincode })
}

func (f *Form) setAddressField(ctx context.Context, update func(*AddressQuery)) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFormClosed
	}
	update(&f.address)
	address := f.address
	f.mu.Unlock()

	f.matcher.SetAddress(ctx, address)
	return nil
}

// Draft assembles the submission input from current form state. A
// resolved customer selection is required; everything else may be
// blank and is validated (or not) by the submitter.
func (f *Form) Draft(transportName, packaging, llrNumber string) (Draft, error) {
	if f.isClosed() {
		return Draft{}, ErrFormClosed
	}
	customer, ok := f.resolver.Selection()
	if !ok {
		return Draft{}, ErrNoCustomer
	}
	return Draft{
		Customer:      customer,
		Address:       f.Address(),
		TransportName: transportName,
		Packaging:     packaging,
		LLRNumber:     llrNumber,
		Items:         f.items.Items(),
	}, nil
}

// Submit assembles the draft and runs one submission attempt. The
// submitter must already be in PhaseConfirming.
func (f *Form) Submit(ctx context.Context, transportName, packaging, llrNumber string) (Result, error) {
	draft, err := f.Draft(transportName, packaging, llrNumber)
	if err != nil {
		return Result{}, err
	}
	return f.submitter.Submit(ctx, draft)
}

// Close tears the session down: the schedulers are disposed so any
// pending timers are canceled and any late-arriving responses become
// inert, and all hooks close. Safe to call more than once.
func (f *Form) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.seedGen++
	f.mu.Unlock()

	f.resolver.Dispose()
	f.matcher.Dispose()
	return f.submitter.Close()
}

func (f *Form) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
