package dispatch

import "context"

// Backend defines the four remote operations the dispatch workflow
// consumes. Persistence, matching semantics, and ranking are owned by
// the remote side; this engine treats each operation as a black box
// returning zero or more records.
//
// Implementations must be safe for concurrent use: the submission
// orchestrator issues CreateDispatchRecord calls concurrently, and
// lookups for independent keys overlap freely.
//
// Lookup failures are recovered locally by the engine (degraded to
// empty results); only creation failures surface in submission results.
type Backend interface {
	// SearchCustomers resolves a free-text name fragment to candidate
	// customer records, in the order the remote side returns them.
	SearchCustomers(ctx context.Context, fragment string) ([]CustomerSummary, error)

	// GetCustomerProducts fetches the products previously associated
	// with a customer, used to seed dispatch line items.
	GetCustomerProducts(ctx context.Context, customerName string) ([]ProductRef, error)

	// MatchTransportsByAddress retrieves the transport providers whose
	// service area overlaps the given address. Each field is an
	// independent optional filter; callers never invoke this with all
	// three fields empty.
	MatchTransportsByAddress(ctx context.Context, query AddressQuery) ([]TransportCandidate, error)

	// CreateDispatchRecord creates one dispatch record. Each record is
	// an independent remote resource; there is no multi-record
	// transaction primitive.
	CreateDispatchRecord(ctx context.Context, record DispatchRecord) error
}
