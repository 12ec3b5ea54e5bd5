package dispatch

import (
	"fmt"
	"strings"
)

// Name is a unique identifier for engine components.
// Names for schedulers, resolvers, matchers, and submitters should be
// defined as constants and used consistently for debugging and observability.
type Name = string

// CustomerSummary is an identity and address snapshot used for matching
// and autofill. It is produced by customer search, frozen by selection,
// and superseded whenever a new selection is made. The engine never
// edits it.
type CustomerSummary struct {
	ID       string
	FullName string
	Phone    string
	Email    string
	Address  string
	City     string
	State    string
	Pincode  string
}

// AddressQuery is the mutable city/state/pincode triple held by the
// dispatch form. It may be partially filled; matching is attempted
// whenever at least one field is non-empty.
type AddressQuery struct {
	City    string
	State   string
	Pincode string
}

// Empty reports whether all three fields are blank after trimming.
// An empty query must clear the transport candidate list without
// issuing a network call.
func (q AddressQuery) Empty() bool {
	return strings.TrimSpace(q.City) == "" &&
		strings.TrimSpace(q.State) == "" &&
		strings.TrimSpace(q.Pincode) == ""
}

// TransportCandidate is a shipping-provider record whose service area
// overlaps an address query. Candidates are fetched fresh on every
// qualifying address change and replaced wholesale; they are never
// persisted beyond the current form session.
type TransportCandidate struct {
	ID          string
	TravelsName string // display name
	Name        string // contact/driver label, optional
	Address     string
	City        string
	State       string
	Pincode     string
}

// ProductRef is one entry of a customer's purchase history, used to
// seed the line-item list. Either field may be blank; entries with
// neither a code nor a name are dropped during bulk population.
type ProductRef struct {
	Code string
	Name string
}

// LineItem is one named unit within a multi-item dispatch submission.
// IDs are sequential integers unique within the form session and are
// never reused after removal (max+1 allocation). An item with a blank
// name may exist transiently while being edited but is excluded from
// submission.
type LineItem struct {
	ID   int
	Name string
}

// Valid reports whether the item qualifies for submission.
func (i LineItem) Valid() bool {
	return strings.TrimSpace(i.Name) != ""
}

// DispatchRecord is the creation payload for one line item. Every
// record of a submission carries the same shared header fields plus
// that item's name.
type DispatchRecord struct {
	Customer      string `json:"customer"`
	ItemName      string `json:"name"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	City          string `json:"city"`
	State         string `json:"state"`
	Pincode       string `json:"pincode"`
	TransportName string `json:"transportName"`
	Packaging     string `json:"packaging"`
	LLRNumber     string `json:"llrNumber"`
}

// Draft is the finalized input to a submission attempt: the resolved
// customer, the address as currently edited, the chosen transport, and
// the line items to fan out.
type Draft struct {
	Customer      CustomerSummary
	Address       AddressQuery
	TransportName string
	Packaging     string
	LLRNumber     string
	Items         []LineItem
}

// record builds the creation payload for one line item.
func (d Draft) record(item LineItem) DispatchRecord {
	return DispatchRecord{
		Customer:      d.Customer.FullName,
		ItemName:      strings.TrimSpace(item.Name),
		Phone:         d.Customer.Phone,
		Email:         d.Customer.Email,
		Address:       d.Customer.Address,
		City:          d.Address.City,
		State:         d.Address.State,
		Pincode:       d.Address.Pincode,
		TransportName: d.TransportName,
		Packaging:     d.Packaging,
		LLRNumber:     d.LLRNumber,
	}
}

// ItemOutcome is the per-item result of a submission fan-out.
type ItemOutcome struct {
	Item LineItem
	Err  error
}

// Succeeded reports whether this item's creation call succeeded.
func (o ItemOutcome) Succeeded() bool {
	return o.Err == nil
}

// Result aggregates one submission attempt. Outcomes appear in item
// order regardless of settlement order. There is no transactional
// guarantee across items: on partial failure the successes stand and
// FailedCount names how many creations failed.
type Result struct {
	AllSucceeded bool
	Items        []ItemOutcome
}

// FailedCount returns the number of failed item outcomes.
func (r Result) FailedCount() int {
	n := 0
	for _, o := range r.Items {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Message returns the user-facing summary of the attempt. Partial and
// total failure read differently: a partial failure names the count of
// failed items so the user knows the rest were created.
func (r Result) Message() string {
	failed := r.FailedCount()
	switch {
	case r.AllSucceeded:
		return fmt.Sprintf("dispatched %d items", len(r.Items))
	case failed == len(r.Items):
		return fmt.Sprintf("dispatch failed for all %d items", failed)
	default:
		return fmt.Sprintf("dispatch partially failed: %d of %d items not created", failed, len(r.Items))
	}
}
