package dispatch

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by the engine.
var (
	// ErrNoLineItems is returned when a submission is attempted with
	// zero valid line items. No network calls are made in that case.
	ErrNoLineItems = errors.New("dispatch: no valid line items to submit")

	// ErrNoCustomer is returned when a draft is assembled without a
	// resolved customer selection.
	ErrNoCustomer = errors.New("dispatch: no customer selected")

	// ErrBadPhase is returned by submission phase transitions that are
	// not legal from the current phase. The phase is left unchanged.
	ErrBadPhase = errors.New("dispatch: invalid submission phase transition")

	// ErrFormClosed is returned by operations on a closed form.
	ErrFormClosed = errors.New("dispatch: form closed")
)

// ItemError wraps the failure of a single line item's creation call
// with context about which item failed and when. It supports error
// wrapping patterns via Unwrap.
type ItemError struct {
	Item      LineItem
	Err       error
	Timestamp time.Time
	Duration  time.Duration
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	return fmt.Sprintf("line item %d (%q) failed after %v: %v", e.Item.ID, e.Item.Name, e.Duration, e.Err)
}

// Unwrap returns the underlying error.
func (e *ItemError) Unwrap() error {
	return e.Err
}
