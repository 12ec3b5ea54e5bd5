package dispatch

import (
	"strings"
	"sync"
)

// LineItems is the ordered, mutable collection of items to be shipped
// in one dispatch session. Bulk population replaces the list from a
// customer's purchase history; manual appends and removals never
// block. Validity is checked only at submission time, never here.
type LineItems struct {
	mu    sync.Mutex
	items []LineItem
}

// NewLineItems creates an empty line-item collection.
func NewLineItems() *LineItems {
	return &LineItems{}
}

// BulkPopulate replaces the entire list with one item per product that
// has a non-empty name or code (name preferred). Products with neither
// are dropped. IDs are assigned sequentially starting at 1. An empty
// input yields an empty list so the user can still add items manually.
func (l *LineItems) BulkPopulate(products []ProductRef) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
	id := 1
	for _, p := range products {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = strings.TrimSpace(p.Code)
		}
		if name == "" {
			continue
		}
		l.items = append(l.items, LineItem{ID: id, Name: name})
		id++
	}
}

// Append adds a named item with id max(existing)+1, or 1 when the list
// is empty. Blank names are ignored.
func (l *LineItems) Append(name string) (LineItem, bool) {
	if strings.TrimSpace(name) == "" {
		return LineItem{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	item := LineItem{ID: l.nextIDLocked(), Name: name}
	l.items = append(l.items, item)
	return item, true
}

// Rename updates the matching item's name in place. Blank names are
// allowed here; they exist transiently while being edited and are
// filtered at submission.
func (l *LineItems) Rename(id int, name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == id {
			l.items[i].Name = name
			return true
		}
	}
	return false
}

// Remove deletes the matching item. Removal is never blocked; a
// too-small item set is caught at submission, not here.
func (l *LineItems) Remove(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

// Items returns a copy of the current list, blanks included.
func (l *LineItems) Items() []LineItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LineItem, len(l.items))
	copy(out, l.items)
	return out
}

// Valid returns the items that qualify for submission, in order.
func (l *LineItems) Valid() []LineItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LineItem
	for _, item := range l.items {
		if item.Valid() {
			out = append(out, item)
		}
	}
	return out
}

// Len returns the number of items, blanks included.
func (l *LineItems) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// nextIDLocked allocates the next id. Caller must hold l.mu.
func (l *LineItems) nextIDLocked() int {
	maxID := 0
	for _, item := range l.items {
		if item.ID > maxID {
			maxID = item.ID
		}
	}
	return maxID + 1
}
