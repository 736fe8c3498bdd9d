package session

import "time"

// ActionKind identifies a reversible transition.
type ActionKind string

const (
	ActionWorkStart  ActionKind = "WORK_START"
	ActionBreakStart ActionKind = "BREAK_START"
)

// ActionRecord is one reversible transition. Credited is the time added to
// the session totals when the phase it started completed; a storno
// subtracts it again.
type ActionRecord struct {
	Kind      ActionKind
	Timestamp time.Time
	Credited  time.Duration
}

// History is the storno stack of a session.
type History struct {
	records []ActionRecord
}

// Push adds a record on top.
func (h *History) Push(r ActionRecord) {
	h.records = append(h.records, r)
}

// Pop removes and returns the top record.
func (h *History) Pop() (ActionRecord, bool) {
	if len(h.records) == 0 {
		return ActionRecord{}, false
	}
	r := h.records[len(h.records)-1]
	h.records = h.records[:len(h.records)-1]
	return r, true
}

// Top returns a pointer to the top record so its credit can be updated.
func (h *History) Top() *ActionRecord {
	if len(h.records) == 0 {
		return nil
	}
	return &h.records[len(h.records)-1]
}

// Len returns the stack height.
func (h *History) Len() int {
	return len(h.records)
}

// Clear drops all records.
func (h *History) Clear() {
	h.records = nil
}
