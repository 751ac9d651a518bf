package queue

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Priority tiers, higher is served first.
const (
	PriorityLow      = 1
	PriorityNormal   = 2
	PriorityHigh     = 3
	PriorityCritical = 4
)

var priorityNames = map[int]string{
	PriorityLow:      "low",
	PriorityNormal:   "normal",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

// PriorityName returns the tier label, or "" for an out-of-range value.
func PriorityName(p int) string {
	return priorityNames[p]
}

// Entry is a patient waiting for a bed of a given class.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	PatientID  uuid.UUID `json:"patient_id"`
	BedClass   string    `json:"bed_class"`
	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Notes      *string   `json:"notes,omitempty"`
}

// before orders entries by priority desc, then enqueue time asc.
func before(a, b *Entry) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.ID.String() < b.ID.String()
}

// Sort orders entries in service order.
func Sort(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return before(entries[i], entries[j]) })
}
