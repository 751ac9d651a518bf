// Package events fans bed-board changes out to websocket clients and, when
// several server instances run, across instances through redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"time"
)

const (
	TypeBedAdmitted          = "bed.admitted"
	TypeBedDischarged        = "bed.discharged"
	TypeCleaningStarted      = "bed.cleaning_started"
	TypeInspectionRequested  = "bed.inspection_requested"
	TypeInspectionFailed     = "bed.inspection_failed"
	TypeBedAvailable         = "bed.available"
	TypeMaintenanceStarted   = "bed.maintenance_started"
	TypeMaintenanceCleared   = "bed.maintenance_cleared"
	TypeQueueAssigned        = "queue.assigned"
	TypeDischargeReportReady = "discharge.report_ready"
)

// TopicAll receives every event.
const TopicAll = "beds"

type Event struct {
	Type       string          `json:"type"`
	BedID      string          `json:"bed_id,omitempty"`
	Department string          `json:"department,omitempty"`
	Status     string          `json:"status,omitempty"`
	PatientID  string          `json:"patient_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Topics lists the subscription topics an event is delivered to.
func (e Event) Topics() []string {
	topics := []string{TopicAll}
	if e.BedID != "" {
		topics = append(topics, "bed:"+e.BedID)
	}
	if e.Department != "" {
		topics = append(topics, "department:"+e.Department)
	}
	return topics
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every publisher and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
