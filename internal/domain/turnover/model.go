package turnover

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusInitiated          Status = "initiated"
	StatusCleaning           Status = "cleaning"
	StatusAwaitingInspection Status = "awaiting_inspection"
	StatusCompleted          Status = "completed"
)

// Record tracks one cleaning cycle of a bed, from discharge until the bed
// passes inspection. It keeps the vacated stay's patient and timestamps so
// reconciliation still works after the bed is reassigned.
type Record struct {
	ID                    uuid.UUID  `json:"id"`
	BedID                 uuid.UUID  `json:"bed_id"`
	PreviousPatientID     *uuid.UUID `json:"previous_patient_id,omitempty"`
	PreviousAdmissionTime *time.Time `json:"previous_admission_time,omitempty"`
	DischargeTime         time.Time  `json:"discharge_time"`
	CleaningStartedAt     time.Time  `json:"cleaning_started_at"`
	EstimatedMinutes      int        `json:"estimated_minutes"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	ActualMinutes         *int       `json:"actual_minutes,omitempty"`
	InspectionPassed      *bool      `json:"inspection_passed,omitempty"`
	InspectionAttempts    int        `json:"inspection_attempts"`
	Notes                 *string    `json:"notes,omitempty"`
	Status                Status     `json:"status"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// IsOpen reports whether the record has not been completed.
func (r *Record) IsOpen() bool {
	return r.Status != StatusCompleted
}

func (r *Record) clone() *Record {
	c := *r
	if r.PreviousPatientID != nil {
		v := *r.PreviousPatientID
		c.PreviousPatientID = &v
	}
	if r.PreviousAdmissionTime != nil {
		v := *r.PreviousAdmissionTime
		c.PreviousAdmissionTime = &v
	}
	if r.CompletedAt != nil {
		v := *r.CompletedAt
		c.CompletedAt = &v
	}
	if r.ActualMinutes != nil {
		v := *r.ActualMinutes
		c.ActualMinutes = &v
	}
	if r.InspectionPassed != nil {
		v := *r.InspectionPassed
		c.InspectionPassed = &v
	}
	if r.Notes != nil {
		v := *r.Notes
		c.Notes = &v
	}
	return &c
}
