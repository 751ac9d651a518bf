package bed

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedflow/internal/domain/queue"
	"github.com/ehr/bedflow/internal/domain/turnover"
)

type Status string

const (
	StatusAvailable   Status = "available"
	StatusOccupied    Status = "occupied"
	StatusCleaning    Status = "cleaning"
	StatusMaintenance Status = "maintenance"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusAvailable, StatusOccupied, StatusCleaning, StatusMaintenance:
		return st, true
	}
	return "", false
}

// Bed is a physical bed. CurrentPatientID is set exactly when the bed is
// occupied. AdmissionTime and DischargeTime describe the latest stay and
// survive discharge until the next admission.
type Bed struct {
	ID                uuid.UUID  `json:"id"`
	Label             string     `json:"label"`
	Room              string     `json:"room,omitempty"`
	Department        string     `json:"department"`
	BedClass          string     `json:"bed_class"`
	Status            Status     `json:"status"`
	CurrentPatientID  *uuid.UUID `json:"current_patient_id,omitempty"`
	AdmissionTime     *time.Time `json:"admission_time,omitempty"`
	DischargeTime     *time.Time `json:"discharge_time,omitempty"`
	MaintenanceReason *string    `json:"maintenance_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// consistent reports whether occupant and status agree.
func (b *Bed) consistent() bool {
	return (b.CurrentPatientID != nil) == (b.Status == StatusOccupied)
}

func (b *Bed) clone() *Bed {
	c := *b
	if b.CurrentPatientID != nil {
		v := *b.CurrentPatientID
		c.CurrentPatientID = &v
	}
	if b.AdmissionTime != nil {
		v := *b.AdmissionTime
		c.AdmissionTime = &v
	}
	if b.DischargeTime != nil {
		v := *b.DischargeTime
		c.DischargeTime = &v
	}
	if b.MaintenanceReason != nil {
		v := *b.MaintenanceReason
		c.MaintenanceReason = &v
	}
	return &c
}

type PatientStatus string

const (
	PatientActive     PatientStatus = "active"
	PatientDischarged PatientStatus = "discharged"
)

type Patient struct {
	ID        uuid.UUID     `json:"id"`
	MRN       string        `json:"mrn"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Status    PatientStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (p *Patient) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Filter narrows ListBeds. Empty fields match everything.
type Filter struct {
	Department string
	BedClass   string
	Status     Status
}

func (f Filter) matches(b *Bed) bool {
	return (f.Department == "" || b.Department == f.Department) &&
		(f.BedClass == "" || b.BedClass == f.BedClass) &&
		(f.Status == "" || b.Status == f.Status)
}

// BedStatus is the read view returned by Status.
type BedStatus struct {
	Bed      *Bed               `json:"bed"`
	Occupant *Patient           `json:"occupant,omitempty"`
	Turnover *turnover.Record   `json:"turnover,omitempty"`
	Progress *turnover.Progress `json:"progress,omitempty"`
}

// DischargeResult is returned by Discharge.
type DischargeResult struct {
	Bed      *Bed             `json:"bed"`
	Turnover *turnover.Record `json:"turnover"`
}

// CleaningResult is returned by CompleteCleaning. Assignment is set when a
// passing inspection freed the bed and a queued patient was admitted.
type CleaningResult struct {
	Bed        *Bed             `json:"bed"`
	Turnover   *turnover.Record `json:"turnover"`
	Assignment *Assignment      `json:"assignment,omitempty"`
}

// Assignment is the outcome of matching a freed bed against the queue. Entry
// is nil when nobody was waiting for the bed's class.
type Assignment struct {
	Bed      *Bed         `json:"bed"`
	Entry    *queue.Entry `json:"entry,omitempty"`
	Attempts int          `json:"attempts"`
}
