package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Kind names a Stay Ledger category.
type Kind string

const (
	KindTreatment Kind = "treatment"
	KindEquipment Kind = "equipment"
	KindStaff     Kind = "staff"
	KindSupply    Kind = "supply"
)

// Kinds lists the categories in the order reconciliation consults them.
var Kinds = []Kind{KindTreatment, KindEquipment, KindStaff, KindSupply}

func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Entry holds the fields shared by every ledger record. Entries are
// append-only; only Status and EndedAt change, via Complete.
type Entry struct {
	ID        uuid.UUID  `json:"id"`
	PatientID uuid.UUID  `json:"patient_id"`
	BedID     *uuid.UUID `json:"bed_id,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// Treatment maps to the treatment_record table.
type Treatment struct {
	Entry
	Name          string  `json:"name"`
	TreatmentType string  `json:"treatment_type"`
	PerformedBy   *string `json:"performed_by,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

// EquipmentUsage maps to the equipment_usage table.
type EquipmentUsage struct {
	Entry
	EquipmentID   *uuid.UUID `json:"equipment_id,omitempty"`
	EquipmentName string     `json:"equipment_name"`
	EquipmentType *string    `json:"equipment_type,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
}

// StaffAssignment maps to the staff_assignment table.
type StaffAssignment struct {
	Entry
	StaffID   *uuid.UUID `json:"staff_id,omitempty"`
	StaffName string     `json:"staff_name"`
	Role      string     `json:"role"`
	Notes     *string    `json:"notes,omitempty"`
}

// SupplyUsage maps to the supply_usage table. StartedAt is the time of use.
type SupplyUsage struct {
	Entry
	SupplyID   *uuid.UUID `json:"supply_id,omitempty"`
	SupplyName string     `json:"supply_name"`
	Category   string     `json:"category"`
	Quantity   float64    `json:"quantity"`
	UnitCost   float64    `json:"unit_cost"`
	Notes      *string    `json:"notes,omitempty"`
}

// Cost returns UnitCost * Quantity.
func (s *SupplyUsage) Cost() float64 {
	return s.UnitCost * s.Quantity
}

// Query filters ledger lookups. Zero fields are not applied. Results are
// ordered by StartedAt, newest first when Newest is set.
type Query struct {
	PatientID *uuid.UUID
	BedID     *uuid.UUID
	From      *time.Time
	To        *time.Time
	Limit     int
	Newest    bool
}

func (q Query) matches(e *Entry) bool {
	if q.PatientID != nil && e.PatientID != *q.PatientID {
		return false
	}
	if q.BedID != nil && (e.BedID == nil || *e.BedID != *q.BedID) {
		return false
	}
	if q.From != nil && e.StartedAt.Before(*q.From) {
		return false
	}
	if q.To != nil && e.StartedAt.After(*q.To) {
		return false
	}
	return true
}
