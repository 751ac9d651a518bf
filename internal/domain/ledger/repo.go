package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reader is the read side consumed by discharge reconciliation.
type Reader interface {
	Treatments(ctx context.Context, q Query) ([]*Treatment, error)
	EquipmentUsages(ctx context.Context, q Query) ([]*EquipmentUsage, error)
	StaffAssignments(ctx context.Context, q Query) ([]*StaffAssignment, error)
	SupplyUsages(ctx context.Context, q Query) ([]*SupplyUsage, error)
}

type Repository interface {
	Reader
	AddTreatment(ctx context.Context, t *Treatment) error
	AddEquipmentUsage(ctx context.Context, u *EquipmentUsage) error
	AddStaffAssignment(ctx context.Context, a *StaffAssignment) error
	AddSupplyUsage(ctx context.Context, s *SupplyUsage) error
	// Complete sets EndedAt and marks the entry completed.
	Complete(ctx context.Context, kind Kind, id uuid.UUID, endedAt time.Time) error
}
