package discharge

import (
	"context"

	"github.com/google/uuid"
)

type ReportRepository interface {
	// Create fails with a conflict when the report number is taken.
	Create(ctx context.Context, s *Stored) error
	GetByNumber(ctx context.Context, number string) (*Stored, error)
	// ListByPatient returns reports newest first without snapshots.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Stored, int, error)
}
