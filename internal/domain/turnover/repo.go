package turnover

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create fails with a conflict if the bed already has an open record.
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	// Open returns the bed's non-completed record.
	Open(ctx context.Context, bedID uuid.UUID) (*Record, error)
	Update(ctx context.Context, r *Record) error
	// History lists the bed's records, newest discharge first.
	History(ctx context.Context, bedID uuid.UUID, limit int) ([]*Record, error)
	// Latest returns the bed's record with the most recent discharge time.
	Latest(ctx context.Context, bedID uuid.UUID) (*Record, error)
	// LatestForPatient is Latest restricted to one previous occupant.
	LatestForPatient(ctx context.Context, bedID, patientID uuid.UUID) (*Record, error)
}
