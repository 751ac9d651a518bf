package bed

import (
	"context"

	"github.com/google/uuid"
)

type BedRepository interface {
	Create(ctx context.Context, b *Bed) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bed, error)
	// GetByIDForUpdate also row-locks the bed when called inside a transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Bed, error)
	// FindByOccupant returns the bed the patient currently occupies.
	FindByOccupant(ctx context.Context, patientID uuid.UUID) (*Bed, error)
	List(ctx context.Context, f Filter) ([]*Bed, error)
	// Update rejects a bed whose occupant and status disagree, and an
	// occupant already assigned to another bed.
	Update(ctx context.Context, b *Bed) error
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status PatientStatus) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}
