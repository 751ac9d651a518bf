package queue

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Add fails with a conflict if the patient is already queued.
	Add(ctx context.Context, e *Entry) error
	// PeekNext returns the head entry for bedClass without removing or
	// locking it, skipping the ids in exclude. It returns a not-found error
	// on an empty queue.
	PeekNext(ctx context.Context, bedClass string, exclude []uuid.UUID) (*Entry, error)
	// Take removes the entry and returns it as stored. It returns a
	// not-found error when the entry is already gone.
	Take(ctx context.Context, id uuid.UUID) (*Entry, error)
	// Restore re-inserts a taken entry with its original id and enqueue time.
	Restore(ctx context.Context, e *Entry) error
	Remove(ctx context.Context, id uuid.UUID) error
	// List returns entries in service order; an empty bedClass lists all.
	List(ctx context.Context, bedClass string) ([]*Entry, error)
	FindByPatient(ctx context.Context, patientID uuid.UUID) (*Entry, error)
}
