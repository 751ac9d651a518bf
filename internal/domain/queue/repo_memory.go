package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

type memoryRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]Entry
}

func NewMemoryRepo() Repository {
	return &memoryRepo{entries: make(map[uuid.UUID]Entry)}
}

func (m *memoryRepo) queuedPatient(patientID uuid.UUID) bool {
	for _, e := range m.entries {
		if e.PatientID == patientID {
			return true
		}
	}
	return false
}

func (m *memoryRepo) Add(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queuedPatient(e.PatientID) {
		return apperr.Conflict("patient %s is already queued", e.PatientID)
	}
	e.ID = uuid.New()
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now().UTC()
	}
	m.entries[e.ID] = *e
	return nil
}

func (m *memoryRepo) ordered(bedClass string) []*Entry {
	var out []*Entry
	for _, e := range m.entries {
		if bedClass != "" && e.BedClass != bedClass {
			continue
		}
		c := e
		out = append(out, &c)
	}
	Sort(out)
	return out
}

func (m *memoryRepo) PeekNext(_ context.Context, bedClass string, exclude []uuid.UUID) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	skip := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	for _, e := range m.ordered(bedClass) {
		if !skip[e.ID] {
			return e, nil
		}
	}
	return nil, apperr.NotFound("no queued patient for bed class %q", bedClass)
}

func (m *memoryRepo) Take(_ context.Context, id uuid.UUID) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, apperr.NotFound("queue entry %s not found", id)
	}
	delete(m.entries, id)
	return &e, nil
}

func (m *memoryRepo) Restore(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[e.ID]; ok {
		return apperr.Conflict("queue entry %s is already present", e.ID)
	}
	if m.queuedPatient(e.PatientID) {
		return apperr.Conflict("patient %s is already queued", e.PatientID)
	}
	m.entries[e.ID] = *e
	return nil
}

func (m *memoryRepo) Remove(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return apperr.NotFound("queue entry %s not found", id)
	}
	delete(m.entries, id)
	return nil
}

func (m *memoryRepo) List(_ context.Context, bedClass string) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ordered(bedClass), nil
}

func (m *memoryRepo) FindByPatient(_ context.Context, patientID uuid.UUID) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.PatientID == patientID {
			c := e
			return &c, nil
		}
	}
	return nil, apperr.NotFound("patient %s is not queued", patientID)
}
