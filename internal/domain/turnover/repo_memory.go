package turnover

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

type memoryRepo struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
}

func NewMemoryRepo() Repository {
	return &memoryRepo{records: make(map[uuid.UUID]*Record)}
}

func (m *memoryRepo) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.records {
		if existing.BedID == r.BedID && existing.IsOpen() {
			return apperr.Conflict("bed %s already has an open turnover", r.BedID)
		}
	}
	r.ID = uuid.New()
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	m.records[r.ID] = r.clone()
	return nil
}

func (m *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, apperr.NotFound("turnover %s not found", id)
	}
	return r.clone(), nil
}

func (m *memoryRepo) Open(_ context.Context, bedID uuid.UUID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.BedID == bedID && r.IsOpen() {
			return r.clone(), nil
		}
	}
	return nil, apperr.NotFound("bed %s has no open turnover", bedID)
}

func (m *memoryRepo) Update(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[r.ID]
	if !ok {
		return apperr.NotFound("turnover %s not found", r.ID)
	}
	if !existing.IsOpen() {
		return apperr.InvalidState("turnover %s is completed", r.ID)
	}
	r.UpdatedAt = time.Now().UTC()
	m.records[r.ID] = r.clone()
	return nil
}

func (m *memoryRepo) sorted(match func(*Record) bool) []*Record {
	var out []*Record
	for _, r := range m.records {
		if match(r) {
			out = append(out, r.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DischargeTime.Equal(out[j].DischargeTime) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].DischargeTime.After(out[j].DischargeTime)
	})
	return out
}

func (m *memoryRepo) History(_ context.Context, bedID uuid.UUID, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.sorted(func(r *Record) bool { return r.BedID == bedID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepo) Latest(_ context.Context, bedID uuid.UUID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.sorted(func(r *Record) bool { return r.BedID == bedID })
	if len(out) == 0 {
		return nil, apperr.NotFound("bed %s has no turnover history", bedID)
	}
	return out[0], nil
}

func (m *memoryRepo) LatestForPatient(_ context.Context, bedID, patientID uuid.UUID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.sorted(func(r *Record) bool {
		return r.BedID == bedID && r.PreviousPatientID != nil && *r.PreviousPatientID == patientID
	})
	if len(out) == 0 {
		return nil, apperr.NotFound("no turnover for patient %s on bed %s", patientID, bedID)
	}
	return out[0], nil
}
