package bed

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

type memoryBedRepo struct {
	mu   sync.RWMutex
	beds map[uuid.UUID]*Bed
}

func NewMemoryBedRepo() BedRepository {
	return &memoryBedRepo{beds: make(map[uuid.UUID]*Bed)}
}

func (m *memoryBedRepo) Create(_ context.Context, b *Bed) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if _, ok := m.beds[b.ID]; ok {
		return apperr.Conflict("bed %s already exists", b.ID)
	}
	for _, other := range m.beds {
		if other.Label == b.Label && other.Department == b.Department {
			return apperr.Conflict("bed %q already exists in %s", b.Label, b.Department)
		}
	}
	if !b.consistent() {
		return apperr.InvalidState("bed %s: occupant and status %s disagree", b.ID, b.Status)
	}
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	m.beds[b.ID] = b.clone()
	return nil
}

func (m *memoryBedRepo) GetByID(_ context.Context, id uuid.UUID) (*Bed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.beds[id]
	if !ok {
		return nil, apperr.NotFound("bed %s not found", id)
	}
	return b.clone(), nil
}

// GetByIDForUpdate is GetByID; callers already hold the bed lock.
func (m *memoryBedRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return m.GetByID(ctx, id)
}

func (m *memoryBedRepo) FindByOccupant(_ context.Context, patientID uuid.UUID) (*Bed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.beds {
		if b.CurrentPatientID != nil && *b.CurrentPatientID == patientID {
			return b.clone(), nil
		}
	}
	return nil, apperr.NotFound("patient %s does not occupy a bed", patientID)
}

func (m *memoryBedRepo) List(_ context.Context, f Filter) ([]*Bed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Bed
	for _, b := range m.beds {
		if f.matches(b) {
			out = append(out, b.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Department != out[j].Department {
			return out[i].Department < out[j].Department
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}

func (m *memoryBedRepo) Update(_ context.Context, b *Bed) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.beds[b.ID]; !ok {
		return apperr.NotFound("bed %s not found", b.ID)
	}
	if !b.consistent() {
		return apperr.InvalidState("bed %s: occupant and status %s disagree", b.ID, b.Status)
	}
	if b.CurrentPatientID != nil {
		for id, other := range m.beds {
			if id != b.ID && other.CurrentPatientID != nil && *other.CurrentPatientID == *b.CurrentPatientID {
				return apperr.Conflict("patient %s already occupies bed %s", *b.CurrentPatientID, other.Label)
			}
		}
	}
	b.UpdatedAt = time.Now().UTC()
	m.beds[b.ID] = b.clone()
	return nil
}

type memoryPatientRepo struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]*Patient
}

func NewMemoryPatientRepo() PatientRepository {
	return &memoryPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *memoryPatientRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	for _, other := range m.patients {
		if other.ID == p.ID || (p.MRN != "" && other.MRN == p.MRN) {
			return apperr.Conflict("patient with MRN %q already exists", p.MRN)
		}
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	c := *p
	m.patients[p.ID] = &c
	return nil
}

func (m *memoryPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient %s not found", id)
	}
	c := *p
	return &c, nil
}

func (m *memoryPatientRepo) UpdateStatus(_ context.Context, id uuid.UUID, status PatientStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.patients[id]
	if !ok {
		return apperr.NotFound("patient %s not found", id)
	}
	c := *p
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	m.patients[id] = &c
	return nil
}

func (m *memoryPatientRepo) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.patients[id]
	return ok, nil
}

func (m *memoryPatientRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*Patient, 0, len(m.patients))
	for _, p := range m.patients {
		c := *p
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].LastName != all[j].LastName {
			return all[i].LastName < all[j].LastName
		}
		return all[i].ID.String() < all[j].ID.String()
	})
	total := len(all)
	if offset >= total {
		return []*Patient{}, total, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}
