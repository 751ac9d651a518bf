package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

type memoryRepo struct {
	mu         sync.RWMutex
	treatments []Treatment
	equipment  []EquipmentUsage
	staff      []StaffAssignment
	supplies   []SupplyUsage
}

// NewMemoryRepo returns a goroutine-safe in-memory ledger.
func NewMemoryRepo() Repository {
	return &memoryRepo{}
}

func stamp(e *Entry) {
	e.ID = uuid.New()
	e.CreatedAt = time.Now().UTC()
	if e.Status == "" {
		e.Status = StatusActive
	}
}

func (r *memoryRepo) AddTreatment(_ context.Context, t *Treatment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stamp(&t.Entry)
	r.treatments = append(r.treatments, *t)
	return nil
}

func (r *memoryRepo) AddEquipmentUsage(_ context.Context, u *EquipmentUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stamp(&u.Entry)
	r.equipment = append(r.equipment, *u)
	return nil
}

func (r *memoryRepo) AddStaffAssignment(_ context.Context, a *StaffAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stamp(&a.Entry)
	r.staff = append(r.staff, *a)
	return nil
}

func (r *memoryRepo) AddSupplyUsage(_ context.Context, s *SupplyUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stamp(&s.Entry)
	r.supplies = append(r.supplies, *s)
	return nil
}

func (r *memoryRepo) Complete(_ context.Context, kind Kind, id uuid.UUID, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var e *Entry
	switch kind {
	case KindTreatment:
		e = find(r.treatments, func(t *Treatment) *Entry { return &t.Entry }, id)
	case KindEquipment:
		e = find(r.equipment, func(u *EquipmentUsage) *Entry { return &u.Entry }, id)
	case KindStaff:
		e = find(r.staff, func(a *StaffAssignment) *Entry { return &a.Entry }, id)
	case KindSupply:
		e = find(r.supplies, func(s *SupplyUsage) *Entry { return &s.Entry }, id)
	default:
		return apperr.Validation("unknown ledger kind %q", kind)
	}
	if e == nil {
		return apperr.NotFound("%s entry %s not found", kind, id)
	}
	if e.Status == StatusCompleted {
		return apperr.InvalidState("%s entry %s is already completed", kind, id)
	}
	ended := endedAt
	e.EndedAt = &ended
	e.Status = StatusCompleted
	return nil
}

func (r *memoryRepo) Treatments(_ context.Context, q Query) ([]*Treatment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return selectRows(r.treatments, func(t *Treatment) *Entry { return &t.Entry }, q), nil
}

func (r *memoryRepo) EquipmentUsages(_ context.Context, q Query) ([]*EquipmentUsage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return selectRows(r.equipment, func(u *EquipmentUsage) *Entry { return &u.Entry }, q), nil
}

func (r *memoryRepo) StaffAssignments(_ context.Context, q Query) ([]*StaffAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return selectRows(r.staff, func(a *StaffAssignment) *Entry { return &a.Entry }, q), nil
}

func (r *memoryRepo) SupplyUsages(_ context.Context, q Query) ([]*SupplyUsage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return selectRows(r.supplies, func(s *SupplyUsage) *Entry { return &s.Entry }, q), nil
}

func find[T any](rows []T, base func(*T) *Entry, id uuid.UUID) *Entry {
	for i := range rows {
		if e := base(&rows[i]); e.ID == id {
			return e
		}
	}
	return nil
}

func selectRows[T any](rows []T, base func(*T) *Entry, q Query) []*T {
	var out []*T
	for i := range rows {
		if !q.matches(base(&rows[i])) {
			continue
		}
		c := rows[i]
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := base(out[i]).StartedAt, base(out[j]).StartedAt
		if q.Newest {
			return a.After(b)
		}
		return a.Before(b)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
