package discharge

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

type memoryRepo struct {
	mu       sync.RWMutex
	byNumber map[string]*Stored
}

func NewMemoryRepo() ReportRepository {
	return &memoryRepo{byNumber: make(map[string]*Stored)}
}

func copyStored(s *Stored, withSnapshot bool) *Stored {
	c := *s
	c.Snapshot = nil
	if withSnapshot {
		c.Snapshot = append([]byte(nil), s.Snapshot...)
	}
	return &c
}

func (m *memoryRepo) Create(_ context.Context, s *Stored) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byNumber[s.ReportNumber]; ok {
		return apperr.Conflict("report number %s already exists", s.ReportNumber)
	}
	m.byNumber[s.ReportNumber] = copyStored(s, true)
	return nil
}

func (m *memoryRepo) GetByNumber(_ context.Context, number string) (*Stored, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.byNumber[number]
	if !ok {
		return nil, apperr.NotFound("discharge report %s not found", number)
	}
	return copyStored(s, true), nil
}

func (m *memoryRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Stored, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []*Stored
	for _, s := range m.byNumber {
		if s.PatientID == patientID {
			all = append(all, copyStored(s, false))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ReportNumber > all[j].ReportNumber
	})
	total := len(all)
	if offset >= total {
		return []*Stored{}, total, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}
