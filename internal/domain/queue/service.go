package queue

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/bedflow/internal/platform/apperr"
	"github.com/ehr/bedflow/internal/platform/metrics"
)

// PatientChecker confirms a patient is known before it is queued.
type PatientChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	repo     Repository
	patients PatientChecker
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, patients PatientChecker) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		logger:   zerolog.Nop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used to stamp enqueue times.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l.With().Str("component", "queue").Logger()
}

// NormalizeClass canonicalizes a bed class for matching.
func NormalizeClass(class string) string {
	return strings.ToLower(strings.TrimSpace(class))
}

func (s *Service) Enqueue(ctx context.Context, patientID uuid.UUID, bedClass string, priority int, notes string) (*Entry, error) {
	if patientID == uuid.Nil {
		return nil, apperr.Validation("patient_id is required")
	}
	bedClass = NormalizeClass(bedClass)
	if bedClass == "" {
		return nil, apperr.Validation("bed_class is required")
	}
	if priority < PriorityLow || priority > PriorityCritical {
		return nil, apperr.Validation("priority must be between %d and %d, got %d", PriorityLow, PriorityCritical, priority)
	}
	if s.patients != nil {
		ok, err := s.patients.Exists(ctx, patientID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.NotFound("patient %s not found", patientID)
		}
	}

	e := &Entry{PatientID: patientID, BedClass: bedClass, Priority: priority, EnqueuedAt: s.now()}
	if notes != "" {
		e.Notes = &notes
	}
	if err := s.repo.Add(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("patient_id", patientID.String()).
		Str("bed_class", bedClass).
		Int("priority", priority).
		Msg("patient queued")
	s.refreshDepth(ctx, bedClass)
	return e, nil
}

func (s *Service) Remove(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Remove(ctx, id); err != nil {
		return err
	}
	s.refreshAll(ctx)
	return nil
}

// RemovePatient drops the patient's entry, if any. It reports whether an
// entry was removed.
func (s *Service) RemovePatient(ctx context.Context, patientID uuid.UUID) (bool, error) {
	e, err := s.repo.FindByPatient(ctx, patientID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.repo.Remove(ctx, e.ID); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	s.refreshDepth(ctx, e.BedClass)
	return true, nil
}

// List returns waiting patients in service order. An empty class lists all.
func (s *Service) List(ctx context.Context, bedClass string) ([]*Entry, error) {
	return s.repo.List(ctx, NormalizeClass(bedClass))
}

type Position struct {
	Entry    *Entry `json:"entry"`
	Position int    `json:"position"`
	Waiting  int    `json:"waiting"`
}

// Position reports where a patient stands within their bed class, 1-based.
func (s *Service) Position(ctx context.Context, patientID uuid.UUID) (*Position, error) {
	e, err := s.repo.FindByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.List(ctx, e.BedClass)
	if err != nil {
		return nil, err
	}
	for i, other := range entries {
		if other.ID == e.ID {
			return &Position{Entry: other, Position: i + 1, Waiting: len(entries)}, nil
		}
	}
	return nil, apperr.NotFound("patient %s is not queued", patientID)
}

// PeekNext returns the head entry for the class, skipping exclude. The
// entry stays queued until Take removes it.
func (s *Service) PeekNext(ctx context.Context, bedClass string, exclude []uuid.UUID) (*Entry, error) {
	return s.repo.PeekNext(ctx, NormalizeClass(bedClass), exclude)
}

// Take removes a peeked entry. A not-found error means another admission
// removed it first.
func (s *Service) Take(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := s.repo.Take(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refreshDepth(ctx, e.BedClass)
	return e, nil
}

// Restore puts a taken entry back at its original position.
func (s *Service) Restore(ctx context.Context, e *Entry) error {
	if err := s.repo.Restore(ctx, e); err != nil {
		return err
	}
	s.refreshDepth(ctx, e.BedClass)
	return nil
}

func (s *Service) refreshDepth(ctx context.Context, bedClass string) {
	if s.metrics == nil {
		return
	}
	entries, err := s.repo.List(ctx, bedClass)
	if err != nil {
		return
	}
	s.metrics.SetQueueDepth(bedClass, len(entries))
}

func (s *Service) refreshAll(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	entries, err := s.repo.List(ctx, "")
	if err != nil {
		return
	}
	depth := make(map[string]int)
	for _, e := range entries {
		depth[e.BedClass]++
	}
	s.metrics.QueueDepth.Reset()
	for class, n := range depth {
		s.metrics.SetQueueDepth(class, n)
	}
}
