package bed

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/bedflow/internal/domain/queue"
	"github.com/ehr/bedflow/internal/domain/turnover"
	"github.com/ehr/bedflow/internal/platform/apperr"
	"github.com/ehr/bedflow/internal/platform/db"
	"github.com/ehr/bedflow/internal/platform/events"
	"github.com/ehr/bedflow/internal/platform/lock"
	"github.com/ehr/bedflow/internal/platform/metrics"
)

// Service is the bed state machine. It is the only writer of Bed.Status and
// Bed.CurrentPatientID. Every transition holds the bed lock and runs in one
// transactional scope; admission additionally holds the patient lock.
type Service struct {
	beds     BedRepository
	patients PatientRepository
	tracker  *turnover.Tracker
	queue    *queue.Service
	tx       db.Transactor
	locker   lock.Locker
	metrics  *metrics.Metrics
	events   events.Publisher
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(beds BedRepository, patients PatientRepository, tracker *turnover.Tracker, q *queue.Service, tx db.Transactor, locker lock.Locker) *Service {
	if tx == nil {
		tx = db.NopTransactor{}
	}
	return &Service{
		beds:     beds,
		patients: patients,
		tracker:  tracker,
		queue:    q,
		tx:       tx,
		locker:   locker,
		events:   events.Nop{},
		logger:   zerolog.Nop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Service) SetPublisher(p events.Publisher) {
	if p == nil {
		p = events.Nop{}
	}
	s.events = p
}

func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l.With().Str("component", "bed").Logger()
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// withLocks takes keys in the given order and runs fn in one transaction.
// The locks are released only after the transaction has finished.
func (s *Service) withLocks(ctx context.Context, fn func(ctx context.Context) error, keys ...string) error {
	unlock, err := lock.Acquire(ctx, s.locker, keys...)
	if err != nil {
		return err
	}
	defer unlock()
	return s.tx.WithinTx(ctx, fn)
}

// withBed runs fn holding the bed lock inside a transaction.
func (s *Service) withBed(ctx context.Context, bedID uuid.UUID, fn func(ctx context.Context) error) error {
	return s.withLocks(ctx, fn, lock.BedKey(bedID.String()))
}

func (s *Service) CreateBed(ctx context.Context, b *Bed) error {
	b.Label = strings.TrimSpace(b.Label)
	if b.Label == "" {
		return apperr.Validation("label is required")
	}
	if strings.TrimSpace(b.Department) == "" {
		return apperr.Validation("department is required")
	}
	b.BedClass = queue.NormalizeClass(b.BedClass)
	if b.BedClass == "" {
		b.BedClass = "general"
	}
	b.Status = StatusAvailable
	b.CurrentPatientID = nil
	return s.beds.Create(ctx, b)
}

func (s *Service) GetBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return s.beds.GetByID(ctx, id)
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.MRN = strings.TrimSpace(p.MRN)
	if p.MRN == "" {
		return apperr.Validation("mrn is required")
	}
	if strings.TrimSpace(p.LastName) == "" {
		return apperr.Validation("last_name is required")
	}
	if p.Status == "" {
		p.Status = PatientActive
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// Admit places a patient into an available bed.
func (s *Service) Admit(ctx context.Context, bedID, patientID uuid.UUID, admissionTime *time.Time) (*Bed, error) {
	var out *Bed
	err := s.withLocks(ctx, func(ctx context.Context) error {
		b, err := s.admitHoldingBed(ctx, bedID, patientID, admissionTime)
		out = b
		return err
	}, lock.BedKey(bedID.String()), lock.PatientKey(patientID.String()))
	s.metrics.ObserveTransition("admit", err)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeBedAdmitted, out, nil)
	return out, nil
}

// admitHoldingBed runs the admission with the bed and patient locks and the
// transaction already held by the caller.
func (s *Service) admitHoldingBed(ctx context.Context, bedID, patientID uuid.UUID, admissionTime *time.Time) (*Bed, error) {
	b, err := s.beds.GetByIDForUpdate(ctx, bedID)
	if err != nil {
		return nil, err
	}
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	if b.Status != StatusAvailable {
		return nil, apperr.Conflict("bed %s is %s, not available", b.Label, b.Status)
	}
	other, err := s.beds.FindByOccupant(ctx, patientID)
	switch {
	case err == nil:
		return nil, apperr.Conflict("patient %s already occupies bed %s", patientID, other.Label)
	case !apperr.IsKind(err, apperr.KindNotFound):
		return nil, err
	}

	at := s.now()
	if admissionTime != nil {
		at = admissionTime.UTC()
	}
	b.Status = StatusOccupied
	b.CurrentPatientID = &patientID
	b.AdmissionTime = &at
	b.DischargeTime = nil
	b.MaintenanceReason = nil
	if err := s.beds.Update(ctx, b); err != nil {
		return nil, err
	}
	if err := s.patients.UpdateStatus(ctx, patientID, PatientActive); err != nil {
		return nil, err
	}
	if s.queue != nil {
		if _, err := s.queue.RemovePatient(ctx, patientID); err != nil {
			return nil, err
		}
	}
	s.logger.Info().
		Str("bed_id", bedID.String()).
		Str("patient_id", patientID.String()).
		Time("admission_time", at).
		Msg("patient admitted")
	return b, nil
}

// Discharge vacates an occupied bed and opens its turnover.
func (s *Service) Discharge(ctx context.Context, bedID uuid.UUID, dischargeTime *time.Time) (*DischargeResult, error) {
	var out DischargeResult
	err := s.withBed(ctx, bedID, func(ctx context.Context) error {
		b, err := s.beds.GetByIDForUpdate(ctx, bedID)
		if err != nil {
			return err
		}
		if b.Status != StatusOccupied || b.CurrentPatientID == nil {
			return apperr.InvalidState("bed %s is %s, only an occupied bed can be discharged", b.Label, b.Status)
		}
		at := s.now()
		if dischargeTime != nil {
			at = dischargeTime.UTC()
		}
		if b.AdmissionTime != nil && at.Before(*b.AdmissionTime) {
			return apperr.Validation("discharge time %s is before admission time %s",
				at.Format(time.RFC3339), b.AdmissionTime.Format(time.RFC3339))
		}
		patientID := *b.CurrentPatientID

		rec, err := s.tracker.Initiate(ctx, b.ID, b.BedClass, &patientID, b.AdmissionTime, at)
		if err != nil {
			return err
		}
		b.Status = StatusCleaning
		b.CurrentPatientID = nil
		b.DischargeTime = &at
		if err := s.beds.Update(ctx, b); err != nil {
			return err
		}
		if err := s.patients.UpdateStatus(ctx, patientID, PatientDischarged); err != nil {
			return err
		}
		out = DischargeResult{Bed: b, Turnover: rec}
		s.logger.Info().
			Str("bed_id", bedID.String()).
			Str("patient_id", patientID.String()).
			Str("turnover_id", rec.ID.String()).
			Msg("bed discharged")
		return nil
	})
	s.metrics.ObserveTransition("discharge", err)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeBedDischarged, out.Bed, out.Turnover.PreviousPatientID)
	return &out, nil
}

// StartCleaning moves the open turnover from initiated to cleaning.
func (s *Service) StartCleaning(ctx context.Context, bedID uuid.UUID) (*turnover.Record, error) {
	var (
		b   *Bed
		rec *turnover.Record
	)
	err := s.withBed(ctx, bedID, func(ctx context.Context) error {
		var err error
		b, err = s.beds.GetByIDForUpdate(ctx, bedID)
		if err != nil {
			return err
		}
		if b.Status != StatusCleaning {
			return apperr.InvalidState("bed %s is %s, not awaiting turnover", b.Label, b.Status)
		}
		rec, err = s.tracker.StartCleaning(ctx, bedID)
		return err
	})
	s.metrics.ObserveTransition("start_cleaning", err)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeCleaningStarted, b, nil)
	return rec, nil
}

// lockTurnoverBed resolves the bed behind a turnover and runs fn under that
// bed's lock with the record re-read inside the transaction.
func (s *Service) lockTurnoverBed(ctx context.Context, turnoverID uuid.UUID, fn func(ctx context.Context, b *Bed, rec *turnover.Record) error) error {
	rec, err := s.tracker.Get(ctx, turnoverID)
	if err != nil {
		return err
	}
	return s.withBed(ctx, rec.BedID, func(ctx context.Context) error {
		rec, err := s.tracker.Get(ctx, turnoverID)
		if err != nil {
			return err
		}
		b, err := s.beds.GetByIDForUpdate(ctx, rec.BedID)
		if err != nil {
			return err
		}
		if !rec.IsOpen() {
			return apperr.InvalidState("turnover %s is already completed", rec.ID)
		}
		if b.Status != StatusCleaning {
			return apperr.InvalidState("bed %s is %s, not cleaning", b.Label, b.Status)
		}
		return fn(ctx, b, rec)
	})
}

func (s *Service) RequestInspection(ctx context.Context, turnoverID uuid.UUID) (*turnover.Record, error) {
	var (
		b   *Bed
		out *turnover.Record
	)
	err := s.lockTurnoverBed(ctx, turnoverID, func(ctx context.Context, bed *Bed, rec *turnover.Record) error {
		if err := s.tracker.RequestInspection(ctx, rec); err != nil {
			return err
		}
		b, out = bed, rec
		return nil
	})
	s.metrics.ObserveTransition("request_inspection", err)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeInspectionRequested, b, nil)
	return out, nil
}

// CompleteCleaning records an inspection. A pass frees the bed and offers it
// to the queue; a failure keeps the bed cleaning with the record open.
func (s *Service) CompleteCleaning(ctx context.Context, turnoverID uuid.UUID, passed bool, notes string) (*CleaningResult, error) {
	var out CleaningResult
	err := s.lockTurnoverBed(ctx, turnoverID, func(ctx context.Context, b *Bed, rec *turnover.Record) error {
		if err := s.tracker.Inspect(ctx, rec, passed, notes); err != nil {
			return err
		}
		out.Bed, out.Turnover = b, rec
		if !passed {
			s.logger.Info().
				Str("bed_id", b.ID.String()).
				Int("attempts", rec.InspectionAttempts).
				Msg("inspection failed, cleaning restarted")
			return nil
		}
		b.Status = StatusAvailable
		if err := s.beds.Update(ctx, b); err != nil {
			return err
		}
		if rec.ActualMinutes != nil {
			s.metrics.ObserveTurnover(b.BedClass, *rec.ActualMinutes)
		}
		return nil
	})
	s.metrics.ObserveTransition("complete_cleaning", err)
	if err != nil {
		return nil, err
	}
	if !passed {
		s.publish(ctx, events.TypeInspectionFailed, out.Bed, nil)
		return &out, nil
	}
	s.publish(ctx, events.TypeBedAvailable, out.Bed, nil)

	a, err := s.AssignNextFromQueue(ctx, out.Bed.ID)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).
			Str("bed_id", out.Bed.ID.String()).
			Msg("auto-assign after cleaning failed")
	case a.Entry != nil:
		out.Bed = a.Bed
		out.Assignment = a
	}
	return &out, nil
}

// AssignNextFromQueue admits the head of the queue for the bed's class. When
// admission conflicts the entry is restored and one further candidate is
// tried. An empty queue is not an error; the result has a nil Entry.
func (s *Service) AssignNextFromQueue(ctx context.Context, bedID uuid.UUID) (*Assignment, error) {
	if s.queue == nil {
		return nil, apperr.Internal("queue is not configured", nil)
	}
	var (
		out  *Assignment
		held lock.Unlock
	)
	err := s.withBed(ctx, bedID, func(ctx context.Context) error {
		a, unlock, err := s.assignHoldingBed(ctx, bedID)
		out, held = a, unlock
		return err
	})
	if held != nil {
		held()
	}
	s.metrics.ObserveMatch(err)
	if err != nil {
		return nil, err
	}
	if out.Entry != nil {
		s.publish(ctx, events.TypeQueueAssigned, out.Bed, &out.Entry.PatientID)
	}
	return out, nil
}

const maxMatchAttempts = 2

// assignHoldingBed matches the queue head to the bed. On success it returns
// the admitted patient's lock, which the caller releases after commit.
func (s *Service) assignHoldingBed(ctx context.Context, bedID uuid.UUID) (*Assignment, lock.Unlock, error) {
	b, err := s.beds.GetByIDForUpdate(ctx, bedID)
	if err != nil {
		return nil, nil, err
	}
	if b.Status != StatusAvailable {
		return nil, nil, apperr.InvalidState("bed %s is %s, not available", b.Label, b.Status)
	}

	var (
		exclude []uuid.UUID
		lastErr error
	)
	for attempt := 0; attempt < maxMatchAttempts; {
		peeked, err := s.queue.PeekNext(ctx, b.BedClass, exclude)
		if apperr.IsKind(err, apperr.KindNotFound) {
			if lastErr != nil {
				return nil, nil, lastErr
			}
			return &Assignment{Bed: b, Attempts: attempt}, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		exclude = append(exclude, peeked.ID)

		admitted, entry, unlock, err := s.admitQueued(ctx, bedID, peeked)
		if err == nil && entry == nil {
			// admitted elsewhere between peek and take
			continue
		}
		attempt++
		if err == nil {
			s.logger.Info().
				Str("bed_id", bedID.String()).
				Str("patient_id", entry.PatientID.String()).
				Int("priority", entry.Priority).
				Int("attempt", attempt).
				Msg("queued patient assigned")
			return &Assignment{Bed: admitted, Entry: entry, Attempts: attempt}, unlock, nil
		}
		if !apperr.IsKind(err, apperr.KindConflict) {
			return nil, nil, err
		}
		s.logger.Warn().Err(err).
			Str("bed_id", bedID.String()).
			Str("patient_id", peeked.PatientID.String()).
			Msg("queue match conflicted")
		lastErr = err
	}
	return nil, nil, apperr.Conflict("bed %s: queue match conflicted %d times: %v", b.Label, maxMatchAttempts, lastErr)
}

// admitQueued locks the peeked patient, takes the entry and admits it in a
// nested transaction. A failed admission restores the entry. A nil entry with
// a nil error means the entry was already gone.
func (s *Service) admitQueued(ctx context.Context, bedID uuid.UUID, peeked *queue.Entry) (*Bed, *queue.Entry, lock.Unlock, error) {
	unlock, err := s.locker.Lock(ctx, lock.PatientKey(peeked.PatientID.String()))
	if err != nil {
		return nil, nil, nil, err
	}
	entry, err := s.queue.Take(ctx, peeked.ID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		unlock()
		return nil, nil, nil, nil
	}
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}

	var admitted *Bed
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		admitted, err = s.admitHoldingBed(ctx, bedID, entry.PatientID, nil)
		return err
	})
	if err != nil {
		defer unlock()
		if rerr := s.queue.Restore(ctx, entry); rerr != nil {
			return nil, nil, nil, rerr
		}
		return nil, entry, nil, err
	}
	return admitted, entry, unlock, nil
}

func (s *Service) MarkMaintenance(ctx context.Context, bedID uuid.UUID, reason string) (*Bed, error) {
	var out *Bed
	err := s.withBed(ctx, bedID, func(ctx context.Context) error {
		b, err := s.beds.GetByIDForUpdate(ctx, bedID)
		if err != nil {
			return err
		}
		if b.Status != StatusAvailable {
			return apperr.InvalidState("bed %s is %s, only an available bed can go to maintenance", b.Label, b.Status)
		}
		b.Status = StatusMaintenance
		if reason = strings.TrimSpace(reason); reason != "" {
			b.MaintenanceReason = &reason
		}
		if err := s.beds.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	s.metrics.ObserveTransition("mark_maintenance", err)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeMaintenanceStarted, out, nil)
	return out, nil
}

func (s *Service) ClearMaintenance(ctx context.Context, bedID uuid.UUID) (*Bed, error) {
	var out *Bed
	err := s.withBed(ctx, bedID, func(ctx context.Context) error {
		b, err := s.beds.GetByIDForUpdate(ctx, bedID)
		if err != nil {
			return err
		}
		if b.Status != StatusMaintenance {
			return apperr.InvalidState("bed %s is %s, not in maintenance", b.Label, b.Status)
		}
		b.Status = StatusAvailable
		b.MaintenanceReason = nil
		if err := s.beds.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	s.metrics.ObserveTransition("clear_maintenance", err)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeMaintenanceCleared, out, nil)
	return out, nil
}

// Status reads a bed without locking it.
func (s *Service) Status(ctx context.Context, bedID uuid.UUID) (*BedStatus, error) {
	b, err := s.beds.GetByID(ctx, bedID)
	if err != nil {
		return nil, err
	}
	out := &BedStatus{Bed: b}
	if b.CurrentPatientID != nil {
		p, err := s.patients.GetByID(ctx, *b.CurrentPatientID)
		if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
			return nil, err
		}
		out.Occupant = p
	}
	if b.Status == StatusCleaning {
		rec, err := s.tracker.Open(ctx, bedID)
		switch {
		case err == nil:
			progress := s.tracker.Progress(rec)
			out.Turnover = rec
			out.Progress = &progress
		case !apperr.IsKind(err, apperr.KindNotFound):
			return nil, err
		}
	}
	return out, nil
}

func (s *Service) ListBeds(ctx context.Context, f Filter) ([]*Bed, error) {
	f.BedClass = queue.NormalizeClass(f.BedClass)
	return s.beds.List(ctx, f)
}

func (s *Service) publish(ctx context.Context, typ string, b *Bed, patientID *uuid.UUID) {
	if b == nil {
		return
	}
	ev := events.Event{
		Type:       typ,
		BedID:      b.ID.String(),
		Department: b.Department,
		Status:     string(b.Status),
		Timestamp:  s.now(),
	}
	if patientID != nil {
		ev.PatientID = patientID.String()
	} else if b.CurrentPatientID != nil {
		ev.PatientID = b.CurrentPatientID.String()
	}
	if data, err := json.Marshal(b); err == nil {
		ev.Data = data
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event", typ).Msg("publish bed event")
	}
}
