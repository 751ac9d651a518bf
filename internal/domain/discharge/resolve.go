package discharge

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedflow/internal/domain/bed"
	"github.com/ehr/bedflow/internal/domain/ledger"
	"github.com/ehr/bedflow/internal/domain/turnover"
	"github.com/ehr/bedflow/internal/platform/apperr"
)

type Beds interface {
	GetByID(ctx context.Context, id uuid.UUID) (*bed.Bed, error)
}

type Patients interface {
	GetByID(ctx context.Context, id uuid.UUID) (*bed.Patient, error)
}

// Turnovers is the turnover history consulted for vacated beds.
type Turnovers interface {
	Latest(ctx context.Context, bedID uuid.UUID) (*turnover.Record, error)
	LatestForPatient(ctx context.Context, bedID, patientID uuid.UUID) (*turnover.Record, error)
}

// stay is the resolved subject of a report before the window is read.
type stay struct {
	bed       *bed.Bed
	patientID uuid.UUID
	admission time.Time
	discharge time.Time
	res       Resolution
}

// recorded holds the boundaries found while resolving the patient.
type recorded struct {
	admission       *time.Time
	admissionSource string
	discharge       *time.Time
	dischargeSource string
	degraded        []string
}

// missing treats not-found as absence and passes other errors through.
func missing(err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if apperr.IsKind(err, apperr.KindNotFound) {
		return true, nil
	}
	return false, err
}

// resolvePatient walks the occupant chain: explicit patient, current
// occupant, latest turnover, then ledger entries referencing the bed.
func (s *Service) resolvePatient(ctx context.Context, b *bed.Bed, explicit *uuid.UUID) (uuid.UUID, string, recorded, error) {
	if explicit != nil && *explicit != uuid.Nil {
		rec, err := s.recordedFor(ctx, b, *explicit)
		return *explicit, SourceExplicit, rec, err
	}

	if b.CurrentPatientID != nil {
		return *b.CurrentPatientID, SourceOccupant, recorded{admission: b.AdmissionTime, admissionSource: SourceBed}, nil
	}

	tr, err := s.turnovers.Latest(ctx, b.ID)
	if gone, err := missing(err); err != nil {
		return uuid.Nil, "", recorded{}, err
	} else if !gone && tr.PreviousPatientID != nil {
		rec := recorded{discharge: &tr.DischargeTime, dischargeSource: SourceTurnover}
		if tr.PreviousAdmissionTime != nil {
			rec.admission, rec.admissionSource = tr.PreviousAdmissionTime, SourceTurnover
		}
		return *tr.PreviousPatientID, SourceTurnover, rec, nil
	}

	patientID, ok, err := s.latestLedgerPatient(ctx, b.ID)
	if err != nil {
		return uuid.Nil, "", recorded{}, err
	}
	if !ok {
		return uuid.Nil, "", recorded{}, apperr.NotFound("no occupant, current or historical, for this bed")
	}
	rec := recorded{}
	if b.DischargeTime != nil {
		rec.discharge, rec.dischargeSource = b.DischargeTime, SourceBed
	}
	return patientID, SourceLedger, rec, nil
}

// recordedFor finds the stay boundaries the bed or its turnover history
// recorded for a given patient.
func (s *Service) recordedFor(ctx context.Context, b *bed.Bed, patientID uuid.UUID) (recorded, error) {
	if b.CurrentPatientID != nil && *b.CurrentPatientID == patientID {
		return recorded{admission: b.AdmissionTime, admissionSource: SourceBed}, nil
	}
	tr, err := s.turnovers.LatestForPatient(ctx, b.ID, patientID)
	if gone, err := missing(err); err != nil {
		return recorded{}, err
	} else if gone {
		return vacatedBedTimes(b), nil
	}
	rec := recorded{discharge: &tr.DischargeTime, dischargeSource: SourceTurnover}
	if tr.PreviousAdmissionTime != nil {
		rec.admission, rec.admissionSource = tr.PreviousAdmissionTime, SourceTurnover
	}
	return rec, nil
}

// vacatedBedTimes falls back to the stay boundaries stored on a vacated bed.
// An occupied bed's times belong to its occupant and are never borrowed.
func vacatedBedTimes(b *bed.Bed) recorded {
	var rec recorded
	if b.CurrentPatientID != nil {
		return rec
	}
	if b.AdmissionTime != nil {
		rec.admission, rec.admissionSource = b.AdmissionTime, SourceBed
	}
	if b.DischargeTime != nil {
		rec.discharge, rec.dischargeSource = b.DischargeTime, SourceBed
	}
	if rec.admission != nil || rec.discharge != nil {
		rec.degraded = append(rec.degraded, "override_bed_times")
	}
	return rec
}

// latestLedgerPatient returns the patient of the most recent ledger entry
// for the bed, consulting treatments, then equipment, then staff.
func (s *Service) latestLedgerPatient(ctx context.Context, bedID uuid.UUID) (uuid.UUID, bool, error) {
	q := ledger.Query{BedID: &bedID, Limit: 1, Newest: true}

	treatments, err := s.ledger.Treatments(ctx, q)
	if err != nil {
		return uuid.Nil, false, err
	}
	if len(treatments) > 0 {
		return treatments[0].PatientID, true, nil
	}
	equipment, err := s.ledger.EquipmentUsages(ctx, q)
	if err != nil {
		return uuid.Nil, false, err
	}
	if len(equipment) > 0 {
		return equipment[0].PatientID, true, nil
	}
	staff, err := s.ledger.StaffAssignments(ctx, q)
	if err != nil {
		return uuid.Nil, false, err
	}
	if len(staff) > 0 {
		return staff[0].PatientID, true, nil
	}
	return uuid.Nil, false, nil
}

// earliestLedger returns the oldest StartedAt across every category for the
// patient on the bed.
func (s *Service) earliestLedger(ctx context.Context, patientID, bedID uuid.UUID) (*time.Time, error) {
	st, err := ledger.Collect(ctx, s.ledger, ledger.Query{PatientID: &patientID, BedID: &bedID, Limit: 1})
	if err != nil {
		return nil, err
	}
	var earliest *time.Time
	consider := func(t time.Time) {
		if earliest == nil || t.Before(*earliest) {
			v := t
			earliest = &v
		}
	}
	for _, e := range st.Treatments {
		consider(e.StartedAt)
	}
	for _, e := range st.Equipment {
		consider(e.StartedAt)
	}
	for _, e := range st.Staff {
		consider(e.StartedAt)
	}
	for _, e := range st.Supplies {
		consider(e.StartedAt)
	}
	return earliest, nil
}

// isDateOnly reports whether t sits exactly on midnight in loc.
func isDateOnly(t time.Time, loc *time.Location) bool {
	l := t.In(loc)
	return l.Hour() == 0 && l.Minute() == 0 && l.Second() == 0 && l.Nanosecond() == 0
}

// atTimeOfDay keeps the calendar date of day and takes the clock from now.
func atTimeOfDay(day, now time.Time, loc *time.Location) time.Time {
	d, n := day.In(loc), now.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), n.Hour(), n.Minute(), n.Second(), 0, loc).UTC()
}

// resolveStay determines the patient, admission and discharge for a report.
func (s *Service) resolveStay(ctx context.Context, b *bed.Bed, req Request) (*stay, error) {
	patientID, source, rec, err := s.resolvePatient(ctx, b, req.PatientID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	st := &stay{bed: b, patientID: patientID, res: Resolution{PatientSource: source}}
	for _, path := range rec.degraded {
		st.res.degrade(path)
	}

	switch {
	case rec.admission != nil:
		st.admission, st.res.AdmissionSource = rec.admission.UTC(), rec.admissionSource
	default:
		earliest, err := s.earliestLedger(ctx, patientID, b.ID)
		if err != nil {
			return nil, err
		}
		if earliest != nil {
			st.admission, st.res.AdmissionSource = earliest.UTC(), SourceLedger
		} else {
			st.admission, st.res.AdmissionSource = now.Add(-s.cfg.AdmissionFallback), SourceFallback
			st.res.degrade("admission_fallback")
		}
	}

	switch {
	case req.DischargeTime != nil:
		st.discharge, st.res.DischargeSource = req.DischargeTime.UTC(), SourceExplicit
	case rec.discharge != nil && isDateOnly(*rec.discharge, s.cfg.Location):
		st.discharge, st.res.DischargeSource = atTimeOfDay(*rec.discharge, now, s.cfg.Location), SourceReinterpreted
	case rec.discharge != nil:
		st.discharge, st.res.DischargeSource = rec.discharge.UTC(), rec.dischargeSource
	default:
		st.discharge, st.res.DischargeSource = now, SourceNow
	}
	return st, nil
}

// LengthOfStay counts calendar days between the admission and discharge
// dates in loc, never negative.
func LengthOfStay(admission, discharge time.Time, loc *time.Location) int {
	a, d := admission.In(loc), discharge.In(loc)
	start := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	days := (end.Unix() - start.Unix()) / 86400
	if days < 0 {
		return 0
	}
	return int(days)
}
