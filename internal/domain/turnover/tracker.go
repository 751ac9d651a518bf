package turnover

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

const DefaultEstimateMinutes = 30

// Tracker owns the turnover record lifecycle and computes cleaning progress.
// Progress is informational: it never gates completion and records never
// expire on their own.
type Tracker struct {
	repo           Repository
	defaultMinutes int
	classMinutes   map[string]int
	now            func() time.Time
}

func NewTracker(repo Repository, defaultMinutes int, classMinutes map[string]int) *Tracker {
	if defaultMinutes <= 0 {
		defaultMinutes = DefaultEstimateMinutes
	}
	normalized := make(map[string]int, len(classMinutes))
	for k, v := range classMinutes {
		normalized[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &Tracker{
		repo:           repo,
		defaultMinutes: defaultMinutes,
		classMinutes:   normalized,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// ParseClassMinutes parses overrides of the form "icu=60,isolation=90".
func ParseClassMinutes(s string) (map[string]int, error) {
	out := make(map[string]int)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("turnover class override %q: expected class=minutes", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("turnover class override %q: minutes must be a positive integer", part)
		}
		out[strings.ToLower(strings.TrimSpace(k))] = n
	}
	return out, nil
}

// Estimate returns the expected cleaning duration in minutes for a bed class.
func (t *Tracker) Estimate(bedClass string) int {
	if m, ok := t.classMinutes[strings.ToLower(bedClass)]; ok {
		return m
	}
	return t.defaultMinutes
}

func estimated(r *Record) time.Duration {
	return time.Duration(r.EstimatedMinutes) * time.Minute
}

// TimeRemaining is max(0, estimated - elapsed since cleaning started).
func TimeRemaining(r *Record, now time.Time) time.Duration {
	rem := estimated(r) - now.Sub(r.CleaningStartedAt)
	if rem < 0 {
		return 0
	}
	return rem
}

// ProgressPercentage is min(100, elapsed / estimated * 100).
func ProgressPercentage(r *Record, now time.Time) float64 {
	est := estimated(r)
	if est <= 0 {
		return 100
	}
	elapsed := now.Sub(r.CleaningStartedAt)
	if elapsed < 0 {
		return 0
	}
	return math.Min(100, float64(elapsed)/float64(est)*100)
}

type Progress struct {
	EstimatedMinutes int     `json:"estimated_minutes"`
	ElapsedMinutes   float64 `json:"elapsed_minutes"`
	RemainingMinutes float64 `json:"remaining_minutes"`
	Percent          float64 `json:"percent"`
	Overdue          bool    `json:"overdue"`
}

func (t *Tracker) Progress(r *Record) Progress {
	now := t.now()
	elapsed := now.Sub(r.CleaningStartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return Progress{
		EstimatedMinutes: r.EstimatedMinutes,
		ElapsedMinutes:   math.Round(elapsed.Minutes()*10) / 10,
		RemainingMinutes: math.Round(TimeRemaining(r, now).Minutes()*10) / 10,
		Percent:          math.Round(ProgressPercentage(r, now)*10) / 10,
		Overdue:          elapsed > estimated(r),
	}
}

// Initiate opens a turnover for a vacated bed.
func (t *Tracker) Initiate(ctx context.Context, bedID uuid.UUID, bedClass string, prevPatient *uuid.UUID, prevAdmission *time.Time, dischargeTime time.Time) (*Record, error) {
	rec := &Record{
		BedID:                 bedID,
		PreviousPatientID:     prevPatient,
		PreviousAdmissionTime: prevAdmission,
		DischargeTime:         dischargeTime,
		CleaningStartedAt:     t.now(),
		EstimatedMinutes:      t.Estimate(bedClass),
		Status:                StatusInitiated,
	}
	if err := t.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("initiate turnover: %w", err)
	}
	return rec, nil
}

// StartCleaning moves the bed's open record from initiated to cleaning and
// restarts the timer.
func (t *Tracker) StartCleaning(ctx context.Context, bedID uuid.UUID) (*Record, error) {
	rec, err := t.repo.Open(ctx, bedID)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusInitiated {
		return nil, apperr.InvalidState("turnover %s is %s, cleaning can only start from %s", rec.ID, rec.Status, StatusInitiated)
	}
	rec.Status = StatusCleaning
	rec.CleaningStartedAt = t.now()
	if err := t.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// RequestInspection moves a record from cleaning to awaiting_inspection.
func (t *Tracker) RequestInspection(ctx context.Context, rec *Record) error {
	if rec.Status != StatusCleaning {
		return apperr.InvalidState("turnover %s is %s, inspection can only be requested while %s", rec.ID, rec.Status, StatusCleaning)
	}
	rec.Status = StatusAwaitingInspection
	return t.repo.Update(ctx, rec)
}

// Inspect records an inspection outcome. A pass completes the record; a
// failure sends it back to cleaning with a fresh timer.
func (t *Tracker) Inspect(ctx context.Context, rec *Record, passed bool, notes string) error {
	if !rec.IsOpen() {
		return apperr.InvalidState("turnover %s is already completed", rec.ID)
	}
	now := t.now()
	rec.InspectionAttempts++
	rec.InspectionPassed = &passed
	if notes != "" {
		rec.Notes = &notes
	}

	if passed {
		actual := int(math.Round(now.Sub(rec.CleaningStartedAt).Minutes()))
		if actual < 0 {
			actual = 0
		}
		rec.CompletedAt = &now
		rec.ActualMinutes = &actual
		rec.Status = StatusCompleted
	} else {
		rec.Status = StatusCleaning
		rec.CleaningStartedAt = now
	}
	return t.repo.Update(ctx, rec)
}

func (t *Tracker) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return t.repo.GetByID(ctx, id)
}

func (t *Tracker) Open(ctx context.Context, bedID uuid.UUID) (*Record, error) {
	return t.repo.Open(ctx, bedID)
}

func (t *Tracker) History(ctx context.Context, bedID uuid.UUID, limit int) ([]*Record, error) {
	return t.repo.History(ctx, bedID, limit)
}

func (t *Tracker) Latest(ctx context.Context, bedID uuid.UUID) (*Record, error) {
	return t.repo.Latest(ctx, bedID)
}

func (t *Tracker) LatestForPatient(ctx context.Context, bedID, patientID uuid.UUID) (*Record, error) {
	return t.repo.LatestForPatient(ctx, bedID, patientID)
}
