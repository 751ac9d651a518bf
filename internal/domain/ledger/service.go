package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Reader exposes the read side for reconciliation.
func (s *Service) Reader() Reader {
	return s.repo
}

// prepare validates the shared fields and fills defaults.
func prepare(e *Entry) error {
	if e.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required")
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	if e.EndedAt != nil {
		if e.EndedAt.Before(e.StartedAt) {
			return apperr.Validation("ended_at must not be before started_at")
		}
		e.Status = StatusCompleted
	} else {
		e.Status = StatusActive
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.Validation("%s is required", field)
	}
	return nil
}

func (s *Service) RecordTreatment(ctx context.Context, t *Treatment) error {
	if err := prepare(&t.Entry); err != nil {
		return err
	}
	if err := required("name", t.Name); err != nil {
		return err
	}
	if t.TreatmentType == "" {
		t.TreatmentType = "general"
	}
	return s.repo.AddTreatment(ctx, t)
}

func (s *Service) RecordEquipmentUsage(ctx context.Context, u *EquipmentUsage) error {
	if err := prepare(&u.Entry); err != nil {
		return err
	}
	if err := required("equipment_name", u.EquipmentName); err != nil {
		return err
	}
	return s.repo.AddEquipmentUsage(ctx, u)
}

func (s *Service) RecordStaffAssignment(ctx context.Context, a *StaffAssignment) error {
	if err := prepare(&a.Entry); err != nil {
		return err
	}
	if err := required("staff_name", a.StaffName); err != nil {
		return err
	}
	if err := required("role", a.Role); err != nil {
		return err
	}
	return s.repo.AddStaffAssignment(ctx, a)
}

func (s *Service) RecordSupplyUsage(ctx context.Context, u *SupplyUsage) error {
	if err := prepare(&u.Entry); err != nil {
		return err
	}
	if err := required("supply_name", u.SupplyName); err != nil {
		return err
	}
	if u.Quantity <= 0 {
		return apperr.Validation("quantity must be positive")
	}
	if u.UnitCost < 0 {
		return apperr.Validation("unit_cost must not be negative")
	}
	return s.repo.AddSupplyUsage(ctx, u)
}

// Complete closes an entry. endedAt defaults to now.
func (s *Service) Complete(ctx context.Context, kind Kind, id uuid.UUID, endedAt *time.Time) error {
	if id == uuid.Nil {
		return apperr.Validation("entry id is required")
	}
	end := time.Now().UTC()
	if endedAt != nil {
		end = endedAt.UTC()
	}
	return s.repo.Complete(ctx, kind, id, end)
}

// Stay groups the entries of every category.
type Stay struct {
	Treatments []*Treatment       `json:"treatments"`
	Equipment  []*EquipmentUsage  `json:"equipment"`
	Staff      []*StaffAssignment `json:"staff"`
	Supplies   []*SupplyUsage     `json:"supplies"`
}

// Collect runs q against every category.
func Collect(ctx context.Context, r Reader, q Query) (*Stay, error) {
	var (
		st  Stay
		err error
	)
	if st.Treatments, err = r.Treatments(ctx, q); err != nil {
		return nil, err
	}
	if st.Equipment, err = r.EquipmentUsages(ctx, q); err != nil {
		return nil, err
	}
	if st.Staff, err = r.StaffAssignments(ctx, q); err != nil {
		return nil, err
	}
	if st.Supplies, err = r.SupplyUsages(ctx, q); err != nil {
		return nil, err
	}
	return &st, nil
}

// Window returns the patient's entries started within [from, to].
func (s *Service) Window(ctx context.Context, patientID uuid.UUID, from, to time.Time) (*Stay, error) {
	if to.Before(from) {
		return nil, apperr.Validation("window end must not be before its start")
	}
	return Collect(ctx, s.repo, Query{PatientID: &patientID, From: &from, To: &to})
}

// Recent returns the n newest entries of each category for the patient.
func (s *Service) Recent(ctx context.Context, patientID uuid.UUID, n int) (*Stay, error) {
	if n <= 0 {
		n = 10
	}
	return Collect(ctx, s.repo, Query{PatientID: &patientID, Limit: n, Newest: true})
}

// BedTrace returns every entry that references the bed, newest first.
func (s *Service) BedTrace(ctx context.Context, bedID uuid.UUID, limit int) (*Stay, error) {
	return Collect(ctx, s.repo, Query{BedID: &bedID, Limit: limit, Newest: true})
}
