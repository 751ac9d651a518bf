package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

func newTestService() *Service {
	return NewService(NewMemoryRepo())
}

func TestRecordTreatment_Defaults(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	tr := &Treatment{Entry: Entry{PatientID: uuid.New()}, Name: "IV fluids"}
	require.NoError(t, svc.RecordTreatment(ctx, tr))

	assert.NotEqual(t, uuid.Nil, tr.ID)
	assert.False(t, tr.StartedAt.IsZero())
	assert.Equal(t, StatusActive, tr.Status)
	assert.Equal(t, "general", tr.TreatmentType)
}

func TestRecordTreatment_Validation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	cases := []struct {
		name string
		t    *Treatment
	}{
		{"missing patient", &Treatment{Name: "x"}},
		{"missing name", &Treatment{Entry: Entry{PatientID: uuid.New()}}},
		{"inverted times", &Treatment{Entry: Entry{PatientID: uuid.New(), StartedAt: start, EndedAt: &end}, Name: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.RecordTreatment(ctx, tc.t)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation), "got %v", err)
		})
	}
}

func TestRecordWithEnd_IsCompleted(t *testing.T) {
	svc := newTestService()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	a := &StaffAssignment{Entry: Entry{PatientID: uuid.New(), StartedAt: start, EndedAt: &end}, StaffName: "R. Osei", Role: "nurse"}
	require.NoError(t, svc.RecordStaffAssignment(context.Background(), a))
	assert.Equal(t, StatusCompleted, a.Status)
}

func TestRecordSupplyUsage_Validation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	pid := uuid.New()

	err := svc.RecordSupplyUsage(ctx, &SupplyUsage{Entry: Entry{PatientID: pid}, SupplyName: "gauze", Quantity: 0, UnitCost: 1})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	err = svc.RecordSupplyUsage(ctx, &SupplyUsage{Entry: Entry{PatientID: pid}, SupplyName: "gauze", Quantity: 2, UnitCost: -1})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	s := &SupplyUsage{Entry: Entry{PatientID: pid}, SupplyName: "gauze", Category: "dressing", Quantity: 3, UnitCost: 1.5}
	require.NoError(t, svc.RecordSupplyUsage(ctx, s))
	assert.InDelta(t, 4.5, s.Cost(), 0.0001)
}

func TestComplete(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	u := &EquipmentUsage{Entry: Entry{PatientID: uuid.New()}, EquipmentName: "infusion pump"}
	require.NoError(t, svc.RecordEquipmentUsage(ctx, u))

	end := time.Now().UTC()
	require.NoError(t, svc.Complete(ctx, KindEquipment, u.ID, &end))

	err := svc.Complete(ctx, KindEquipment, u.ID, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState), "got %v", err)

	err = svc.Complete(ctx, KindEquipment, uuid.New(), nil)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound), "got %v", err)

	err = svc.Complete(ctx, Kind("meals"), u.ID, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "got %v", err)

	got, err := svc.Reader().EquipmentUsages(ctx, Query{PatientID: &u.PatientID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StatusCompleted, got[0].Status)
	require.NotNil(t, got[0].EndedAt)
	assert.True(t, got[0].EndedAt.Equal(end))
}

func TestQueries(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	pid := uuid.New()
	bed := uuid.New()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		tr := &Treatment{Entry: Entry{PatientID: pid, BedID: &bed, StartedAt: base.Add(time.Duration(i) * 24 * time.Hour)}, Name: "dose"}
		require.NoError(t, svc.RecordTreatment(ctx, tr))
	}
	other := &Treatment{Entry: Entry{PatientID: uuid.New(), StartedAt: base}, Name: "dose"}
	require.NoError(t, svc.RecordTreatment(ctx, other))

	t.Run("window", func(t *testing.T) {
		stay, err := svc.Window(ctx, pid, base.Add(24*time.Hour), base.Add(72*time.Hour))
		require.NoError(t, err)
		require.Len(t, stay.Treatments, 3)
		assert.True(t, stay.Treatments[0].StartedAt.Equal(base.Add(24*time.Hour)))
		assert.Empty(t, stay.Supplies)
	})

	t.Run("inverted window", func(t *testing.T) {
		_, err := svc.Window(ctx, pid, base, base.Add(-time.Hour))
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	})

	t.Run("recent", func(t *testing.T) {
		stay, err := svc.Recent(ctx, pid, 2)
		require.NoError(t, err)
		require.Len(t, stay.Treatments, 2)
		assert.True(t, stay.Treatments[0].StartedAt.Equal(base.Add(96*time.Hour)))
	})

	t.Run("bed trace", func(t *testing.T) {
		stay, err := svc.BedTrace(ctx, bed, 0)
		require.NoError(t, err)
		assert.Len(t, stay.Treatments, 5)
	})
}

func TestMemoryRepo_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	pid := uuid.New()

	require.NoError(t, repo.AddTreatment(ctx, &Treatment{Entry: Entry{PatientID: pid, StartedAt: time.Now()}, Name: "a"}))

	got, err := repo.Treatments(ctx, Query{PatientID: &pid})
	require.NoError(t, err)
	got[0].Name = "mutated"

	again, err := repo.Treatments(ctx, Query{PatientID: &pid})
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].Name)
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("supply")
	assert.True(t, ok)
	assert.Equal(t, KindSupply, k)

	_, ok = ParseKind("meals")
	assert.False(t, ok)
}
