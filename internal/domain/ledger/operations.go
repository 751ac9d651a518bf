package ledger

import (
	"context"
	"time"

	"github.com/ehr/bedflow/internal/platform/apperr"
	"github.com/ehr/bedflow/internal/platform/operation"
)

var entryParams = []operation.Param{
	{Name: "patientId", Type: "uuid", Required: true},
	{Name: "bedId", Type: "uuid"},
	{Name: "startedAt", Type: "time", Documentation: "defaults to now"},
	{Name: "endedAt", Type: "time"},
	{Name: "notes", Type: "string"},
}

func withEntryParams(extra ...operation.Param) []operation.Param {
	out := make([]operation.Param, 0, len(entryParams)+len(extra))
	out = append(out, entryParams...)
	return append(out, extra...)
}

// entryArgs reads the shared fields and the notes argument.
func entryArgs(a operation.Args) (Entry, *string, error) {
	var e Entry
	var err error
	if e.PatientID, err = a.UUID("patientId"); err != nil {
		return e, nil, err
	}
	if e.BedID, err = a.OptUUID("bedId"); err != nil {
		return e, nil, err
	}
	started, err := a.OptTime("startedAt")
	if err != nil {
		return e, nil, err
	}
	if started != nil {
		e.StartedAt = *started
	}
	if e.EndedAt, err = a.OptTime("endedAt"); err != nil {
		return e, nil, err
	}
	notes, err := a.OptStringPtr("notes")
	return e, notes, err
}

func RegisterOperations(reg *operation.Registry, svc *Service) {
	reg.MustRegister(&operation.Definition{
		Name:         "recordTreatment",
		Title:        "Record treatment",
		AffectsState: true,
		Params: withEntryParams(
			operation.Param{Name: "name", Type: "string", Required: true},
			operation.Param{Name: "treatmentType", Type: "string"},
			operation.Param{Name: "performedBy", Type: "string"},
		),
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		e, notes, err := entryArgs(a)
		if err != nil {
			return nil, err
		}
		t := &Treatment{Entry: e, Notes: notes}
		if t.Name, err = a.String("name"); err != nil {
			return nil, err
		}
		if t.TreatmentType, err = a.OptString("treatmentType"); err != nil {
			return nil, err
		}
		if t.PerformedBy, err = a.OptStringPtr("performedBy"); err != nil {
			return nil, err
		}
		if err := svc.RecordTreatment(ctx, t); err != nil {
			return nil, err
		}
		return t, nil
	})

	reg.MustRegister(&operation.Definition{
		Name:         "recordEquipmentUsage",
		Title:        "Record equipment usage",
		AffectsState: true,
		Params: withEntryParams(
			operation.Param{Name: "equipmentName", Type: "string", Required: true},
			operation.Param{Name: "equipmentId", Type: "uuid"},
			operation.Param{Name: "equipmentType", Type: "string"},
		),
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		e, notes, err := entryArgs(a)
		if err != nil {
			return nil, err
		}
		u := &EquipmentUsage{Entry: e, Notes: notes}
		if u.EquipmentName, err = a.String("equipmentName"); err != nil {
			return nil, err
		}
		if u.EquipmentID, err = a.OptUUID("equipmentId"); err != nil {
			return nil, err
		}
		if u.EquipmentType, err = a.OptStringPtr("equipmentType"); err != nil {
			return nil, err
		}
		if err := svc.RecordEquipmentUsage(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	})

	reg.MustRegister(&operation.Definition{
		Name:         "recordStaffAssignment",
		Title:        "Record staff assignment",
		AffectsState: true,
		Params: withEntryParams(
			operation.Param{Name: "staffName", Type: "string", Required: true},
			operation.Param{Name: "role", Type: "string", Required: true},
			operation.Param{Name: "staffId", Type: "uuid"},
		),
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		e, notes, err := entryArgs(a)
		if err != nil {
			return nil, err
		}
		s := &StaffAssignment{Entry: e, Notes: notes}
		if s.StaffName, err = a.String("staffName"); err != nil {
			return nil, err
		}
		if s.Role, err = a.String("role"); err != nil {
			return nil, err
		}
		if s.StaffID, err = a.OptUUID("staffId"); err != nil {
			return nil, err
		}
		if err := svc.RecordStaffAssignment(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	})

	reg.MustRegister(&operation.Definition{
		Name:         "recordSupplyUsage",
		Title:        "Record supply usage",
		AffectsState: true,
		Params: withEntryParams(
			operation.Param{Name: "supplyName", Type: "string", Required: true},
			operation.Param{Name: "category", Type: "string"},
			operation.Param{Name: "quantity", Type: "number", Documentation: "defaults to 1"},
			operation.Param{Name: "unitCost", Type: "number"},
			operation.Param{Name: "supplyId", Type: "uuid"},
		),
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		e, notes, err := entryArgs(a)
		if err != nil {
			return nil, err
		}
		u := &SupplyUsage{Entry: e, Notes: notes}
		if u.SupplyName, err = a.String("supplyName"); err != nil {
			return nil, err
		}
		if u.Category, err = a.OptString("category"); err != nil {
			return nil, err
		}
		if u.Quantity, err = a.OptNumber("quantity", 1); err != nil {
			return nil, err
		}
		if u.UnitCost, err = a.OptNumber("unitCost", 0); err != nil {
			return nil, err
		}
		if u.SupplyID, err = a.OptUUID("supplyId"); err != nil {
			return nil, err
		}
		if err := svc.RecordSupplyUsage(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	})

	reg.MustRegister(&operation.Definition{
		Name:         "completeLedgerEntry",
		Title:        "Complete ledger entry",
		AffectsState: true,
		Params: []operation.Param{
			{Name: "kind", Type: "string", Required: true, Documentation: "treatment | equipment | staff | supply"},
			{Name: "entryId", Type: "uuid", Required: true},
			{Name: "endedAt", Type: "time", Documentation: "defaults to now"},
		},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		k, err := a.String("kind")
		if err != nil {
			return nil, err
		}
		kind, ok := ParseKind(k)
		if !ok {
			return nil, apperr.Validation("unknown ledger kind %q", k)
		}
		id, err := a.UUID("entryId")
		if err != nil {
			return nil, err
		}
		endedAt, err := a.OptTime("endedAt")
		if err != nil {
			return nil, err
		}
		if err := svc.Complete(ctx, kind, id, endedAt); err != nil {
			return nil, err
		}
		ended := time.Now().UTC()
		if endedAt != nil {
			ended = *endedAt
		}
		return map[string]interface{}{"kind": kind, "id": id, "status": StatusCompleted, "ended_at": ended}, nil
	})
}
