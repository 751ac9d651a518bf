package bed

import (
	"context"

	"github.com/ehr/bedflow/internal/platform/apperr"
	"github.com/ehr/bedflow/internal/platform/operation"
)

// RegisterOperations exposes the bed state machine through the generic call
// interface.
func RegisterOperations(reg *operation.Registry, svc *Service) {
	bedID := operation.Param{Name: "bedId", Type: "uuid", Required: true}
	turnoverID := operation.Param{Name: "turnoverId", Type: "uuid", Required: true}

	reg.MustRegister(&operation.Definition{
		Name:         "admitPatient",
		Title:        "Admit patient",
		Description:  "Place a patient in an available bed",
		AffectsState: true,
		Params: []operation.Param{
			bedID,
			{Name: "patientId", Type: "uuid", Required: true},
			{Name: "admissionTime", Type: "time", Documentation: "defaults to now"},
		},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		b, err := a.UUID("bedId")
		if err != nil {
			return nil, err
		}
		p, err := a.UUID("patientId")
		if err != nil {
			return nil, err
		}
		at, err := a.OptTime("admissionTime")
		if err != nil {
			return nil, err
		}
		return svc.Admit(ctx, b, p, at)
	})

	reg.MustRegister(&operation.Definition{
		Name:         "dischargeBed",
		Title:        "Discharge bed",
		Description:  "Discharge the occupant and open a turnover",
		AffectsState: true,
		Params: []operation.Param{
			bedID,
			{Name: "dischargeTime", Type: "time", Documentation: "defaults to now"},
		},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		b, err := a.UUID("bedId")
		if err != nil {
			return nil, err
		}
		at, err := a.OptTime("dischargeTime")
		if err != nil {
			return nil, err
		}
		return svc.Discharge(ctx, b, at)
	})

	reg.MustRegister(&operation.Definition{
		Name:         "startTurnover",
		Title:        "Start cleaning",
		Description:  "Mark the open turnover of a cleaning bed as in progress",
		AffectsState: true,
		Params:       []operation.Param{bedID},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		b, err := a.UUID("bedId")
		if err != nil {
			return nil, err
		}
		return svc.StartCleaning(ctx, b)
	})

	reg.MustRegister(&operation.Definition{
		Name:         "requestInspection",
		Title:        "Request inspection",
		AffectsState: true,
		Params:       []operation.Param{turnoverID},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		id, err := a.UUID("turnoverId")
		if err != nil {
			return nil, err
		}
		return svc.RequestInspection(ctx, id)
	})

	reg.MustRegister(&operation.Definition{
		Name:         "completeCleaning",
		Title:        "Complete cleaning",
		Description:  "Record the inspection outcome; a pass frees the bed and matches the queue",
		AffectsState: true,
		Params: []operation.Param{
			turnoverID,
			{Name: "inspectionPassed", Type: "bool", Required: true},
			{Name: "notes", Type: "string"},
		},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		id, err := a.UUID("turnoverId")
		if err != nil {
			return nil, err
		}
		passed, err := a.Bool("inspectionPassed")
		if err != nil {
			return nil, err
		}
		notes, err := a.OptString("notes")
		if err != nil {
			return nil, err
		}
		return svc.CompleteCleaning(ctx, id, passed, notes)
	})

	reg.MustRegister(&operation.Definition{
		Name:         "markMaintenance",
		Title:        "Mark maintenance",
		AffectsState: true,
		Params:       []operation.Param{bedID, {Name: "reason", Type: "string"}},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		b, err := a.UUID("bedId")
		if err != nil {
			return nil, err
		}
		reason, err := a.OptString("reason")
		if err != nil {
			return nil, err
		}
		return svc.MarkMaintenance(ctx, b, reason)
	})

	reg.MustRegister(&operation.Definition{
		Name:         "clearMaintenance",
		Title:        "Clear maintenance",
		AffectsState: true,
		Params:       []operation.Param{bedID},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		b, err := a.UUID("bedId")
		if err != nil {
			return nil, err
		}
		return svc.ClearMaintenance(ctx, b)
	})

	reg.MustRegister(&operation.Definition{
		Name:         "assignNextFromQueue",
		Title:        "Assign next from queue",
		Description:  "Admit the highest-priority waiting patient of the bed's class",
		AffectsState: true,
		Params:       []operation.Param{bedID},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		b, err := a.UUID("bedId")
		if err != nil {
			return nil, err
		}
		return svc.AssignNextFromQueue(ctx, b)
	})

	reg.MustRegister(&operation.Definition{
		Name:        "getBedStatus",
		Title:       "Bed status",
		Description: "Status, occupant and turnover progress of one bed",
		Params:      []operation.Param{bedID},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		b, err := a.UUID("bedId")
		if err != nil {
			return nil, err
		}
		return svc.Status(ctx, b)
	})

	reg.MustRegister(&operation.Definition{
		Name:  "listBeds",
		Title: "List beds",
		Params: []operation.Param{
			{Name: "department", Type: "string"},
			{Name: "bedClass", Type: "string"},
			{Name: "status", Type: "string"},
		},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		var (
			f   Filter
			err error
		)
		if f.Department, err = a.OptString("department"); err != nil {
			return nil, err
		}
		if f.BedClass, err = a.OptString("bedClass"); err != nil {
			return nil, err
		}
		s, err := a.OptString("status")
		if err != nil {
			return nil, err
		}
		if s != "" {
			st, ok := ParseStatus(s)
			if !ok {
				return nil, apperr.Validation("unknown bed status %q", s)
			}
			f.Status = st
		}
		return svc.ListBeds(ctx, f)
	})
}
