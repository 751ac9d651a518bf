package queue

import (
	"context"

	"github.com/ehr/bedflow/internal/platform/operation"
)

func RegisterOperations(reg *operation.Registry, svc *Service) {
	reg.MustRegister(&operation.Definition{
		Name:         "enqueuePatient",
		Title:        "Enqueue patient",
		Description:  "Add a patient to the waiting queue for a bed class",
		AffectsState: true,
		Params: []operation.Param{
			{Name: "patientId", Type: "uuid", Required: true},
			{Name: "bedClass", Type: "string", Required: true},
			{Name: "priority", Type: "int", Required: true, Documentation: "1 (routine) to 4 (critical)"},
			{Name: "notes", Type: "string"},
		},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		patientID, err := a.UUID("patientId")
		if err != nil {
			return nil, err
		}
		class, err := a.String("bedClass")
		if err != nil {
			return nil, err
		}
		priority, err := a.Int("priority")
		if err != nil {
			return nil, err
		}
		notes, err := a.OptString("notes")
		if err != nil {
			return nil, err
		}
		return svc.Enqueue(ctx, patientID, class, priority, notes)
	})

	reg.MustRegister(&operation.Definition{
		Name:         "removeFromQueue",
		Title:        "Remove from queue",
		AffectsState: true,
		Params:       []operation.Param{{Name: "entryId", Type: "uuid", Required: true}},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		id, err := a.UUID("entryId")
		if err != nil {
			return nil, err
		}
		if err := svc.Remove(ctx, id); err != nil {
			return nil, err
		}
		return map[string]interface{}{"removed": id}, nil
	})

	reg.MustRegister(&operation.Definition{
		Name:        "listQueue",
		Title:       "List queue",
		Description: "Waiting entries in match order",
		Params:      []operation.Param{{Name: "bedClass", Type: "string"}},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		class, err := a.OptString("bedClass")
		if err != nil {
			return nil, err
		}
		return svc.List(ctx, class)
	})
}
