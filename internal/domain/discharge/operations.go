package discharge

import (
	"context"
	"encoding/json"

	"github.com/ehr/bedflow/internal/platform/auth"
	"github.com/ehr/bedflow/internal/platform/operation"
)

// reportView pairs the stored snapshot with its rendered document.
type reportView struct {
	Report   json.RawMessage `json:"report"`
	Document string          `json:"document,omitempty"`
}

func RegisterOperations(reg *operation.Registry, svc *Service) {
	reg.MustRegister(&operation.Definition{
		Name:         "generateDischargeReport",
		Title:        "Generate discharge report",
		Description:  "Reconcile a stay and persist an immutable discharge report",
		AffectsState: true,
		Params: []operation.Param{
			{Name: "bedId", Type: "uuid", Required: true},
			{Name: "patientId", Type: "uuid", Documentation: "overrides the resolved occupant"},
			{Name: "dischargeCondition", Type: "string", Required: true},
			{Name: "destination", Type: "string", Required: true},
			{Name: "instructions", Type: "string"},
			{Name: "dischargeTime", Type: "time"},
		},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		var (
			req Request
			err error
		)
		if req.BedID, err = a.UUID("bedId"); err != nil {
			return nil, err
		}
		if req.PatientID, err = a.OptUUID("patientId"); err != nil {
			return nil, err
		}
		if req.DischargeCondition, err = a.String("dischargeCondition"); err != nil {
			return nil, err
		}
		if req.Destination, err = a.String("destination"); err != nil {
			return nil, err
		}
		if req.Instructions, err = a.OptString("instructions"); err != nil {
			return nil, err
		}
		if req.DischargeTime, err = a.OptTime("dischargeTime"); err != nil {
			return nil, err
		}
		req.GeneratedBy = auth.UserIDFromContext(ctx)
		res, err := svc.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		return res.Snapshot, nil
	})

	reg.MustRegister(&operation.Definition{
		Name:        "getReportByNumber",
		Title:       "Get discharge report",
		Description: "Stored snapshot plus the document rendered on demand",
		Params:      []operation.Param{{Name: "reportNumber", Type: "string", Required: true}},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		number, err := a.String("reportNumber")
		if err != nil {
			return nil, err
		}
		res, err := svc.GetByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		doc, err := svc.RenderByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		return reportView{Report: res.Snapshot, Document: doc}, nil
	})
}
