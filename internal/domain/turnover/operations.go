package turnover

import (
	"context"

	"github.com/ehr/bedflow/internal/platform/operation"
)

func RegisterOperations(reg *operation.Registry, tracker *Tracker) {
	h := NewHandler(tracker)
	reg.MustRegister(&operation.Definition{
		Name:        "getTurnoverHistory",
		Title:       "Turnover history",
		Description: "Turnover records of a bed, newest first",
		Params: []operation.Param{
			{Name: "bedId", Type: "uuid", Required: true},
			{Name: "limit", Type: "int"},
		},
	}, func(ctx context.Context, a operation.Args) (interface{}, error) {
		bedID, err := a.UUID("bedId")
		if err != nil {
			return nil, err
		}
		limit, err := a.OptInt("limit", 0)
		if err != nil {
			return nil, err
		}
		items, err := tracker.History(ctx, bedID, limit)
		if err != nil {
			return nil, err
		}
		views := make([]recordView, 0, len(items))
		for _, r := range items {
			views = append(views, h.view(r))
		}
		return views, nil
	})
}
