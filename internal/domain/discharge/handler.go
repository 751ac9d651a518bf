package discharge

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/bedflow/internal/platform/apperr"
	"github.com/ehr/bedflow/internal/platform/auth"
	"github.com/ehr/bedflow/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleBilling, auth.RoleBedManager))
	readGroup.GET("/discharge-reports/:number", h.GetReport)
	readGroup.GET("/patients/:id/discharge-reports", h.ListByPatient)

	writeGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleBedManager))
	writeGroup.POST("/discharge-reports", h.Generate)
}

func (h *Handler) Generate(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return apperr.ToHTTP(err)
	}
	req.GeneratedBy = auth.UserIDFromContext(c.Request().Context())
	res, err := h.svc.Generate(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSONBlob(http.StatusCreated, res.Snapshot)
}

// GetReport returns the stored snapshot, or the rendered document with
// ?format=text.
func (h *Handler) GetReport(c echo.Context) error {
	number := c.Param("number")
	ctx := c.Request().Context()
	if c.QueryParam("format") == "text" {
		doc, err := h.svc.RenderByNumber(ctx, number)
		if err != nil {
			return apperr.ToHTTP(err)
		}
		return c.String(http.StatusOK, doc)
	}
	res, err := h.svc.GetByNumber(ctx, number)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSONBlob(http.StatusOK, res.Snapshot)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	p := pagination.FromQuery(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []*Stored{}
	}
	return pagination.JSON(c, items, total, p)
}
