package ledger

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/bedflow/internal/platform/apperr"
	"github.com/ehr/bedflow/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RolePhysician, auth.RoleNurse, auth.RoleBilling))
	readGroup.GET("/ledger", h.ListEntries)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RolePhysician, auth.RoleNurse))
	writeGroup.POST("/ledger/:kind", h.RecordEntry)
	writeGroup.POST("/ledger/:kind/:id/complete", h.CompleteEntry)
}

func (h *Handler) RecordEntry(c echo.Context) error {
	kind, ok := ParseKind(c.Param("kind"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown ledger kind")
	}
	ctx := c.Request().Context()

	var (
		out interface{}
		err error
	)
	switch kind {
	case KindTreatment:
		var t Treatment
		if err := c.Bind(&t); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		out, err = &t, h.svc.RecordTreatment(ctx, &t)
	case KindEquipment:
		var u EquipmentUsage
		if err := c.Bind(&u); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		out, err = &u, h.svc.RecordEquipmentUsage(ctx, &u)
	case KindStaff:
		var a StaffAssignment
		if err := c.Bind(&a); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		out, err = &a, h.svc.RecordStaffAssignment(ctx, &a)
	case KindSupply:
		var s SupplyUsage
		if err := c.Bind(&s); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		out, err = &s, h.svc.RecordSupplyUsage(ctx, &s)
	}
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, out)
}

type completeRequest struct {
	EndedAt *time.Time `json:"ended_at"`
}

func (h *Handler) CompleteEntry(c echo.Context) error {
	kind, ok := ParseKind(c.Param("kind"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown ledger kind")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req completeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Complete(c.Request().Context(), kind, id, req.EndedAt); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListEntries serves three views: a bed trace (bed_id), a patient window
// (patient_id with from and to) or the patient's most recent entries.
func (h *Handler) ListEntries(c echo.Context) error {
	ctx := c.Request().Context()
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	if v := c.QueryParam("bed_id"); v != "" {
		bedID, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid bed_id")
		}
		stay, err := h.svc.BedTrace(ctx, bedID, limit)
		if err != nil {
			return apperr.ToHTTP(err)
		}
		return c.JSON(http.StatusOK, stay)
	}

	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id or bed_id is required")
	}

	from, to := c.QueryParam("from"), c.QueryParam("to")
	if from == "" || to == "" {
		stay, err := h.svc.Recent(ctx, patientID, limit)
		if err != nil {
			return apperr.ToHTTP(err)
		}
		return c.JSON(http.StatusOK, stay)
	}

	fromT, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from")
	}
	toT, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to")
	}
	stay, err := h.svc.Window(ctx, patientID, fromT, toT)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, stay)
}
