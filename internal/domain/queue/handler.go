package queue

import (
	"net/http"

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
	readGroup := api.Group("", auth.RequireRole(auth.RoleBedManager, auth.RoleNurse, auth.RolePhysician))
	readGroup.GET("/queue", h.ListQueue)
	readGroup.GET("/queue/patients/:patientId/position", h.GetPosition)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleBedManager, auth.RoleNurse))
	writeGroup.POST("/queue", h.Enqueue)
	writeGroup.DELETE("/queue/:id", h.Remove)
}

type enqueueRequest struct {
	PatientID uuid.UUID `json:"patient_id" validate:"required"`
	BedClass  string    `json:"bed_class" validate:"required"`
	Priority  int       `json:"priority" validate:"required,min=1,max=4"`
	Notes     string    `json:"notes"`
}

func (h *Handler) Enqueue(c echo.Context) error {
	var req enqueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return apperr.ToHTTP(err)
	}
	e, err := h.svc.Enqueue(c.Request().Context(), req.PatientID, req.BedClass, req.Priority, req.Notes)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) ListQueue(c echo.Context) error {
	entries, err := h.svc.List(c.Request().Context(), c.QueryParam("bed_class"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) Remove(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Remove(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetPosition(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pos, err := h.svc.Position(c.Request().Context(), patientID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pos)
}
