package turnover

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/bedflow/internal/platform/apperr"
	"github.com/ehr/bedflow/internal/platform/auth"
)

type Handler struct {
	tracker *Tracker
}

func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleBedManager, auth.RoleHousekeeping, auth.RoleNurse))
	readGroup.GET("/beds/:id/turnovers", h.ListHistory)
	readGroup.GET("/turnovers/:id", h.GetTurnover)
}

type recordView struct {
	*Record
	Progress *Progress `json:"progress,omitempty"`
}

func (h *Handler) view(r *Record) recordView {
	v := recordView{Record: r}
	if r.IsOpen() {
		p := h.tracker.Progress(r)
		v.Progress = &p
	}
	return v
}

func (h *Handler) GetTurnover(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.tracker.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, h.view(rec))
}

func (h *Handler) ListHistory(c echo.Context) error {
	bedID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bed id")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items, err := h.tracker.History(c.Request().Context(), bedID, limit)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	views := make([]recordView, 0, len(items))
	for _, r := range items {
		views = append(views, h.view(r))
	}
	return c.JSON(http.StatusOK, views)
}
