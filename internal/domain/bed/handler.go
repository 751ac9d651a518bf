package bed

import (
	"net/http"
	"time"

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
	readGroup := api.Group("", auth.RequireRole(auth.RoleBedManager, auth.RoleNurse, auth.RolePhysician, auth.RoleHousekeeping))
	readGroup.GET("/beds", h.ListBeds)
	readGroup.GET("/beds/:id", h.GetBed)
	readGroup.GET("/patients", h.ListPatients)
	readGroup.GET("/patients/:id", h.GetPatient)

	clinicalGroup := api.Group("", auth.RequireRole(auth.RoleBedManager, auth.RoleNurse, auth.RolePhysician))
	clinicalGroup.POST("/beds/:id/admit", h.Admit)
	clinicalGroup.POST("/beds/:id/discharge", h.Discharge)
	clinicalGroup.POST("/patients", h.CreatePatient)

	cleaningGroup := api.Group("", auth.RequireRole(auth.RoleBedManager, auth.RoleHousekeeping))
	cleaningGroup.POST("/beds/:id/start-cleaning", h.StartCleaning)
	cleaningGroup.POST("/turnovers/:id/inspection", h.RequestInspection)
	cleaningGroup.POST("/turnovers/:id/complete", h.CompleteCleaning)

	managerGroup := api.Group("", auth.RequireRole(auth.RoleBedManager))
	managerGroup.POST("/beds", h.CreateBed)
	managerGroup.POST("/beds/:id/maintenance", h.MarkMaintenance)
	managerGroup.DELETE("/beds/:id/maintenance", h.ClearMaintenance)
	managerGroup.POST("/beds/:id/assign-next", h.AssignNext)
}

func paramID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// bindValid binds the body and runs the registered validator.
func bindValid(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(v); err != nil {
		return apperr.ToHTTP(err)
	}
	return nil
}

type createBedRequest struct {
	Label      string `json:"label" validate:"required"`
	Room       string `json:"room"`
	Department string `json:"department" validate:"required"`
	BedClass   string `json:"bed_class"`
}

func (h *Handler) CreateBed(c echo.Context) error {
	var req createBedRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	b := &Bed{Label: req.Label, Room: req.Room, Department: req.Department, BedClass: req.BedClass}
	if err := h.svc.CreateBed(c.Request().Context(), b); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) ListBeds(c echo.Context) error {
	f := Filter{
		Department: c.QueryParam("department"),
		BedClass:   c.QueryParam("bed_class"),
	}
	if s := c.QueryParam("status"); s != "" {
		st, ok := ParseStatus(s)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		f.Status = st
	}
	beds, err := h.svc.ListBeds(c.Request().Context(), f)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if beds == nil {
		beds = []*Bed{}
	}
	return c.JSON(http.StatusOK, beds)
}

func (h *Handler) GetBed(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.Status(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, st)
}

type admitRequest struct {
	PatientID     uuid.UUID  `json:"patient_id" validate:"required"`
	AdmissionTime *time.Time `json:"admission_time"`
}

func (h *Handler) Admit(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req admitRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	b, err := h.svc.Admit(c.Request().Context(), id, req.PatientID, req.AdmissionTime)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

type dischargeRequest struct {
	DischargeTime *time.Time `json:"discharge_time"`
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req dischargeRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	res, err := h.svc.Discharge(c.Request().Context(), id, req.DischargeTime)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) StartCleaning(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.StartCleaning(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) RequestInspection(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.RequestInspection(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type completeCleaningRequest struct {
	InspectionPassed *bool  `json:"inspection_passed" validate:"required"`
	Notes            string `json:"notes"`
}

func (h *Handler) CompleteCleaning(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req completeCleaningRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	res, err := h.svc.CompleteCleaning(c.Request().Context(), id, *req.InspectionPassed, req.Notes)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

type maintenanceRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) MarkMaintenance(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req maintenanceRequest
	if c.Request().ContentLength > 0 {
		if err := bindValid(c, &req); err != nil {
			return err
		}
	}
	b, err := h.svc.MarkMaintenance(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ClearMaintenance(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.ClearMaintenance(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) AssignNext(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.AssignNextFromQueue(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

type createPatientRequest struct {
	MRN       string `json:"mrn" validate:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name" validate:"required"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req createPatientRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	p := &Patient{MRN: req.MRN, FirstName: req.FirstName, LastName: req.LastName}
	if err := h.svc.CreatePatient(c.Request().Context(), p); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	p := pagination.FromQuery(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []*Patient{}
	}
	return pagination.JSON(c, items, total, p)
}
