package bed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/bedflow/internal/platform/middleware"
)

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = middleware.NewValidator()
	return e
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_AdmitAndDischarge(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := newTestEcho()
	b := f.bed(t, "B1", "general")
	p := f.patient(t, "P1")

	w := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"patient_id":"`+p.ID.String()+`"}`), w)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	if err := h.Admit(c); err != nil {
		t.Fatalf("admit: %v", err)
	}
	var admitted Bed
	json.Unmarshal(w.Body.Bytes(), &admitted)
	if admitted.Status != StatusOccupied {
		t.Fatalf("expected occupied, got %s", admitted.Status)
	}

	w = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), w)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	if err := h.Discharge(c); err != nil {
		t.Fatalf("discharge: %v", err)
	}
	var res DischargeResult
	json.Unmarshal(w.Body.Bytes(), &res)
	if res.Bed.Status != StatusCleaning || res.Turnover == nil {
		t.Fatalf("unexpected discharge result %+v", res)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	httpErr, ok := h.Discharge(c).(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double discharge, got %v", httpErr)
	}
}

func TestHandler_Admit_MissingPatient(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := newTestEcho()
	b := f.bed(t, "B1", "general")

	c := e.NewContext(jsonRequest(http.MethodPost, `{}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	httpErr, ok := h.Admit(c).(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", httpErr)
	}
}

func TestHandler_CompleteCleaning_RequiresOutcome(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := newTestEcho()

	c := e.NewContext(jsonRequest(http.MethodPost, `{"notes":"done"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	httpErr, ok := h.CompleteCleaning(c).(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", httpErr)
	}
}

func TestHandler_CompleteCleaning(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := newTestEcho()
	ctx := context.Background()
	b := f.bed(t, "B1", "general")
	p := f.patient(t, "P1")
	if _, err := f.svc.Admit(ctx, b.ID, p.ID, nil); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.Discharge(ctx, b.ID, nil)
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"inspection_passed":true}`), w)
	c.SetParamNames("id")
	c.SetParamValues(res.Turnover.ID.String())
	if err := h.CompleteCleaning(c); err != nil {
		t.Fatalf("complete: %v", err)
	}
	var out CleaningResult
	json.Unmarshal(w.Body.Bytes(), &out)
	if out.Bed.Status != StatusAvailable {
		t.Errorf("expected available, got %s", out.Bed.Status)
	}
}

func TestHandler_ListBeds_BadStatus(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := newTestEcho()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?status=dirty", nil), httptest.NewRecorder())
	httpErr, ok := h.ListBeds(c).(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", httpErr)
	}
}

func TestHandler_ListPatients_Paginated(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := newTestEcho()
	for _, mrn := range []string{"A", "B", "C"} {
		f.patient(t, mrn)
	}

	w := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients?limit=2", nil), w)
	if err := h.ListPatients(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var body struct {
		Data    []Patient `json:"data"`
		Total   int       `json:"total"`
		HasMore bool      `json:"has_more"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.Data) != 2 || body.Total != 3 || !body.HasMore {
		t.Errorf("unexpected page %+v", body)
	}
}
