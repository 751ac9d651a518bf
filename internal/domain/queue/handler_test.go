package queue

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

func TestHandler_Enqueue(t *testing.T) {
	p := uuid.New()
	svc, _ := newTestService(p)
	h := NewHandler(svc)
	e := newTestEcho()

	body := `{"patient_id":"` + p.String() + `","bed_class":"icu","priority":3}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w := httptest.NewRecorder()

	if err := h.Enqueue(e.NewContext(req, w)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var got Entry
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.PatientID != p || got.Priority != 3 {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestHandler_Enqueue_BadPriority(t *testing.T) {
	p := uuid.New()
	svc, _ := newTestService(p)
	h := NewHandler(svc)
	e := newTestEcho()

	body := `{"patient_id":"` + p.String() + `","bed_class":"icu","priority":9}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	err := h.Enqueue(e.NewContext(req, httptest.NewRecorder()))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestHandler_Remove(t *testing.T) {
	p := uuid.New()
	svc, _ := newTestService(p)
	h := NewHandler(svc)
	e := newTestEcho()

	entry, err := svc.Enqueue(context.Background(), p, "icu", 2, "")
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), w)
	c.SetParamNames("id")
	c.SetParamValues(entry.ID.String())
	if err := h.Remove(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(entry.ID.String())
	httpErr, ok := h.Remove(c).(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second remove, got %v", httpErr)
	}
}

func TestHandler_GetPosition(t *testing.T) {
	p := uuid.New()
	svc, _ := newTestService(p)
	h := NewHandler(svc)
	e := newTestEcho()

	if _, err := svc.Enqueue(context.Background(), p, "general", 1, ""); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), w)
	c.SetParamNames("patientId")
	c.SetParamValues(p.String())
	if err := h.GetPosition(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var pos Position
	json.Unmarshal(w.Body.Bytes(), &pos)
	if pos.Position != 1 || pos.Waiting != 1 {
		t.Errorf("unexpected position %+v", pos)
	}
}
