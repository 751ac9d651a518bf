package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/bedflow/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Port:                    "0",
		Env:                     "development",
		StorageDriver:           config.StorageMemory,
		LockBackend:             config.BackendMemory,
		LockWait:                time.Second,
		EventsBackend:           config.BackendWebsocket,
		TurnoverDefaultMinutes:  30,
		TurnoverClassMinutes:    "icu=60",
		ReportWindowPadding:     24 * time.Hour,
		ReportFallbackLimit:     10,
		ReportAdmissionFallback: 24 * time.Hour,
		ReportTimezone:          "UTC",
	}
}

func newTestServer(t *testing.T) *server {
	t.Helper()
	srv, err := newServer(context.Background(), memoryConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_Health(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/health/db", "/metrics"} {
		if rec := do(t, srv, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}

	var body map[string]string
	rec := do(t, srv, http.MethodGet, "/health/db", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["storage"] != "memory" {
		t.Errorf("expected memory storage in health body, got %v", body)
	}
}

func TestNewServer_OperationsListed(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/operations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var defs []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &defs); err != nil {
		t.Fatal(err)
	}
	names := make(map[string]bool, len(defs))
	for _, d := range defs {
		names[d.Name] = true
	}
	for _, want := range []string{
		"admitPatient", "dischargeBed", "startTurnover", "requestInspection",
		"completeCleaning", "markMaintenance", "clearMaintenance", "enqueuePatient",
		"removeFromQueue", "listQueue", "assignNextFromQueue", "generateDischargeReport",
		"getReportByNumber", "getBedStatus", "listBeds", "getTurnoverHistory",
		"recordTreatment", "recordEquipmentUsage", "recordStaffAssignment",
		"recordSupplyUsage", "completeLedgerEntry",
	} {
		if !names[want] {
			t.Errorf("operation %s is not registered", want)
		}
	}
}

func TestNewServer_AdmitThroughOperations(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/beds", `{"label":"A-1","department":"medicine"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bed: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	bedID := created.ID

	rec = do(t, srv, http.MethodPost, "/api/v1/patients", `{"mrn":"MRN-1","last_name":"Okafor"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create patient: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	patientID := created.ID

	rec = do(t, srv, http.MethodPost, "/api/v1/operations/admitPatient",
		`{"bedId":"`+bedID+`","patientId":"`+patientID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("admitPatient: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/operations/admitPatient",
		`{"bedId":"`+bedID+`","patientId":"`+patientID+`"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("second admit: expected 409, got %d", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/beds/"+bedID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get bed: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"occupied"`) {
		t.Errorf("expected occupied bed, got %s", rec.Body.String())
	}
}

func TestNewServer_SandboxOnlyInDevelopment(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/v1/sandbox/seed", `{"bedsPerDepartment":2,"seed":5}`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected sandbox seed in development, got %d: %s", rec.Code, rec.Body.String())
	}

	cfg := memoryConfig()
	cfg.Env = "staging"
	cfg.AuthMode = config.AuthModeDevelopment
	staging, err := newServer(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer staging.Close()
	if rec := do(t, staging, http.MethodPost, "/api/v1/sandbox/seed", `{}`); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 outside development, got %d", rec.Code)
	}
}

func TestNewServer_RejectsBadClassMinutes(t *testing.T) {
	cfg := memoryConfig()
	cfg.TurnoverClassMinutes = "icu"
	if _, err := newServer(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error for malformed TURNOVER_CLASS_MINUTES")
	}
}
