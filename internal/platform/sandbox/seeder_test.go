package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/bedflow/internal/domain/bed"
	"github.com/ehr/bedflow/internal/domain/ledger"
	"github.com/ehr/bedflow/internal/domain/queue"
	"github.com/ehr/bedflow/internal/domain/turnover"
	"github.com/ehr/bedflow/internal/platform/lock"
)

func newTargets() (Targets, bed.BedRepository) {
	beds := bed.NewMemoryBedRepo()
	patients := bed.NewMemoryPatientRepo()
	tracker := turnover.NewTracker(turnover.NewMemoryRepo(), 30, nil)
	q := queue.NewService(queue.NewMemoryRepo(), patients)
	svc := bed.NewService(beds, patients, tracker, q, nil, lock.NewMemoryLocker(time.Second))
	return Targets{Beds: svc, Queue: q, Ledger: ledger.NewService(ledger.NewMemoryRepo())}, beds
}

func smallConfig() SeedConfig {
	return SeedConfig{
		Departments:       []string{"medicine", "icu"},
		BedsPerDepartment: 5,
		OccupancyRate:     0.5,
		QueuedPatients:    3,
		CleaningBeds:      1,
		MaintenanceBeds:   1,
		EntriesPerStay:    4,
		Seed:              42,
	}
}

// ---------------------------------------------------------------------------
// DataGenerator tests
// ---------------------------------------------------------------------------

func TestDataGenerator_GenerateBed(t *testing.T) {
	g := NewDataGenerator(1)
	b := g.GenerateBed("icu", 0)
	if b.Label != "icu-01" || b.Department != "icu" || b.BedClass != "icu" {
		t.Fatalf("unexpected bed %+v", b)
	}
	if g.GenerateBed("medicine", 3).BedClass != "general" {
		t.Error("expected general class outside icu and isolation")
	}
}

func TestDataGenerator_Reproducible(t *testing.T) {
	a, b := NewDataGenerator(7), NewDataGenerator(7)
	for i := 0; i < 5; i++ {
		pa, pb := a.GeneratePatient(), b.GeneratePatient()
		if pa.MRN != pb.MRN || pa.FirstName != pb.FirstName || pa.LastName != pb.LastName {
			t.Fatalf("generators diverged at %d: %+v vs %+v", i, pa, pb)
		}
	}
}

func TestDataGenerator_UniqueMRNs(t *testing.T) {
	g := NewDataGenerator(3)
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		mrn := g.GeneratePatient().MRN
		if seen[mrn] {
			t.Fatalf("duplicate MRN %s", mrn)
		}
		seen[mrn] = true
	}
}

func TestSeedConfig_Defaults(t *testing.T) {
	c := SeedConfig{Departments: []string{" ", "ICU "}, OccupancyRate: 3}.withDefaults()
	if len(c.Departments) != 1 || c.Departments[0] != "icu" {
		t.Errorf("unexpected departments %v", c.Departments)
	}
	if c.OccupancyRate != DefaultSeedConfig().OccupancyRate || c.BedsPerDepartment != 8 {
		t.Errorf("defaults not applied: %+v", c)
	}
}

// ---------------------------------------------------------------------------
// Seeder tests
// ---------------------------------------------------------------------------

func TestSeeder_Seed(t *testing.T) {
	targets, beds := newTargets()
	ctx := context.Background()

	res, err := NewSeeder(smallConfig(), targets).Seed(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if res.Beds != 10 || res.Queued != 3 {
		t.Fatalf("unexpected result %+v", res)
	}

	all, err := beds.List(ctx, bed.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	counts := map[bed.Status]int{}
	for _, b := range all {
		counts[b.Status]++
		if (b.CurrentPatientID != nil) != (b.Status == bed.StatusOccupied) {
			t.Errorf("bed %s breaks the occupant invariant", b.Label)
		}
	}
	if counts[bed.StatusOccupied] != res.Occupied || counts[bed.StatusCleaning] != res.Cleaning ||
		counts[bed.StatusMaintenance] != res.Maintenance {
		t.Errorf("board %v does not match result %+v", counts, res)
	}
	if res.LedgerEntries != (res.Occupied+res.Cleaning)*4 {
		t.Errorf("expected 4 ledger entries per stay, got %d", res.LedgerEntries)
	}
	if res.Patients != res.Occupied+res.Cleaning+res.Queued {
		t.Errorf("unexpected patient count %d", res.Patients)
	}

	waiting, err := targets.Queue.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(waiting) != 3 {
		t.Errorf("expected 3 queued, got %d", len(waiting))
	}
}

func TestSeeder_SameSeedSameBoard(t *testing.T) {
	ta, _ := newTargets()
	tb, _ := newTargets()
	ra, err := NewSeeder(smallConfig(), ta).Seed(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	rb, err := NewSeeder(smallConfig(), tb).Seed(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ra.Occupied != rb.Occupied || ra.Patients != rb.Patients || ra.LedgerEntries != rb.LedgerEntries {
		t.Errorf("same seed produced different boards: %+v vs %+v", ra, rb)
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func TestSeedHandler_Seed(t *testing.T) {
	targets, _ := newTargets()
	e := echo.New()
	NewSeedHandler(targets).RegisterRoutes(e.Group("/api/v1/sandbox"))

	body := `{"departments":["surgery"],"bedsPerDepartment":4,"queuedPatients":2,"seed":9}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sandbox/seed", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result SeedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if result.Beds != 4 || result.Queued != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	// labels are deterministic, so a second seed into the same store collides
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/sandbox/seed", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 on reseed, got %d", rec.Code)
	}
}
