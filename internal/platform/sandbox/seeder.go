// Package sandbox generates a reproducible demo bed board: departments of
// beds, patients, admissions with Stay Ledger activity, a waiting queue, and
// beds in cleaning and maintenance. It drives the domain services, so every
// seeded row obeys the same rules as live traffic.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/bedflow/internal/domain/bed"
	"github.com/ehr/bedflow/internal/domain/ledger"
	"github.com/ehr/bedflow/internal/domain/queue"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the volume and shape of the generated board.
type SeedConfig struct {
	Departments       []string `json:"departments"`
	BedsPerDepartment int      `json:"bedsPerDepartment"`
	OccupancyRate     float64  `json:"occupancyRate"`
	QueuedPatients    int      `json:"queuedPatients"`
	CleaningBeds      int      `json:"cleaningBeds"`
	MaintenanceBeds   int      `json:"maintenanceBeds"`
	EntriesPerStay    int      `json:"entriesPerStay"`
	Seed              int64    `json:"seed"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Departments:       []string{"medicine", "surgery", "icu"},
		BedsPerDepartment: 8,
		OccupancyRate:     0.6,
		QueuedPatients:    5,
		CleaningBeds:      2,
		MaintenanceBeds:   1,
		EntriesPerStay:    4,
	}
}

// withDefaults fills zero values from DefaultSeedConfig.
func (c SeedConfig) withDefaults() SeedConfig {
	d := DefaultSeedConfig()
	var depts []string
	for _, dept := range c.Departments {
		if dept = strings.ToLower(strings.TrimSpace(dept)); dept != "" {
			depts = append(depts, dept)
		}
	}
	c.Departments = depts
	if len(c.Departments) == 0 {
		c.Departments = d.Departments
	}
	if c.BedsPerDepartment <= 0 {
		c.BedsPerDepartment = d.BedsPerDepartment
	}
	if c.OccupancyRate <= 0 || c.OccupancyRate > 1 {
		c.OccupancyRate = d.OccupancyRate
	}
	if c.EntriesPerStay < 0 {
		c.EntriesPerStay = 0
	}
	return c
}

// SeedResult summarizes what was written.
type SeedResult struct {
	Beds          int           `json:"beds"`
	Patients      int           `json:"patients"`
	Occupied      int           `json:"occupied"`
	Cleaning      int           `json:"cleaning"`
	Maintenance   int           `json:"maintenance"`
	Queued        int           `json:"queued"`
	LedgerEntries int           `json:"ledgerEntries"`
	Duration      time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// Pools
// ---------------------------------------------------------------------------

var (
	firstNames = []string{
		"James", "Robert", "John", "Michael", "David", "William", "Richard",
		"Mary", "Patricia", "Jennifer", "Linda", "Barbara", "Elizabeth",
		"Susan", "Jessica", "Sarah", "Karen", "Priya", "Arjun", "Ananya",
		"Wei", "Mei", "Omar", "Fatima", "Carlos", "Lucia",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia",
		"Miller", "Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez",
		"Wilson", "Anderson", "Thomas", "Taylor", "Moore", "Sharma",
		"Patel", "Chen", "Nguyen", "Khan", "Okafor", "Silva",
	}
	treatments = []struct{ name, kind string }{
		{"IV fluids", "infusion"}, {"Wound dressing", "procedure"},
		{"Physiotherapy session", "therapy"}, {"Blood transfusion", "infusion"},
		{"Nebulization", "respiratory"}, {"Antibiotic course", "medication"},
	}
	equipment = []struct{ name, kind string }{
		{"Infusion pump", "pump"}, {"Cardiac monitor", "monitor"},
		{"Ventilator", "respiratory"}, {"Pulse oximeter", "monitor"},
	}
	staffRoles = []string{"attending", "nurse", "resident", "physiotherapist"}
	supplies   = []struct {
		name, category string
		unitCost       float64
	}{
		{"Paracetamol 500mg", "medication", 0.25}, {"Ceftriaxone 1g", "drug", 4.8},
		{"Saline 500ml", "pharmaceutical", 2.1}, {"Gauze pack", "dressing", 0.9},
		{"Syringe 5ml", "consumable", 0.3}, {"Gloves (pair)", "consumable", 0.15},
	}
)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces deterministic synthetic beds and patients.
type DataGenerator struct {
	rng     *rand.Rand
	counter uint64
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// bedClassFor maps a department to the class its beds are built for.
func bedClassFor(department string) string {
	switch department {
	case "icu":
		return "icu"
	case "isolation":
		return "isolation"
	}
	return "general"
}

// GenerateBed produces the n-th bed of a department.
func (g *DataGenerator) GenerateBed(department string, n int) *bed.Bed {
	room := fmt.Sprintf("%s-%d", department[:1], 100+(n/2)+1)
	return &bed.Bed{
		Label:      fmt.Sprintf("%s-%02d", department, n+1),
		Room:       room,
		Department: department,
		BedClass:   bedClassFor(department),
	}
}

// GeneratePatient produces a patient with a unique MRN.
func (g *DataGenerator) GeneratePatient() *bed.Patient {
	g.counter++
	return &bed.Patient{
		MRN:       fmt.Sprintf("MRN-%06d-%04d", g.rng.Intn(1000000), g.counter),
		FirstName: g.pick(firstNames),
		LastName:  g.pick(lastNames),
	}
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Targets are the services the seeder writes through.
type Targets struct {
	Beds   *bed.Service
	Queue  *queue.Service
	Ledger *ledger.Service
}

// Seeder writes a generated board through the domain services.
type Seeder struct {
	generator *DataGenerator
	config    SeedConfig
	targets   Targets
	now       func() time.Time
	logger    zerolog.Logger
}

func NewSeeder(config SeedConfig, targets Targets) *Seeder {
	config = config.withDefaults()
	return &Seeder{
		generator: NewDataGenerator(config.Seed),
		config:    config,
		targets:   targets,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    zerolog.Nop(),
	}
}

func (s *Seeder) SetLogger(l zerolog.Logger) {
	s.logger = l
}

func (s *Seeder) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Seeder) newPatient(ctx context.Context, res *SeedResult) (*bed.Patient, error) {
	p := s.generator.GeneratePatient()
	if err := s.targets.Beds.CreatePatient(ctx, p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	res.Patients++
	return p, nil
}

// Seed creates the board. Occupied beds get an admission in the last few
// days with ledger activity; the first CleaningBeds of them are then
// discharged, and MaintenanceBeds of the remaining free beds are taken out of
// service.
func (s *Seeder) Seed(ctx context.Context) (*SeedResult, error) {
	start := time.Now()
	res := &SeedResult{}
	rng := s.generator.rng

	var beds []*bed.Bed
	for _, dept := range s.config.Departments {
		for i := 0; i < s.config.BedsPerDepartment; i++ {
			b := s.generator.GenerateBed(dept, i)
			if err := s.targets.Beds.CreateBed(ctx, b); err != nil {
				return nil, fmt.Errorf("create bed %s: %w", b.Label, err)
			}
			beds = append(beds, b)
		}
	}
	res.Beds = len(beds)

	var free, occupied []*bed.Bed
	for _, b := range beds {
		if rng.Float64() >= s.config.OccupancyRate {
			free = append(free, b)
			continue
		}
		p, err := s.newPatient(ctx, res)
		if err != nil {
			return nil, err
		}
		admitted := s.now().Add(-time.Duration(6+rng.Intn(90)) * time.Hour).Truncate(time.Minute)
		if _, err := s.targets.Beds.Admit(ctx, b.ID, p.ID, &admitted); err != nil {
			return nil, fmt.Errorf("admit to %s: %w", b.Label, err)
		}
		n, err := s.recordStay(ctx, p, b, admitted)
		if err != nil {
			return nil, err
		}
		res.LedgerEntries += n
		occupied = append(occupied, b)
	}

	for i := 0; i < s.config.CleaningBeds && i < len(occupied); i++ {
		if _, err := s.targets.Beds.Discharge(ctx, occupied[i].ID, nil); err != nil {
			return nil, fmt.Errorf("discharge %s: %w", occupied[i].Label, err)
		}
		res.Cleaning++
	}
	res.Occupied = len(occupied) - res.Cleaning

	for i := 0; i < s.config.MaintenanceBeds && i < len(free); i++ {
		if _, err := s.targets.Beds.MarkMaintenance(ctx, free[i].ID, "scheduled servicing"); err != nil {
			return nil, fmt.Errorf("maintenance %s: %w", free[i].Label, err)
		}
		res.Maintenance++
	}

	if s.targets.Queue != nil {
		for i := 0; i < s.config.QueuedPatients; i++ {
			p, err := s.newPatient(ctx, res)
			if err != nil {
				return nil, err
			}
			dept := s.config.Departments[i%len(s.config.Departments)]
			if _, err := s.targets.Queue.Enqueue(ctx, p.ID, bedClassFor(dept), 1+rng.Intn(4), ""); err != nil {
				return nil, fmt.Errorf("enqueue: %w", err)
			}
			res.Queued++
		}
	}

	res.Duration = time.Since(start)
	s.logger.Info().
		Int("beds", res.Beds).
		Int("occupied", res.Occupied).
		Int("queued", res.Queued).
		Dur("duration", res.Duration).
		Msg("sandbox seeded")
	return res, nil
}

// recordStay writes EntriesPerStay ledger rows spread across the stay,
// cycling through every category.
func (s *Seeder) recordStay(ctx context.Context, p *bed.Patient, b *bed.Bed, admitted time.Time) (int, error) {
	if s.targets.Ledger == nil {
		return 0, nil
	}
	rng := s.generator.rng
	span := s.now().Sub(admitted)
	for i := 0; i < s.config.EntriesPerStay; i++ {
		at := admitted.Add(time.Duration(rng.Int63n(int64(span)))).Truncate(time.Minute)
		entry := ledger.Entry{PatientID: p.ID, BedID: &b.ID, StartedAt: at}

		var err error
		switch ledger.Kinds[i%len(ledger.Kinds)] {
		case ledger.KindTreatment:
			tr := treatments[rng.Intn(len(treatments))]
			err = s.targets.Ledger.RecordTreatment(ctx, &ledger.Treatment{Entry: entry, Name: tr.name, TreatmentType: tr.kind})
		case ledger.KindEquipment:
			eq := equipment[rng.Intn(len(equipment))]
			kind := eq.kind
			err = s.targets.Ledger.RecordEquipmentUsage(ctx, &ledger.EquipmentUsage{Entry: entry, EquipmentName: eq.name, EquipmentType: &kind})
		case ledger.KindStaff:
			name := s.generator.pick(firstNames) + " " + s.generator.pick(lastNames)
			err = s.targets.Ledger.RecordStaffAssignment(ctx, &ledger.StaffAssignment{Entry: entry, StaffName: name, Role: s.generator.pick(staffRoles)})
		case ledger.KindSupply:
			su := supplies[rng.Intn(len(supplies))]
			err = s.targets.Ledger.RecordSupplyUsage(ctx, &ledger.SupplyUsage{
				Entry: entry, SupplyName: su.name, Category: su.category,
				Quantity: float64(1 + rng.Intn(4)), UnitCost: su.unitCost,
			})
		}
		if err != nil {
			return i, fmt.Errorf("record ledger entry for %s: %w", p.MRN, err)
		}
	}
	return s.config.EntriesPerStay, nil
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

// SeedHandler exposes seeding to development servers.
type SeedHandler struct {
	targets Targets
	mu      sync.Mutex
}

func NewSeedHandler(targets Targets) *SeedHandler {
	return &SeedHandler{targets: targets}
}

func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/seed", h.handleSeed)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var cfg SeedConfig
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&cfg); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
	}

	result, err := NewSeeder(cfg, h.targets).Seed(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}
