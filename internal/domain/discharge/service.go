package discharge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/ehr/bedflow/internal/domain/ledger"
	"github.com/ehr/bedflow/internal/platform/apperr"
	"github.com/ehr/bedflow/internal/platform/events"
	"github.com/ehr/bedflow/internal/platform/metrics"
)

// Config holds the reconciliation tunables.
type Config struct {
	WindowPadding     time.Duration
	FallbackLimit     int
	AdmissionFallback time.Duration
	Location          *time.Location
	CacheTTL          time.Duration
}

func DefaultConfig() Config {
	return Config{
		WindowPadding:     24 * time.Hour,
		FallbackLimit:     10,
		AdmissionFallback: 24 * time.Hour,
		Location:          time.UTC,
		CacheTTL:          10 * time.Minute,
	}
}

const maxNumberAttempts = 5

var medicationKeywords = []string{"medication", "drug", "pharmaceutical", "medicine"}

// Service reconstructs stays into discharge reports. It only reads bed,
// turnover and ledger state.
type Service struct {
	beds      Beds
	patients  Patients
	turnovers Turnovers
	ledger    ledger.Reader
	reports   ReportRepository
	cfg       Config
	rendered  *gocache.Cache
	metrics   *metrics.Metrics
	events    events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(beds Beds, patients Patients, turnovers Turnovers, reader ledger.Reader, reports ReportRepository, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.WindowPadding < 0 {
		cfg.WindowPadding = def.WindowPadding
	}
	if cfg.FallbackLimit <= 0 {
		cfg.FallbackLimit = def.FallbackLimit
	}
	if cfg.AdmissionFallback <= 0 {
		cfg.AdmissionFallback = def.AdmissionFallback
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	return &Service{
		beds:      beds,
		patients:  patients,
		turnovers: turnovers,
		ledger:    reader,
		reports:   reports,
		cfg:       cfg,
		rendered:  gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		events:    events.Nop{},
		logger:    zerolog.Nop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Service) SetPublisher(p events.Publisher) {
	if p == nil {
		p = events.Nop{}
	}
	s.events = p
}

func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l.With().Str("component", "discharge").Logger()
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Generate builds, renders and stores a report for the bed's resolved stay.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	res, err := s.generate(ctx, req)
	s.metrics.ObserveReport(err)
	return res, err
}

func (s *Service) generate(ctx context.Context, req Request) (*Result, error) {
	if req.BedID == uuid.Nil {
		return nil, apperr.Validation("bed_id is required")
	}
	req.DischargeCondition = strings.TrimSpace(req.DischargeCondition)
	req.Destination = strings.TrimSpace(req.Destination)
	if req.DischargeCondition == "" {
		return nil, apperr.Validation("discharge_condition is required")
	}
	if req.Destination == "" {
		return nil, apperr.Validation("destination is required")
	}

	b, err := s.beds.GetByID(ctx, req.BedID)
	if err != nil {
		return nil, err
	}
	st, err := s.resolveStay(ctx, b, req)
	if err != nil {
		return nil, err
	}
	patient, err := s.patients.GetByID(ctx, st.patientID)
	if err != nil {
		return nil, err
	}

	r := &Report{
		ID:                 uuid.New(),
		BedID:              b.ID,
		BedLabel:           b.Label,
		Department:         b.Department,
		PatientID:          patient.ID,
		PatientName:        patient.FullName(),
		MRN:                patient.MRN,
		AdmissionTime:      st.admission,
		DischargeTime:      st.discharge,
		LengthOfStayDays:   LengthOfStay(st.admission, st.discharge, s.cfg.Location),
		DischargeCondition: req.DischargeCondition,
		Destination:        req.Destination,
		Instructions:       strings.TrimSpace(req.Instructions),
		Resolution:         st.res,
		GeneratedBy:        req.GeneratedBy,
		GeneratedAt:        s.now(),
	}
	if err := s.collect(ctx, st, r); err != nil {
		return nil, err
	}
	for _, path := range r.Resolution.Degraded {
		s.metrics.ObserveDegraded(path)
	}
	if r.Resolution.AdmissionSource == SourceFallback {
		s.logger.Warn().
			Str("bed_id", b.ID.String()).
			Str("patient_id", patient.ID.String()).
			Str("degraded", "admission_fallback").
			Time("admission_time", r.AdmissionTime).
			Msg("admission time inferred from fallback offset")
	}

	out, err := s.store(ctx, r)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("report_number", r.ReportNumber).
		Str("bed_id", b.ID.String()).
		Str("patient_id", patient.ID.String()).
		Str("patient_source", r.Resolution.PatientSource).
		Int("length_of_stay_days", r.LengthOfStayDays).
		Msg("discharge report generated")

	if err := s.events.Publish(ctx, events.Event{
		Type:       events.TypeDischargeReportReady,
		BedID:      b.ID.String(),
		Department: b.Department,
		PatientID:  patient.ID.String(),
		Timestamp:  r.GeneratedAt,
		Data:       json.RawMessage(fmt.Sprintf(`{"report_number":%q}`, r.ReportNumber)),
	}); err != nil {
		s.logger.Warn().Err(err).Msg("publish report event")
	}
	return out, nil
}

// collect fills the ledger sections from the padded stay window, falling
// back per category to the patient's most recent entries.
func (s *Service) collect(ctx context.Context, st *stay, r *Report) error {
	from, to := st.admission, st.discharge
	if to.Before(from) {
		from, to = to, from
	}
	from, to = from.Add(-s.cfg.WindowPadding), to.Add(s.cfg.WindowPadding)
	window := ledger.Query{PatientID: &st.patientID, From: &from, To: &to}
	recent := ledger.Query{PatientID: &st.patientID, Limit: s.cfg.FallbackLimit, Newest: true}

	var err error
	if r.Treatments, err = fetch(ctx, s, st, r, "treatments", window, recent, s.ledger.Treatments); err != nil {
		return err
	}
	if r.Equipment, err = fetch(ctx, s, st, r, "equipment", window, recent, s.ledger.EquipmentUsages); err != nil {
		return err
	}
	if r.Staff, err = fetch(ctx, s, st, r, "staff", window, recent, s.ledger.StaffAssignments); err != nil {
		return err
	}
	supplies, err := fetch(ctx, s, st, r, "supplies", window, recent, s.ledger.SupplyUsages)
	if err != nil {
		return err
	}

	r.Medications, r.Supplies = splitSupplies(supplies)
	r.Costs.Medications = round2(sumCost(r.Medications))
	r.Costs.Supplies = round2(sumCost(r.Supplies))
	r.Costs.Total = round2(sumCost(supplies))
	return nil
}

func fetch[T any](ctx context.Context, s *Service, st *stay, r *Report, section string, window, recent ledger.Query,
	query func(context.Context, ledger.Query) ([]*T, error)) ([]*T, error) {
	items, err := query(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("%s window: %w", section, err)
	}
	if len(items) > 0 {
		return items, nil
	}
	items, err = query(ctx, recent)
	if err != nil {
		return nil, fmt.Errorf("%s recent: %w", section, err)
	}
	if len(items) == 0 {
		return []*T{}, nil
	}
	path := section + "_recent_fallback"
	r.Resolution.degrade(path)
	s.logger.Warn().
		Str("bed_id", st.bed.ID.String()).
		Str("patient_id", st.patientID.String()).
		Str("degraded", path).
		Int("entries", len(items)).
		Msg("stay window empty, using most recent entries")
	return items, nil
}

// IsMedication reports whether a supply category names a medication.
func IsMedication(category string) bool {
	c := strings.ToLower(category)
	for _, kw := range medicationKeywords {
		if strings.Contains(c, kw) {
			return true
		}
	}
	return false
}

func splitSupplies(all []*ledger.SupplyUsage) (meds, supplies []*ledger.SupplyUsage) {
	meds, supplies = []*ledger.SupplyUsage{}, []*ledger.SupplyUsage{}
	for _, u := range all {
		if IsMedication(u.Category) {
			meds = append(meds, u)
		} else {
			supplies = append(supplies, u)
		}
	}
	return meds, supplies
}

func sumCost(items []*ledger.SupplyUsage) float64 {
	var total float64
	for _, u := range items {
		total += u.Cost()
	}
	return total
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// newReportNumber returns DR-YYYYMMDD-XXXXXX with a random hex suffix.
func newReportNumber(at time.Time) (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "DR-" + at.Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(buf)), nil
}

// store numbers, renders and persists the report, drawing a new number on
// collision.
func (s *Service) store(ctx context.Context, r *Report) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		number, err := newReportNumber(r.GeneratedAt.In(s.cfg.Location))
		if err != nil {
			return nil, apperr.Internal("generate report number", err)
		}
		r.ReportNumber = number
		doc, err := Render(r, s.cfg.Location)
		if err != nil {
			return nil, apperr.Internal("render discharge report", err)
		}
		r.Document = doc
		snapshot, err := json.Marshal(r)
		if err != nil {
			return nil, apperr.Internal("encode discharge report", err)
		}

		err = s.reports.Create(ctx, &Stored{
			ID:           r.ID,
			ReportNumber: number,
			PatientID:    r.PatientID,
			BedID:        r.BedID,
			Snapshot:     snapshot,
			CreatedAt:    r.GeneratedAt,
		})
		if err == nil {
			s.rendered.Set(number, doc, gocache.DefaultExpiration)
			return &Result{Report: r, Snapshot: snapshot}, nil
		}
		if !apperr.IsKind(err, apperr.KindConflict) {
			return nil, err
		}
		lastErr = err
		s.logger.Debug().Str("report_number", number).Msg("report number collision, retrying")
	}
	return nil, apperr.Internal("could not allocate a unique report number", lastErr)
}

// GetByNumber returns the stored snapshot unchanged.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Result, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return nil, apperr.Validation("report_number is required")
	}
	stored, err := s.reports.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(stored.Snapshot, &r); err != nil {
		return nil, apperr.Internal("decode discharge report "+number, err)
	}
	return &Result{Report: &r, Snapshot: stored.Snapshot}, nil
}

// RenderByNumber returns the human-readable document, rendering it from the
// stored snapshot when it is not cached.
func (s *Service) RenderByNumber(ctx context.Context, number string) (string, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if doc, ok := s.rendered.Get(number); ok {
		return doc.(string), nil
	}
	res, err := s.GetByNumber(ctx, number)
	if err != nil {
		return "", err
	}
	doc, err := Render(res.Report, s.cfg.Location)
	if err != nil {
		return "", apperr.Internal("render discharge report", err)
	}
	s.rendered.Set(number, doc, gocache.DefaultExpiration)
	return doc, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Stored, int, error) {
	if patientID == uuid.Nil {
		return nil, 0, apperr.Validation("patient_id is required")
	}
	return s.reports.ListByPatient(ctx, patientID, limit, offset)
}
