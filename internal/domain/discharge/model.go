package discharge

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedflow/internal/domain/ledger"
)

// Sources recorded in the resolution trail.
const (
	SourceExplicit      = "explicit"
	SourceOccupant      = "occupant"
	SourceBed           = "bed"
	SourceTurnover      = "turnover"
	SourceLedger        = "ledger"
	SourceFallback      = "fallback"
	SourceReinterpreted = "reinterpreted"
	SourceNow           = "now"
)

// Resolution records how the patient and stay boundaries were found and
// which sections were filled from a degraded path.
type Resolution struct {
	PatientSource   string   `json:"patient_source"`
	AdmissionSource string   `json:"admission_source"`
	DischargeSource string   `json:"discharge_source"`
	Degraded        []string `json:"degraded,omitempty"`
}

func (r *Resolution) degrade(path string) {
	r.Degraded = append(r.Degraded, path)
}

type Costs struct {
	Medications float64 `json:"medications"`
	Supplies    float64 `json:"supplies"`
	Total       float64 `json:"total"`
}

// Report is the reconstructed stay. It is immutable once stored.
type Report struct {
	ID                 uuid.UUID                 `json:"id"`
	ReportNumber       string                    `json:"report_number"`
	BedID              uuid.UUID                 `json:"bed_id"`
	BedLabel           string                    `json:"bed_label"`
	Department         string                    `json:"department"`
	PatientID          uuid.UUID                 `json:"patient_id"`
	PatientName        string                    `json:"patient_name"`
	MRN                string                    `json:"mrn"`
	AdmissionTime      time.Time                 `json:"admission_time"`
	DischargeTime      time.Time                 `json:"discharge_time"`
	LengthOfStayDays   int                       `json:"length_of_stay_days"`
	DischargeCondition string                    `json:"discharge_condition"`
	Destination        string                    `json:"destination"`
	Instructions       string                    `json:"instructions,omitempty"`
	Resolution         Resolution                `json:"resolution"`
	Treatments         []*ledger.Treatment       `json:"treatments"`
	Equipment          []*ledger.EquipmentUsage  `json:"equipment"`
	Staff              []*ledger.StaffAssignment `json:"staff"`
	Medications        []*ledger.SupplyUsage     `json:"medications"`
	Supplies           []*ledger.SupplyUsage     `json:"supplies"`
	Costs              Costs                     `json:"costs"`
	GeneratedBy        string                    `json:"generated_by,omitempty"`
	GeneratedAt        time.Time                 `json:"generated_at"`
	Document           string                    `json:"document"`
}

// Request asks for a report on a bed. PatientID, when set, overrides
// occupant resolution.
type Request struct {
	BedID              uuid.UUID  `json:"bed_id" validate:"required"`
	PatientID          *uuid.UUID `json:"patient_id"`
	DischargeCondition string     `json:"discharge_condition" validate:"required"`
	Destination        string     `json:"destination" validate:"required"`
	Instructions       string     `json:"instructions"`
	DischargeTime      *time.Time `json:"discharge_time"`
	GeneratedBy        string     `json:"-"`
}

// Stored is a persisted report. Snapshot holds the exact JSON written at
// generation time.
type Stored struct {
	ID           uuid.UUID       `json:"id"`
	ReportNumber string          `json:"report_number"`
	PatientID    uuid.UUID       `json:"patient_id"`
	BedID        uuid.UUID       `json:"bed_id"`
	Snapshot     json.RawMessage `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Result pairs the decoded report with its stored snapshot.
type Result struct {
	Report   *Report
	Snapshot json.RawMessage
}
