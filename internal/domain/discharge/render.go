package discharge

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

const documentTemplate = `DISCHARGE REPORT {{.R.ReportNumber}}
Generated {{when .R.GeneratedAt}}

Patient:     {{.R.PatientName}} (MRN {{.R.MRN}})
Bed:         {{.R.BedLabel}}, {{.R.Department}}
Admitted:    {{when .R.AdmissionTime}}
Discharged:  {{when .R.DischargeTime}}
Stay:        {{.R.LengthOfStayDays}} day(s)
Condition:   {{.R.DischargeCondition}}
Destination: {{.R.Destination}}
{{- if .R.Instructions}}

INSTRUCTIONS
{{.R.Instructions}}
{{- end}}

TREATMENTS ({{len .R.Treatments}})
{{- range .R.Treatments}}
  - {{when .StartedAt}}  {{.Name}} [{{.TreatmentType}}]{{if .PerformedBy}} by {{deref .PerformedBy}}{{end}}
{{- else}}
  none recorded
{{- end}}

EQUIPMENT ({{len .R.Equipment}})
{{- range .R.Equipment}}
  - {{when .StartedAt}}  {{.EquipmentName}}{{if .EndedAt}} until {{when (deref .EndedAt)}}{{end}}
{{- else}}
  none recorded
{{- end}}

CARE TEAM ({{len .R.Staff}})
{{- range .R.Staff}}
  - {{.StaffName}}, {{.Role}} from {{when .StartedAt}}
{{- else}}
  none recorded
{{- end}}

MEDICATIONS ({{len .R.Medications}})
{{- range .R.Medications}}
  - {{.SupplyName}} x{{qty .Quantity}} @ {{money .UnitCost}} = {{money .Cost}}
{{- else}}
  none recorded
{{- end}}

MEDICAL SUPPLIES ({{len .R.Supplies}})
{{- range .R.Supplies}}
  - {{.SupplyName}} x{{qty .Quantity}} @ {{money .UnitCost}} = {{money .Cost}}
{{- else}}
  none recorded
{{- end}}

COSTS
  Medications: {{money .R.Costs.Medications}}
  Supplies:    {{money .R.Costs.Supplies}}
  Total:       {{money .R.Costs.Total}}
{{- if .R.Resolution.Degraded}}

NOTE: reconstructed with fallbacks: {{join .R.Resolution.Degraded ", "}}
{{- end}}
`

func parseDocument(loc *time.Location) *template.Template {
	return template.Must(template.New("discharge").Funcs(template.FuncMap{
		"when": func(t time.Time) string {
			return t.In(loc).Format("2006-01-02 15:04 MST")
		},
		"deref": func(v interface{}) interface{} {
			switch p := v.(type) {
			case *string:
				return *p
			case *time.Time:
				return *p
			}
			return v
		},
		"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
		"qty":   func(v float64) string { return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".") },
		"join":  strings.Join,
	}).Parse(documentTemplate))
}

// Render produces the plain-text discharge document, with times shown in loc.
func Render(r *Report, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	var buf bytes.Buffer
	if err := parseDocument(loc).Execute(&buf, struct{ R *Report }{r}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
