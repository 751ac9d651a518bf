package reporting

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/ehr/bedflow/internal/platform/auth"
)

// MeasureParam is a query-string parameter bound positionally into the SQL.
type MeasureParam struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"` // text | int
	Default string `json:"default,omitempty"`
}

// MeasureDefinition defines a bed-board measure with its SQL query.
type MeasureDefinition struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	SQL         string         `json:"sql"`
	Parameters  []MeasureParam `json:"parameters"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "bed-occupancy",
		Name:        "Bed Occupancy",
		Description: "Beds per department by status, with the occupied share",
		SQL: `SELECT department,
       COUNT(*) AS total,
       COUNT(*) FILTER (WHERE status = 'occupied') AS occupied,
       COUNT(*) FILTER (WHERE status = 'available') AS available,
       COUNT(*) FILTER (WHERE status = 'cleaning') AS cleaning,
       COUNT(*) FILTER (WHERE status = 'maintenance') AS maintenance,
       ROUND(100.0 * COUNT(*) FILTER (WHERE status = 'occupied') / COUNT(*), 1) AS occupancy_pct
FROM beds
WHERE ($1::text = '' OR department = $1::text)
GROUP BY department ORDER BY department`,
		Parameters: []MeasureParam{{Name: "department", Kind: "text"}},
	},
	{
		ID:          "turnover-duration",
		Name:        "Turnover Duration",
		Description: "Completed turnovers per bed class with estimated and actual minutes",
		SQL: `SELECT b.bed_class,
       COUNT(*) AS completed,
       ROUND(AVG(t.estimated_minutes), 1) AS avg_estimated_minutes,
       ROUND(AVG(t.actual_minutes), 1) AS avg_actual_minutes,
       MAX(t.actual_minutes) AS max_actual_minutes,
       COUNT(*) FILTER (WHERE t.inspection_attempts > 1) AS failed_inspections
FROM turnover_record t JOIN beds b ON b.id = t.bed_id
WHERE t.status = 'completed' AND t.completed_at >= NOW() - make_interval(days => $1::int)
GROUP BY b.bed_class ORDER BY b.bed_class`,
		Parameters: []MeasureParam{{Name: "days", Kind: "int", Default: "30"}},
	},
	{
		ID:          "queue-wait",
		Name:        "Queue Wait",
		Description: "Waiting patients per bed class and priority with the longest wait",
		SQL: `SELECT bed_class, priority,
       COUNT(*) AS waiting,
       ROUND(EXTRACT(EPOCH FROM (NOW() - MIN(enqueued_at))) / 60) AS longest_wait_minutes
FROM patient_queue
GROUP BY bed_class, priority ORDER BY bed_class, priority DESC`,
		Parameters: []MeasureParam{},
	},
	{
		ID:          "discharges-by-day",
		Name:        "Discharges by Day",
		Description: "Discharge reports generated per day",
		SQL: `SELECT DATE(created_at) AS day, COUNT(*) AS reports
FROM discharge_report
WHERE created_at >= NOW() - make_interval(days => $1::int)
GROUP BY DATE(created_at) ORDER BY day DESC`,
		Parameters: []MeasureParam{{Name: "days", Kind: "int", Default: "14"}},
	},
}

// Executor runs a measure query and returns its rows keyed by column name.
type Executor func(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error)

// PoolExecutor runs measures against postgres.
func PoolExecutor(pool *pgxpool.Pool) Executor {
	return func(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error) {
		rows, err := pool.Query(ctx, sql, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		fieldDescs := rows.FieldDescriptions()
		results := []map[string]interface{}{}
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return nil, err
			}
			row := make(map[string]interface{}, len(fieldDescs))
			for i, fd := range fieldDescs {
				row[fd.Name] = values[i]
			}
			results = append(results, row)
		}
		return results, rows.Err()
	}
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	exec Executor
	now  func() time.Time
}

func NewHandler(exec Executor) *Handler {
	return &Handler{exec: exec, now: time.Now}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole(auth.RoleBedManager, auth.RoleAdmin))
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// bindParams resolves query-string values, falling back to defaults, in
// declaration order.
func bindParams(c echo.Context, m *MeasureDefinition) ([]interface{}, map[string]string, error) {
	args := make([]interface{}, 0, len(m.Parameters))
	used := map[string]string{}
	for _, p := range m.Parameters {
		v := c.QueryParam(p.Name)
		if v == "" {
			v = p.Default
		} else {
			used[p.Name] = v
		}
		switch p.Kind {
		case "int":
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return nil, nil, fmt.Errorf("%s must be a non-negative integer", p.Name)
			}
			args = append(args, n)
		default:
			args = append(args, v)
		}
	}
	return args, used, nil
}

// EvaluateMeasure executes a measure's SQL and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	args, params, err := bindParams(c, measure)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	results, err := h.exec(c.Request().Context(), measure.SQL, args...)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "measure query failed")
	}

	return c.JSON(http.StatusOK, MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: h.now().UTC(),
		Results:     results,
		Parameters:  params,
	})
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
