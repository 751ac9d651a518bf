package discharge

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/bedflow/internal/platform/apperr"
	"github.com/ehr/bedflow/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) ReportRepository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

// The snapshot column is json, not jsonb, so the stored text is kept verbatim.
func (r *repoPG) Create(ctx context.Context, s *Stored) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO discharge_report (id, report_number, patient_id, bed_id, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5::json, $6)`,
		s.ID, s.ReportNumber, s.PatientID, s.BedID, string(s.Snapshot), s.CreatedAt)
	err = db.MapError(err, "discharge report")
	if apperr.IsKind(err, apperr.KindConflict) {
		return apperr.Conflict("report number %s already exists", s.ReportNumber)
	}
	return err
}

func (r *repoPG) GetByNumber(ctx context.Context, number string) (*Stored, error) {
	var (
		s        Stored
		snapshot string
	)
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, report_number, patient_id, bed_id, snapshot::text, created_at
		FROM discharge_report WHERE report_number = $1`, number).
		Scan(&s.ID, &s.ReportNumber, &s.PatientID, &s.BedID, &snapshot, &s.CreatedAt)
	if err != nil {
		return nil, db.MapError(err, "discharge report "+number)
	}
	s.Snapshot = []byte(snapshot)
	return &s, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Stored, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM discharge_report WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, db.MapError(err, "discharge reports")
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, report_number, patient_id, bed_id, created_at
		FROM discharge_report WHERE patient_id = $1
		ORDER BY created_at DESC, report_number DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err, "discharge reports")
	}
	defer rows.Close()

	var items []*Stored
	for rows.Next() {
		var s Stored
		if err := rows.Scan(&s.ID, &s.ReportNumber, &s.PatientID, &s.BedID, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &s)
	}
	return items, total, rows.Err()
}
