package turnover

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/bedflow/internal/platform/apperr"
	"github.com/ehr/bedflow/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

// forUpdate locks the selected row when running inside a transaction.
func forUpdate(ctx context.Context) string {
	if db.TxFromContext(ctx) != nil {
		return ` FOR UPDATE`
	}
	return ``
}

const recCols = `id, bed_id, previous_patient_id, previous_admission_time, discharge_time,
	cleaning_started_at, estimated_minutes, completed_at, actual_minutes,
	inspection_passed, inspection_attempts, notes, status, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.BedID, &rec.PreviousPatientID, &rec.PreviousAdmissionTime, &rec.DischargeTime,
		&rec.CleaningStartedAt, &rec.EstimatedMinutes, &rec.CompletedAt, &rec.ActualMinutes,
		&rec.InspectionPassed, &rec.InspectionAttempts, &rec.Notes, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO turnover_record (
			id, bed_id, previous_patient_id, previous_admission_time, discharge_time,
			cleaning_started_at, estimated_minutes, completed_at, actual_minutes,
			inspection_passed, inspection_attempts, notes, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		rec.ID, rec.BedID, rec.PreviousPatientID, rec.PreviousAdmissionTime, rec.DischargeTime,
		rec.CleaningStartedAt, rec.EstimatedMinutes, rec.CompletedAt, rec.ActualMinutes,
		rec.InspectionPassed, rec.InspectionAttempts, rec.Notes, rec.Status, rec.CreatedAt, rec.UpdatedAt,
	)
	err = db.MapError(err, "turnover")
	if apperr.IsKind(err, apperr.KindConflict) {
		return apperr.Conflict("bed %s already has an open turnover", rec.BedID)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recCols+` FROM turnover_record WHERE id = $1`+forUpdate(ctx), id))
	return rec, db.MapError(err, "turnover "+id.String())
}

func (r *repoPG) Open(ctx context.Context, bedID uuid.UUID) (*Record, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recCols+` FROM turnover_record WHERE bed_id = $1 AND status <> 'completed'`+forUpdate(ctx), bedID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("bed %s has no open turnover", bedID)
	}
	return rec, db.MapError(err, "open turnover")
}

func (r *repoPG) Update(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE turnover_record SET
			cleaning_started_at = $2, estimated_minutes = $3, completed_at = $4, actual_minutes = $5,
			inspection_passed = $6, inspection_attempts = $7, notes = $8, status = $9, updated_at = $10
		WHERE id = $1 AND status <> 'completed'`,
		rec.ID, rec.CleaningStartedAt, rec.EstimatedMinutes, rec.CompletedAt, rec.ActualMinutes,
		rec.InspectionPassed, rec.InspectionAttempts, rec.Notes, rec.Status, rec.UpdatedAt,
	)
	if err != nil {
		return db.MapError(err, "turnover")
	}
	if tag.RowsAffected() == 0 {
		return apperr.InvalidState("turnover %s is completed or missing", rec.ID)
	}
	return nil
}

func (r *repoPG) History(ctx context.Context, bedID uuid.UUID, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+recCols+` FROM turnover_record
		WHERE bed_id = $1
		ORDER BY discharge_time DESC, created_at DESC
		LIMIT $2`, bedID, limit)
	if err != nil {
		return nil, db.MapError(err, "turnover history")
	}
	defer rows.Close()

	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *repoPG) Latest(ctx context.Context, bedID uuid.UUID) (*Record, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx, `
		SELECT `+recCols+` FROM turnover_record
		WHERE bed_id = $1
		ORDER BY discharge_time DESC, created_at DESC
		LIMIT 1`, bedID))
	return rec, db.MapError(err, "turnover history for bed "+bedID.String())
}

func (r *repoPG) LatestForPatient(ctx context.Context, bedID, patientID uuid.UUID) (*Record, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx, `
		SELECT `+recCols+` FROM turnover_record
		WHERE bed_id = $1 AND previous_patient_id = $2
		ORDER BY discharge_time DESC, created_at DESC
		LIMIT 1`, bedID, patientID))
	return rec, db.MapError(err, "turnover for patient "+patientID.String())
}
