package bed

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/bedflow/internal/platform/apperr"
	"github.com/ehr/bedflow/internal/platform/db"
)

type bedRepoPG struct {
	pool *pgxpool.Pool
}

func NewBedRepoPG(pool *pgxpool.Pool) BedRepository {
	return &bedRepoPG{pool: pool}
}

func (r *bedRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const bedCols = `id, label, room, department, bed_class, status, current_patient_id,
	admission_time, discharge_time, maintenance_reason, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBed(row scanner) (*Bed, error) {
	var b Bed
	err := row.Scan(&b.ID, &b.Label, &b.Room, &b.Department, &b.BedClass, &b.Status, &b.CurrentPatientID,
		&b.AdmissionTime, &b.DischargeTime, &b.MaintenanceReason, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bedRepoPG) Create(ctx context.Context, b *Bed) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if !b.consistent() {
		return apperr.InvalidState("bed %s: occupant and status %s disagree", b.ID, b.Status)
	}
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO beds (`+bedCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		b.ID, b.Label, b.Room, b.Department, b.BedClass, b.Status, b.CurrentPatientID,
		b.AdmissionTime, b.DischargeTime, b.MaintenanceReason, b.CreatedAt, b.UpdatedAt,
	)
	return db.MapError(err, "bed "+b.Label)
}

func (r *bedRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bed, error) {
	b, err := scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+` FROM beds WHERE id = $1`, id))
	return b, db.MapError(err, "bed "+id.String())
}

func (r *bedRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Bed, error) {
	q := `SELECT ` + bedCols + ` FROM beds WHERE id = $1`
	if db.TxFromContext(ctx) != nil {
		q += ` FOR UPDATE`
	}
	b, err := scanBed(r.conn(ctx).QueryRow(ctx, q, id))
	return b, db.MapError(err, "bed "+id.String())
}

func (r *bedRepoPG) FindByOccupant(ctx context.Context, patientID uuid.UUID) (*Bed, error) {
	b, err := scanBed(r.conn(ctx).QueryRow(ctx,
		`SELECT `+bedCols+` FROM beds WHERE current_patient_id = $1`, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient %s does not occupy a bed", patientID)
	}
	return b, db.MapError(err, "bed occupant")
}

func (r *bedRepoPG) List(ctx context.Context, f Filter) ([]*Bed, error) {
	query := `SELECT ` + bedCols + ` FROM beds WHERE 1=1`
	var args []interface{}
	idx := 1
	add := func(col string, v string) {
		query += ` AND ` + col + ` = $` + strconv.Itoa(idx)
		args = append(args, v)
		idx++
	}
	if f.Department != "" {
		add("department", f.Department)
	}
	if f.BedClass != "" {
		add("bed_class", f.BedClass)
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}
	query += ` ORDER BY department, label`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, db.MapError(err, "beds")
	}
	defer rows.Close()

	var items []*Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (r *bedRepoPG) Update(ctx context.Context, b *Bed) error {
	if !b.consistent() {
		return apperr.InvalidState("bed %s: occupant and status %s disagree", b.ID, b.Status)
	}
	b.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE beds SET
			status = $2, current_patient_id = $3, admission_time = $4, discharge_time = $5,
			maintenance_reason = $6, updated_at = $7
		WHERE id = $1`,
		b.ID, b.Status, b.CurrentPatientID, b.AdmissionTime, b.DischargeTime, b.MaintenanceReason, b.UpdatedAt,
	)
	if err != nil {
		err = db.MapError(err, "bed")
		if apperr.IsKind(err, apperr.KindConflict) && b.CurrentPatientID != nil {
			return apperr.Conflict("patient %s already occupies another bed", *b.CurrentPatientID)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("bed %s not found", b.ID)
	}
	return nil
}

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, mrn, first_name, last_name, status, created_at, updated_at`

func scanPatient(row scanner) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (`+patientCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.MRN, p.FirstName, p.LastName, p.Status, p.CreatedAt, p.UpdatedAt)
	return db.MapError(err, "patient "+strings.TrimSpace(p.MRN))
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	return p, db.MapError(err, "patient "+id.String())
}

func (r *patientRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status PatientStatus) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return db.MapError(err, "patient")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient %s not found", id)
	}
	return nil
}

func (r *patientRepoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, db.MapError(err, "patient")
	}
	return ok, nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, db.MapError(err, "patients")
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patients
		ORDER BY last_name, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err, "patients")
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
