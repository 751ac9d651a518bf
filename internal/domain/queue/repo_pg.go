package queue

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

const entryCols = `id, patient_id, bed_class, priority, enqueued_at, notes`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	if err := row.Scan(&e.ID, &e.PatientID, &e.BedClass, &e.Priority, &e.EnqueuedAt, &e.Notes); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repoPG) insert(ctx context.Context, e *Entry) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_queue (`+entryCols+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.PatientID, e.BedClass, e.Priority, e.EnqueuedAt, e.Notes)
	err = db.MapError(err, "queue entry")
	if apperr.IsKind(err, apperr.KindConflict) {
		return apperr.Conflict("patient %s is already queued", e.PatientID)
	}
	return err
}

func (r *repoPG) Add(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now().UTC()
	}
	return r.insert(ctx, e)
}

// PeekNext reads the head row without locking it. Callers lock the patient
// first and then Take the row by id, so queue rows are only ever locked by a
// holder of the patient lock.
func (r *repoPG) PeekNext(ctx context.Context, bedClass string, exclude []uuid.UUID) (*Entry, error) {
	ids := make([]string, 0, len(exclude))
	for _, id := range exclude {
		ids = append(ids, id.String())
	}
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, `
		SELECT `+entryCols+` FROM patient_queue
		WHERE bed_class = $1 AND NOT (id = ANY($2::uuid[]))
		ORDER BY priority DESC, enqueued_at ASC, id ASC
		LIMIT 1`, bedClass, ids))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("no queued patient for bed class %q", bedClass)
	}
	return e, db.MapError(err, "queue entry")
}

func (r *repoPG) Take(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx,
		`DELETE FROM patient_queue WHERE id = $1 RETURNING `+entryCols, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("queue entry %s not found", id)
	}
	return e, db.MapError(err, "queue entry")
}

func (r *repoPG) Restore(ctx context.Context, e *Entry) error {
	return r.insert(ctx, e)
}

func (r *repoPG) Remove(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_queue WHERE id = $1`, id)
	if err != nil {
		return db.MapError(err, "queue entry")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("queue entry %s not found", id)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, bedClass string) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+entryCols+` FROM patient_queue
		WHERE $1 = '' OR bed_class = $1
		ORDER BY priority DESC, enqueued_at ASC, id ASC`, bedClass)
	if err != nil {
		return nil, db.MapError(err, "queue")
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *repoPG) FindByPatient(ctx context.Context, patientID uuid.UUID) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM patient_queue WHERE patient_id = $1`, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient %s is not queued", patientID)
	}
	return e, db.MapError(err, "queue entry")
}
