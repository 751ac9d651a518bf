package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/bedflow/internal/platform/apperr"
	"github.com/ehr/bedflow/internal/platform/db"
)

var dialect = goqu.Dialect("postgres")

var tables = map[Kind]string{
	KindTreatment: "treatment_record",
	KindEquipment: "equipment_usage",
	KindStaff:     "staff_assignment",
	KindSupply:    "supply_usage",
}

var entryCols = []interface{}{"id", "patient_id", "bed_id", "started_at", "ended_at", "status", "created_at"}

var (
	treatmentCols = append(append([]interface{}{}, entryCols...), "name", "treatment_type", "performed_by", "notes")
	equipmentCols = append(append([]interface{}{}, entryCols...), "equipment_id", "equipment_name", "equipment_type", "notes")
	staffCols     = append(append([]interface{}{}, entryCols...), "staff_id", "staff_name", "role", "notes")
	supplyCols    = append(append([]interface{}{}, entryCols...), "supply_id", "supply_name", "category", "quantity", "unit_cost", "notes")
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func nullUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func entryRecord(e *Entry) goqu.Record {
	return goqu.Record{
		"id":         e.ID.String(),
		"patient_id": e.PatientID.String(),
		"bed_id":     nullUUID(e.BedID),
		"started_at": e.StartedAt,
		"ended_at":   nullTime(e.EndedAt),
		"status":     e.Status,
		"created_at": e.CreatedAt,
	}
}

func (r *repoPG) insert(ctx context.Context, kind Kind, rec goqu.Record) error {
	sql, args, err := dialect.Insert(tables[kind]).Prepared(true).Rows(rec).ToSQL()
	if err != nil {
		return fmt.Errorf("build %s insert: %w", kind, err)
	}
	_, err = r.conn(ctx).Exec(ctx, sql, args...)
	return db.MapError(err, string(kind)+" entry")
}

func (r *repoPG) AddTreatment(ctx context.Context, t *Treatment) error {
	stamp(&t.Entry)
	rec := entryRecord(&t.Entry)
	rec["name"] = t.Name
	rec["treatment_type"] = t.TreatmentType
	rec["performed_by"] = nullString(t.PerformedBy)
	rec["notes"] = nullString(t.Notes)
	return r.insert(ctx, KindTreatment, rec)
}

func (r *repoPG) AddEquipmentUsage(ctx context.Context, u *EquipmentUsage) error {
	stamp(&u.Entry)
	rec := entryRecord(&u.Entry)
	rec["equipment_id"] = nullUUID(u.EquipmentID)
	rec["equipment_name"] = u.EquipmentName
	rec["equipment_type"] = nullString(u.EquipmentType)
	rec["notes"] = nullString(u.Notes)
	return r.insert(ctx, KindEquipment, rec)
}

func (r *repoPG) AddStaffAssignment(ctx context.Context, a *StaffAssignment) error {
	stamp(&a.Entry)
	rec := entryRecord(&a.Entry)
	rec["staff_id"] = nullUUID(a.StaffID)
	rec["staff_name"] = a.StaffName
	rec["role"] = a.Role
	rec["notes"] = nullString(a.Notes)
	return r.insert(ctx, KindStaff, rec)
}

func (r *repoPG) AddSupplyUsage(ctx context.Context, s *SupplyUsage) error {
	stamp(&s.Entry)
	rec := entryRecord(&s.Entry)
	rec["supply_id"] = nullUUID(s.SupplyID)
	rec["supply_name"] = s.SupplyName
	rec["category"] = s.Category
	rec["quantity"] = s.Quantity
	rec["unit_cost"] = s.UnitCost
	rec["notes"] = nullString(s.Notes)
	return r.insert(ctx, KindSupply, rec)
}

func (r *repoPG) Complete(ctx context.Context, kind Kind, id uuid.UUID, endedAt time.Time) error {
	table, ok := tables[kind]
	if !ok {
		return apperr.Validation("unknown ledger kind %q", kind)
	}

	sql, args, err := dialect.Update(table).Prepared(true).
		Set(goqu.Record{"ended_at": endedAt, "status": StatusCompleted}).
		Where(goqu.C("id").Eq(id.String()), goqu.C("status").Neq(StatusCompleted)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build %s update: %w", kind, err)
	}
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return db.MapError(err, string(kind)+" entry")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status string
	err = r.conn(ctx).QueryRow(ctx, `SELECT status FROM `+table+` WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return db.MapError(err, string(kind)+" entry")
	}
	return apperr.InvalidState("%s entry %s is already completed", kind, id)
}

func (r *repoPG) selectSQL(kind Kind, cols []interface{}, q Query) (string, []interface{}, error) {
	ds := dialect.From(tables[kind]).Prepared(true).Select(cols...)

	var where []exp.Expression
	if q.PatientID != nil {
		where = append(where, goqu.C("patient_id").Eq(q.PatientID.String()))
	}
	if q.BedID != nil {
		where = append(where, goqu.C("bed_id").Eq(q.BedID.String()))
	}
	if q.From != nil {
		where = append(where, goqu.C("started_at").Gte(*q.From))
	}
	if q.To != nil {
		where = append(where, goqu.C("started_at").Lte(*q.To))
	}
	if len(where) > 0 {
		ds = ds.Where(where...)
	}

	if q.Newest {
		ds = ds.Order(goqu.C("started_at").Desc(), goqu.C("id").Asc())
	} else {
		ds = ds.Order(goqu.C("started_at").Asc(), goqu.C("id").Asc())
	}
	if q.Limit > 0 {
		ds = ds.Limit(uint(q.Limit))
	}
	return ds.ToSQL()
}

func queryRows[T any](ctx context.Context, r *repoPG, kind Kind, cols []interface{}, q Query, scan func(pgx.Rows) (*T, error)) ([]*T, error) {
	sql, args, err := r.selectSQL(kind, cols, q)
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", kind, err)
	}
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, db.MapError(err, string(kind)+" entries")
	}
	defer rows.Close()

	var items []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s entry: %w", kind, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func entryDest(e *Entry) []interface{} {
	return []interface{}{&e.ID, &e.PatientID, &e.BedID, &e.StartedAt, &e.EndedAt, &e.Status, &e.CreatedAt}
}

func (r *repoPG) Treatments(ctx context.Context, q Query) ([]*Treatment, error) {
	return queryRows(ctx, r, KindTreatment, treatmentCols, q, func(rows pgx.Rows) (*Treatment, error) {
		var t Treatment
		dest := append(entryDest(&t.Entry), &t.Name, &t.TreatmentType, &t.PerformedBy, &t.Notes)
		return &t, rows.Scan(dest...)
	})
}

func (r *repoPG) EquipmentUsages(ctx context.Context, q Query) ([]*EquipmentUsage, error) {
	return queryRows(ctx, r, KindEquipment, equipmentCols, q, func(rows pgx.Rows) (*EquipmentUsage, error) {
		var u EquipmentUsage
		dest := append(entryDest(&u.Entry), &u.EquipmentID, &u.EquipmentName, &u.EquipmentType, &u.Notes)
		return &u, rows.Scan(dest...)
	})
}

func (r *repoPG) StaffAssignments(ctx context.Context, q Query) ([]*StaffAssignment, error) {
	return queryRows(ctx, r, KindStaff, staffCols, q, func(rows pgx.Rows) (*StaffAssignment, error) {
		var a StaffAssignment
		dest := append(entryDest(&a.Entry), &a.StaffID, &a.StaffName, &a.Role, &a.Notes)
		return &a, rows.Scan(dest...)
	})
}

func (r *repoPG) SupplyUsages(ctx context.Context, q Query) ([]*SupplyUsage, error) {
	return queryRows(ctx, r, KindSupply, supplyCols, q, func(rows pgx.Rows) (*SupplyUsage, error) {
		var s SupplyUsage
		dest := append(entryDest(&s.Entry), &s.SupplyID, &s.SupplyName, &s.Category, &s.Quantity, &s.UnitCost, &s.Notes)
		return &s, rows.Scan(dest...)
	})
}
