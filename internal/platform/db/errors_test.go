package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

func TestMapError(t *testing.T) {
	if MapError(nil, "bed") != nil {
		t.Error("expected nil for nil error")
	}
	if k := apperr.KindOf(MapError(pgx.ErrNoRows, "bed")); k != apperr.KindNotFound {
		t.Errorf("expected not_found, got %s", k)
	}
	if k := apperr.KindOf(MapError(&pgconn.PgError{Code: "23505"}, "report")); k != apperr.KindConflict {
		t.Errorf("expected conflict, got %s", k)
	}
	if k := apperr.KindOf(MapError(&pgconn.PgError{Code: "23514", ConstraintName: "beds_occupant_check"}, "bed")); k != apperr.KindValidation {
		t.Errorf("check violation: expected validation, got %s", k)
	}
	if k := apperr.KindOf(MapError(errors.New("boom"), "bed")); k != apperr.KindInternal {
		t.Errorf("expected internal, got %s", k)
	}
}
