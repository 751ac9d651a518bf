package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
)

// MapError translates pgx errors into apperr kinds. what names the entity
// for the error message.
func MapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s not found", what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return &apperr.Error{Kind: apperr.KindConflict, Message: what + " already exists", Err: err}
		case foreignKeyViolation, checkViolation:
			return &apperr.Error{Kind: apperr.KindValidation, Message: what + " violates " + pgErr.ConstraintName, Err: err}
		}
	}
	return apperr.Internal(what, err)
}
