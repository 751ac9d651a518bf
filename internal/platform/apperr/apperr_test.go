package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("admit: %w", Conflict("bed %s is not available", "B1"))
	if got := KindOf(err); got != KindConflict {
		t.Errorf("expected conflict, got %s", got)
	}
	if !IsKind(err, KindConflict) {
		t.Error("expected IsKind to see through wrapping")
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Errorf("expected internal, got %s", got)
	}
}

func TestError_Message(t *testing.T) {
	err := Internal("load bed", errors.New("connection reset"))
	if err.Error() != "load bed: connection reset" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, err.Err) {
		t.Error("expected Unwrap to expose cause")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidState: http.StatusConflict,
		KindConflict:     http.StatusConflict,
		KindNotFound:     http.StatusNotFound,
		KindValidation:   http.StatusUnprocessableEntity,
		KindInternal:     http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("%s: expected %d, got %d", kind, want, got)
		}
	}
}

func TestToHTTP(t *testing.T) {
	he := ToHTTP(fmt.Errorf("discharge: %w", InvalidState("bed is cleaning")))
	if he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", he.Code)
	}
	if he.Message != "bed is cleaning" {
		t.Errorf("unexpected message: %v", he.Message)
	}

	he = ToHTTP(errors.New("pool closed"))
	if he.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", he.Code)
	}
	if he.Message != "internal error" {
		t.Errorf("expected cause to be hidden, got %v", he.Message)
	}
}
