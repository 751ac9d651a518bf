package operation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

// Args are the decoded JSON arguments of one invocation. Accessors return
// validation errors naming the offending argument.
type Args map[string]interface{}

// Has reports whether name is present and not null.
func (a Args) Has(name string) bool {
	v, ok := a[name]
	return ok && v != nil
}

func (a Args) UUID(name string) (uuid.UUID, error) {
	s, err := a.String(name)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, apperr.Validation("%s must be a uuid", name)
	}
	return id, nil
}

func (a Args) OptUUID(name string) (*uuid.UUID, error) {
	if !a.Has(name) {
		return nil, nil
	}
	id, err := a.UUID(name)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (a Args) String(name string) (string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return "", apperr.Validation("%s is required", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", apperr.Validation("%s must be a string", name)
	}
	return s, nil
}

// OptString returns "" when name is absent.
func (a Args) OptString(name string) (string, error) {
	if !a.Has(name) {
		return "", nil
	}
	return a.String(name)
}

// OptStringPtr returns nil when name is absent or blank.
func (a Args) OptStringPtr(name string) (*string, error) {
	s, err := a.OptString(name)
	if err != nil || strings.TrimSpace(s) == "" {
		return nil, err
	}
	return &s, nil
}

// Time parses an RFC3339 timestamp. A bare YYYY-MM-DD date is accepted as
// midnight UTC.
func (a Args) Time(name string) (time.Time, error) {
	s, err := a.String(name)
	if err != nil {
		return time.Time{}, err
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Validation("%s must be an RFC3339 timestamp", name)
}

func (a Args) OptTime(name string) (*time.Time, error) {
	if !a.Has(name) {
		return nil, nil
	}
	t, err := a.Time(name)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (a Args) Number(name string) (float64, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return 0, apperr.Validation("%s is required", name)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, nil
		}
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, nil
		}
	}
	return 0, apperr.Validation("%s must be a number", name)
}

func (a Args) OptNumber(name string, def float64) (float64, error) {
	if !a.Has(name) {
		return def, nil
	}
	return a.Number(name)
}

func (a Args) Int(name string) (int, error) {
	f, err := a.Number(name)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return int(f), nil
}

func (a Args) OptInt(name string, def int) (int, error) {
	if !a.Has(name) {
		return def, nil
	}
	return a.Int(name)
}

func (a Args) Bool(name string) (bool, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return false, apperr.Validation("%s is required", name)
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed, nil
		}
	}
	return false, apperr.Validation("%s must be a boolean", name)
}
