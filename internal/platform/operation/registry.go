package operation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

// Param describes one argument of an operation.
type Param struct {
	Name          string `json:"name"`
	Type          string `json:"type"` // uuid | string | time | int | number | bool
	Required      bool   `json:"required"`
	Documentation string `json:"documentation,omitempty"`
}

// Definition describes a named operation exposed through the generic call
// interface.
type Definition struct {
	Name         string  `json:"name"`
	Title        string  `json:"title,omitempty"`
	Description  string  `json:"description,omitempty"`
	AffectsState bool    `json:"affects_state"`
	Params       []Param `json:"params,omitempty"`
}

// Handler executes an operation with already-checked arguments.
type Handler func(ctx context.Context, args Args) (interface{}, error)

// ErrorBody is the failure half of a Result.
type ErrorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Result is the outcome of Invoke. Exactly one of Data and Error is set.
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

var namePattern = regexp.MustCompile(`^[a-z][A-Za-z0-9]{0,63}$`)

// Registry is a thread-safe set of operations keyed by name.
type Registry struct {
	mu       sync.RWMutex
	defs     map[string]*Definition
	handlers map[string]Handler
	logger   zerolog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		defs:     make(map[string]*Definition),
		handlers: make(map[string]Handler),
		logger:   zerolog.Nop(),
	}
}

func (r *Registry) SetLogger(l zerolog.Logger) {
	r.logger = l.With().Str("component", "operations").Logger()
}

// Register adds an operation. Names must be lowerCamelCase and unique.
func (r *Registry) Register(def *Definition, h Handler) error {
	if def == nil {
		return fmt.Errorf("operation definition is nil")
	}
	if h == nil {
		return fmt.Errorf("operation %q: handler is nil", def.Name)
	}
	if !namePattern.MatchString(def.Name) {
		return fmt.Errorf("operation %q: invalid name", def.Name)
	}
	seen := make(map[string]bool, len(def.Params))
	for _, p := range def.Params {
		if p.Name == "" || seen[p.Name] {
			return fmt.Errorf("operation %q: empty or duplicate param %q", def.Name, p.Name)
		}
		seen[p.Name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("operation %q is already registered", def.Name)
	}
	r.defs[def.Name] = def
	r.handlers[def.Name] = h
	return nil
}

// MustRegister is Register for wiring code that cannot recover.
func (r *Registry) MustRegister(def *Definition, h Handler) {
	if err := r.Register(def, h); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// List returns all definitions sorted by name.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Definition, 0, len(names))
	for _, name := range names {
		out = append(out, r.defs[name])
	}
	return out
}

// Invoke runs the named operation. Failures never escape as Go errors; they
// are reported in the Result with their kind.
func (r *Registry) Invoke(ctx context.Context, name string, args Args) Result {
	r.mu.RLock()
	def, ok := r.defs[name]
	h := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return failure(apperr.NotFound("unknown operation %q", name))
	}
	if args == nil {
		args = Args{}
	}
	for _, p := range def.Params {
		if p.Required && !args.Has(p.Name) {
			return failure(apperr.Validation("%s is required", p.Name))
		}
	}

	data, err := h(ctx, args)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			r.logger.Error().Err(err).Str("operation", name).Msg("operation failed")
		}
		return failure(err)
	}
	return Result{Success: true, Data: data}
}

func failure(err error) Result {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind != apperr.KindInternal {
		return Result{Error: &ErrorBody{Kind: ae.Kind, Message: ae.Message}}
	}
	return Result{Error: &ErrorBody{Kind: apperr.KindInternal, Message: "internal error"}}
}
