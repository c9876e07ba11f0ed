// pkg/transform/registry.go
package transform

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Func converts one raw column value into its target representation.
// A nil return is serialized as JSON null.
type Func func(raw string) (interface{}, error)

// ErrUnknownKind is returned when a binding names a transform that does not exist
var ErrUnknownKind = errors.New("unknown transform kind")

// TransformError is a fatal failure to convert a source value
type TransformError struct {
	Field string
	Line  int
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("line %d: transform of field %q failed: %v", e.Line, e.Field, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// Registry maps a field name to the transform applied to its column
type Registry struct {
	funcs map[string]Func
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds fn to field, replacing any previous binding
func (r *Registry) Register(field string, fn Func) {
	r.funcs[field] = fn
}

// Has reports whether field has a transform bound
func (r *Registry) Has(field string) bool {
	_, ok := r.funcs[field]
	return ok
}

// Fields returns the bound field names in sorted order
func (r *Registry) Fields() []string {
	fields := make([]string, 0, len(r.funcs))
	for f := range r.funcs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Apply transforms raw for field. Unbound fields pass through unchanged,
// except that an empty value becomes nil.
func (r *Registry) Apply(field string, line int, raw string) (interface{}, error) {
	fn, ok := r.funcs[field]
	if !ok {
		if raw == "" {
			return nil, nil
		}
		return raw, nil
	}

	value, err := fn(raw)
	if err != nil {
		return nil, &TransformError{Field: field, Line: line, Err: err}
	}
	return value, nil
}

// Resolve builds a registry from field => kind bindings, failing on the
// first kind that opts cannot build.
func Resolve(bindings map[string]string, opts Options) (*Registry, error) {
	reg := NewRegistry()

	fields := make([]string, 0, len(bindings))
	for f := range bindings {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		fn, err := opts.Build(Kind(bindings[field]))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		reg.Register(field, fn)
	}

	return reg, nil
}

// ParseBindings parses "field=kind" pairs
func ParseBindings(pairs []string) (map[string]string, error) {
	bindings := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		field, kind, ok := strings.Cut(pair, "=")
		field, kind = strings.TrimSpace(field), strings.TrimSpace(kind)
		if !ok || field == "" || kind == "" {
			return nil, fmt.Errorf("invalid transform binding %q, want field=kind", pair)
		}
		bindings[field] = kind
	}
	return bindings, nil
}

// DefaultBindings are the transforms used by the legacy user migrations
func DefaultBindings() map[string]string {
	return map[string]string{
		"password":          string(KindPassword),
		"birthday":          string(KindDate),
		"gender":            string(KindGender),
		"optIn.status":      string(KindBoolean),
		"clients":           string(KindPlural),
		"shippingAddresses": string(KindPlural),
	}
}
