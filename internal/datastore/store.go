// Package datastore threads step outputs to later steps.
//
// A step that declares an output name binds its accumulated results under
// that name. Later steps pull them in with argument values shaped
// {"from": name}, which Resolve replaces with the bound value.
package datastore

import (
	"fmt"
	"sort"
	"sync"
)

// ReservedArg is never resolved by Resolve. The engine binds it per
// instruction.
const ReservedArg = "queries"

// Reference points at a bound output by name.
type Reference struct {
	From string `json:"from" yaml:"from" toml:"from"`
}

// Ref returns a reference to name.
func Ref(name string) Reference {
	return Reference{From: name}
}

// AsReference reports whether v is a reference and returns the name it
// points at. Both Reference values and decoded maps with a single string
// "from" key are accepted.
func AsReference(v any) (string, bool) {
	switch r := v.(type) {
	case Reference:
		return r.From, r.From != ""
	case *Reference:
		if r == nil {
			return "", false
		}
		return r.From, r.From != ""
	case map[string]any:
		return fromMap(len(r), r["from"])
	case map[string]string:
		name, ok := r["from"]
		return name, ok && len(r) == 1 && name != ""
	case map[any]any:
		return fromMap(len(r), r["from"])
	}
	return "", false
}

func fromMap(size int, v any) (string, bool) {
	if size != 1 {
		return "", false
	}
	name, ok := v.(string)
	return name, ok && name != ""
}

// UnresolvedReferenceError is returned when an argument references a name
// that has not been bound.
type UnresolvedReferenceError struct {
	Arg  string
	Name string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("argument %q references unbound output %q", e.Arg, e.Name)
}

// Store maps output names to values. It is safe for concurrent use,
// though the engine only touches it between steps.
type Store[T any] struct {
	mu     sync.RWMutex
	values map[string]T
}

// New creates an empty store.
func New[T any]() *Store[T] {
	return &Store[T]{values: make(map[string]T)}
}

// Bind stores v under name, replacing any previous value.
func (s *Store[T]) Bind(name string, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = v
}

// Get returns the value bound to name.
func (s *Store[T]) Get(name string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Names returns the bound names, sorted.
func (s *Store[T]) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns a copy of args with every top-level reference replaced
// by the bound value. Nested values are left alone. args is not modified.
func (s *Store[T]) Resolve(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for key, v := range args {
		if key == ReservedArg {
			out[key] = v
			continue
		}
		name, ok := AsReference(v)
		if !ok {
			out[key] = v
			continue
		}
		bound, ok := s.Get(name)
		if !ok {
			return nil, &UnresolvedReferenceError{Arg: key, Name: name}
		}
		out[key] = bound
	}
	return out, nil
}

// References lists the output names args refers to, keyed by argument.
func References(args map[string]any) map[string]string {
	refs := make(map[string]string)
	for key, v := range args {
		if key == ReservedArg {
			continue
		}
		if name, ok := AsReference(v); ok {
			refs[key] = name
		}
	}
	return refs
}
