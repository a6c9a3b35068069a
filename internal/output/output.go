// Package output persists agent artifacts into a workspace.
//
// Each step declares an output type. The type selects a Handler from a
// Registry; the handler writes the artifact to a file and returns the
// normalized (log, result, filename) triple the engine records.
package output

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/agentbench/internal/workspace"
)

// Type tags how an artifact is persisted.
type Type string

const (
	// TypeCode artifacts are source files that get executed.
	TypeCode Type = "code"
	// TypeAnalysis artifacts are reports that are stored, not executed.
	TypeAnalysis Type = "analysis"
)

// ErrUnknownType is returned by ParseType for unrecognized tags.
var ErrUnknownType = errors.New("unknown output type")

// ParseType parses an output type tag. The empty string means code.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TypeCode, nil
	case TypeCode, TypeAnalysis:
		return t, nil
	default:
		return t, fmt.Errorf("%w %q (want %q or %q)", ErrUnknownType, s, TypeCode, TypeAnalysis)
	}
}

// Executable reports whether artifacts of this type are run after being
// written.
func (t Type) Executable() bool {
	return t == TypeCode
}

// Input is a raw agent artifact plus where it came from.
type Input struct {
	Log      string
	Artifact any
	Agent    string
	Method   string
	// Tag names the model or method variant. Analysis output is nested
	// under a directory named after it.
	Tag       string
	Workspace workspace.Workspace
}

// Result is the normalized, persisted form of an artifact.
type Result struct {
	Log      string
	Result   string
	Filename string
}

// Handler persists one kind of artifact.
type Handler interface {
	Handle(in Input) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(in Input) (Result, error)

func (f HandlerFunc) Handle(in Input) (Result, error) {
	return f(in)
}

// HandlerNotFoundError is returned when no handler is registered for a type.
type HandlerNotFoundError struct {
	Type Type
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("no handler registered for output type %q", e.Type)
}

// Registry maps output types to handlers.
type Registry struct {
	handlers map[Type]Handler
}

// NewRegistry returns a registry with the code and analysis handlers.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[Type]Handler)}
	r.Register(TypeCode, CodeHandler{})
	r.Register(TypeAnalysis, AnalysisHandler{})
	return r
}

// Register sets the handler for t, replacing any previous one.
func (r *Registry) Register(t Type, h Handler) {
	r.handlers[t] = h
}

// Lookup returns the handler for t.
func (r *Registry) Lookup(t Type) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, &HandlerNotFoundError{Type: t}
	}
	return h, nil
}

// Types returns the registered types, sorted.
func (r *Registry) Types() []Type {
	out := make([]Type, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
