// Package agent defines the capability contract the workflow engine calls
// and a registry of named agents.
//
// An agent exposes one or more methods. Each method is a Capability that
// turns a Request into a (log, artifact) Response. A capability that also
// implements Debugger can repair its own failed artifacts.
package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/agentbench/internal/instruction"
	"github.com/fyrsmithlabs/agentbench/internal/workspace"
)

// QueriesArg is the argument the engine binds to the current instruction.
const QueriesArg = "queries"

// Request is everything a capability sees for one instruction.
type Request struct {
	Instruction instruction.Instruction
	// Args are the step's arguments with references already resolved.
	Args      map[string]any
	Workspace workspace.Workspace
	// Tag is the step's model tag, if any.
	Tag string
}

// StringArg returns Args[key] when it is a non-empty string.
func (r *Request) StringArg(key string) (string, bool) {
	s, ok := r.Args[key].(string)
	return s, ok && s != ""
}

// DebugRequest asks a capability to repair a failed artifact.
type DebugRequest struct {
	Request
	// ErrorMessage is the execution output (code steps) or the previous
	// log (analysis steps).
	ErrorMessage  string
	BuggyArtifact string
	// Iteration counts from 1.
	Iteration int
}

// Response is what a capability produced.
type Response struct {
	Log      string
	Artifact any
}

// Capability is one agent method.
type Capability interface {
	Run(ctx context.Context, req *Request) (Response, error)
}

// Debugger is implemented by capabilities that can repair their output.
type Debugger interface {
	Debug(ctx context.Context, req *DebugRequest) (Response, error)
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func(ctx context.Context, req *Request) (Response, error)

func (f CapabilityFunc) Run(ctx context.Context, req *Request) (Response, error) {
	return f(ctx, req)
}

// Agent groups capabilities under a name.
type Agent interface {
	Name() string
	Capabilities() map[string]Capability
}

// Executor runs a file inside a workspace and returns its combined output.
// Agents that verify their own work use it.
type Executor interface {
	Execute(ctx context.Context, filename string, ws workspace.Workspace) string
}

// NotFoundError is returned when an agent or method is not registered.
type NotFoundError struct {
	Agent  string
	Method string
}

func (e *NotFoundError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("agent %q is not registered", e.Agent)
	}
	return fmt.Sprintf("agent %q has no method %q", e.Agent, e.Method)
}

// Registry maps agent names and methods to capabilities.
type Registry struct {
	agents map[string]map[string]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]map[string]Capability)}
}

// Register adds one capability. Registering the same agent and method
// twice is an error.
func (r *Registry) Register(agentName, method string, c Capability) error {
	if agentName == "" || method == "" {
		return fmt.Errorf("agent name and method are required")
	}
	if c == nil {
		return fmt.Errorf("agent %q method %q: nil capability", agentName, method)
	}
	methods, ok := r.agents[agentName]
	if !ok {
		methods = make(map[string]Capability)
		r.agents[agentName] = methods
	}
	if _, dup := methods[method]; dup {
		return fmt.Errorf("agent %q method %q already registered", agentName, method)
	}
	methods[method] = c
	return nil
}

// RegisterAgent registers every capability of a.
func (r *Registry) RegisterAgent(a Agent) error {
	for method, c := range a.Capabilities() {
		if err := r.Register(a.Name(), method, c); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the capability for agent.method.
func (r *Registry) Lookup(agentName, method string) (Capability, error) {
	methods, ok := r.agents[agentName]
	if !ok {
		return nil, &NotFoundError{Agent: agentName}
	}
	c, ok := methods[method]
	if !ok {
		return nil, &NotFoundError{Agent: agentName, Method: method}
	}
	return c, nil
}

// HasDebug reports whether agent.method can repair its output.
func (r *Registry) HasDebug(agentName, method string) bool {
	c, err := r.Lookup(agentName, method)
	if err != nil {
		return false
	}
	_, ok := c.(Debugger)
	return ok
}

// Agents returns the registered agent names, sorted.
func (r *Registry) Agents() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Methods returns an agent's methods, sorted.
func (r *Registry) Methods(agentName string) []string {
	methods := make([]string, 0, len(r.agents[agentName]))
	for m := range r.agents[agentName] {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}
