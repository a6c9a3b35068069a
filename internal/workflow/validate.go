package workflow

import (
	"github.com/fyrsmithlabs/agentbench/internal/agent"
	"github.com/fyrsmithlabs/agentbench/internal/datastore"
	"github.com/fyrsmithlabs/agentbench/internal/output"
)

// Validate checks a workflow before it runs: every agent and method is
// registered, every output type has a handler, references only point at
// outputs of strictly earlier steps, the first step loads instructions and
// every id range is well formed.
func Validate(steps []Step, agents *agent.Registry, handlers *output.Registry) error {
	verr := validateStructure(steps, agents)
	if handlers != nil {
		for i, s := range steps {
			if _, err := handlers.Lookup(s.Type()); err != nil {
				verr.add("step %d (%s): %v", i+1, s.Key(), err)
			}
		}
	}
	return verr.orNil()
}

// validateStructure holds the checks Run enforces itself. Handler
// availability is left to run time, where a missing handler skips the
// step's instances instead of failing the run.
func validateStructure(steps []Step, agents *agent.Registry) *ValidationError {
	verr := &ValidationError{}
	if len(steps) == 0 {
		verr.add("no steps")
		return verr
	}
	if !steps[0].LoadsData() {
		verr.add("step 1 (%s): the first step must declare input.data", steps[0].Key())
	}

	bound := make(map[string]int)
	for i, s := range steps {
		n := i + 1
		if s.Agent == "" {
			verr.add("step %d: agent is required", n)
		} else if agents != nil {
			if _, err := agents.Lookup(s.Agent, s.MethodName()); err != nil {
				verr.add("step %d (%s): %v", n, s.Key(), err)
			}
		}
		if len(s.DataRange) != 0 && len(s.DataRange) != 2 {
			verr.add("step %d (%s): data_range must be [start, end]", n, s.Key())
		} else if err := s.Filter().Validate(); err != nil {
			verr.add("step %d (%s): %v", n, s.Key(), err)
		}
		if (len(s.DataIDs) > 0 || len(s.DataRange) > 0) && !s.LoadsData() {
			verr.add("step %d (%s): data_ids and data_range need input.data", n, s.Key())
		}
		for arg, name := range datastore.References(s.Args) {
			if _, ok := bound[name]; !ok {
				verr.add("step %d (%s): argument %q references %q, which no earlier step outputs", n, s.Key(), arg, name)
			}
		}
		if s.Output != "" {
			bound[s.Output] = n
		}
	}
	return verr
}
