package workflow

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fyrsmithlabs/agentbench/internal/output"
	"gopkg.in/yaml.v3"
)

// Definition is a named, ordered list of steps.
type Definition struct {
	Name        string `yaml:"name" toml:"name" json:"name"`
	Description string `yaml:"description,omitempty" toml:"description,omitempty" json:"description,omitempty"`
	Steps       []Step `yaml:"steps" toml:"steps" json:"steps"`
}

// ParseDefinitionYAML decodes a definition from YAML or JSON bytes.
// Unknown fields are rejected.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("workflow: definition payload is empty")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var def Definition
	if err := dec.Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("workflow: decode definition: %w", err)
	}
	return def.normalized()
}

// ParseDefinitionTOML decodes a definition from TOML bytes. Unknown keys
// are rejected.
func ParseDefinitionTOML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("workflow: definition payload is empty")
	}
	var def Definition
	md, err := toml.Decode(string(data), &def)
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: decode definition: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			// Args are free-form.
			if isArgKey(k) {
				continue
			}
			keys = append(keys, k.String())
		}
		if len(keys) > 0 {
			sort.Strings(keys)
			return Definition{}, fmt.Errorf("workflow: unknown keys %s", strings.Join(keys, ", "))
		}
	}
	return def.normalized()
}

func isArgKey(k toml.Key) bool {
	for i, part := range k {
		if part == "args" && i > 0 {
			return true
		}
	}
	return false
}

// LoadDefinitionFile loads a definition, choosing the decoder by
// extension: .toml for TOML, anything else as YAML (which covers JSON).
func LoadDefinitionFile(path string) (Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	var def Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		def, err = ParseDefinitionTOML(content)
	default:
		def, err = ParseDefinitionYAML(content)
	}
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: %s: %w", path, err)
	}
	return def, nil
}

// normalized trims names, applies defaults and canonicalizes output types.
func (d Definition) normalized() (Definition, error) {
	d.Name = strings.TrimSpace(d.Name)
	if len(d.Steps) == 0 {
		return Definition{}, fmt.Errorf("workflow: definition %q has no steps", d.Name)
	}
	for i := range d.Steps {
		s := &d.Steps[i]
		s.Agent = strings.TrimSpace(s.Agent)
		s.Method = strings.TrimSpace(s.Method)
		if s.Method == "" {
			s.Method = DefaultMethod
		}
		s.Output = strings.TrimSpace(s.Output)
		// Types without a built-in handler are left to the handler
		// registry; Validate reports them.
		s.OutputType, _ = output.ParseType(string(s.OutputType))
	}
	return d, nil
}
