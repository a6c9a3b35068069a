package output

import (
	"encoding/json"
	"fmt"
	"path/filepath"
)

// DefaultCodeExtension is used when CodeHandler.Extension is empty.
const DefaultCodeExtension = ".py"

// DefaultTag names the analysis subdirectory when a step has no tag.
const DefaultTag = "default"

// CodeFileName is the deterministic file a code artifact is written to.
func CodeFileName(agent, method, ext string) string {
	if ext == "" {
		ext = DefaultCodeExtension
	}
	return fmt.Sprintf("code_action_%s_%s%s", agent, method, ext)
}

// CodeHandler writes code artifacts to code_action_<agent>_<method><ext>.
type CodeHandler struct {
	Extension string
}

// Handle requires a string artifact.
func (h CodeHandler) Handle(in Input) (Result, error) {
	code, ok := in.Artifact.(string)
	if !ok {
		return Result{}, fmt.Errorf("code artifact must be a string, got %T", in.Artifact)
	}
	name := CodeFileName(in.Agent, in.Method, h.Extension)
	if err := in.Workspace.WriteFile(name, code); err != nil {
		return Result{}, err
	}
	return Result{Log: in.Log, Result: code, Filename: name}, nil
}

// AnalysisHandler writes analysis artifacts under <tag>/. Text artifacts
// are written as-is to a .txt file; anything else is encoded as indented
// JSON to a .json file.
type AnalysisHandler struct{}

func (AnalysisHandler) Handle(in Input) (Result, error) {
	text, ext, err := Stringify(in.Artifact)
	if err != nil {
		return Result{}, err
	}
	tag := in.Tag
	if tag == "" {
		tag = DefaultTag
	}
	name := filepath.Join(tag, fmt.Sprintf("analysis_%s_%s%s", in.Agent, in.Method, ext))
	if err := in.Workspace.WriteFile(name, text); err != nil {
		return Result{}, err
	}
	return Result{Log: in.Log, Result: text, Filename: name}, nil
}

// Stringify renders an artifact as text and returns the file extension
// matching the rendering.
func Stringify(artifact any) (string, string, error) {
	switch v := artifact.(type) {
	case nil:
		return "", ".txt", nil
	case string:
		return v, ".txt", nil
	case []byte:
		return string(v), ".txt", nil
	case fmt.Stringer:
		return v.String(), ".txt", nil
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", "", fmt.Errorf("failed to encode analysis artifact: %w", err)
		}
		return string(data), ".json", nil
	}
}
