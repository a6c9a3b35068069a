// Package instruction loads benchmark task records from newline-delimited JSON.
package instruction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Instruction is one benchmark task record. Instructions are immutable once
// loaded.
type Instruction struct {
	ID          int      `json:"id"`
	Question    string   `json:"question"`
	Constraints string   `json:"constraints"`
	FileName    string   `json:"file_name"`
	Format      string   `json:"format"`
	Concepts    []string `json:"concepts,omitempty"`
	Answers     []Answer `json:"answers"`

	// Extra holds fields this package does not interpret, such as
	// reference solutions attached by benchmark conversion.
	Extra map[string]json.RawMessage `json:"-"`
}

// Answer is one expected (key, value) pair.
type Answer struct {
	Key   string
	Value string
}

// UnmarshalJSON decodes the [key, value] pair form. Numeric values are kept
// in their literal JSON form.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("answer must be a [key, value] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("answer must be a [key, value] pair, got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &a.Key); err != nil {
		return fmt.Errorf("answer key must be a string: %w", err)
	}
	var s string
	if err := json.Unmarshal(pair[1], &s); err == nil {
		a.Value = s
		return nil
	}
	a.Value = string(bytes.TrimSpace(pair[1]))
	return nil
}

// MarshalJSON encodes the answer back to [key, value].
func (a Answer) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{a.Key, a.Value})
}

var knownFields = map[string]bool{
	"id": true, "question": true, "constraints": true, "file_name": true,
	"format": true, "concepts": true, "answers": true,
}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (in *Instruction) UnmarshalJSON(data []byte) error {
	type plain Instruction
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k, v := range all {
		if knownFields[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[k] = v
	}

	*in = Instruction(p)
	return nil
}

// MarshalJSON encodes the instruction including its extra fields.
func (in Instruction) MarshalJSON() ([]byte, error) {
	type plain Instruction
	base, err := json.Marshal(plain(in))
	if err != nil || len(in.Extra) == 0 {
		return base, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range in.Extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// ExtraString returns an extra field decoded as a string.
func (in Instruction) ExtraString(key string) (string, bool) {
	raw, ok := in.Extra[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// AnswerMap returns the expected answers keyed by name.
func (in Instruction) AnswerMap() map[string]string {
	m := make(map[string]string, len(in.Answers))
	for _, a := range in.Answers {
		m[a.Key] = a.Value
	}
	return m
}

// Prompt renders the task block shown to agents.
func (in Instruction) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question ID: %d\n", in.ID)
	fmt.Fprintf(&b, "Question: %s\n\n", in.Question)
	fmt.Fprintf(&b, "Constraints: %s\n\n", in.Constraints)
	fmt.Fprintf(&b, "Data File Name: %s\n\n", in.FileName)
	fmt.Fprintf(&b, "Format: %s\n\n", in.Format)
	if len(in.Concepts) > 0 {
		fmt.Fprintf(&b, "Concepts: %s\n\n", strings.Join(in.Concepts, ", "))
	}
	fmt.Fprintf(&b, "Expected Answers: %s\n", in.FormatAnswers())
	return b.String()
}

// FormatAnswers renders the answers as "key=value; key=value".
func (in Instruction) FormatAnswers() string {
	parts := make([]string, len(in.Answers))
	for i, a := range in.Answers {
		parts[i] = a.Key + "=" + a.Value
	}
	return strings.Join(parts, "; ")
}
