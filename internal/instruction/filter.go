package instruction

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is an inclusive id range.
type Range struct {
	Start int
	End   int
}

// Filter selects instructions either by an explicit id set or by an
// inclusive range. IDs take precedence when both are set. The zero Filter
// keeps every instruction.
type Filter struct {
	IDs   []int
	Range *Range
}

// IDFilter keeps instructions whose id is one of ids.
func IDFilter(ids ...int) Filter {
	return Filter{IDs: ids}
}

// RangeFilter keeps instructions with start <= id <= end.
func RangeFilter(start, end int) Filter {
	return Filter{Range: &Range{Start: start, End: end}}
}

// IsZero reports whether the filter keeps everything.
func (f Filter) IsZero() bool {
	return len(f.IDs) == 0 && f.Range == nil
}

// Validate rejects inverted ranges.
func (f Filter) Validate() error {
	if len(f.IDs) == 0 && f.Range != nil && f.Range.Start > f.Range.End {
		return fmt.Errorf("invalid id range [%d, %d]: start is after end", f.Range.Start, f.Range.End)
	}
	return nil
}

// Match reports whether an instruction with the given id is kept.
func (f Filter) Match(id int) bool {
	switch {
	case len(f.IDs) > 0:
		for _, want := range f.IDs {
			if want == id {
				return true
			}
		}
		return false
	case f.Range != nil:
		return f.Range.Start <= id && id <= f.Range.End
	default:
		return true
	}
}

// Apply returns the matching instructions in their original order.
func (f Filter) Apply(instructions []Instruction) []Instruction {
	if f.IsZero() {
		return instructions
	}
	out := make([]Instruction, 0, len(instructions))
	for _, in := range instructions {
		if f.Match(in.ID) {
			out = append(out, in)
		}
	}
	return out
}

// String renders the filter the way ParseFilter accepts it.
func (f Filter) String() string {
	switch {
	case len(f.IDs) > 0:
		parts := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			parts[i] = strconv.Itoa(id)
		}
		return strings.Join(parts, ",")
	case f.Range != nil:
		return fmt.Sprintf("%d:%d", f.Range.Start, f.Range.End)
	default:
		return ""
	}
}

// ParseFilter parses "1,4,9" as an id set and "10:20" as an inclusive range.
// The empty string is the zero Filter.
func ParseFilter(s string) (Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Filter{}, nil
	}
	if start, end, ok := strings.Cut(s, ":"); ok {
		a, err := strconv.Atoi(strings.TrimSpace(start))
		if err != nil {
			return Filter{}, fmt.Errorf("invalid range start %q: %w", start, err)
		}
		b, err := strconv.Atoi(strings.TrimSpace(end))
		if err != nil {
			return Filter{}, fmt.Errorf("invalid range end %q: %w", end, err)
		}
		f := RangeFilter(a, b)
		return f, f.Validate()
	}
	var ids []int
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Filter{}, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return IDFilter(ids...), nil
}
