package execution

import "strings"

// Failure markers. Their presence anywhere in captured output marks the
// attempt as failed. ErrorMarker also matches the sentinel strings this
// package produces for missing files and spawn failures.
const (
	TracebackMarker       = "Traceback (most recent call last):"
	IncorrectAnswerMarker = "Incorrect Answer:"
	ErrorMarker           = "Error:"
)

// Markers lists every failure marker in the order they are checked.
var Markers = []string{TracebackMarker, IncorrectAnswerMarker, ErrorMarker}

// IsSuccessful reports whether text contains none of the failure markers.
func IsSuccessful(text string) bool {
	_, found := FirstMarker(text)
	return !found
}

// FirstMarker returns the first marker found in text.
func FirstMarker(text string) (string, bool) {
	for _, m := range Markers {
		if strings.Contains(text, m) {
			return m, true
		}
	}
	return "", false
}
