package agent

import (
	"errors"
	"regexp"
	"strings"
	"sync"
)

// ErrNoCode is returned when a model reply contains no fenced code.
var ErrNoCode = errors.New("no code block in model response")

var (
	fenceMu    sync.Mutex
	fenceCache = map[string]*regexp.Regexp{}
)

func fencePattern(lang string) *regexp.Regexp {
	fenceMu.Lock()
	defer fenceMu.Unlock()
	if re, ok := fenceCache[lang]; ok {
		return re
	}
	re := regexp.MustCompile("```" + regexp.QuoteMeta(lang) + `\s*([\s\S]+?)\s*` + "```")
	fenceCache[lang] = re
	return re
}

// ExtractCode joins the bodies of all ```lang fenced blocks in text with
// newlines. An empty lang matches any fence.
func ExtractCode(text, lang string) string {
	matches := fencePattern(lang).FindAllStringSubmatch(text, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, m[1])
	}
	return strings.Join(blocks, "\n")
}

// ExtractJSONObject returns the text between the first '{' and the last
// '}', inclusive.
func ExtractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}
