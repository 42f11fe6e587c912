// Package llmutils provides helpers to clean and render model text.
package llmutils

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// ExtractJSON returns the JSON object or array embedded in model text.
// A fenced block is unwrapped first, then any prose around the value is cut.
// Text without braces or brackets is returned trimmed.
func ExtractJSON(text string) []byte {
	if _, rest, ok := strings.Cut(text, "```"); ok {
		if body, _, closed := strings.Cut(rest, "```"); closed {
			rest = body
		}
		text = rest
	}
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "}]")
	if start == -1 || end < start {
		return []byte(strings.TrimSpace(text))
	}
	return []byte(text[start : end+1])
}

// ToJSON returns compact JSON, or empty string if the value can not be encoded.
func ToJSON(val any) string {
	js, _ := json.Marshal(val)
	return string(js)
}

// ToJSONIndent returns JSON indented with tabs.
func ToJSONIndent(val any) string {
	js, _ := json.MarshalIndent(val, "", "\t")
	return string(js)
}

// ToYAML returns YAML.
func ToYAML(val any) string {
	js, _ := yaml.Marshal(val)
	return string(js)
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// EnsureEndsWithNewline ensures the message ends with a newline,
// it also removes any extra leading and trailing spaces.
func EnsureEndsWithNewline(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return s + "\n"
}
