package llm

import "strings"

// DefaultGeminiPreferences lists Gemini models from most capable fast model down.
var DefaultGeminiPreferences = []string{
	"gemini-2.5-flash",
	"gemini-2.0-flash",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
}

// DefaultClaudePreferences lists Claude models in the same spirit.
var DefaultClaudePreferences = []string{
	"claude-sonnet-4-5",
	"claude-3-7-sonnet-latest",
	"claude-3-5-haiku-latest",
}

// SelectModel returns the first preference present in available, else the
// first available model. Names compare without a "models/" prefix. It
// reports false only when available is empty.
func SelectModel(available []string, preferences []string) (string, bool) {
	present := make(map[string]struct{}, len(available))
	first := ""
	for _, name := range available {
		short := shortName(name)
		if short == "" {
			continue
		}
		if first == "" {
			first = short
		}
		present[short] = struct{}{}
	}
	if first == "" {
		return "", false
	}
	for _, pref := range preferences {
		if _, ok := present[shortName(pref)]; ok {
			return shortName(pref), true
		}
	}
	return first, true
}

func shortName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "models/")
}
