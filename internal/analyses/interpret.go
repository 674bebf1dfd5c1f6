package analyses

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"ats-matcher/internal/prompt"
)

// Keys of the object the match template asks for.
const (
	KeyJDMatch         = "JD Match"
	KeyMissingKeywords = "MissingKeywords"
	KeyProfileSummary  = "Profile Summary"
)

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Match is a parsed match-mode reply.
type Match struct {
	// MatchPercentage is the model's value as written, e.g. "82%".
	MatchPercentage string   `json:"matchPercentage"`
	Percent         float64  `json:"percent"`
	MissingKeywords []string `json:"missingKeywords"`
	ProfileSummary  string   `json:"profileSummary"`
}

// Result is the interpreted model reply. Exactly one of Match and Raw is set.
type Result struct {
	Match  *Match `json:"match,omitempty"`
	Raw    string `json:"raw,omitempty"`
	Notice string `json:"notice,omitempty"`
}

// Interpret turns a model reply into a Result. Review replies are returned as Raw.
// A match reply that is not the expected JSON object is also returned as Raw with
// ParseNotice, together with a non-nil *ParseError the caller may log.
func Interpret(mode prompt.Mode, raw string) (Result, error) {
	if mode != prompt.ModeMatch {
		return Result{Raw: raw}, nil
	}
	m, err := parseMatch(StripCodeFence(raw))
	if err != nil {
		return Result{Raw: raw, Notice: ParseNotice}, &ParseError{Err: err}
	}
	return Result{Match: m}, nil
}

// StripCodeFence removes a surrounding markdown code fence such as ```json ... ```.
func StripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:]
	} else {
		t = strings.TrimLeftFunc(t, unicode.IsLetter)
	}
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

// ExtractPercentage returns the first number in s, or 0 when there is none.
// The result is always finite and non-negative.
func ExtractPercentage(s string) float64 {
	match := numberPattern.FindString(s)
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return sanitizePercent(v)
}

func sanitizePercent(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func parseMatch(body string) (*Match, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, err
	}
	for _, key := range []string{KeyMissingKeywords, KeyProfileSummary} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("missing key %q", key)
		}
	}

	m := &Match{}
	m.MatchPercentage, m.Percent = parseJDMatch(fields[KeyJDMatch])
	var err error
	if m.MissingKeywords, err = parseKeywords(fields[KeyMissingKeywords]); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields[KeyProfileSummary], &m.ProfileSummary); err != nil {
		return nil, fmt.Errorf("%s: %w", KeyProfileSummary, err)
	}
	m.ProfileSummary = strings.TrimSpace(m.ProfileSummary)
	return m, nil
}

// parseJDMatch accepts "82%", "82" or 82. An absent value, or one of any
// other JSON type, reads as 0.
func parseJDMatch(raw json.RawMessage) (string, float64) {
	if len(raw) == 0 {
		return "", 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, ExtractPercentage(s)
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", 0
	}
	n = sanitizePercent(n)
	return strconv.FormatFloat(n, 'f', -1, 64) + "%", n
}

// parseKeywords accepts a string array or a comma separated string. null is empty.
func parseKeywords(raw json.RawMessage) ([]string, error) {
	out := []string{}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, k := range list {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
		return out, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.New(KeyMissingKeywords + ": expected array of strings")
	}
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out, nil
}
