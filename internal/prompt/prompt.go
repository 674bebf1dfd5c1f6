package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"ats-matcher/internal/extract"
)

// Mode selects the instruction template.
type Mode string

const (
	// ModeReview asks for a free-text qualitative review.
	ModeReview Mode = "review"
	// ModeMatch asks for a JSON percentage match with missing keywords.
	ModeMatch Mode = "match"
)

// Default truncation limits. They only apply when a caller opts in.
const (
	DefaultMaxResumeChars         = 6000
	DefaultMaxJobDescriptionChars = 3000
)

var (
	//go:embed templates/review.txt
	reviewTemplate string
	//go:embed templates/match.txt
	matchTemplate string
)

var (
	ErrMissingJobDescription = errors.New("job description is required")
	ErrEmptyResume           = errors.New("resume content is empty")
)

// PartKind tags a payload part.
type PartKind string

const (
	PartInstruction    PartKind = "instruction"
	PartResumeText     PartKind = "resume_text"
	PartResumeImage    PartKind = "resume_image"
	PartJobDescription PartKind = "job_description"
)

// Part is one ordered element of the model input.
type Part struct {
	Kind  PartKind
	Text  string
	Image *extract.Image
}

// Payload is the ordered model input: instruction, resume, job description.
type Payload struct {
	Mode                    Mode
	Parts                   []Part
	ResumeTruncated         bool
	JobDescriptionTruncated bool
}

// TruncationPolicy caps input lengths in runes. Zero means unlimited.
type TruncationPolicy struct {
	MaxResumeChars         int
	MaxJobDescriptionChars int
}

// DefaultTruncation returns the documented 6000/3000 character limits.
func DefaultTruncation() TruncationPolicy {
	return TruncationPolicy{
		MaxResumeChars:         DefaultMaxResumeChars,
		MaxJobDescriptionChars: DefaultMaxJobDescriptionChars,
	}
}

// Builder composes payloads. The zero value does not truncate.
type Builder struct {
	Truncation TruncationPolicy
}

// ParseMode normalizes a mode string. Empty input selects ModeMatch.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "match", "percentage", "percentage_match", "ats":
		return ModeMatch, nil
	case "review", "qualitative", "tell_me_about":
		return ModeReview, nil
	default:
		return "", fmt.Errorf("analysis mode is invalid: %q", raw)
	}
}

// Template returns the instruction text for mode and whether the mode is known.
func Template(mode Mode) (string, bool) {
	switch mode {
	case ModeReview:
		return strings.TrimSpace(reviewTemplate), true
	case ModeMatch:
		return strings.TrimSpace(matchTemplate), true
	default:
		return "", false
	}
}

// Build returns the ordered payload. User text is interpolated verbatim.
func (b Builder) Build(mode Mode, content extract.Content, jobDescription string) (Payload, error) {
	instruction, ok := Template(mode)
	if !ok {
		return Payload{}, fmt.Errorf("analysis mode is invalid: %q", mode)
	}
	if strings.TrimSpace(jobDescription) == "" {
		return Payload{}, ErrMissingJobDescription
	}

	payload := Payload{Mode: mode}
	payload.Parts = append(payload.Parts, Part{Kind: PartInstruction, Text: instruction})

	switch {
	case content.Image != nil:
		payload.Parts = append(payload.Parts, Part{Kind: PartResumeImage, Image: content.Image})
	case strings.TrimSpace(content.Text) != "":
		text, cut := Truncate(content.Text, b.Truncation.MaxResumeChars)
		payload.ResumeTruncated = cut
		payload.Parts = append(payload.Parts, Part{Kind: PartResumeText, Text: "Resume:\n" + text})
	default:
		return Payload{}, ErrEmptyResume
	}

	jd, cut := Truncate(jobDescription, b.Truncation.MaxJobDescriptionChars)
	payload.JobDescriptionTruncated = cut
	payload.Parts = append(payload.Parts, Part{Kind: PartJobDescription, Text: "Job Description:\n" + jd})

	return payload, nil
}

// Truncate cuts s to at most max runes. max <= 0 leaves s untouched.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s, false
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// Text joins the text parts, skipping images.
func (p Payload) Text() string {
	var parts []string
	for _, part := range p.Parts {
		if part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// HasImage reports whether any part carries an image.
func (p Payload) HasImage() bool {
	for _, part := range p.Parts {
		if part.Image != nil {
			return true
		}
	}
	return false
}
