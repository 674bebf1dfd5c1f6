package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"ats-matcher/internal/analyses"
)

// Band is a coarse grouping of a match percentage.
type Band string

const (
	BandStrong Band = "strong"
	BandGood   Band = "good"
	BandFair   Band = "fair"
	BandWeak   Band = "weak"
)

const (
	ansiReset  = "\033[0m"
	ansiGreen  = "\033[32m"
	ansiCyan   = "\033[36m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
)

// BandFor buckets pct at 70, 50 and 30.
func BandFor(pct float64) Band {
	switch {
	case pct >= 70:
		return BandStrong
	case pct >= 50:
		return BandGood
	case pct >= 30:
		return BandFair
	default:
		return BandWeak
	}
}

func (b Band) color() string {
	switch b {
	case BandStrong:
		return ansiGreen
	case BandGood:
		return ansiCyan
	case BandFair:
		return ansiYellow
	default:
		return ansiRed
	}
}

// writeReport prints a human-readable summary of a.
func writeReport(w io.Writer, a analyses.Analysis, color bool) {
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return code + s + ansiReset
	}

	fmt.Fprintf(w, "Model: %s/%s (attempts: %d)\n", a.Provider, a.Model, a.Attempts)
	if a.ResumeTruncated || a.JobDescriptionTruncated {
		fmt.Fprintln(w, "Note: input was truncated before sending.")
	}

	m := a.Result.Match
	if m == nil {
		if a.Result.Notice != "" {
			fmt.Fprintln(w, paint(ansiYellow, "Notice: "+a.Result.Notice))
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.TrimSpace(a.Result.Raw))
		return
	}

	band := BandFor(m.Percent)
	fmt.Fprintf(w, "JD Match: %s\n", paint(band.color(), fmt.Sprintf("%g%% (%s)", m.Percent, band)))
	if len(m.MissingKeywords) == 0 {
		fmt.Fprintln(w, "Missing keywords: none")
	} else {
		fmt.Fprintln(w, "Missing keywords:")
		for _, kw := range m.MissingKeywords {
			fmt.Fprintf(w, "  - %s\n", kw)
		}
	}
	if m.ProfileSummary != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Profile summary:")
		fmt.Fprintln(w, m.ProfileSummary)
	}
}

// readJobDescription returns raw, or the contents of the file when raw starts with "@".
func readJobDescription(raw string) (string, error) {
	if !strings.HasPrefix(raw, "@") {
		return raw, nil
	}
	data, err := os.ReadFile(strings.TrimPrefix(raw, "@"))
	if err != nil {
		return "", fmt.Errorf("read job description: %w", err)
	}
	return string(data), nil
}
