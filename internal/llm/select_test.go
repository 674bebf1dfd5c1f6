package llm

import (
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestSelectModel(t *testing.T) {
	tests := []struct {
		name        string
		available   []string
		preferences []string
		want        string
		wantOK      bool
	}{
		{
			name:        "first preference wins",
			available:   []string{"models/gemini-1.5-pro", "models/gemini-2.5-flash"},
			preferences: DefaultGeminiPreferences,
			want:        "gemini-2.5-flash",
			wantOK:      true,
		},
		{
			name:        "falls through preference list",
			available:   []string{"models/gemini-1.5-pro", "models/text-bison"},
			preferences: DefaultGeminiPreferences,
			want:        "gemini-1.5-pro",
			wantOK:      true,
		},
		{
			name:        "any available model",
			available:   []string{"models/experimental-x", "models/experimental-y"},
			preferences: DefaultGeminiPreferences,
			want:        "experimental-x",
			wantOK:      true,
		},
		{
			name:        "no preferences",
			available:   []string{"claude-3-5-haiku-latest"},
			preferences: nil,
			want:        "claude-3-5-haiku-latest",
			wantOK:      true,
		},
		{
			name:        "prefixed preference",
			available:   []string{"gemini-2.0-flash"},
			preferences: []string{"models/gemini-2.0-flash"},
			want:        "gemini-2.0-flash",
			wantOK:      true,
		},
		{name: "empty", available: nil, preferences: DefaultGeminiPreferences},
		{name: "blank names", available: []string{" ", "models/"}, preferences: DefaultGeminiPreferences},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectModel(tt.available, tt.preferences)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("SelectModel() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "i/o timeout" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return true }

var _ net.Error = timeoutNetErr{}

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "sentinel", err: fmt.Errorf("gemini: %w", ErrTimeout), want: true},
		{name: "net timeout", err: &net.OpError{Op: "read", Err: timeoutNetErr{}}, want: true},
		{name: "client timeout text", err: errors.New(`Post "x": net/http: request canceled (Client.Timeout exceeded while awaiting headers)`), want: true},
		{name: "auth", err: &ProviderError{Provider: "p", StatusCode: 401, Message: "unauthorized"}, want: false},
		{name: "plain", err: errors.New("invalid argument"), want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.want {
				t.Fatalf("IsTimeout(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{Provider: "gemini", StatusCode: 403, Message: "permission denied", Err: errors.New("raw")}
	if err.Error() != "gemini provider error (status 403): permission denied" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if errors.Unwrap(err).Error() != "raw" {
		t.Fatalf("expected wrapped error")
	}
}
