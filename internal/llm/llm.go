package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"ats-matcher/internal/prompt"
)

// TimeoutApology is returned as the reply text when both attempts time out.
const TimeoutApology = "Sorry, the analysis service took too long to respond. Please try again in a moment."

var (
	// ErrTimeout marks a timeout-class provider failure. Providers wrap it.
	ErrTimeout = errors.New("llm request timed out")
	// ErrNoModels means the provider listed no model able to generate content.
	ErrNoModels = errors.New("no generation models available")
)

// Provider abstracts a generative model API.
type Provider interface {
	Name() string
	// ListModels returns the names of models that support content generation.
	ListModels(ctx context.Context) ([]string, error)
	Generate(ctx context.Context, model string, payload prompt.Payload, params GenerationParams) (string, error)
}

// GenerationParams bounds a single generation call.
type GenerationParams struct {
	MaxOutputTokens int
	Temperature     float64
}

// ProviderError is a non-timeout failure reported by the provider.
type ProviderError struct {
	Provider   string
	Message    string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s provider error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s provider error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a timeout-class failure worth one retry.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "client.timeout exceeded") || strings.Contains(msg, "tls handshake timeout")
}

func asProviderError(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Provider: provider, Message: err.Error(), Err: err}
}
