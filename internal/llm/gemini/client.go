package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"ats-matcher/internal/llm"
	"ats-matcher/internal/prompt"
)

const providerName = "gemini"

// Config configures the Gemini provider.
type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL    string
	HTTPClient *http.Client
}

// Provider implements llm.Provider on the Gemini API through google.golang.org/genai.
type Provider struct {
	client *genai.Client
}

// New creates a Gemini provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		cc.HTTPOptions.BaseURL = base
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// ListModels returns models whose supported actions include generateContent.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, classify(err)
		}
		if m == nil || !supportsGenerate(m.SupportedActions) {
			continue
		}
		names = append(names, m.Name)
	}
	return names, nil
}

// Generate sends the payload parts, in order, as one user turn.
func (p *Provider) Generate(ctx context.Context, model string, payload prompt.Payload, params llm.GenerationParams) (string, error) {
	parts, err := toParts(payload)
	if err != nil {
		return "", &llm.ProviderError{Provider: providerName, Message: err.Error(), Err: err}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(params.Temperature)),
	}
	if params.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(params.MaxOutputTokens)
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", classify(err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		msg := "empty response"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			msg = fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", &llm.ProviderError{Provider: providerName, Message: msg}
	}
	return text, nil
}

func toParts(payload prompt.Payload) ([]*genai.Part, error) {
	parts := make([]*genai.Part, 0, len(payload.Parts))
	for _, part := range payload.Parts {
		if part.Image != nil {
			data, err := base64.StdEncoding.DecodeString(part.Image.Data)
			if err != nil {
				return nil, fmt.Errorf("decode resume image: %w", err)
			}
			parts = append(parts, genai.NewPartFromBytes(data, part.Image.MIMEType))
			continue
		}
		parts = append(parts, genai.NewPartFromText(part.Text))
	}
	return parts, nil
}

func supportsGenerate(actions []string) bool {
	for _, a := range actions {
		if a == "generateContent" {
			return true
		}
	}
	return false
}

// classify maps SDK errors to llm.ErrTimeout or *llm.ProviderError.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusGatewayTimeout || apiErr.Code == http.StatusRequestTimeout || apiErr.Status == "DEADLINE_EXCEEDED" {
			return fmt.Errorf("gemini: %w: %s", llm.ErrTimeout, apiErr.Message)
		}
		msg := strings.TrimSpace(apiErr.Message)
		if msg == "" {
			msg = apiErr.Error()
		}
		return &llm.ProviderError{Provider: providerName, StatusCode: apiErr.Code, Message: msg, Err: err}
	}
	if llm.IsTimeout(err) {
		return fmt.Errorf("gemini: %w: %w", llm.ErrTimeout, err)
	}
	return &llm.ProviderError{Provider: providerName, Message: err.Error(), Err: err}
}
