package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ats-matcher/internal/llm"
	"ats-matcher/internal/prompt"
)

const providerName = "claude"

// Config configures the Claude provider.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Provider implements llm.Provider on Anthropic's Messages API.
type Provider struct {
	client anthropic.Client
}

// New creates a Claude provider. SDK retries are disabled; the gateway owns retry policy.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &Provider{client: anthropic.NewClient(opts...)}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// ListModels returns every model id; all Claude models support messages.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	pager := p.client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})
	for pager.Next() {
		names = append(names, pager.Current().ID)
	}
	if err := pager.Err(); err != nil {
		return nil, classify(err)
	}
	return names, nil
}

// Generate sends the payload as one user message with ordered content blocks.
func (p *Provider) Generate(ctx context.Context, model string, payload prompt.Payload, params llm.GenerationParams) (string, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(payload.Parts))
	for _, part := range payload.Parts {
		if part.Image != nil {
			blocks = append(blocks, anthropic.NewImageBlockBase64(part.Image.MIMEType, part.Image.Data))
			continue
		}
		blocks = append(blocks, anthropic.NewTextBlock(part.Text))
	}

	maxTokens := int64(params.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(params.Temperature),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", classify(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", &llm.ProviderError{Provider: providerName, Message: fmt.Sprintf("empty response (stop_reason=%s)", msg.StopReason)}
	}
	return text, nil
}

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// classify maps SDK errors to llm.ErrTimeout or *llm.ProviderError.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout {
			return fmt.Errorf("claude: %w: status %d", llm.ErrTimeout, apiErr.StatusCode)
		}
		msg := ""
		var env errorEnvelope
		if json.Unmarshal([]byte(apiErr.RawJSON()), &env) == nil {
			msg = strings.TrimSpace(env.Error.Message)
		}
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &llm.ProviderError{Provider: providerName, StatusCode: apiErr.StatusCode, Message: msg, Err: err}
	}
	if llm.IsTimeout(err) {
		return fmt.Errorf("claude: %w: %w", llm.ErrTimeout, err)
	}
	return &llm.ProviderError{Provider: providerName, Message: err.Error(), Err: err}
}
