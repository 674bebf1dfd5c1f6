package claude

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ats-matcher/internal/extract"
	"ats-matcher/internal/llm"
	"ats-matcher/internal/prompt"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	return p
}

func TestListModels(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[
			{"id":"claude-3-5-haiku-latest","type":"model","display_name":"Haiku","created_at":"2024-10-22T00:00:00Z"},
			{"id":"claude-sonnet-4-5","type":"model","display_name":"Sonnet","created_at":"2025-09-29T00:00:00Z"}
		],"has_more":false,"first_id":"claude-3-5-haiku-latest","last_id":"claude-sonnet-4-5"}`)
	})

	names, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"claude-3-5-haiku-latest", "claude-sonnet-4-5"}, names)

	model, ok := llm.SelectModel(names, llm.DefaultClaudePreferences)
	assert.True(t, ok)
	assert.Equal(t, "claude-sonnet-4-5", model)
}

func TestGenerateSendsOrderedBlocks(t *testing.T) {
	var body struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content []struct {
				Type   string `json:"type"`
				Text   string `json:"text"`
				Source *struct {
					Type      string `json:"type"`
					MediaType string `json:"media_type"`
					Data      string `json:"data"`
				} `json:"source"`
			} `json:"content"`
		} `json:"messages"`
	}

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
			"content":[{"type":"text","text":"Strong backend fit."}],
			"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":5}}`)
	})

	img := &extract.Image{MIMEType: "image/jpeg", Data: "aGVsbG8="}
	payload, err := prompt.Builder{}.Build(prompt.ModeReview, extract.Content{Image: img}, "Go engineer")
	require.NoError(t, err)

	text, err := p.Generate(context.Background(), "claude-sonnet-4-5", payload, llm.GenerationParams{MaxOutputTokens: 300, Temperature: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "Strong backend fit.", text)

	assert.Equal(t, "claude-sonnet-4-5", body.Model)
	assert.Equal(t, 300, body.MaxTokens)
	assert.Equal(t, 0.5, body.Temperature)
	require.Len(t, body.Messages, 1)
	blocks := body.Messages[0].Content
	require.Len(t, blocks, 3)
	assert.Equal(t, "text", blocks[0].Type)
	assert.Equal(t, "image", blocks[1].Type)
	require.NotNil(t, blocks[1].Source)
	assert.Equal(t, "base64", blocks[1].Source.Type)
	assert.Equal(t, "image/jpeg", blocks[1].Source.MediaType)
	assert.True(t, strings.Contains(blocks[2].Text, "Go engineer"))
}

func TestGenerateClassifiesErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantTimeout bool
		wantMessage string
	}{
		{
			name:        "auth",
			status:      http.StatusUnauthorized,
			body:        `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`,
			wantMessage: "invalid x-api-key",
		},
		{
			name:        "malformed",
			status:      http.StatusBadRequest,
			body:        `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens: field required"}}`,
			wantMessage: "max_tokens: field required",
		},
		{
			name:        "gateway timeout",
			status:      http.StatusGatewayTimeout,
			body:        `{"type":"error","error":{"type":"timeout_error","message":"timed out"}}`,
			wantTimeout: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			payload, _ := prompt.Builder{}.Build(prompt.ModeReview, extract.Content{Text: "resume"}, "jd")

			_, err := p.Generate(context.Background(), "claude-sonnet-4-5", payload, llm.GenerationParams{})
			require.Error(t, err)
			assert.Equal(t, 1, calls, "sdk retries must be disabled")
			if tt.wantTimeout {
				assert.True(t, llm.IsTimeout(err))
				return
			}
			var pe *llm.ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.wantMessage, pe.Message)
			assert.False(t, llm.IsTimeout(err))
		})
	}
}
