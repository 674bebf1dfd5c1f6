package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ats-matcher/internal/extract/extracttest"
	"ats-matcher/internal/llm"
	"ats-matcher/internal/prompt"
	"ats-matcher/internal/shared/config"
	"ats-matcher/internal/shared/telemetry"
)

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.LLMAPIKey = "test-key"
	return cfg
}

func quiet(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	telemetry.SetOutput(io.Discard)
	t.Cleanup(func() { telemetry.SetOutput(nil) })
}

func TestGatewayConfigDefaults(t *testing.T) {
	cfg := testConfig()
	gc := GatewayConfig(cfg)
	assert.Equal(t, llm.DefaultGeminiPreferences, gc.Preferences)
	assert.Equal(t, cfg.LLMTimeout, gc.Timeout)
	assert.Equal(t, 2048, gc.MaxOutputTokens)

	cfg.LLMProvider = "claude"
	assert.Equal(t, llm.DefaultClaudePreferences, GatewayConfig(cfg).Preferences)

	cfg.LLMModelPreferences = []string{"claude-opus-4-1"}
	assert.Equal(t, []string{"claude-opus-4-1"}, GatewayConfig(cfg).Preferences)
}

func TestBuilderTruncationIsOptIn(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, prompt.TruncationPolicy{}, Builder(cfg).Truncation)

	cfg.TruncateInputs = true
	assert.Equal(t, prompt.DefaultTruncation(), Builder(cfg).Truncation)
}

func TestNewProvider(t *testing.T) {
	cfg := testConfig()
	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())

	cfg.LLMProvider = "claude"
	p, err = NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "claude", p.Name())

	cfg.LLMProvider = "openai"
	_, err = NewProvider(context.Background(), cfg)
	assert.Error(t, err)
}

func TestBuildWiresLocalStore(t *testing.T) {
	quiet(t)
	cfg := testConfig()
	cfg.ObjectStoreType = "local"
	cfg.LocalStoreDir = t.TempDir()

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, app.Store)
	require.NotNil(t, app.Publisher)
	assert.NotNil(t, app.Handler.Publisher)

	cfg.ObjectStoreType = "none"
	app, err = Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, app.Store)
	assert.Nil(t, app.Handler.Publisher)
}

// fakeGemini serves the two Gemini REST calls the pipeline makes.
func fakeGemini(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/models"):
			_, _ = io.WriteString(w, `{"models":[
				{"name":"models/gemini-1.5-flash","supportedGenerationMethods":["generateContent"]},
				{"name":"models/gemini-2.5-flash","supportedGenerationMethods":["generateContent"]}
			]}`)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent"):
			out, _ := json.Marshal(map[string]any{
				"candidates": []any{map[string]any{
					"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": reply}}},
				}},
			})
			_, _ = w.Write(out)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBuildServesAnalysisEndToEnd(t *testing.T) {
	quiet(t)
	srv := fakeGemini(t, "```json\n{\"JD Match\":\"82%\",\"MissingKeywords\":[\"Terraform\"],\"Profile Summary\":\"Strong backend fit.\"}\n```")

	cfg := testConfig()
	cfg.LLMBaseURL = srv.URL
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("jobDescription", "Go engineer, Terraform"))
	part, err := mw.CreateFormFile("resume", "resume.pdf")
	require.NoError(t, err)
	_, _ = part.Write(extracttest.PDF("Go developer"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var got struct {
		Model  string `json:"model"`
		Result struct {
			Match struct {
				Percent         float64  `json:"percent"`
				MissingKeywords []string `json:"missingKeywords"`
				ProfileSummary  string   `json:"profileSummary"`
			} `json:"match"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "gemini-2.5-flash", got.Model)
	assert.Equal(t, 82.0, got.Result.Match.Percent)
	assert.Equal(t, []string{"Terraform"}, got.Result.Match.MissingKeywords)
	assert.Equal(t, "Strong backend fit.", got.Result.Match.ProfileSummary)

	assert.Equal(t, "gemini-2.5-flash", app.Gateway.CurrentModel())
	health := httptest.NewRecorder()
	app.Router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Contains(t, health.Body.String(), `"model":"gemini-2.5-flash"`)
}
