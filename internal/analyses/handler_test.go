package analyses

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ats-matcher/internal/export"
	"ats-matcher/internal/extract/extracttest"
	"ats-matcher/internal/llm"
	"ats-matcher/internal/shared/server/middleware"
	"ats-matcher/internal/shared/server/respond"
	"ats-matcher/internal/shared/storage/object/local"
	"ats-matcher/internal/shared/telemetry"
)

type routerOptions struct {
	publisher ExportPublisher
	bodyLimit int64
}

func setupAnalysisRouter(t *testing.T, p *stubProvider, opts routerOptions) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	telemetry.SetOutput(io.Discard)
	t.Cleanup(func() { telemetry.SetOutput(nil) })

	svc := newTestService(t, p)
	h := NewHandler(svc, svc.Gateway.(*llm.Gateway), opts.publisher)

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Recovery(), middleware.BodyLimit(opts.bodyLimit))
	h.RegisterRoutes(router.Group("/api/v1"))
	return router
}

type formInput struct {
	resume   []byte
	fileName string
	fields   map[string]string
}

func newAnalysisRequest(t *testing.T, target string, in formInput) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range in.fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if in.resume != nil {
		name := in.fileName
		if name == "" {
			name = "resume.pdf"
		}
		part, err := w.CreateFormFile("resume", name)
		require.NoError(t, err)
		_, err = part.Write(in.resume)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) respond.ErrorBody {
	t.Helper()
	var body respond.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error
}

func TestCreateAnalysisMatch(t *testing.T) {
	p := newStubProvider(stubReply{text: matchReply})
	router := setupAnalysisRouter(t, p, routerOptions{})

	req := newAnalysisRequest(t, "/api/v1/analyses", formInput{
		resume: extracttest.PDF("Go developer", "Kubernetes operator"),
		fields: map[string]string{"jobDescription": "Go engineer with Terraform", "mode": "match"},
	})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))

	var got struct {
		ID       string `json:"id"`
		Mode     string `json:"mode"`
		Model    string `json:"model"`
		Attempts int    `json:"attempts"`
		TimedOut bool   `json:"timedOut"`
		Result   struct {
			Match *struct {
				Percent         float64  `json:"percent"`
				MissingKeywords []string `json:"missingKeywords"`
				ProfileSummary  string   `json:"profileSummary"`
			} `json:"match"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "match", got.Mode)
	assert.Equal(t, "gemini-2.5-flash", got.Model)
	assert.Equal(t, 1, got.Attempts)
	assert.False(t, got.TimedOut)
	require.NotNil(t, got.Result.Match)
	assert.Equal(t, 82.0, got.Result.Match.Percent)
	assert.Equal(t, []string{"Terraform"}, got.Result.Match.MissingKeywords)
	assert.Equal(t, "Strong backend fit.", got.Result.Match.ProfileSummary)

	require.Len(t, p.payloads, 1)
	assert.Contains(t, p.payloads[0].Parts[1].Text, "Kubernetes operator")
}

func TestCreateAnalysisValidation(t *testing.T) {
	tests := []struct {
		name  string
		in    formInput
		field string
		issue string
	}{
		{
			name:  "missing resume",
			in:    formInput{fields: map[string]string{"jobDescription": "Go engineer"}},
			field: "resume",
			issue: "required",
		},
		{
			name:  "missing job description",
			in:    formInput{resume: extracttest.PDF("Go")},
			field: "jobDescription",
			issue: "required",
		},
		{
			name:  "bad mode",
			in:    formInput{resume: extracttest.PDF("Go"), fields: map[string]string{"jobDescription": "Go", "mode": "haiku"}},
			field: "mode",
			issue: "invalid",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			p := newStubProvider(stubReply{text: matchReply})
			router := setupAnalysisRouter(t, p, routerOptions{})

			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, newAnalysisRequest(t, "/api/v1/analyses", tt.in))

			require.Equal(t, http.StatusBadRequest, resp.Code)
			body := decodeError(t, resp)
			assert.Equal(t, ErrorCodeValidation, body.Code)
			details, ok := body.Details.([]any)
			require.True(t, ok)
			require.Len(t, details, 1)
			detail := details[0].(map[string]any)
			assert.Equal(t, tt.field, detail["field"])
			assert.Equal(t, tt.issue, detail["issue"])
			assert.Equal(t, 0, p.lists, "no provider traffic for invalid input")
			assert.Equal(t, 0, p.calls)
		})
	}
}

func TestCreateAnalysisNotAPDF(t *testing.T) {
	p := newStubProvider(stubReply{text: matchReply})
	router := setupAnalysisRouter(t, p, routerOptions{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newAnalysisRequest(t, "/api/v1/analyses", formInput{
		resume: []byte("GIF89a not a pdf"),
		fields: map[string]string{"jobDescription": "Go"},
	}))

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, ErrorCodeExtraction, decodeError(t, resp).Code)
	assert.Equal(t, 0, p.calls)
}

func TestCreateAnalysisProviderError(t *testing.T) {
	p := newStubProvider(stubReply{err: &llm.ProviderError{Provider: "stub", StatusCode: 429, Message: "quota exceeded"}})
	router := setupAnalysisRouter(t, p, routerOptions{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newAnalysisRequest(t, "/api/v1/analyses", formInput{
		resume: extracttest.PDF("Go"),
		fields: map[string]string{"jobDescription": "Go"},
	}))

	require.Equal(t, http.StatusBadGateway, resp.Code)
	body := decodeError(t, resp)
	assert.Equal(t, ErrorCodeProvider, body.Code)
	assert.Equal(t, "quota exceeded", body.Message)
	assert.Equal(t, 1, p.calls)
}

func TestCreateAnalysisTimeoutApology(t *testing.T) {
	timeout := fmt.Errorf("stub: %w", llm.ErrTimeout)
	p := newStubProvider(stubReply{err: timeout}, stubReply{err: timeout})
	router := setupAnalysisRouter(t, p, routerOptions{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newAnalysisRequest(t, "/api/v1/analyses", formInput{
		resume: extracttest.PDF("Go"),
		fields: map[string]string{"jobDescription": "Go"},
	}))

	require.Equal(t, http.StatusOK, resp.Code)
	var got struct {
		TimedOut bool `json:"timedOut"`
		Attempts int  `json:"attempts"`
		Result   struct {
			Raw string `json:"raw"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.True(t, got.TimedOut)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, llm.TimeoutApology, got.Result.Raw)
}

func TestCreateAnalysisDownload(t *testing.T) {
	p := newStubProvider(stubReply{text: matchReply})
	router := setupAnalysisRouter(t, p, routerOptions{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newAnalysisRequest(t, "/api/v1/analyses?download=1", formInput{
		resume: extracttest.PDF("Go"),
		fields: map[string]string{"jobDescription": "Go"},
	}))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, export.ContentType, resp.Header().Get("Content-Type"))

	var doc Analysis
	raw := resp.Body.Bytes()
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, `attachment; filename="analysis-`+doc.ID+`.json"`, resp.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(string(raw), "{\n  \"id\": "), "export is indented JSON")
	require.NotNil(t, doc.Result.Match)
	assert.Equal(t, 82.0, doc.Result.Match.Percent)
}

func TestCreateAnalysisPublishesExport(t *testing.T) {
	store := local.New(t.TempDir())
	p := newStubProvider(stubReply{text: matchReply})
	router := setupAnalysisRouter(t, p, routerOptions{publisher: export.NewPublisher(store)})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newAnalysisRequest(t, "/api/v1/analyses", formInput{
		resume: extracttest.PDF("Go"),
		fields: map[string]string{"jobDescription": "Go"},
	}))

	require.Equal(t, http.StatusOK, resp.Code)
	var got struct {
		ID     string            `json:"id"`
		Export *export.Published `json:"export"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.NotNil(t, got.Export)
	assert.True(t, strings.HasSuffix(got.Export.Key, export.FileName(got.ID)))
	assert.Equal(t, got.Export.Key, resp.Header().Get("X-Export-Key"))

	rc, err := store.Open(t.Context(), got.Export.Key)
	require.NoError(t, err)
	defer rc.Close()
	var stored Analysis
	require.NoError(t, json.NewDecoder(rc).Decode(&stored))
	assert.Equal(t, got.ID, stored.ID)
}

func TestCreateAnalysisUploadTooLarge(t *testing.T) {
	p := newStubProvider(stubReply{text: matchReply})
	router := setupAnalysisRouter(t, p, routerOptions{bodyLimit: 256})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, newAnalysisRequest(t, "/api/v1/analyses", formInput{
		resume: append(extracttest.PDF("Go"), bytes.Repeat([]byte(" "), 4096)...),
		fields: map[string]string{"jobDescription": "Go"},
	}))

	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	assert.Equal(t, ErrorCodeValidation, decodeError(t, resp).Code)
	assert.Equal(t, 0, p.calls)
}

func TestListModels(t *testing.T) {
	p := newStubProvider()
	router := setupAnalysisRouter(t, p, routerOptions{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	var info llm.ModelsInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "stub", info.Provider)
	assert.Equal(t, []string{"models/gemini-1.5-pro", "models/gemini-2.5-flash"}, info.Available)
	assert.Equal(t, "gemini-2.5-flash", info.Selected)
}
