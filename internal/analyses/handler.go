package analyses

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ats-matcher/internal/export"
	"ats-matcher/internal/extract"
	"ats-matcher/internal/llm"
	"ats-matcher/internal/shared/server/middleware"
	"ats-matcher/internal/shared/server/respond"
	"ats-matcher/internal/shared/telemetry"
)

// ModelLister reports the provider's generation models.
type ModelLister interface {
	Models(ctx context.Context) (llm.ModelsInfo, error)
}

// ExportPublisher stores rendered exports.
type ExportPublisher interface {
	Publish(ctx context.Context, id string, data []byte) (export.Published, error)
}

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc    *Service
	Models ModelLister
	// Publisher is optional; nil disables export publishing.
	Publisher ExportPublisher
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, models ModelLister, publisher ExportPublisher) *Handler {
	return &Handler{Svc: svc, Models: models, Publisher: publisher}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.createAnalysis)
	rg.GET("/models", h.listModels)
}

type analysisResponse struct {
	Analysis
	Export      *export.Published `json:"export,omitempty"`
	ExportError string            `json:"exportError,omitempty"`
}

func (h *Handler) createAnalysis(c *gin.Context) {
	resume, fileName, err := readUpload(c, "resume")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Error(c, http.StatusRequestEntityTooLarge, ErrorCodeValidation, "resume exceeds the upload size limit", []map[string]string{
				{"field": "resume", "issue": "too_large"},
			})
			return
		}
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "could not read the uploaded resume", nil)
		return
	}
	req := Request{
		Mode:           c.PostForm("mode"),
		JobDescription: c.PostForm("jobDescription"),
		ExtractMode:    c.PostForm("extractMode"),
		Resume:         resume,
		FileName:       fileName,
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	analysis, err := h.Svc.Analyze(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set(middleware.AnalysisIDKey, analysis.ID)
	c.Set(middleware.StatusTransitionKey, string(StatusInterpreting)+"->"+string(StatusDone))

	download := wantsDownload(c.Query("download"))
	if !download && h.Publisher == nil {
		respond.OK(c, analysisResponse{Analysis: analysis})
		return
	}

	data, err := export.Render(analysis)
	if err != nil {
		telemetry.Error("export.render_failed", map[string]any{"analysis_id": analysis.ID, "error": err.Error()})
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to render export", nil)
		return
	}

	resp := analysisResponse{Analysis: analysis}
	if h.Publisher != nil {
		published, err := h.Publisher.Publish(ctx, analysis.ID, data)
		if err != nil {
			resp.ExportError = "export could not be stored"
		} else {
			resp.Export = &published
			c.Header("X-Export-Key", published.Key)
		}
	}

	if download {
		respond.Attachment(c, export.FileName(analysis.ID), export.ContentType, data)
		return
	}
	respond.OK(c, resp)
}

func (h *Handler) listModels(c *gin.Context) {
	info, err := h.Models.Models(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, info)
}

// readUpload returns the named file's bytes. A request without the file yields nil bytes.
func readUpload(c *gin.Context, field string) ([]byte, string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, "", nil
		}
		return nil, "", err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	return data, fh.Filename, nil
}

func wantsDownload(raw string) bool {
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

// writeError maps pipeline errors to the HTTP error envelope.
func writeError(c *gin.Context, err error) {
	var (
		missing  *MissingInputError
		extErr   *extract.ExtractionError
		provider *llm.ProviderError
	)
	switch {
	case errors.As(err, &missing):
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, missing.Err.Error(), []map[string]string{
			{"field": missing.Field, "issue": issueFor(missing)},
		})
	case errors.As(err, &extErr):
		respond.Error(c, http.StatusUnprocessableEntity, ErrorCodeExtraction, "the resume PDF could not be read", map[string]string{
			"mode":   string(extErr.Mode),
			"reason": extErr.Err.Error(),
		})
	case errors.As(err, &provider):
		details := map[string]any{"provider": provider.Provider}
		if provider.StatusCode > 0 {
			details["status"] = provider.StatusCode
		}
		respond.Error(c, http.StatusBadGateway, ErrorCodeProvider, provider.Message, details)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusServiceUnavailable, ErrorCodeInternal, "request was canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "analysis failed", nil)
	}
}

func issueFor(err *MissingInputError) string {
	switch {
	case errors.Is(err, ErrInvalidMode), errors.Is(err, ErrInvalidExtractMode):
		return "invalid"
	default:
		return "required"
	}
}
