package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ats-matcher/internal/extract"
	"ats-matcher/internal/llm"
	"ats-matcher/internal/prompt"
	"ats-matcher/internal/shared/metrics"
	"ats-matcher/internal/shared/telemetry"
	"ats-matcher/internal/shared/util"
)

// Status is a step of a single analysis run.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusExtracting    Status = "extracting"
	StatusPrompting     Status = "prompting"
	StatusAwaitingModel Status = "awaiting_model"
	StatusRetrying      Status = "retrying"
	StatusInterpreting  Status = "interpreting"
	StatusDone          Status = "done"
	StatusFailed        Status = "failed"
)

// Generator is the model gateway as seen by the service.
type Generator interface {
	Provider() string
	Generate(ctx context.Context, payload prompt.Payload, onRetry llm.RetryHook) (llm.Reply, error)
}

// Request is one upload plus job description.
type Request struct {
	// Mode is "review" or "match"; empty means match.
	Mode           string
	JobDescription string
	Resume         []byte
	FileName       string
	// ExtractMode overrides the service default when set.
	ExtractMode string
}

// Analysis is the outcome of a completed run.
type Analysis struct {
	ID                      string       `json:"id"`
	Mode                    prompt.Mode  `json:"mode"`
	ExtractMode             extract.Mode `json:"extractMode"`
	Provider                string       `json:"provider"`
	Model                   string       `json:"model"`
	Attempts                int          `json:"attempts"`
	TimedOut                bool         `json:"timedOut"`
	ResumeFile              string       `json:"resumeFile,omitempty"`
	ResumeDigest            string       `json:"resumeDigest"`
	ResumePages             int          `json:"resumePages,omitempty"`
	ResumeTruncated         bool         `json:"resumeTruncated,omitempty"`
	JobDescriptionTruncated bool         `json:"jobDescriptionTruncated,omitempty"`
	Result                  Result       `json:"result"`
	CreatedAt               time.Time    `json:"createdAt"`
	CompletedAt             time.Time    `json:"completedAt"`
}

// Service runs the extract, prompt, generate, interpret pipeline.
type Service struct {
	Extractors         map[extract.Mode]extract.Extractor
	DefaultExtractMode extract.Mode
	Builder            prompt.Builder
	Gateway            Generator

	now func() time.Time
}

// NewService wires a service. extractors must contain defaultMode.
func NewService(extractors map[extract.Mode]extract.Extractor, defaultMode extract.Mode, builder prompt.Builder, gateway Generator) *Service {
	return &Service{
		Extractors:         extractors,
		DefaultExtractMode: defaultMode,
		Builder:            builder,
		Gateway:            gateway,
		now:                time.Now,
	}
}

// Analyze runs one analysis. Input problems are reported as *MissingInputError
// before any extraction or provider call. A provider timeout after the retry is
// not an error: the Analysis carries TimedOut and the apology text.
func (s *Service) Analyze(ctx context.Context, req Request) (Analysis, error) {
	mode, extractMode, err := s.validate(req)
	if err != nil {
		return Analysis{}, err
	}

	run := &run{
		analysis: Analysis{
			ID:           uuid.NewString(),
			Mode:         mode,
			ExtractMode:  extractMode,
			Provider:     s.Gateway.Provider(),
			ResumeDigest: util.Digest(req.Resume),
			CreatedAt:    s.clock().UTC(),
		},
		requestID: requestIDFromContext(ctx),
		status:    StatusIdle,
	}
	if name, err := util.SanitizeFileName(req.FileName); err == nil {
		run.analysis.ResumeFile = name
	}

	metrics.IncAnalysisStarted()
	start := s.clock()
	analysis, err := s.execute(ctx, run, req)
	metrics.ObserveAnalysisDurationMs(float64(s.clock().Sub(start).Milliseconds()))
	if err != nil {
		metrics.IncAnalysisFailed()
		run.fail(err)
		return Analysis{}, err
	}
	metrics.IncAnalysisCompleted()
	return analysis, nil
}

func (s *Service) execute(ctx context.Context, r *run, req Request) (Analysis, error) {
	r.transition(StatusExtracting)
	content, err := s.Extractors[r.analysis.ExtractMode].Extract(ctx, req.Resume)
	if err != nil {
		if errors.Is(err, extract.ErrMissingInput) {
			return Analysis{}, &MissingInputError{Field: "resume", Err: err}
		}
		return Analysis{}, err
	}
	r.analysis.ResumePages = content.Pages
	telemetry.Debug("analysis.extracted", r.fields(map[string]any{
		"image":      content.IsImage(),
		"pages":      content.Pages,
		"text_chars": len(content.Text),
	}))

	r.transition(StatusPrompting)
	payload, err := s.Builder.Build(r.analysis.Mode, content, req.JobDescription)
	if err != nil {
		if errors.Is(err, prompt.ErrMissingJobDescription) {
			return Analysis{}, &MissingInputError{Field: "jobDescription", Err: err}
		}
		if errors.Is(err, prompt.ErrEmptyResume) {
			return Analysis{}, &extract.ExtractionError{Mode: r.analysis.ExtractMode, Err: err}
		}
		return Analysis{}, err
	}
	r.analysis.ResumeTruncated = payload.ResumeTruncated
	r.analysis.JobDescriptionTruncated = payload.JobDescriptionTruncated

	r.transition(StatusAwaitingModel)
	reply, err := s.Gateway.Generate(ctx, payload, func(attempt int, cause error) {
		metrics.IncAnalysisRetried()
		r.transition(StatusRetrying)
		r.transition(StatusAwaitingModel)
	})
	if err != nil {
		return Analysis{}, err
	}
	r.analysis.Model = reply.Model
	r.analysis.Attempts = reply.Attempts
	r.analysis.TimedOut = reply.TimedOut

	if reply.TimedOut {
		metrics.IncAnalysisTimedOut()
		r.analysis.Result = Result{Raw: reply.Text}
	} else {
		r.transition(StatusInterpreting)
		result, perr := Interpret(r.analysis.Mode, reply.Text)
		if perr != nil {
			metrics.IncAnalysisParseFallback()
			telemetry.Warn("analysis.parse_fallback", r.fields(map[string]any{
				"error":       perr.Error(),
				"reply_chars": len(reply.Text),
			}))
		}
		r.analysis.Result = result
	}

	r.analysis.CompletedAt = s.clock().UTC()
	r.transition(StatusDone)
	return r.analysis, nil
}

func (s *Service) validate(req Request) (prompt.Mode, extract.Mode, error) {
	if len(req.Resume) == 0 {
		return "", "", &MissingInputError{Field: "resume", Err: extract.ErrMissingInput}
	}
	if strings.TrimSpace(req.JobDescription) == "" {
		return "", "", &MissingInputError{Field: "jobDescription", Err: prompt.ErrMissingJobDescription}
	}
	mode, err := prompt.ParseMode(req.Mode)
	if err != nil {
		return "", "", &MissingInputError{Field: "mode", Err: fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)}
	}

	extractMode := s.DefaultExtractMode
	if strings.TrimSpace(req.ExtractMode) != "" {
		if extractMode, err = extract.ParseMode(req.ExtractMode); err != nil {
			return "", "", &MissingInputError{Field: "extractMode", Err: fmt.Errorf("%w: %q", ErrInvalidExtractMode, req.ExtractMode)}
		}
	}
	if _, ok := s.Extractors[extractMode]; !ok {
		return "", "", &MissingInputError{Field: "extractMode", Err: fmt.Errorf("%w: %q is not enabled", ErrInvalidExtractMode, extractMode)}
	}
	return mode, extractMode, nil
}

func (s *Service) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// run tracks the state of one in-flight analysis for logging.
type run struct {
	analysis  Analysis
	requestID string
	status    Status
}

func (r *run) transition(next Status) {
	telemetry.Info("analysis.status", r.fields(map[string]any{
		"status_transition": fmt.Sprintf("%s->%s", r.status, next),
		"status":            string(next),
	}))
	r.status = next
}

func (r *run) fail(err error) {
	telemetry.Error("analysis.failed", r.fields(map[string]any{
		"status_transition": fmt.Sprintf("%s->%s", r.status, StatusFailed),
		"status":            string(StatusFailed),
		"error":             err.Error(),
	}))
	r.status = StatusFailed
}

func (r *run) fields(extra map[string]any) map[string]any {
	fields := map[string]any{
		"analysis_id": r.analysis.ID,
		"mode":        string(r.analysis.Mode),
	}
	if r.requestID != "" {
		fields["request_id"] = r.requestID
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}
