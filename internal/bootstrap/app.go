package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"ats-matcher/internal/analyses"
	"ats-matcher/internal/export"
	"ats-matcher/internal/extract"
	"ats-matcher/internal/llm"
	"ats-matcher/internal/llm/claude"
	"ats-matcher/internal/llm/gemini"
	"ats-matcher/internal/prompt"
	"ats-matcher/internal/services/health"
	"ats-matcher/internal/shared/config"
	"ats-matcher/internal/shared/server"
	"ats-matcher/internal/shared/storage/object"
	localstore "ats-matcher/internal/shared/storage/object/local"
	s3store "ats-matcher/internal/shared/storage/object/s3"
	"ats-matcher/internal/shared/telemetry"
)

// App holds the wired dependencies.
type App struct {
	Config    config.Config
	Router    *gin.Engine
	Provider  llm.Provider
	Gateway   *llm.Gateway
	Service   *analyses.Service
	Handler   *analyses.Handler
	Store     object.ObjectStore
	Publisher *export.Publisher
	Health    *health.Service
}

// Build wires every component from cfg. cfg must already be validated.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	gateway := llm.NewGateway(provider, GatewayConfig(cfg))

	extractors, defaultMode, err := buildExtractors(cfg)
	if err != nil {
		return nil, err
	}
	svc := analyses.NewService(extractors, defaultMode, Builder(cfg), gateway)

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Provider: provider,
		Gateway:  gateway,
		Service:  svc,
		Store:    store,
		Health:   health.NewService(gateway),
	}

	var publisher analyses.ExportPublisher
	if store != nil {
		app.Publisher = export.NewPublisher(store)
		publisher = app.Publisher
	}
	app.Handler = analyses.NewHandler(svc, gateway, publisher)
	app.Router = server.NewRouter(server.RouterDeps{
		Config:   cfg,
		Analyses: app.Handler,
		Health:   app.Health,
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"provider":      provider.Name(),
		"pinned_model":  cfg.LLMModel,
		"extract_mode":  string(defaultMode),
		"truncation":    cfg.TruncateInputs,
		"object_store":  cfg.ObjectStoreType,
		"llm_timeout_s": cfg.LLMTimeout.Seconds(),
	})
	return app, nil
}

// NewProvider returns the model provider named by cfg.LLMProvider.
func NewProvider(ctx context.Context, cfg config.Config) (llm.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "", "gemini":
		return gemini.New(ctx, gemini.Config{APIKey: cfg.LLMAPIKey, BaseURL: cfg.LLMBaseURL})
	case "claude":
		return claude.New(claude.Config{APIKey: cfg.LLMAPIKey, BaseURL: cfg.LLMBaseURL})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

// GatewayConfig maps cfg onto the gateway settings, filling in the
// provider's default model preferences.
func GatewayConfig(cfg config.Config) llm.GatewayConfig {
	prefs := cfg.LLMModelPreferences
	if len(prefs) == 0 {
		if strings.EqualFold(cfg.LLMProvider, "claude") {
			prefs = llm.DefaultClaudePreferences
		} else {
			prefs = llm.DefaultGeminiPreferences
		}
	}
	return llm.GatewayConfig{
		Model:           cfg.LLMModel,
		Preferences:     prefs,
		Timeout:         cfg.LLMTimeout,
		RetryBackoff:    cfg.LLMRetryBackoff,
		MaxOutputTokens: cfg.LLMMaxOutputTokens,
		Temperature:     cfg.LLMTemperature,
	}
}

// Builder returns the prompt builder. Inputs are only truncated when
// cfg.TruncateInputs is set.
func Builder(cfg config.Config) prompt.Builder {
	if !cfg.TruncateInputs {
		return prompt.Builder{}
	}
	return prompt.Builder{Truncation: prompt.TruncationPolicy{
		MaxResumeChars:         cfg.MaxResumeChars,
		MaxJobDescriptionChars: cfg.MaxJobDescriptionChars,
	}}
}

func buildExtractors(cfg config.Config) (map[extract.Mode]extract.Extractor, extract.Mode, error) {
	defaultMode, err := extract.ParseMode(cfg.ExtractMode)
	if err != nil {
		return nil, "", err
	}

	extractors := make(map[extract.Mode]extract.Extractor, 2)
	for _, mode := range []extract.Mode{extract.ModeText, extract.ModeImage} {
		ex, err := extract.New(mode, extract.Options{
			Rasterizer:  extract.Pdftoppm{Path: cfg.PdftoppmPath},
			JPEGQuality: cfg.JPEGQuality,
		})
		if err != nil {
			return nil, "", err
		}
		extractors[mode] = ex
	}
	return extractors, defaultMode, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "", "none":
		return nil, nil
	case "local":
		return localstore.New(cfg.LocalStoreDir), nil
	case "s3":
		store, err := s3store.New(ctx, s3store.Options{
			Region:          cfg.AWSRegion,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			KMSKeyID:        cfg.SSEKMSKeyID,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("build s3 store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported object store %q", cfg.ObjectStoreType)
	}
}
