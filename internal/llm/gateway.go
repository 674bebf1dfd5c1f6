package llm

import (
	"context"
	"strings"
	"sync"
	"time"

	"ats-matcher/internal/prompt"
	"ats-matcher/internal/shared/telemetry"
)

const (
	maxAttempts         = 2
	defaultTimeout      = 30 * time.Second
	defaultRetryBackoff = 2 * time.Second
)

// GatewayConfig is built once at startup and never mutated.
type GatewayConfig struct {
	// Model pins a model name and skips listing when set.
	Model           string
	Preferences     []string
	Timeout         time.Duration
	RetryBackoff    time.Duration
	MaxOutputTokens int
	Temperature     float64
}

// Reply is the outcome of Generate.
type Reply struct {
	Text     string
	Model    string
	Attempts int
	// TimedOut is set when both attempts timed out and Text is TimeoutApology.
	TimedOut bool
}

// ModelsInfo describes the models visible to the gateway.
type ModelsInfo struct {
	Provider  string   `json:"provider"`
	Available []string `json:"available"`
	Selected  string   `json:"selected"`
}

// RetryHook is called before the backoff that precedes the second attempt.
type RetryHook func(attempt int, err error)

// Gateway calls a Provider with model resolution and retry-once-on-timeout.
type Gateway struct {
	provider Provider
	cfg      GatewayConfig
	sleep    func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	model string
}

// NewGateway returns a gateway for provider. Zero durations take defaults.
func NewGateway(provider Provider, cfg GatewayConfig) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	return &Gateway{
		provider: provider,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// Provider returns the provider name.
func (g *Gateway) Provider() string {
	return g.provider.Name()
}

// CurrentModel returns the cached model without resolving it.
func (g *Gateway) CurrentModel() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.model
}

// ResolveModel returns the cached model, resolving it on first use.
// A failed resolution is not cached.
func (g *Gateway) ResolveModel(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.model != "" {
		return g.model, nil
	}
	if pinned := strings.TrimSpace(g.cfg.Model); pinned != "" {
		g.model = shortName(pinned)
		return g.model, nil
	}

	available, err := g.listModels(ctx)
	if err != nil {
		return "", err
	}
	return g.selectLocked(available)
}

// Models lists available models and the resolved selection.
func (g *Gateway) Models(ctx context.Context) (ModelsInfo, error) {
	available, err := g.listModels(ctx)
	if err != nil {
		return ModelsInfo{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	selected := g.model
	if selected == "" {
		if pinned := strings.TrimSpace(g.cfg.Model); pinned != "" {
			g.model = shortName(pinned)
			selected = g.model
		} else if selected, err = g.selectLocked(available); err != nil {
			return ModelsInfo{}, err
		}
	}
	return ModelsInfo{
		Provider:  g.provider.Name(),
		Available: available,
		Selected:  selected,
	}, nil
}

// selectLocked picks from available and caches the choice. g.mu must be held.
func (g *Gateway) selectLocked(available []string) (string, error) {
	name, ok := SelectModel(available, g.cfg.Preferences)
	if !ok {
		return "", &ProviderError{Provider: g.provider.Name(), Message: ErrNoModels.Error(), Err: ErrNoModels}
	}
	telemetry.Info("llm.model_resolved", map[string]any{
		"provider":  g.provider.Name(),
		"model":     name,
		"available": len(available),
	})
	g.model = name
	return name, nil
}

// Generate sends payload to the resolved model. A timeout is retried once
// after the backoff; a second timeout yields TimeoutApology with a nil error.
// Every other failure is returned at once as *ProviderError.
func (g *Gateway) Generate(ctx context.Context, payload prompt.Payload, onRetry RetryHook) (Reply, error) {
	model, err := g.ResolveModel(ctx)
	if err != nil {
		return Reply{}, err
	}

	params := GenerationParams{
		MaxOutputTokens: g.cfg.MaxOutputTokens,
		Temperature:     g.cfg.Temperature,
	}
	reply := Reply{Model: model}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		reply.Attempts = attempt
		start := time.Now()
		text, err := g.attempt(ctx, model, payload, params)
		if err == nil {
			telemetry.Info("llm.generate", map[string]any{
				"provider":    g.provider.Name(),
				"model":       model,
				"attempt":     attempt,
				"duration_ms": time.Since(start).Milliseconds(),
				"input_chars": len(payload.Text()),
				"has_image":   payload.HasImage(),
				"reply_chars": len(text),
			})
			reply.Text = text
			return reply, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return reply, ctxErr
		}
		if !IsTimeout(err) {
			pe := asProviderError(g.provider.Name(), err)
			telemetry.Error("llm.provider_error", map[string]any{
				"provider": g.provider.Name(),
				"model":    model,
				"attempt":  attempt,
				"status":   pe.StatusCode,
				"error":    pe.Message,
			})
			return reply, pe
		}

		telemetry.Warn("llm.timeout", map[string]any{
			"provider": g.provider.Name(),
			"model":    model,
			"attempt":  attempt,
			"error":    err.Error(),
		})
		if attempt == maxAttempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if err := g.sleep(ctx, g.cfg.RetryBackoff); err != nil {
			return reply, err
		}
	}

	reply.Text = TimeoutApology
	reply.TimedOut = true
	return reply, nil
}

func (g *Gateway) attempt(ctx context.Context, model string, payload prompt.Payload, params GenerationParams) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return g.provider.Generate(callCtx, model, payload, params)
}

func (g *Gateway) listModels(ctx context.Context) ([]string, error) {
	listCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	available, err := g.provider.ListModels(listCtx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, asProviderError(g.provider.Name(), err)
	}
	return available, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
