package llm

import (
	"context"
	"fmt"
)

// Deps are the optional collaborators of the decorator chain.
type Deps struct {
	Recorder CompletionRecorder
	Cache    Cache
	Observer Observer
}

// NewProvider creates a Provider from configuration, wrapped as
// caller → metrics → cache → retry → logging → backend.
func NewProvider(ctx context.Context, cfg Config, deps Deps) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Provider
	var err error
	switch cfg.Provider {
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "mock":
		base = NewMockProvider()
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	p := WithLogging(base, deps.Recorder)
	if cfg.Retry.MaxAttempts > 1 {
		p = WithRetry(p, cfg.Retry)
	}
	if deps.Cache != nil {
		p = WithCache(p, deps.Cache, cfg.CacheTTL)
	}
	if deps.Observer != nil {
		p = WithMetrics(p, deps.Observer)
	}
	return p, nil
}
