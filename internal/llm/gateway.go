package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nikhilbhutani/pagescribe/internal/config"
)

// Provider is a vision model that can also hold a document conversation.
type Provider interface {
	Transcriber
	ChatModel
}

var (
	ErrMissingAPIKey         = errors.New("an API key is required for this provider")
	ErrProviderNotConfigured = errors.New("provider not configured")
)

// Gateway hands out providers. Key-based providers can be built per request
// from a caller supplied key; otherwise the server key is used.
type Gateway struct {
	providers       map[ProviderID]Provider
	defaultProvider ProviderID
	openAIBaseURL   string
	openAIModel     string
	anthropicModel  string
}

func NewGateway(ctx context.Context, cfg config.LLMConfig) *Gateway {
	g := &Gateway{
		providers:       make(map[ProviderID]Provider),
		defaultProvider: ProviderID(cfg.DefaultProvider),
		openAIBaseURL:   cfg.OpenAIBaseURL,
		openAIModel:     cfg.OpenAIModel,
		anthropicModel:  cfg.AnthropicModel,
	}

	if cfg.GeminiProject != "" {
		gp, err := NewGeminiProvider(ctx, cfg.GeminiProject, cfg.GeminiLocation, cfg.GeminiModel, cfg.GoogleCredentialsFile)
		if err != nil {
			slog.Warn("gemini provider unavailable", "error", err)
		} else {
			g.providers[ProviderGemini] = gp
		}
	}
	if cfg.OpenAIKey != "" {
		g.providers[ProviderOpenAI] = NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	}
	if cfg.AnthropicKey != "" {
		g.providers[ProviderAnthropic] = NewAnthropicProvider(cfg.AnthropicKey, cfg.AnthropicModel)
	}

	return g
}

// Register installs p under its own name, replacing any existing entry.
func (g *Gateway) Register(p Provider) {
	g.providers[p.Name()] = p
}

func (g *Gateway) Default() ProviderID {
	return g.defaultProvider
}

// Configured lists the providers usable without a caller supplied key.
func (g *Gateway) Configured() []ProviderID {
	out := make([]ProviderID, 0, len(g.providers))
	for _, id := range []ProviderID{ProviderGemini, ProviderOpenAI, ProviderAnthropic} {
		if _, ok := g.providers[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Resolve returns the provider to use for id. A non-empty apiKey overrides
// the server key on providers that take one.
func (g *Gateway) Resolve(id ProviderID, apiKey string) (Provider, error) {
	if id == "" {
		id = g.defaultProvider
	}
	if RequiresAPIKey(id) && apiKey != "" {
		switch id {
		case ProviderOpenAI:
			return NewOpenAIProvider(apiKey, g.openAIBaseURL, g.openAIModel), nil
		case ProviderAnthropic:
			return NewAnthropicProvider(apiKey, g.anthropicModel), nil
		}
	}

	p, ok := g.providers[id]
	if !ok {
		if RequiresAPIKey(id) {
			return nil, fmt.Errorf("%s: %w", id, ErrMissingAPIKey)
		}
		return nil, fmt.Errorf("%s: %w", id, ErrProviderNotConfigured)
	}
	return p, nil
}

// Close releases clients that hold connections.
func (g *Gateway) Close() {
	if gp, ok := g.providers[ProviderGemini].(*GeminiProvider); ok {
		if err := gp.Close(); err != nil {
			slog.Warn("close gemini client", "error", err)
		}
	}
}
