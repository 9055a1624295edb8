package enrich

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/artcrm/artcrm/internal/config"
	"github.com/artcrm/artcrm/internal/vocab"
	"github.com/artcrm/artcrm/pkg/anthropic"
	"github.com/artcrm/artcrm/pkg/gemini"
	"github.com/artcrm/artcrm/pkg/ollama"
)

// New builds the classifier for backend from cfg. Missing credentials are
// reported here, before any request is made.
func New(ctx context.Context, backend string, cfg *config.Config, voc *vocab.Vocabulary) (Classifier, error) {
	switch backend {
	case BackendNone:
		return Disabled(), nil
	case BackendOllama:
		return NewOllama(ollama.NewClient(ollama.WithBaseURL(cfg.Ollama.BaseURL)), cfg.Ollama.Model, voc), nil
	case BackendClaude:
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("enrich: anthropic.key is required for the claude backend (ANTHROPIC_API_KEY)")
		}
		return NewClaude(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, voc), nil
	case BackendGemini:
		if cfg.Gemini.Key == "" {
			return nil, eris.New("enrich: gemini.key is required for the gemini backend (GEMINI_API_KEY)")
		}
		client, err := gemini.NewClient(ctx, gemini.Config{APIKey: cfg.Gemini.Key, BaseURL: cfg.Gemini.BaseURL})
		if err != nil {
			return nil, eris.Wrap(err, "enrich: gemini client")
		}
		return NewGemini(client, cfg.Gemini.Model, voc), nil
	default:
		return nil, eris.Errorf("enrich: unknown backend %q", backend)
	}
}
