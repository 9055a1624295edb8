// Package enrich classifies reconciled venues with an AI backend and keeps
// per-venue failures isolated from the rest of the run.
package enrich

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/artcrm/artcrm/internal/model"
	"github.com/artcrm/artcrm/internal/vocab"
	"github.com/artcrm/artcrm/pkg/anthropic"
	"github.com/artcrm/artcrm/pkg/gemini"
	"github.com/artcrm/artcrm/pkg/ollama"
)

// Backend names accepted by --model.
const (
	BackendOllama = "ollama"
	BackendClaude = "claude"
	BackendGemini = "gemini"
	BackendNone   = "none"
)

// Backends lists every selectable backend.
var Backends = []string{BackendOllama, BackendClaude, BackendGemini, BackendNone}

// ValidBackend reports whether name is a known backend.
func ValidBackend(name string) bool { return slices.Contains(Backends, name) }

// Classifier assigns a subtype and fit hints to a venue.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, m model.MergedCandidate) (model.Classification, error)
}

// generateFunc sends one system+user prompt and returns the model's text.
type generateFunc func(ctx context.Context, system, prompt string) (string, error)

type llmClassifier struct {
	name     string
	generate generateFunc
	voc      *vocab.Vocabulary
}

func (c *llmClassifier) Name() string { return c.name }

func (c *llmClassifier) Classify(ctx context.Context, m model.MergedCandidate) (model.Classification, error) {
	raw, err := c.generate(ctx, systemPrompt, BuildPrompt(m, c.voc))
	if err != nil {
		return model.Classification{}, err
	}
	return ParseResponse(raw, c.voc)
}

// NewOllama classifies with a local Ollama model.
func NewOllama(client ollama.Client, modelName string, voc *vocab.Vocabulary) Classifier {
	return &llmClassifier{
		name: BackendOllama,
		voc:  voc,
		generate: func(ctx context.Context, system, prompt string) (string, error) {
			resp, err := client.Generate(ctx, ollama.GenerateRequest{
				Model:   modelName,
				System:  system,
				Prompt:  prompt,
				Options: map[string]any{"temperature": 0.2},
			})
			if err != nil {
				return "", err
			}
			return resp.Response, nil
		},
	}
}

// NewClaude classifies with the Anthropic Messages API.
func NewClaude(client anthropic.Client, modelName string, maxTokens int64, voc *vocab.Vocabulary) Classifier {
	return &llmClassifier{
		name: BackendClaude,
		voc:  voc,
		generate: func(ctx context.Context, system, prompt string) (string, error) {
			resp, err := client.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     modelName,
				MaxTokens: maxTokens,
				System:    system,
				Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
			})
			if err != nil {
				return "", err
			}
			resp.Usage.Log(modelName, "enrich")
			return resp.Text(), nil
		},
	}
}

// NewGemini classifies with the Gemini API.
func NewGemini(client gemini.Client, modelName string, voc *vocab.Vocabulary) Classifier {
	temp := float32(0.2)
	return &llmClassifier{
		name: BackendGemini,
		voc:  voc,
		generate: func(ctx context.Context, system, prompt string) (string, error) {
			return client.GenerateText(ctx, gemini.TextRequest{
				Model:       modelName,
				System:      system,
				Prompt:      prompt,
				Temperature: &temp,
				MaxTokens:   500,
			})
		},
	}
}

type disabled struct{}

// Disabled returns the classifier for offline runs. The orchestrator never
// calls it; every venue is marked skipped.
func Disabled() Classifier { return disabled{} }

func (disabled) Name() string { return BackendNone }

func (disabled) Classify(context.Context, model.MergedCandidate) (model.Classification, error) {
	return model.Classification{}, eris.New("enrich: backend disabled")
}
