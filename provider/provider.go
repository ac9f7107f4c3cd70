package provider

import (
	"context"
	"errors"

	"github.com/ruhapp/ruh/config"
	openai_provider "github.com/ruhapp/ruh/provider/openai"
)

// ErrEmptyInput is returned when an embedding is requested for empty text.
// Callers must not receive a silent zero vector: zero vectors corrupt cosine
// similarity downstream.
var ErrEmptyInput = errors.New("cannot embed empty input")

// Provider is the interface all model backends must satisfy. Text generation
// is treated as an opaque capability; the engine only uses it for chapter
// summaries.
type Provider interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	GenerateText(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// New creates a provider bound to one embedding model. The fallback decision
// between models is made by the caller (internal/embedding), not here.
func New(cfg config.EmbeddingConfig, model string) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("embedding.api_key not set")
	}
	if model == "" {
		return nil, errors.New("embedding model not set")
	}
	return openai_provider.NewClient(
		cfg.BaseURL,
		cfg.APIKey,
		model,
		cfg.Dimensions,
		cfg.Timeout,
	), nil
}
