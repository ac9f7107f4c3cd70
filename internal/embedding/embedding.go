package embedding

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ruhapp/ruh/config"
	"github.com/ruhapp/ruh/provider"
)

// newProvider is swapped out in tests.
var newProvider = provider.New

// Service wraps a multilingual embedding model behind provider.Provider.
// At construction the primary model is probed once; if it fails, the static
// fallback model is probed once. Both failing is fatal: there is no further
// fallback and no retry loop.
type Service struct {
	prov      provider.Provider
	model     string
	dimension int
	logger    *log.Logger
}

// New probes the configured models and returns a ready service. The probe
// both verifies the model loads and pins the vector dimension every later
// embedding must match.
func New(ctx context.Context, cfg config.EmbeddingConfig, logger *log.Logger) (*Service, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[EMBED] ", log.LstdFlags)
	}

	models := []string{cfg.Model}
	if cfg.FallbackModel != "" && cfg.FallbackModel != cfg.Model {
		models = append(models, cfg.FallbackModel)
	}

	var lastErr error
	for i, model := range models {
		prov, err := newProvider(cfg, model)
		if err != nil {
			lastErr = err
			continue
		}
		vecs, err := prov.CreateEmbedding(ctx, []string{"probe"})
		if err != nil || len(vecs) == 0 || len(vecs[0]) == 0 {
			if err == nil {
				err = fmt.Errorf("probe returned no vector")
			}
			lastErr = fmt.Errorf("model %q unavailable: %w", model, err)
			logger.Printf("embedding model %q failed to load: %v", model, err)
			continue
		}
		if i > 0 {
			logger.Printf("loaded fallback embedding model %q", model)
		} else {
			logger.Printf("loaded embedding model %q", model)
		}
		return &Service{prov: prov, model: model, dimension: len(vecs[0]), logger: logger}, nil
	}
	return nil, fmt.Errorf("no embedding model available: %w", lastErr)
}

// Model reports the model that actually loaded.
func (s *Service) Model() string { return s.model }

// Dimension reports the vector width pinned by the load probe.
func (s *Service) Dimension() int { return s.dimension }

// Embed converts one text into a vector. Empty or whitespace-only input is an
// error rather than a silent zero vector.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, provider.ErrEmptyInput
	}
	vecs, err := s.prov.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed: expected 1 vector, got %d", len(vecs))
	}
	return vecs[0], nil
}

// EmbedBatch converts texts into vectors; row i corresponds to texts[i].
// Any empty text in the batch is rejected before the provider is called.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, provider.ErrEmptyInput
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("text %d: %w", i, provider.ErrEmptyInput)
		}
	}
	vecs, err := s.prov.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed batch: expected %d vectors, got %d", len(texts), len(vecs))
	}
	return vecs, nil
}
