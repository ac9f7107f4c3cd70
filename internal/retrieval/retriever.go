package retrieval

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ruhapp/ruh/internal/telemetry"
	"github.com/ruhapp/ruh/internal/vectorstore"
	"github.com/ruhapp/ruh/models"
)

// Embedder is the slice of the embedding service the retriever needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFactory lazily constructs the embedder. Model loading is expensive
// and can fail; the retriever calls the factory once, on first use, and
// caches the outcome either way.
type EmbedderFactory func(ctx context.Context) (Embedder, error)

// Strategy selects the retrieval pipeline once, instead of re-deciding at
// every call site.
type Strategy string

const (
	// StrategySemantic embeds the theme and searches the vector index,
	// degrading to substring matching on any failure or empty result.
	StrategySemantic Strategy = "semantic"
	// StrategyKeyword skips the embedding and index entirely.
	StrategyKeyword Strategy = "keyword"
)

// Retriever turns a free-text theme into a ranked list of passages.
// Retrieval never fails the caller: every error path degrades to the
// deterministic substring search.
type Retriever struct {
	store    *vectorstore.Store
	factory  EmbedderFactory
	strategy Strategy
	tele     *telemetry.Telemetry
	logger   *log.Logger

	initMu   sync.Mutex
	embedder Embedder
	initErr  error
	initDone bool
}

// NewRetriever builds a retriever over the given store. factory may be nil,
// in which case only the keyword path is available.
func NewRetriever(store *vectorstore.Store, factory EmbedderFactory, strategy Strategy, tele *telemetry.Telemetry, logger *log.Logger) *Retriever {
	if logger == nil {
		logger = log.New(log.Writer(), "[RETRIEVE] ", log.LstdFlags)
	}
	if strategy == "" {
		strategy = StrategySemantic
	}
	if factory == nil {
		strategy = StrategyKeyword
	}
	return &Retriever{
		store:    store,
		factory:  factory,
		strategy: strategy,
		tele:     tele,
		logger:   logger,
	}
}

// SearchByTheme returns passages ranked by similarity to the theme. An empty
// theme yields an empty list. maxResults bounds the result length and
// minSimilarity drops weak semantic hits.
func (r *Retriever) SearchByTheme(ctx context.Context, theme string, maxResults int, minSimilarity float64) []models.ScoredPassage {
	results, _ := r.Search(ctx, theme, maxResults, minSimilarity)
	return results
}

// Search is SearchByTheme plus a flag reporting whether the semantic path
// actually served the request. The chapter aggregator uses the flag to pick
// its own fallback.
func (r *Retriever) Search(ctx context.Context, theme string, maxResults int, minSimilarity float64) ([]models.ScoredPassage, bool) {
	start := time.Now()
	theme = strings.TrimSpace(theme)
	if theme == "" || maxResults <= 0 {
		return nil, false
	}

	if r.strategy == StrategySemantic {
		if results, ok := r.semanticSearch(ctx, theme, maxResults, minSimilarity); ok {
			r.tele.ObserveSearch("verse", "semantic", time.Since(start))
			return results, true
		}
		r.tele.CountFallback("verse")
	}

	results := r.substringSearch(theme, maxResults)
	r.tele.ObserveSearch("verse", "keyword", time.Since(start))
	return results, false
}

// semanticSearch runs the embedding + index path. ok is false when the path
// is unavailable, errored, or matched nothing; errors are logged, never
// propagated.
func (r *Retriever) semanticSearch(ctx context.Context, theme string, maxResults int, minSimilarity float64) ([]models.ScoredPassage, bool) {
	emb, err := r.embedderHandle(ctx)
	if err != nil {
		return nil, false
	}
	vec, err := emb.Embed(ctx, theme)
	if err != nil {
		r.logger.Printf("embed theme failed, falling back to substring search: %v", err)
		return nil, false
	}
	hits, err := r.store.Search(vec, maxResults, minSimilarity, nil)
	if err != nil {
		r.logger.Printf("index search failed, falling back to substring search: %v", err)
		return nil, false
	}
	if len(hits) == 0 {
		return nil, false
	}
	out := make([]models.ScoredPassage, 0, len(hits))
	for _, h := range hits {
		out = append(out, models.ScoredPassage{
			Passage:    h.Metadata.Passage(),
			Similarity: h.Score,
		})
	}
	return out, true
}

// substringSearch is the deterministic fallback: the lowercased theme must
// appear in the passage text, translation, or chapter name. Hits keep source
// order and carry no similarity score.
func (r *Retriever) substringSearch(theme string, maxResults int) []models.ScoredPassage {
	needle := strings.ToLower(theme)
	var out []models.ScoredPassage
	for _, meta := range r.store.All() {
		if !strings.Contains(strings.ToLower(meta.Text), needle) &&
			!strings.Contains(strings.ToLower(meta.Translation), needle) &&
			!strings.Contains(strings.ToLower(meta.ChapterName), needle) {
			continue
		}
		out = append(out, models.ScoredPassage{
			Passage:  meta.Passage(),
			Fallback: true,
		})
		if len(out) >= maxResults {
			break
		}
	}
	return out
}

// embedderHandle performs the guarded one-time initialization. A failed init
// is cached: a doomed model load is not retried on every request, the
// semantic path just stays unavailable for the process lifetime.
func (r *Retriever) embedderHandle(ctx context.Context) (Embedder, error) {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	if r.initDone {
		return r.embedder, r.initErr
	}
	r.initDone = true
	r.embedder, r.initErr = r.factory(ctx)
	if r.initErr != nil {
		r.logger.Printf("embedder init failed, semantic search disabled: %v", r.initErr)
	}
	return r.embedder, r.initErr
}
