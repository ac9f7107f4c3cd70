package engine

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/ruhapp/ruh/config"
	"github.com/ruhapp/ruh/internal/catalog"
	"github.com/ruhapp/ruh/internal/embedding"
	"github.com/ruhapp/ruh/internal/ingest"
	"github.com/ruhapp/ruh/internal/redisconn"
	"github.com/ruhapp/ruh/internal/retrieval"
	"github.com/ruhapp/ruh/internal/summary"
	"github.com/ruhapp/ruh/internal/telemetry"
	"github.com/ruhapp/ruh/internal/vectorstore"
	"github.com/ruhapp/ruh/internal/wellness"
	"github.com/ruhapp/ruh/models"
	"github.com/ruhapp/ruh/provider"
)

// Engine wires the retrieval core together: one explicitly constructed
// instance shared by every surface (HTTP, CLI), no hidden globals.
type Engine struct {
	Store      *vectorstore.Store
	Catalog    *catalog.Catalog
	Keyword    *retrieval.KeywordIndex
	Retriever  *retrieval.Retriever
	Aggregator *retrieval.Aggregator
	Wellness   *wellness.Matcher
	Summaries  *summary.Service

	cfg    *config.Config
	tele   *telemetry.Telemetry
	logger *log.Logger
}

// New builds the engine from config. The embedding model is NOT probed here:
// the retriever initializes it lazily on first semantic search, so a dead
// model backend still leaves keyword retrieval serving.
func New(ctx context.Context, cfg *config.Config, tele *telemetry.Telemetry, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	}

	store, err := vectorstore.New(cfg.Storage.Dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	cat, err := catalog.New(filepath.Join(cfg.Storage.Dir, "chapters.json"))
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	keyword, err := retrieval.NewKeywordIndex()
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	metas := store.All()
	passages := make([]models.Passage, 0, len(metas))
	for _, m := range metas {
		passages = append(passages, m.Passage())
	}
	if err := keyword.Rebuild(passages); err != nil {
		return nil, fmt.Errorf("build keyword index: %w", err)
	}

	factory := func(ctx context.Context) (retrieval.Embedder, error) {
		return embedding.New(ctx, cfg.Embedding, nil)
	}
	retriever := retrieval.NewRetriever(store, factory, retrieval.StrategySemantic, tele, nil)
	aggregator := retrieval.NewAggregator(retriever, cat, cfg.Retrieval, tele, nil)
	matcher := wellness.NewMatcher(retriever, nil)

	var gen summary.Generator
	if cfg.Summary.Enabled {
		genCfg := cfg.Embedding
		genCfg.Timeout = cfg.Summary.Timeout
		if p, err := provider.New(genCfg, cfg.Summary.Model); err == nil {
			gen = p
		} else {
			logger.Printf("summary generation disabled: %v", err)
		}
	}
	rdb, err := redisconn.Conn(ctx, cfg.Redis)
	if err != nil {
		// Cache only; the in-process map still satisfies the summary
		// stability guarantee.
		logger.Printf("redis unavailable, summaries cached in-process only: %v", err)
		rdb = nil
	}
	summaries := summary.New(cat, gen, rdb, cfg.Summary.TTL, nil)

	return &Engine{
		Store:      store,
		Catalog:    cat,
		Keyword:    keyword,
		Retriever:  retriever,
		Aggregator: aggregator,
		Wellness:   matcher,
		Summaries:  summaries,
		cfg:        cfg,
		tele:       tele,
		logger:     logger,
	}, nil
}

// NewIngestor constructs the ingest pipeline. Unlike search, ingest has no
// degraded mode: it eagerly probes the embedding model and fails when none
// loads.
func (e *Engine) NewIngestor(ctx context.Context) (*ingest.Ingestor, error) {
	svc, err := embedding.New(ctx, e.cfg.Embedding, nil)
	if err != nil {
		return nil, fmt.Errorf("ingest requires an embedding model: %w", err)
	}
	return ingest.New(e.Store, e.Catalog, svc, e.Keyword, e.tele, nil), nil
}

// CompareSide is one half of a search comparison.
type CompareSide struct {
	Results  []models.ScoredPassage `json:"results"`
	Elapsed  time.Duration          `json:"elapsed"`
	Degraded bool                   `json:"degraded,omitempty"`
}

// CompareResult reports semantic and keyword retrieval side by side for the
// same theme.
type CompareResult struct {
	Theme    string      `json:"theme"`
	Semantic CompareSide `json:"semantic"`
	Keyword  CompareSide `json:"keyword"`
}

// CompareSearch runs both retrieval methods for one theme, mainly for
// relevance tuning and debugging.
func (e *Engine) CompareSearch(ctx context.Context, theme string, maxResults int) CompareResult {
	out := CompareResult{Theme: theme}

	start := time.Now()
	semantic, ok := e.Retriever.Search(ctx, theme, maxResults, e.cfg.Retrieval.MinSimilarity)
	out.Semantic = CompareSide{Results: semantic, Elapsed: time.Since(start), Degraded: !ok}

	start = time.Now()
	keyword, err := e.Keyword.Search(theme, maxResults)
	if err != nil {
		e.logger.Printf("keyword comparison failed: %v", err)
	}
	out.Keyword = CompareSide{Results: keyword, Elapsed: time.Since(start)}
	return out
}

// Stats reports counters for the serving surfaces.
func (e *Engine) Stats() map[string]interface{} {
	return map[string]interface{}{
		"store":            e.Store.Stats(),
		"chapters":         e.Catalog.Len(),
		"keyword_passages": e.Keyword.Len(),
	}
}
