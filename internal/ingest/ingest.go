package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ruhapp/ruh/internal/catalog"
	"github.com/ruhapp/ruh/internal/retrieval"
	"github.com/ruhapp/ruh/internal/telemetry"
	"github.com/ruhapp/ruh/internal/vectorstore"
	"github.com/ruhapp/ruh/models"
)

const embedBatchSize = 32

// BatchEmbedder is the slice of the embedding service ingest needs.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// chapterRecord is the on-disk dataset shape: chapters with ordered passages.
type chapterRecord struct {
	ChapterID    int             `json:"chapter_id"`
	Name         string          `json:"name"`
	OriginPlace  string          `json:"origin_place"`
	PassageCount int             `json:"passage_count"`
	Summary      string          `json:"summary,omitempty"`
	Themes       string          `json:"themes,omitempty"`
	Passages     []passageRecord `json:"passages"`
}

type passageRecord struct {
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
}

// Report summarizes one ingest run.
type Report struct {
	JobID    string        `json:"job_id"`
	Chapters int           `json:"chapters"`
	Passages int           `json:"passages"`
	Duration time.Duration `json:"duration"`
}

// Ingestor loads the static chapter dataset, embeds every passage and
// replaces the store contents. Ingest is the only write path: passages are
// never mutated afterward, only bulk-cleared by the next ingest.
type Ingestor struct {
	store    *vectorstore.Store
	catalog  *catalog.Catalog
	embedder BatchEmbedder
	keyword  *retrieval.KeywordIndex
	tele     *telemetry.Telemetry
	logger   *log.Logger
}

func New(store *vectorstore.Store, cat *catalog.Catalog, embedder BatchEmbedder, keyword *retrieval.KeywordIndex, tele *telemetry.Telemetry, logger *log.Logger) *Ingestor {
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	return &Ingestor{store: store, catalog: cat, embedder: embedder, keyword: keyword, tele: tele, logger: logger}
}

// IngestFile runs a full re-ingest from the dataset at path.
func (i *Ingestor) IngestFile(ctx context.Context, path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("read dataset: %w", err)
	}
	var records []chapterRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return Report{}, fmt.Errorf("parse dataset: %w", err)
	}
	return i.Ingest(ctx, records)
}

// Ingest embeds and stores the given chapters, replacing any previous
// contents of the store, catalog and keyword index.
func (i *Ingestor) Ingest(ctx context.Context, records []chapterRecord) (Report, error) {
	jobID := uuid.NewString()
	start := time.Now()
	i.logger.Printf("ingest %s: %d chapters", jobID, len(records))

	var (
		chapters  []models.Chapter
		passages  []models.Passage
		texts     []string
		metadatas []vectorstore.Metadata
		ids       []string
	)
	for _, rec := range records {
		ch := models.Chapter{
			ID:           rec.ChapterID,
			Name:         rec.Name,
			OriginPlace:  rec.OriginPlace,
			PassageCount: rec.PassageCount,
			Summary:      rec.Summary,
			Themes:       rec.Themes,
		}
		if ch.PassageCount == 0 {
			ch.PassageCount = len(rec.Passages)
		}
		chapters = append(chapters, ch)

		for idx, pr := range rec.Passages {
			p := models.Passage{
				ID:          fmt.Sprintf("%d:%d", rec.ChapterID, idx+1),
				Text:        pr.Text,
				Translation: pr.Translation,
				ChapterID:   rec.ChapterID,
				ChapterName: rec.Name,
				OriginPlace: rec.OriginPlace,
			}
			passages = append(passages, p)
			ids = append(ids, p.ID)
			// Original text, translation and chapter name share one
			// embedding so both scripts land in the same vector.
			texts = append(texts, embeddingText(p))
			metadatas = append(metadatas, vectorstore.Metadata{
				ChapterID:   p.ChapterID,
				ChapterName: p.ChapterName,
				OriginPlace: p.OriginPlace,
				Text:        p.Text,
				Translation: p.Translation,
			})
		}
	}
	if len(passages) == 0 {
		return Report{}, fmt.Errorf("dataset contains no passages")
	}

	vectors := make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += embedBatchSize {
		hi := lo + embedBatchSize
		if hi > len(texts) {
			hi = len(texts)
		}
		batch, err := i.embedder.EmbedBatch(ctx, texts[lo:hi])
		if err != nil {
			return Report{}, fmt.Errorf("embed batch %d-%d: %w", lo, hi, err)
		}
		vectors = append(vectors, batch...)
	}

	i.store.Clear()
	if _, err := i.store.Add(vectors, metadatas, ids); err != nil {
		return Report{}, fmt.Errorf("add vectors: %w", err)
	}
	if err := i.store.Save(); err != nil {
		return Report{}, fmt.Errorf("persist store: %w", err)
	}

	i.catalog.Replace(chapters)
	if err := i.catalog.Save(); err != nil {
		return Report{}, fmt.Errorf("persist catalog: %w", err)
	}

	if i.keyword != nil {
		if err := i.keyword.Rebuild(passages); err != nil {
			return Report{}, fmt.Errorf("rebuild keyword index: %w", err)
		}
	}

	i.tele.CountIngested(len(passages))
	rep := Report{JobID: jobID, Chapters: len(chapters), Passages: len(passages), Duration: time.Since(start)}
	i.logger.Printf("ingest %s done: %d passages across %d chapters in %s", jobID, rep.Passages, rep.Chapters, rep.Duration)
	return rep, nil
}

func embeddingText(p models.Passage) string {
	text := p.Text
	if p.Translation != "" {
		text += " " + p.Translation
	}
	if p.ChapterName != "" {
		text += " " + p.ChapterName
	}
	return text
}
