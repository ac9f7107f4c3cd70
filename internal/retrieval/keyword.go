package retrieval

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/ruhapp/ruh/models"
)

// keywordDoc is the shape indexed per passage.
type keywordDoc struct {
	Text        string `json:"text"`
	Translation string `json:"translation"`
	ChapterName string `json:"chapter_name"`
}

// KeywordIndex is a memory-only full-text index over the passage corpus. It
// backs the keyword side of search comparisons; the retrieval fallback stays
// plain substring matching for determinism.
type KeywordIndex struct {
	mu       sync.RWMutex
	idx      bleve.Index
	passages map[string]models.Passage
}

// NewKeywordIndex creates an empty index.
func NewKeywordIndex() (*KeywordIndex, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &KeywordIndex{idx: idx, passages: map[string]models.Passage{}}, nil
}

// Rebuild replaces the index contents with the given passages.
func (k *KeywordIndex) Rebuild(passages []models.Passage) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	fresh, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("recreate keyword index: %w", err)
	}
	batch := fresh.NewBatch()
	lookup := make(map[string]models.Passage, len(passages))
	for _, p := range passages {
		if err := batch.Index(p.ID, keywordDoc{
			Text:        p.Text,
			Translation: p.Translation,
			ChapterName: p.ChapterName,
		}); err != nil {
			return fmt.Errorf("index passage %s: %w", p.ID, err)
		}
		lookup[p.ID] = p
	}
	if err := fresh.Batch(batch); err != nil {
		return fmt.Errorf("apply keyword batch: %w", err)
	}
	old := k.idx
	k.idx = fresh
	k.passages = lookup
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Search runs a match query and returns up to k passages with bleve's own
// relevance score attached.
func (k *KeywordIndex) Search(query string, topK int) ([]models.ScoredPassage, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if topK <= 0 {
		return nil, nil
	}
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, topK, 0, false)
	res, err := k.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	var out []models.ScoredPassage
	for _, hit := range res.Hits {
		p, ok := k.passages[hit.ID]
		if !ok {
			continue
		}
		out = append(out, models.ScoredPassage{Passage: p, Similarity: hit.Score})
	}
	return out, nil
}

// Len reports the number of indexed passages.
func (k *KeywordIndex) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.passages)
}
