package models

import "errors"

// ErrChapterNotFound is returned when a chapter id resolves to nothing.
var ErrChapterNotFound = errors.New("chapter not found")

// Passage is a single retrievable unit of text. Passages are created once at
// ingest time and never mutated afterward.
type Passage struct {
	ID          string `json:"id"` // "<chapter>:<index>"
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
	ChapterID   int    `json:"chapter_id"`
	// Denormalized chapter attributes, carried for retrieval convenience.
	// Chapters are static reference data, so staleness is not a concern.
	ChapterName string `json:"chapter_name"`
	OriginPlace string `json:"origin_place"`
}

// Chapter is a named ordered grouping of passages.
type Chapter struct {
	ID           int    `json:"chapter_id"`
	Name         string `json:"name"`
	OriginPlace  string `json:"origin_place"`
	PassageCount int    `json:"passage_count"`
	Summary      string `json:"summary,omitempty"`
	Themes       string `json:"themes,omitempty"`
}

// ScoredPassage is a passage paired with its retrieval score.
type ScoredPassage struct {
	Passage    Passage `json:"passage"`
	Similarity float64 `json:"similarity"`
	// Fallback marks hits produced by substring matching rather than the
	// semantic path. Fallback hits carry a zero similarity.
	Fallback bool `json:"fallback,omitempty"`
}

// ScoredChapter is the per-query aggregation result for one chapter. It is
// derived fresh per query and never persisted.
type ScoredChapter struct {
	Chapter          Chapter         `json:"chapter"`
	Score            float64         `json:"score"`
	MatchingPassages []ScoredPassage `json:"matching_passages"`
	ThemesFound      []string        `json:"themes_found"`
	Explanation      string          `json:"explanation"`
	Coverage         string          `json:"coverage_text,omitempty"`
}

// SortBy selects the ordering of chapter search results.
type SortBy string

const (
	SortByRelevance SortBy = "relevance"
	SortByID        SortBy = "id"
)

// WellnessCategory is one entry of the static wellness taxonomy.
type WellnessCategory struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	ThemePhrases []string `json:"theme_phrases"`
	Keywords     []string `json:"keywords"`
}

// CategoryMatch pairs a wellness category with its relevance score for a
// piece of free text.
type CategoryMatch struct {
	Category       WellnessCategory `json:"category"`
	RelevanceScore int              `json:"relevance_score"`
}
