package retrieval

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruhapp/ruh/config"
	"github.com/ruhapp/ruh/internal/catalog"
	"github.com/ruhapp/ruh/internal/vectorstore"
	"github.com/ruhapp/ruh/models"
)

func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		MinSimilarity:      0.1,
		OverfetchFactor:    8,
		OverfetchCap:       100,
		KeywordBoost:       0.1,
		WeightAvgSim:       0.4,
		WeightMaxSim:       0.3,
		WeightDensity:      0.15,
		WeightContextual:   0.10,
		WeightDiversity:    0.05,
		FallbackScore:      0.5,
		PassagesPerChapter: 3,
	}
}

func testCatalog(t *testing.T, chapters ...models.Chapter) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(filepath.Join(t.TempDir(), "chapters.json"))
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	cat.Replace(chapters)
	return cat
}

// unitVec builds a 2d unit vector whose cosine against [1, 0] equals sim.
func unitVec(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func buildAggregator(t *testing.T, vecs [][]float32, metas []vectorstore.Metadata, ids []string, cat *catalog.Catalog) *Aggregator {
	t.Helper()
	store, err := vectorstore.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("vectorstore.New: %v", err)
	}
	if len(vecs) > 0 {
		if _, err := store.Add(vecs, metas, ids); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	r := NewRetriever(store, factoryFor(&stubEmbedder{vec: []float32{1, 0}}, nil, nil), StrategySemantic, nil, nil)
	return NewAggregator(r, cat, testRetrievalConfig(), nil, nil)
}

func TestSearchChaptersEmptyTheme(t *testing.T) {
	a := buildAggregator(t, nil, nil, nil, testCatalog(t))
	if got := a.SearchChaptersByTheme(context.Background(), "  ", 5, models.SortByRelevance); got != nil {
		t.Fatalf("empty theme should yield nothing, got %+v", got)
	}
}

func TestCompositeScoring(t *testing.T) {
	cat := testCatalog(t, models.Chapter{ID: 5, Name: "Al-Test", PassageCount: 10})
	a := buildAggregator(t,
		[][]float32{unitVec(0.9), unitVec(0.7)},
		[]vectorstore.Metadata{
			{ID: "5:1", ChapterID: 5, ChapterName: "Al-Test", Translation: "remain firm in times of trial"},
			{ID: "5:2", ChapterID: 5, ChapterName: "Al-Test", Translation: "hold to what is good"},
		},
		[]string{"5:1", "5:2"},
		cat,
	)

	results := a.SearchChaptersByTheme(context.Background(), "patience", 5, models.SortByRelevance)
	if len(results) != 1 {
		t.Fatalf("want 1 chapter, got %d", len(results))
	}
	ch := results[0]
	if ch.Chapter.ID != 5 {
		t.Fatalf("wrong chapter: %+v", ch.Chapter)
	}

	// Neither passage mentions the theme literally, so no keyword boost,
	// no contextual credit, no detected themes. The composite reduces to
	// 0.4*avg(0.8) + 0.3*max(0.9) + 0.15*density(2/10) = 0.62.
	if math.Abs(ch.Score-0.62) > 1e-3 {
		t.Fatalf("composite score = %v, want ~0.62", ch.Score)
	}
	if ch.Score <= 0.3 || ch.Score >= 0.9 {
		t.Fatalf("score %v out of expected band", ch.Score)
	}
	if len(ch.MatchingPassages) != 2 {
		t.Fatalf("want 2 matching passages, got %d", len(ch.MatchingPassages))
	}
	if ch.MatchingPassages[0].Passage.ID != "5:1" {
		t.Fatalf("highest-similarity passage should lead, got %s", ch.MatchingPassages[0].Passage.ID)
	}
	if !strings.Contains(ch.Explanation, "has strong connections to") {
		t.Fatalf("unexpected explanation: %q", ch.Explanation)
	}
	if ch.Coverage != "2 of 10 passages matched (substantial coverage)" {
		t.Fatalf("unexpected coverage: %q", ch.Coverage)
	}
}

func TestKeywordBoostAppliedAndCapped(t *testing.T) {
	cat := testCatalog(t,
		models.Chapter{ID: 1, Name: "One", PassageCount: 5},
		models.Chapter{ID: 2, Name: "Two", PassageCount: 5},
	)
	a := buildAggregator(t,
		[][]float32{unitVec(0.95), unitVec(0.5)},
		[]vectorstore.Metadata{
			{ID: "1:1", ChapterID: 1, ChapterName: "One", Translation: "his mercy covers all things"},
			{ID: "2:1", ChapterID: 2, ChapterName: "Two", Translation: "mercy for the worlds"},
		},
		[]string{"1:1", "2:1"},
		cat,
	)

	results := a.SearchChaptersByTheme(context.Background(), "mercy", 5, models.SortByRelevance)
	if len(results) != 2 {
		t.Fatalf("want 2 chapters, got %d", len(results))
	}
	bySim := map[string]float64{}
	for _, ch := range results {
		for _, p := range ch.MatchingPassages {
			bySim[p.Passage.ID] = p.Similarity
		}
	}
	if bySim["1:1"] != 1.0 {
		t.Fatalf("boosted similarity should cap at 1.0, got %v", bySim["1:1"])
	}
	if math.Abs(bySim["2:1"]-0.6) > 1e-3 {
		t.Fatalf("boosted similarity = %v, want ~0.6", bySim["2:1"])
	}
}

func TestPassagesPerChapterLimit(t *testing.T) {
	cat := testCatalog(t, models.Chapter{ID: 1, Name: "One", PassageCount: 20})
	var vecs [][]float32
	var metas []vectorstore.Metadata
	var ids []string
	sims := []float64{0.9, 0.5, 0.8, 0.6, 0.7}
	for i, sim := range sims {
		vecs = append(vecs, unitVec(sim))
		metas = append(metas, vectorstore.Metadata{ChapterID: 1, ChapterName: "One", Translation: "a calm word"})
		ids = append(ids, fmt.Sprintf("1:%d", i+1))
	}
	a := buildAggregator(t, vecs, metas, ids, cat)

	results := a.SearchChaptersByTheme(context.Background(), "calm", 5, models.SortByRelevance)
	if len(results) != 1 {
		t.Fatalf("want 1 chapter, got %d", len(results))
	}
	top := results[0].MatchingPassages
	if len(top) != 3 {
		t.Fatalf("want 3 passages, got %d", len(top))
	}
	for i := 1; i < len(top); i++ {
		if top[i].Similarity > top[i-1].Similarity {
			t.Fatal("top passages not sorted by similarity")
		}
	}
}

func TestSortByID(t *testing.T) {
	cat := testCatalog(t,
		models.Chapter{ID: 1, Name: "One", PassageCount: 5},
		models.Chapter{ID: 3, Name: "Three", PassageCount: 5},
	)
	a := buildAggregator(t,
		[][]float32{unitVec(0.4), unitVec(0.9)},
		[]vectorstore.Metadata{
			{ID: "1:1", ChapterID: 1, ChapterName: "One", Translation: "a word"},
			{ID: "3:1", ChapterID: 3, ChapterName: "Three", Translation: "another word"},
		},
		[]string{"1:1", "3:1"},
		cat,
	)

	byRelevance := a.SearchChaptersByTheme(context.Background(), "word", 5, models.SortByRelevance)
	if len(byRelevance) != 2 || byRelevance[0].Chapter.ID != 3 {
		t.Fatalf("relevance order wrong: %+v", byRelevance)
	}

	byID := a.SearchChaptersByTheme(context.Background(), "word", 5, models.SortByID)
	if len(byID) != 2 || byID[0].Chapter.ID != 1 || byID[1].Chapter.ID != 3 {
		t.Fatalf("id order wrong: %d, %d", byID[0].Chapter.ID, byID[1].Chapter.ID)
	}
}

func TestKeywordChapterFallback(t *testing.T) {
	cat := testCatalog(t,
		models.Chapter{ID: 1, Name: "Patience", PassageCount: 5},
		models.Chapter{ID: 2, Name: "Two", Summary: "a chapter about patience under trial", PassageCount: 5},
		models.Chapter{ID: 3, Name: "Three", PassageCount: 5},
	)
	store, err := vectorstore.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("vectorstore.New: %v", err)
	}
	r := NewRetriever(store, nil, StrategyKeyword, nil, nil)
	a := NewAggregator(r, cat, testRetrievalConfig(), nil, nil)

	results := a.SearchChaptersByTheme(context.Background(), "patience", 5, models.SortByRelevance)
	if len(results) != 2 {
		t.Fatalf("want 2 fallback chapters, got %d", len(results))
	}
	for _, ch := range results {
		if ch.Score != 0.5 {
			t.Fatalf("fallback score = %v, want 0.5", ch.Score)
		}
	}
	if !strings.Contains(results[0].Explanation, "name") {
		t.Fatalf("unexpected explanation: %q", results[0].Explanation)
	}
	if !strings.Contains(results[1].Explanation, "summary") {
		t.Fatalf("unexpected explanation: %q", results[1].Explanation)
	}
}

func TestMaxResultsLimitsChapters(t *testing.T) {
	cat := testCatalog(t,
		models.Chapter{ID: 1, Name: "One", PassageCount: 5},
		models.Chapter{ID: 2, Name: "Two", PassageCount: 5},
		models.Chapter{ID: 3, Name: "Three", PassageCount: 5},
	)
	a := buildAggregator(t,
		[][]float32{unitVec(0.9), unitVec(0.8), unitVec(0.7)},
		[]vectorstore.Metadata{
			{ID: "1:1", ChapterID: 1, ChapterName: "One", Translation: "a word"},
			{ID: "2:1", ChapterID: 2, ChapterName: "Two", Translation: "a word"},
			{ID: "3:1", ChapterID: 3, ChapterName: "Three", Translation: "a word"},
		},
		[]string{"1:1", "2:1", "3:1"},
		cat,
	)

	results := a.SearchChaptersByTheme(context.Background(), "word", 2, models.SortByRelevance)
	if len(results) != 2 {
		t.Fatalf("want 2 chapters, got %d", len(results))
	}
	if results[0].Chapter.ID != 1 || results[1].Chapter.ID != 2 {
		t.Fatalf("wrong chapters kept: %d, %d", results[0].Chapter.ID, results[1].Chapter.ID)
	}
}
