package retrieval

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ruhapp/ruh/config"
	"github.com/ruhapp/ruh/internal/catalog"
	"github.com/ruhapp/ruh/internal/telemetry"
	"github.com/ruhapp/ruh/models"
)

// Aggregator rolls verse-level hits up into chapter-level relevance. It is
// stateless per call; all tuning lives in the retrieval config.
type Aggregator struct {
	retriever *Retriever
	catalog   *catalog.Catalog
	cfg       config.RetrievalConfig
	tele      *telemetry.Telemetry
	logger    *log.Logger
}

func NewAggregator(retriever *Retriever, cat *catalog.Catalog, cfg config.RetrievalConfig, tele *telemetry.Telemetry, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.New(log.Writer(), "[AGGREGATE] ", log.LstdFlags)
	}
	return &Aggregator{retriever: retriever, catalog: cat, cfg: cfg, tele: tele, logger: logger}
}

// chapterGroup accumulates the per-chapter signals while candidates stream in.
type chapterGroup struct {
	chapter    models.Chapter
	passages   []models.ScoredPassage
	totalSim   float64
	maxSim     float64
	verseCount int
	contextual float64
	themes     map[string]struct{}
	order      int // first-seen order, keeps ties deterministic
}

// SearchChaptersByTheme returns chapters ranked by composite relevance for
// the theme. When the semantic path is unavailable it degrades to a
// keyword-only match over chapter attributes. It never returns an error; a
// theme that matches nothing yields an empty list.
func (a *Aggregator) SearchChaptersByTheme(ctx context.Context, theme string, maxResults int, sortBy models.SortBy) []models.ScoredChapter {
	start := time.Now()
	theme = strings.TrimSpace(theme)
	if theme == "" || maxResults <= 0 {
		return nil
	}

	// Wider net than the final chapter count: many passages collapse into
	// few chapters.
	overfetch := maxResults * a.cfg.OverfetchFactor
	if overfetch > a.cfg.OverfetchCap {
		overfetch = a.cfg.OverfetchCap
	}
	candidates, semanticOK := a.retriever.Search(ctx, theme, overfetch, a.cfg.MinSimilarity)

	var results []models.ScoredChapter
	if semanticOK {
		results = a.aggregate(theme, candidates, maxResults)
		a.tele.ObserveSearch("chapter", "semantic", time.Since(start))
	} else {
		results = a.keywordChapterMatch(theme, maxResults)
		a.tele.CountFallback("chapter")
		a.tele.ObserveSearch("chapter", "keyword", time.Since(start))
	}

	if sortBy == models.SortByID {
		sort.Slice(results, func(i, j int) bool { return results[i].Chapter.ID < results[j].Chapter.ID })
	}
	return results
}

func (a *Aggregator) aggregate(theme string, candidates []models.ScoredPassage, maxResults int) []models.ScoredChapter {
	keywords := extractKeywords(theme)
	groups := map[int]*chapterGroup{}

	for _, cand := range candidates {
		g, ok := groups[cand.Passage.ChapterID]
		if !ok {
			g = &chapterGroup{
				chapter: a.chapterFor(cand.Passage),
				themes:  map[string]struct{}{},
				order:   len(groups),
			}
			groups[cand.Passage.ChapterID] = g
		}

		searchText := cand.Passage.Text
		if cand.Passage.Translation != "" {
			searchText += " " + cand.Passage.Translation
		}

		adjusted := math.Min(cand.Similarity+keywordBoost(keywords, searchText, a.cfg.KeywordBoost), 1.0)
		g.passages = append(g.passages, models.ScoredPassage{
			Passage:    cand.Passage,
			Similarity: adjusted,
		})
		g.totalSim += adjusted
		if adjusted > g.maxSim {
			g.maxSim = adjusted
		}
		g.verseCount++
		g.contextual += contextualRelevance(theme, keywords, searchText)
		for _, th := range extractThemes(searchText, theme) {
			g.themes[th] = struct{}{}
		}
	}

	scored := make([]models.ScoredChapter, 0, len(groups))
	ordered := make([]*chapterGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })

	for _, g := range ordered {
		score := a.compositeScore(g)
		sort.SliceStable(g.passages, func(i, j int) bool { return g.passages[i].Similarity > g.passages[j].Similarity })
		top := g.passages
		if len(top) > a.cfg.PassagesPerChapter {
			top = top[:a.cfg.PassagesPerChapter]
		}
		themes := make([]string, 0, len(g.themes))
		for th := range g.themes {
			themes = append(themes, th)
		}
		sort.Strings(themes)

		density := a.verseDensity(g)
		scored = append(scored, models.ScoredChapter{
			Chapter:          g.chapter,
			Score:            score,
			MatchingPassages: top,
			ThemesFound:      themes,
			Explanation:      a.explain(g.chapter, theme, score, g.verseCount, themes),
			Coverage:         coverageText(g.verseCount, g.chapter.PassageCount, density),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}
	return scored
}

// compositeScore combines the accumulated signals with the configured
// weights.
func (a *Aggregator) compositeScore(g *chapterGroup) float64 {
	n := float64(g.verseCount)
	if n == 0 {
		return 0
	}
	avgSim := g.totalSim / n
	avgCtx := g.contextual / n
	density := a.verseDensity(g)
	diversity := float64(len(g.themes))

	return a.cfg.WeightAvgSim*avgSim +
		a.cfg.WeightMaxSim*g.maxSim +
		a.cfg.WeightDensity*density +
		a.cfg.WeightContextual*avgCtx +
		a.cfg.WeightDiversity*math.Min(diversity*0.05, 0.05)
}

func (a *Aggregator) verseDensity(g *chapterGroup) float64 {
	if g.chapter.PassageCount <= 0 {
		return 0
	}
	return math.Min(float64(g.verseCount)/float64(g.chapter.PassageCount), 1.0)
}

// chapterFor resolves catalog reference data, falling back to the
// denormalized copy carried on the passage when the catalog has no entry.
func (a *Aggregator) chapterFor(p models.Passage) models.Chapter {
	if a.catalog != nil {
		if ch, ok := a.catalog.Get(p.ChapterID); ok {
			return ch
		}
	}
	return models.Chapter{
		ID:          p.ChapterID,
		Name:        p.ChapterName,
		OriginPlace: p.OriginPlace,
	}
}

// explain renders the templated relevance explanation from score bands.
func (a *Aggregator) explain(ch models.Chapter, theme string, score float64, verseCount int, themes []string) string {
	var relation string
	switch {
	case score > 0.8:
		relation = "is highly relevant to"
	case score > 0.6:
		relation = "has strong connections to"
	default:
		relation = "relates to"
	}

	noun := "passages"
	if verseCount == 1 {
		noun = "passage"
	}
	expl := fmt.Sprintf("Chapter %s %s %q with %d matching %s", ch.Name, relation, theme, verseCount, noun)

	switch {
	case len(themes) >= 2:
		expl += fmt.Sprintf(", touching on %s and %s", themes[0], themes[1])
	case len(themes) == 1:
		expl += fmt.Sprintf(", touching on %s", themes[0])
	}
	return expl + "."
}

func coverageText(verseCount, passageCount int, density float64) string {
	if passageCount <= 0 {
		return ""
	}
	switch {
	case density > 0.1:
		return fmt.Sprintf("%d of %d passages matched (substantial coverage)", verseCount, passageCount)
	case density > 0.05:
		return fmt.Sprintf("%d of %d passages matched (moderate coverage)", verseCount, passageCount)
	default:
		return fmt.Sprintf("%d of %d passages matched", verseCount, passageCount)
	}
}

// keywordChapterMatch is the degraded path when embedding or the index is
// unavailable: a chapter matches when the theme appears in its name, summary,
// or origin place. Matches carry a fixed default score.
func (a *Aggregator) keywordChapterMatch(theme string, maxResults int) []models.ScoredChapter {
	if a.catalog == nil {
		return nil
	}
	needle := strings.ToLower(theme)
	var out []models.ScoredChapter
	for _, ch := range a.catalog.All() {
		var matched []string
		if strings.Contains(strings.ToLower(ch.Name), needle) {
			matched = append(matched, "name")
		}
		if strings.Contains(strings.ToLower(ch.Summary), needle) {
			matched = append(matched, "summary")
		}
		if strings.Contains(strings.ToLower(ch.OriginPlace), needle) {
			matched = append(matched, "origin place")
		}
		if len(matched) == 0 {
			continue
		}
		out = append(out, models.ScoredChapter{
			Chapter: ch,
			Score:   a.cfg.FallbackScore,
			Explanation: fmt.Sprintf("Chapter %s mentions %q in its %s.",
				ch.Name, theme, strings.Join(matched, " and ")),
		})
		if len(out) >= maxResults {
			break
		}
	}
	return out
}
