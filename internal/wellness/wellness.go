package wellness

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/ruhapp/ruh/internal/retrieval"
	"github.com/ruhapp/ruh/models"
)

// Categories is the static wellness taxonomy. It is reference data, not
// configuration: detection quality depends on these exact keyword lists.
var Categories = []models.WellnessCategory{
	{
		ID:          "anxiety_stress",
		Name:        "Anxiety & Stress",
		Description: "Finding calm and reassurance in times of worry",
		ThemePhrases: []string{
			"peace and tranquility of the heart",
			"trust in divine protection",
			"relief after hardship",
		},
		Keywords: []string{"anxious", "anxiety", "stress", "stressed", "worry", "worried", "overwhelmed", "nervous", "panic", "fear"},
	},
	{
		ID:          "sadness_grief",
		Name:        "Sadness & Grief",
		Description: "Comfort and hope through loss and sorrow",
		ThemePhrases: []string{
			"comfort for the grieving heart",
			"hope after despair",
			"patience through loss",
		},
		Keywords: []string{"sad", "sadness", "grief", "grieving", "loss", "mourning", "despair", "hopeless", "crying", "depressed"},
	},
	{
		ID:          "anger_resentment",
		Name:        "Anger & Resentment",
		Description: "Restraining anger and releasing grudges",
		ThemePhrases: []string{
			"restraining anger and pardoning people",
			"responding to evil with good",
			"forgiveness over revenge",
		},
		Keywords: []string{"angry", "anger", "furious", "rage", "resentment", "grudge", "irritated", "frustrated", "hate"},
	},
	{
		ID:          "gratitude_contentment",
		Name:        "Gratitude & Contentment",
		Description: "Recognizing blessings and cultivating thankfulness",
		ThemePhrases: []string{
			"gratitude for countless blessings",
			"contentment with divine decree",
			"thankfulness in abundance and scarcity",
		},
		Keywords: []string{"grateful", "gratitude", "thankful", "blessed", "blessing", "content", "contentment", "appreciate"},
	},
	{
		ID:          "patience_perseverance",
		Name:        "Patience & Perseverance",
		Description: "Steadfastness through trials and difficulty",
		ThemePhrases: []string{
			"patience through trials and hardship",
			"perseverance on the straight path",
			"steadfastness in adversity",
		},
		Keywords: []string{"patience", "patient", "endure", "struggle", "hardship", "difficulty", "trial", "persevere", "exhausted", "tired"},
	},
	{
		ID:          "loneliness_connection",
		Name:        "Loneliness & Connection",
		Description: "Remembering one is never truly alone",
		ThemePhrases: []string{
			"nearness of the divine to the caller",
			"companionship of the righteous",
			"remembrance that soothes the heart",
		},
		Keywords: []string{"lonely", "loneliness", "alone", "isolated", "abandoned", "disconnected", "unloved"},
	},
	{
		ID:          "guidance_purpose",
		Name:        "Guidance & Purpose",
		Description: "Seeking direction and meaning",
		ThemePhrases: []string{
			"guidance to the straight path",
			"purpose of creation and life",
			"light after darkness",
		},
		Keywords: []string{"lost", "confused", "direction", "purpose", "meaning", "guidance", "decision", "uncertain", "doubt"},
	},
}

// Matcher scores free text against the taxonomy and pulls supporting
// passages per category through the shared retriever.
type Matcher struct {
	retriever *retrieval.Retriever
	logger    *log.Logger
}

func NewMatcher(retriever *retrieval.Retriever, logger *log.Logger) *Matcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[WELLNESS] ", log.LstdFlags)
	}
	return &Matcher{retriever: retriever, logger: logger}
}

// DetectCategories ranks taxonomy categories against the text: +2 per
// keyword hit, +1 per theme-phrase word longer than three characters.
// Zero-scoring categories are dropped and at most three are returned.
func (m *Matcher) DetectCategories(text string) []models.CategoryMatch {
	lower := strings.ToLower(text)
	var matches []models.CategoryMatch
	for _, cat := range Categories {
		score := 0
		for _, kw := range cat.Keywords {
			if strings.Contains(lower, kw) {
				score += 2
			}
		}
		for _, phrase := range cat.ThemePhrases {
			for _, word := range strings.Fields(strings.ToLower(phrase)) {
				if len(word) > 3 && strings.Contains(lower, word) {
					score++
				}
			}
		}
		if score > 0 {
			matches = append(matches, models.CategoryMatch{Category: cat, RelevanceScore: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].RelevanceScore > matches[j].RelevanceScore })
	if len(matches) > 3 {
		matches = matches[:3]
	}
	return matches
}

// Category looks up one taxonomy entry by id.
func Category(id string) (models.WellnessCategory, bool) {
	for _, cat := range Categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return models.WellnessCategory{}, false
}

// CategoryPassages retrieves supporting passages for a category by running
// the retriever once per theme phrase (top three phrases), merging and
// deduplicating by passage id.
func (m *Matcher) CategoryPassages(ctx context.Context, categoryID string, maxResults int) ([]models.ScoredPassage, error) {
	cat, ok := Category(categoryID)
	if !ok {
		return nil, fmt.Errorf("unknown wellness category %q", categoryID)
	}
	phrases := cat.ThemePhrases
	if len(phrases) > 3 {
		phrases = phrases[:3]
	}

	seen := map[string]bool{}
	var merged []models.ScoredPassage
	for _, phrase := range phrases {
		for _, hit := range m.retriever.SearchByTheme(ctx, phrase, maxResults, 0) {
			if seen[hit.Passage.ID] {
				continue
			}
			seen[hit.Passage.ID] = true
			merged = append(merged, hit)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Similarity > merged[j].Similarity })
	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}
	return merged, nil
}
