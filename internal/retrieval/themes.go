package retrieval

import (
	"math"
	"sort"
	"strings"
)

// stopWords are query tokens that carry no retrieval signal. Tokens of length
// <= 2 are dropped before this set is consulted.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "are": true, "was": true, "you": true, "your": true,
	"from": true, "have": true, "has": true, "had": true, "not": true,
	"but": true, "about": true, "what": true, "when": true, "how": true,
	"why": true, "who": true, "will": true, "can": true, "all": true,
}

// conceptPatterns maps each detectable concept to the pattern words scanned
// against passage text during theme extraction.
var conceptPatterns = map[string][]string{
	"prayer":      {"prayer", "pray", "salah", "worship", "supplication", "dua"},
	"guidance":    {"guidance", "guide", "path", "straight", "direction", "way"},
	"mercy":       {"mercy", "merciful", "compassion", "compassionate", "forgiving", "rahman", "rahim"},
	"patience":    {"patience", "patient", "persevere", "perseverance", "steadfast", "sabr"},
	"faith":       {"faith", "believe", "believer", "belief", "trust", "iman"},
	"justice":     {"justice", "just", "fair", "fairness", "equity", "judge"},
	"knowledge":   {"knowledge", "know", "learn", "wisdom", "wise", "understand"},
	"charity":     {"charity", "give", "giving", "poor", "needy", "zakat", "spend"},
	"forgiveness": {"forgiveness", "forgive", "pardon", "repent", "repentance"},
	"gratitude":   {"gratitude", "grateful", "thanks", "thankful", "blessing", "blessings"},
}

// themeIndicators maps concept names to words that, when present in the query
// itself, indicate the query is about that concept. Used for the contextual
// relevance bonus only.
var themeIndicators = map[string][]string{
	"prayer":    {"pray", "prayer", "worship", "devotion"},
	"guidance":  {"guidance", "direction", "lost", "path", "confused"},
	"mercy":     {"mercy", "compassion", "kindness", "forgiving"},
	"patience":  {"patience", "endure", "hardship", "difficulty", "struggle"},
	"faith":     {"faith", "belief", "trust", "doubt"},
	"justice":   {"justice", "fairness", "wrong", "oppression"},
	"knowledge": {"knowledge", "learning", "wisdom", "understanding"},
}

// extractKeywords lowercases the theme and keeps tokens longer than two
// characters that are not stop words.
func extractKeywords(theme string) []string {
	fields := strings.FieldsFunc(strings.ToLower(theme), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) > 2 && !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

// keywordBoost counts how many of the theme keywords appear literally in the
// passage text, correcting for embedding models under-weighting exact lexical
// matches. The boosted similarity is capped at 1.0 by the caller.
func keywordBoost(keywords []string, text string, boost float64) float64 {
	lower := strings.ToLower(text)
	var total float64
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			total += boost
		}
	}
	return total
}

// contextualRelevance scores how literally a passage speaks to the theme,
// in [0, 1]. A direct substring match of the whole theme wins outright;
// otherwise keyword density plus a bonus for concepts the theme itself
// indicates.
func contextualRelevance(theme string, keywords []string, text string) float64 {
	lowerTheme := strings.ToLower(strings.TrimSpace(theme))
	lowerText := strings.ToLower(text)
	if lowerTheme != "" && strings.Contains(lowerText, lowerTheme) {
		return 0.8
	}

	var score float64
	if len(keywords) > 0 {
		matched := 0
		for _, kw := range keywords {
			if strings.Contains(lowerText, kw) {
				matched++
			}
		}
		score = float64(matched) / float64(len(keywords)) * 0.6
	}

	var bonus float64
	for concept, indicators := range themeIndicators {
		inTheme := false
		for _, ind := range indicators {
			if strings.Contains(lowerTheme, ind) {
				inTheme = true
				break
			}
		}
		if !inTheme {
			continue
		}
		if strings.Contains(lowerText, concept) || anyContains(lowerText, indicators) {
			bonus += 0.1
		}
	}
	score += math.Min(bonus, 0.2)
	return math.Min(score, 1.0)
}

// extractThemes scans the passage text against the concept table and returns
// every concept with at least one pattern hit. If the literal theme string
// appears in the passage, the theme itself is included.
func extractThemes(text, theme string) []string {
	lowerText := strings.ToLower(text)
	var found []string
	for concept, patterns := range conceptPatterns {
		if anyContains(lowerText, patterns) {
			found = append(found, concept)
		}
	}
	sort.Strings(found)
	lowerTheme := strings.ToLower(strings.TrimSpace(theme))
	if lowerTheme != "" && strings.Contains(lowerText, lowerTheme) {
		found = append(found, lowerTheme)
	}
	return found
}

func anyContains(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
