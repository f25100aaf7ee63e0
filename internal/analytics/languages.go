package analytics

import (
	"sort"

	"github.com/manishdashsharma/gitview/internal/models"
)

// MaxTopLanguages caps the ranked language list
const MaxTopLanguages = 5

// LanguageStats counts repositories per primary language. Order keeps the
// languages in first-seen order, which is also the tie-break for ranking.
type LanguageStats struct {
	Counts map[string]int
	Order  []string
}

// ComputeLanguageStats counts repositories per language, skipping repositories without one
func ComputeLanguageStats(repos []models.RawRepository) LanguageStats {
	stats := LanguageStats{Counts: make(map[string]int)}
	for _, r := range repos {
		if r.Language == nil || *r.Language == "" {
			continue
		}
		lang := *r.Language
		if _, seen := stats.Counts[lang]; !seen {
			stats.Order = append(stats.Order, lang)
		}
		stats.Counts[lang]++
	}
	return stats
}

// Languages returns the distinct languages
func (s LanguageStats) Languages() []string {
	langs := make([]string, len(s.Order))
	copy(langs, s.Order)
	return langs
}

// Top returns at most n languages by descending repository count
func (s LanguageStats) Top(n int) []models.LanguageCount {
	ranked := make([]models.LanguageCount, 0, len(s.Order))
	for _, lang := range s.Order {
		ranked = append(ranked, models.LanguageCount{Language: lang, Count: s.Counts[lang]})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
