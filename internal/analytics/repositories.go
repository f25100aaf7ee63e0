package analytics

import (
	"sort"

	"github.com/manishdashsharma/gitview/internal/models"
)

const (
	// MaxPinnedRepositories caps the star-ranked showcase
	MaxPinnedRepositories = 6
	// MaxRecentRepositories caps the recently updated list
	MaxRecentRepositories = 10
)

// byStarsDesc returns a copy of repos stably sorted by descending stargazer count
func byStarsDesc(repos []models.RawRepository) []models.RawRepository {
	sorted := make([]models.RawRepository, len(repos))
	copy(sorted, repos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StargazersCount > sorted[j].StargazersCount
	})
	return sorted
}

// MostStarred returns the repository with the most stars, the earliest one on ties.
// It returns nil when there are no repositories.
func MostStarred(repos []models.RawRepository) *models.RawRepository {
	if len(repos) == 0 {
		return nil
	}
	top := byStarsDesc(repos)[0]
	return &top
}

// Pinned returns starred, non-fork repositories by descending stars
func Pinned(repos []models.RawRepository) []models.RawRepository {
	var candidates []models.RawRepository
	for _, r := range repos {
		if !r.Fork && r.StargazersCount > 0 {
			candidates = append(candidates, r)
		}
	}

	pinned := byStarsDesc(candidates)
	if len(pinned) > MaxPinnedRepositories {
		pinned = pinned[:MaxPinnedRepositories]
	}
	return pinned
}

// RecentTop10 returns the first ten repositories. The upstream already sorts by update time.
func RecentTop10(repos []models.RawRepository) []models.RawRepository {
	n := len(repos)
	if n > MaxRecentRepositories {
		n = MaxRecentRepositories
	}
	recent := make([]models.RawRepository, n)
	copy(recent, repos[:n])
	return recent
}

// RepositoryTotals holds the scalar reductions over a repository set
type RepositoryTotals struct {
	Stars    int
	Forks    int
	Watchers int
	Size     int
	Repos    int
	Public   int
	Forked   int
}

// ComputeTotals sums counters over all repositories
func ComputeTotals(repos []models.RawRepository) RepositoryTotals {
	totals := RepositoryTotals{Repos: len(repos)}
	for _, r := range repos {
		totals.Stars += r.StargazersCount
		totals.Forks += r.ForksCount
		totals.Watchers += r.WatchersCount
		totals.Size += r.Size
		if !r.Private {
			totals.Public++
		}
		if r.Fork {
			totals.Forked++
		}
	}
	return totals
}

// AverageStars is the rounded mean stars per repository, 0 without repositories
func (t RepositoryTotals) AverageStars() int {
	if t.Repos == 0 {
		return 0
	}
	return int(float64(t.Stars)/float64(t.Repos) + 0.5)
}
