// Package analytics derives the profile analytics record from raw upstream data.
// Everything here is a pure function of its inputs; the wall clock is always
// passed in explicitly.
package analytics

import (
	"time"

	"github.com/manishdashsharma/gitview/internal/models"
)

// MaxRecentActivity caps the condensed event list
const MaxRecentActivity = 30

// Input is everything the enricher needs from the upstream
type Input struct {
	Profile      models.RawProfile
	Repositories []models.RawRepository
	Events       []models.RawEvent
	PinnedItems  []models.PinnedItem
}

// Enrich composes the aggregators into one analytics record stamped with now
func Enrich(in Input, now time.Time) *models.AnalyticsRecord {
	repos := in.Repositories
	if repos == nil {
		repos = []models.RawRepository{}
	}

	totals := ComputeTotals(repos)
	langs := ComputeLanguageStats(repos)
	commits := ComputeCommitStats(in.Events, now)
	monthly := ComputeMonthlyActivity(in.Events, now)

	return &models.AnalyticsRecord{
		RawProfile: in.Profile,

		TotalStars:      totals.Stars,
		TotalForks:      totals.Forks,
		TotalWatchers:   totals.Watchers,
		TotalSize:       totals.Size,
		TotalRepos:      totals.Repos,
		PublicRepoCount: totals.Public,
		ForkedRepos:     totals.Forked,

		Repositories:       RecentTop10(repos),
		MostStarredRepo:    MostStarred(repos),
		PinnedRepositories: Pinned(repos),
		PinnedItems:        in.PinnedItems,

		Languages:    langs.Languages(),
		TopLanguages: langs.Top(MaxTopLanguages),

		ThisYearCommits: commits.ThisYear,
		CurrentYear:     now.UTC().Year(),
		LastYearCommits: commits.LastYear,
		CommitGrowth:    commits.Growth,
		MonthlyActivity: monthly,
		MostActiveMonth: PickMostActiveMonth(monthly),
		RecentActivity:  RecentActivity(in.Events, MaxRecentActivity),

		HasOrganizations:    in.Profile.Company != nil,
		AverageStarsPerRepo: totals.AverageStars(),

		CachedAt: now,
	}
}
