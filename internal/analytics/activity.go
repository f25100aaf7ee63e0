package analytics

import (
	"math"
	"time"

	"github.com/manishdashsharma/gitview/internal/models"
)

// MonthsOfActivity is the length of the monthly commit series
const MonthsOfActivity = 12

// CommitStats holds the year-over-year commit totals
type CommitStats struct {
	ThisYear int
	LastYear int
	// Growth is the percentage change from last year, rounded to one decimal.
	// It is 0 whenever LastYear is 0.
	Growth float64
}

// ComputeCommitStats sums push commits for the calendar year of now and the one before it
func ComputeCommitStats(events []models.RawEvent, now time.Time) CommitStats {
	year := now.UTC().Year()

	var stats CommitStats
	for _, e := range events {
		if e.Type != models.PushEventType {
			continue
		}
		switch e.CreatedAt.UTC().Year() {
		case year:
			stats.ThisYear += e.CommitCount
		case year - 1:
			stats.LastYear += e.CommitCount
		}
	}

	if stats.LastYear > 0 {
		growth := float64(stats.ThisYear-stats.LastYear) / float64(stats.LastYear) * 100
		stats.Growth = round1(growth)
	}
	return stats
}

// ComputeMonthlyActivity buckets push commits into the last 12 calendar months, oldest first
func ComputeMonthlyActivity(events []models.RawEvent, now time.Time) []models.MonthlyCommits {
	now = now.UTC()
	series := make([]models.MonthlyCommits, MonthsOfActivity)

	for i := 0; i < MonthsOfActivity; i++ {
		// Day 1 so that subtracting months never overflows into the next month.
		month := time.Date(now.Year(), now.Month()-time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		key := month.Format("2006-01")

		commits := 0
		for _, e := range events {
			if e.Type == models.PushEventType && e.CreatedAt.UTC().Format("2006-01") == key {
				commits += e.CommitCount
			}
		}

		series[MonthsOfActivity-1-i] = models.MonthlyCommits{
			Month:   month.Format("Jan 2006"),
			Commits: commits,
		}
	}
	return series
}

// PickMostActiveMonth returns the first bucket with the highest commit count
func PickMostActiveMonth(series []models.MonthlyCommits) models.MonthlyCommits {
	if len(series) == 0 {
		return models.MonthlyCommits{}
	}
	best := series[0]
	for _, m := range series[1:] {
		if m.Commits > best.Commits {
			best = m
		}
	}
	return best
}

// RecentActivity condenses the first n events
func RecentActivity(events []models.RawEvent, n int) []models.ActivityItem {
	if len(events) < n {
		n = len(events)
	}
	items := make([]models.ActivityItem, 0, n)
	for _, e := range events[:n] {
		items = append(items, models.ActivityItem{
			Type:   e.Type,
			Repo:   e.RepoName,
			Date:   e.CreatedAt,
			Public: e.Public,
		})
	}
	return items
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
