package models

import (
	"time"
)

// RawProfile represents a GitHub account as returned by the users endpoint
type RawProfile struct {
	ID              int64     `json:"id" bson:"id"`
	Login           string    `json:"login" bson:"login"`
	Name            string    `json:"name" bson:"name"`
	Bio             string    `json:"bio" bson:"bio"`
	AvatarURL       string    `json:"avatar_url" bson:"avatar_url"`
	Location        string    `json:"location" bson:"location"`
	Company         *string   `json:"company" bson:"company"`
	Blog            string    `json:"blog" bson:"blog"`
	HTMLURL         string    `json:"html_url" bson:"html_url"`
	TwitterUsername string    `json:"twitter_username,omitempty" bson:"twitter_username,omitempty"`
	PublicRepos     int       `json:"public_repos" bson:"public_repos"`
	PublicGists     int       `json:"public_gists" bson:"public_gists"`
	Followers       int       `json:"followers" bson:"followers"`
	Following       int       `json:"following" bson:"following"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
}

// RawRepository represents one repository owned by a GitHub account
type RawRepository struct {
	Name            string    `json:"name" bson:"name"`
	FullName        string    `json:"full_name" bson:"full_name"`
	Description     string    `json:"description" bson:"description"`
	StargazersCount int       `json:"stargazers_count" bson:"stargazers_count"`
	ForksCount      int       `json:"forks_count" bson:"forks_count"`
	WatchersCount   int       `json:"watchers_count" bson:"watchers_count"`
	Size            int       `json:"size" bson:"size"`
	Language        *string   `json:"language" bson:"language"`
	Fork            bool      `json:"fork" bson:"fork"`
	Private         bool      `json:"private" bson:"private"`
	Topics          []string  `json:"topics" bson:"topics"`
	HTMLURL         string    `json:"html_url" bson:"html_url"`
	UpdatedAt       time.Time `json:"updated_at" bson:"updated_at"`
}

// RawEvent represents a public activity event. CommitCount is the length of
// the payload's commits array and is only meaningful for PushEvents.
type RawEvent struct {
	ID          string    `json:"id" bson:"id"`
	Type        string    `json:"type" bson:"type"`
	RepoName    string    `json:"repo" bson:"repo"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	Public      bool      `json:"public" bson:"public"`
	CommitCount int       `json:"commit_count" bson:"commit_count"`
}

// PushEventType is the only event type that carries commits
const PushEventType = "PushEvent"

// PinnedItem represents a repository the user pinned on their profile
type PinnedItem struct {
	Name          string  `json:"name" bson:"name"`
	NameWithOwner string  `json:"nameWithOwner" bson:"name_with_owner"`
	Description   string  `json:"description" bson:"description"`
	URL           string  `json:"url" bson:"url"`
	Stars         int     `json:"stars" bson:"stars"`
	Language      *string `json:"language" bson:"language"`
}

// LanguageCount is one entry of the ranked language list
type LanguageCount struct {
	Language string `json:"language" bson:"language"`
	Count    int    `json:"count" bson:"count"`
}

// MonthlyCommits is one bucket of the 12 month commit series
type MonthlyCommits struct {
	Month   string `json:"month" bson:"month"`
	Commits int    `json:"commits" bson:"commits"`
}

// ActivityItem is a condensed view of a recent event
type ActivityItem struct {
	Type   string    `json:"type" bson:"type"`
	Repo   string    `json:"repo" bson:"repo"`
	Date   time.Time `json:"date" bson:"date"`
	Public bool      `json:"public" bson:"public"`
}

// AnalyticsRecord is the cached, enriched view of a single GitHub account.
// The embedded profile fields are flattened into the same JSON object.
type AnalyticsRecord struct {
	RawProfile `bson:",inline"`

	TotalStars      int `json:"totalStars" bson:"totalStars"`
	TotalForks      int `json:"totalForks" bson:"totalForks"`
	TotalWatchers   int `json:"totalWatchers" bson:"totalWatchers"`
	TotalSize       int `json:"totalSize" bson:"totalSize"`
	TotalRepos      int `json:"totalRepos" bson:"totalRepos"`
	PublicRepoCount int `json:"publicRepos" bson:"publicRepos"`
	ForkedRepos     int `json:"forkedRepos" bson:"forkedRepos"`

	Repositories       []RawRepository `json:"repositories" bson:"repositories"`
	MostStarredRepo    *RawRepository  `json:"mostStarredRepo,omitempty" bson:"mostStarredRepo,omitempty"`
	PinnedRepositories []RawRepository `json:"pinnedRepositories" bson:"pinnedRepositories"`
	PinnedItems        []PinnedItem    `json:"pinnedItems,omitempty" bson:"pinnedItems,omitempty"`

	Languages    []string        `json:"languages" bson:"languages"`
	TopLanguages []LanguageCount `json:"topLanguages" bson:"topLanguages"`

	ThisYearCommits int              `json:"thisYearCommits" bson:"thisYearCommits"`
	CurrentYear     int              `json:"currentYear" bson:"currentYear"`
	LastYearCommits int              `json:"lastYearCommits" bson:"lastYearCommits"`
	CommitGrowth    float64          `json:"commitGrowth" bson:"commitGrowth"`
	MonthlyActivity []MonthlyCommits `json:"monthlyActivity" bson:"monthlyActivity"`
	MostActiveMonth MonthlyCommits   `json:"mostActiveMonth" bson:"mostActiveMonth"`
	RecentActivity  []ActivityItem   `json:"recentActivity" bson:"recentActivity"`

	HasOrganizations    bool `json:"hasOrganizations" bson:"hasOrganizations"`
	AverageStarsPerRepo int  `json:"averageStarsPerRepo" bson:"averageStarsPerRepo"`

	CachedAt time.Time `json:"cachedAt" bson:"cachedAt"`
}

// DayCounter is one persisted (scope, date) counter row. Username is empty
// for the global visitor counter.
type DayCounter struct {
	Username  string    `db:"username" bson:"username,omitempty"`
	Date      string    `db:"date" bson:"date"`
	Count     int64     `db:"count" bson:"count"`
	CreatedAt time.Time `db:"created_at" bson:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" bson:"updatedAt"`
}

// DayCount is one entry of a 0-filled daily series
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// DateLayout is the YYYY-MM-DD key used by day counters
const DateLayout = "2006-01-02"
