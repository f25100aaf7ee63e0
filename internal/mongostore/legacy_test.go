package mongostore

import (
	"testing"
	"time"

	"github.com/manishdashsharma/gitview/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// legacyUser is shaped like a users document written by the web app
func legacyUser(commitGrowth any) bson.M {
	return bson.M{
		"username": "octocat",
		"githubData": bson.M{
			"id":               int32(583231),
			"login":            "octocat",
			"name":             "The Octocat",
			"bio":              nil,
			"company":          "@github",
			"twitter_username": nil,
			"public_repos":     int32(8),
			"followers":        int32(9000),
			"created_at":       "2011-01-25T18:44:36Z",
			"node_id":          "MDQ6VXNlcjU4MzIzMQ==",
			"totalStars":       int32(15),
			"totalRepos":       int32(2),
			"languages":        bson.A{"JavaScript", "Python"},
			"topLanguages": bson.A{
				bson.M{"language": "JavaScript", "count": int32(1)},
				bson.M{"language": "Python", "count": int32(1)},
			},
			"repositories": bson.A{bson.M{
				"name":             "repo1",
				"stargazers_count": int32(10),
				"language":         "JavaScript",
				"description":      nil,
				"topics":           bson.A{},
				"updated_at":       "2024-05-01T10:00:00Z",
				"owner":            bson.M{"login": "octocat"},
			}},
			"thisYearCommits": int32(3),
			"currentYear":     int32(2024),
			"lastYearCommits": int32(2),
			"commitGrowth":    commitGrowth,
			"monthlyActivity": bson.A{bson.M{"month": "Mar 2024", "commits": int32(3)}},
			"mostActiveMonth": bson.M{"month": "Mar 2024", "commits": int32(3)},
			"recentActivity": bson.A{bson.M{
				"type":   "PushEvent",
				"repo":   "octocat/repo1",
				"date":   "2024-03-01T00:00:00Z",
				"public": true,
			}},
			"hasOrganizations":    true,
			"averageStarsPerRepo": int32(8),
		},
		"createdAt": time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		"updatedAt": time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDecodeLegacyUserDoc(t *testing.T) {
	raw, err := bson.Marshal(legacyUser("50.0"))
	require.NoError(t, err)

	doc, err := decodeUserDoc(raw)
	require.NoError(t, err)

	rec := doc.GithubData
	assert.Equal(t, "octocat", rec.Login)
	assert.Equal(t, int64(583231), rec.ID)
	assert.Equal(t, 50.0, rec.CommitGrowth)
	assert.Equal(t, 15, rec.TotalStars)
	assert.Equal(t, time.Date(2011, 1, 25, 18, 44, 36, 0, time.UTC), rec.CreatedAt)
	require.Len(t, rec.Repositories, 1)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), rec.Repositories[0].UpdatedAt)
	require.Len(t, rec.RecentActivity, 1)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), rec.RecentActivity[0].Date)
	assert.Equal(t, []string{"JavaScript", "Python"}, rec.Languages)

	// cachedAt comes from the document when the record has none
	assert.True(t, rec.CachedAt.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)))
}

func TestDecodeLegacyCommitGrowthTypes(t *testing.T) {
	for _, tc := range []struct {
		value any
		want  float64
	}{
		{"-12.5", -12.5},
		{int32(0), 0},
		{int64(7), 7},
		{33.3, 33.3},
		{nil, 0},
	} {
		raw, err := bson.Marshal(legacyUser(tc.value))
		require.NoError(t, err)

		doc, err := decodeUserDoc(raw)
		require.NoError(t, err, "%v", tc.value)
		assert.Equal(t, tc.want, doc.GithubData.CommitGrowth, "%v", tc.value)
	}
}

func TestDecodeLegacyRejectsGarbage(t *testing.T) {
	raw, err := bson.Marshal(legacyUser("n/a"))
	require.NoError(t, err)
	_, err = decodeUserDoc(raw)
	assert.Error(t, err)
}

func TestDecodeOwnUserDoc(t *testing.T) {
	cachedAt := time.Date(2024, 6, 2, 8, 30, 0, 0, time.UTC)
	raw, err := bson.Marshal(userDoc{
		Username: "octocat",
		GithubData: models.AnalyticsRecord{
			RawProfile:   models.RawProfile{Login: "octocat", CreatedAt: time.Date(2011, 1, 25, 0, 0, 0, 0, time.UTC)},
			CommitGrowth: 12.5,
			CachedAt:     cachedAt,
		},
		CreatedAt: cachedAt.Add(-time.Hour),
		UpdatedAt: cachedAt,
	})
	require.NoError(t, err)

	doc, err := decodeUserDoc(raw)
	require.NoError(t, err)
	assert.Equal(t, 12.5, doc.GithubData.CommitGrowth)
	assert.True(t, doc.GithubData.CachedAt.Equal(cachedAt))
	assert.True(t, doc.GithubData.CreatedAt.Equal(time.Date(2011, 1, 25, 0, 0, 0, 0, time.UTC)))
}
