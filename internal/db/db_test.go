package db

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/manishdashsharma/gitview/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(DriverSQLite, filepath.Join(t.TempDir(), "gitview.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Initialize(context.Background()))
	return db
}

func record(login string, stars int, at time.Time) *models.AnalyticsRecord {
	return &models.AnalyticsRecord{
		RawProfile: models.RawProfile{Login: login},
		TotalStars: stars,
		CachedAt:   at,
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Initialize(context.Background()))
}

func TestGetProfileMiss(t *testing.T) {
	db := openTestDB(t)

	rec, err := db.GetProfile(context.Background(), "octocat")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSaveProfileFirstWriterWins(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	stored, err := db.SaveProfile(ctx, "octocat", record("octocat", 10, at), time.Time{})
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = db.SaveProfile(ctx, "octocat", record("octocat", 99, at.Add(time.Hour)), time.Time{})
	require.NoError(t, err)
	assert.False(t, stored)

	rec, err := db.GetProfile(ctx, "octocat")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 10, rec.TotalStars)
	assert.True(t, at.Equal(rec.CachedAt))
}

func TestSaveProfileReplacesStaleRow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := db.SaveProfile(ctx, "octocat", record("octocat", 10, at), time.Time{})
	require.NoError(t, err)

	// A fresh row survives a refresh attempt.
	stored, err := db.SaveProfile(ctx, "octocat", record("octocat", 20, at.Add(time.Minute)), at.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, stored)

	stored, err = db.SaveProfile(ctx, "octocat", record("octocat", 30, at.Add(2*time.Hour)), at.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, stored)

	rec, err := db.GetProfile(ctx, "octocat")
	require.NoError(t, err)
	assert.Equal(t, 30, rec.TotalStars)
}

func TestProfileKeysAreCaseSensitive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.SaveProfile(ctx, "Octocat", record("octocat", 1, time.Now()), time.Time{})
	require.NoError(t, err)

	rec, err := db.GetProfile(ctx, "octocat")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestIncrementCounterUpserts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, username := range []string{"", "octocat"} {
		n, err := db.IncrementCounter(ctx, username, "2024-03-01", now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = db.IncrementCounter(ctx, username, "2024-03-01", now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		rows, err := db.CounterRange(ctx, username, "2024-01-01", "2024-12-31")
		require.NoError(t, err)
		require.Len(t, rows, 1, "two increments on one day must share a row")
		assert.Equal(t, int64(2), rows[0].Count)
		assert.Equal(t, username, rows[0].Username)
	}
}

func TestIncrementCounterConcurrent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.IncrementCounter(ctx, "octocat", "2024-03-01", time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	total, err := db.CounterTotal(ctx, "octocat")
	require.NoError(t, err)
	assert.Equal(t, int64(20), total)
}

func TestCounterRangeAndTotal(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()

	for _, date := range []string{"2024-02-28", "2024-03-01", "2024-03-01", "2024-03-05"} {
		_, err := db.IncrementCounter(ctx, "", date, now)
		require.NoError(t, err)
	}
	_, err := db.IncrementCounter(ctx, "octocat", "2024-03-01", now)
	require.NoError(t, err)

	rows, err := db.CounterRange(ctx, "", "2024-03-01", "2024-03-05")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-03-01", rows[0].Date)
	assert.Equal(t, int64(2), rows[0].Count)
	assert.Equal(t, "2024-03-05", rows[1].Date)

	total, err := db.CounterTotal(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	total, err = db.CounterTotal(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := WithRetry(context.Background(), 1, log.New(io.Discard), func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRecovers(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, log.New(io.Discard), func() error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestOfflineFailsEverything(t *testing.T) {
	cause := errors.New("connection refused")
	o := Offline{Err: cause}
	ctx := context.Background()

	_, err := o.GetProfile(ctx, "octocat")
	assert.ErrorIs(t, err, cause)
	_, err = o.IncrementCounter(ctx, "", "2024-03-01", time.Now())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, o.Ping(ctx), cause)
}
