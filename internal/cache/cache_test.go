package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/manishdashsharma/gitview/internal/api"
	"github.com/manishdashsharma/gitview/internal/db"
	"github.com/manishdashsharma/gitview/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeUpstream struct {
	profileErr error
	calls      atomic.Int32
	// gate, when set, blocks FetchProfile until closed
	gate chan struct{}
}

func (f *fakeUpstream) FetchProfile(ctx context.Context, username string) (*models.RawProfile, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return &models.RawProfile{
		ID:          1,
		Login:       username,
		PublicRepos: 2,
		CreatedAt:   time.Date(2011, 1, 25, 18, 44, 36, 0, time.UTC),
	}, nil
}

func (f *fakeUpstream) FetchRepositories(ctx context.Context, username string) []models.RawRepository {
	js, py := "JavaScript", "Python"
	return []models.RawRepository{
		{Name: "repo1", StargazersCount: 10, Language: &js, Topics: []string{}},
		{Name: "repo2", StargazersCount: 5, Fork: true, Language: &py, Topics: []string{}},
	}
}

func (f *fakeUpstream) FetchEvents(ctx context.Context, username string) []models.RawEvent {
	return []models.RawEvent{{
		ID:          "1",
		Type:        models.PushEventType,
		RepoName:    username + "/repo1",
		CreatedAt:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Public:      true,
		CommitCount: 2,
	}}
}

func (f *fakeUpstream) FetchPinnedItems(ctx context.Context, username string) []models.PinnedItem {
	return nil
}

// memStore mirrors the conditional upsert of the real stores
type memStore struct {
	mu      sync.Mutex
	records map[string]models.AnalyticsRecord
	getErr  error
	saveErr error
	saves   int
}

func newMemStore() *memStore {
	return &memStore{records: map[string]models.AnalyticsRecord{}}
}

func (m *memStore) GetProfile(ctx context.Context, username string) (*models.AnalyticsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[username]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memStore) SaveProfile(ctx context.Context, username string, rec *models.AnalyticsRecord, staleBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return false, m.saveErr
	}
	if old, ok := m.records[username]; ok && old.CachedAt.After(staleBefore) {
		return false, nil
	}
	m.records[username] = *rec
	m.saves++
	return true, nil
}

func discard() *log.Logger {
	return log.New(io.Discard)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGetRequiresUsername(t *testing.T) {
	up := &fakeUpstream{}
	c := New(up, newMemStore(), discard(), Options{Now: fixedClock(testNow)})

	for _, name := range []string{"", "   "} {
		_, err := c.Get(context.Background(), name)
		assert.ErrorIs(t, err, ErrUsernameRequired)
	}
	assert.Equal(t, int32(0), up.calls.Load())
}

func TestGetMissThenHit(t *testing.T) {
	up := &fakeUpstream{}
	store := newMemStore()
	c := New(up, store, discard(), Options{Now: fixedClock(testNow)})
	ctx := context.Background()

	first, err := c.Get(ctx, "octocat")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 15, first.Record.TotalStars)
	assert.Equal(t, testNow, first.Record.CachedAt)

	second, err := c.Get(ctx, "octocat")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), up.calls.Load())

	a, err := json.Marshal(first.Record)
	require.NoError(t, err)
	b, err := json.Marshal(second.Record)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestGetMissThenHitWithSQLite(t *testing.T) {
	store, err := db.New(db.DriverSQLite, filepath.Join(t.TempDir(), "gitview.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Initialize(context.Background()))

	c := New(&fakeUpstream{}, store, discard(), Options{Now: fixedClock(testNow)})
	ctx := context.Background()

	first, err := c.Get(ctx, "octocat")
	require.NoError(t, err)
	second, err := c.Get(ctx, "octocat")
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.True(t, first.Record.CachedAt.Equal(second.Record.CachedAt))

	a, err := json.Marshal(first.Record)
	require.NoError(t, err)
	b, err := json.Marshal(second.Record)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestGetNotFoundCreatesNoRecord(t *testing.T) {
	up := &fakeUpstream{profileErr: api.ErrUserNotFound}
	store := newMemStore()
	c := New(up, store, discard(), Options{Now: fixedClock(testNow)})

	_, err := c.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, api.ErrUserNotFound)
	assert.Empty(t, store.records)
}

func TestGetUpstreamErrorPropagates(t *testing.T) {
	upErr := &api.UpstreamError{Username: "octocat", Err: errors.New("bad gateway")}
	store := newMemStore()
	c := New(&fakeUpstream{profileErr: upErr}, store, discard(), Options{Now: fixedClock(testNow)})

	_, err := c.Get(context.Background(), "octocat")
	var target *api.UpstreamError
	assert.ErrorAs(t, err, &target)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
	assert.Empty(t, store.records)
}

func TestGetStoreReadFailure(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("connection refused")
	up := &fakeUpstream{}
	c := New(up, store, discard(), Options{Now: fixedClock(testNow)})

	_, err := c.Get(context.Background(), "octocat")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, int32(0), up.calls.Load())
}

func TestGetStoreWriteFailure(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	c := New(&fakeUpstream{}, store, discard(), Options{Now: fixedClock(testNow)})

	_, err := c.Get(context.Background(), "octocat")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestGetWithOfflineStore(t *testing.T) {
	c := New(&fakeUpstream{}, db.Offline{Err: errors.New("no route to host")}, discard(), Options{Now: fixedClock(testNow)})

	_, err := c.Get(context.Background(), "octocat")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestConcurrentMissesStoreOneRecord(t *testing.T) {
	up := &fakeUpstream{gate: make(chan struct{})}
	store := newMemStore()
	c := New(up, store, discard(), Options{Now: fixedClock(testNow)})

	const n = 5
	var wg sync.WaitGroup
	results := make([]*Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.Get(context.Background(), "octocat")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	require.Eventually(t, func() bool { return up.calls.Load() == n }, time.Second, time.Millisecond)
	close(up.gate)
	wg.Wait()

	assert.Equal(t, 1, store.saves)
	for _, res := range results {
		require.NotNil(t, res)
		assert.False(t, res.Cached)
		assert.Equal(t, 15, res.Record.TotalStars)
	}
}

func TestTTLExpiry(t *testing.T) {
	now := testNow
	up := &fakeUpstream{}
	store := newMemStore()
	c := New(up, store, discard(), Options{
		TTL: time.Hour,
		Now: func() time.Time { return now },
	})
	ctx := context.Background()

	_, err := c.Get(ctx, "octocat")
	require.NoError(t, err)

	now = testNow.Add(30 * time.Minute)
	res, err := c.Get(ctx, "octocat")
	require.NoError(t, err)
	assert.True(t, res.Cached)

	now = testNow.Add(2 * time.Hour)
	res, err = c.Get(ctx, "octocat")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, now, res.Record.CachedAt)
	assert.Equal(t, 2, store.saves)
	assert.Equal(t, int32(2), up.calls.Load())
}

func TestInfiniteTTLNeverRecomputes(t *testing.T) {
	now := testNow
	up := &fakeUpstream{}
	c := New(up, newMemStore(), discard(), Options{Now: func() time.Time { return now }})
	ctx := context.Background()

	_, err := c.Get(ctx, "octocat")
	require.NoError(t, err)

	now = testNow.AddDate(5, 0, 0)
	res, err := c.Get(ctx, "octocat")
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, testNow, res.Record.CachedAt)
}

func TestUsernameIsCaseSensitive(t *testing.T) {
	up := &fakeUpstream{}
	c := New(up, newMemStore(), discard(), Options{Now: fixedClock(testNow)})
	ctx := context.Background()

	_, err := c.Get(ctx, "octocat")
	require.NoError(t, err)
	res, err := c.Get(ctx, "Octocat")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), up.calls.Load())
}
