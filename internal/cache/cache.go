// Package cache serves analytics records cache-first: a stored record is
// returned as is, a miss runs the full upstream aggregation and persists the
// result so that at most one record is ever stored per username.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/manishdashsharma/gitview/internal/analytics"
	"github.com/manishdashsharma/gitview/internal/models"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrUsernameRequired is returned for an empty username
	ErrUsernameRequired = errors.New("username is required")
	// ErrStoreUnavailable wraps any failure of the backing store
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Upstream is the data source for a cache miss. FetchProfile is the only
// call that can fail; the others degrade to empty results.
type Upstream interface {
	FetchProfile(ctx context.Context, username string) (*models.RawProfile, error)
	FetchRepositories(ctx context.Context, username string) []models.RawRepository
	FetchEvents(ctx context.Context, username string) []models.RawEvent
	FetchPinnedItems(ctx context.Context, username string) []models.PinnedItem
}

// Store persists records. SaveProfile must not overwrite a record cached
// after staleBefore and reports whether the write was kept.
type Store interface {
	GetProfile(ctx context.Context, username string) (*models.AnalyticsRecord, error)
	SaveProfile(ctx context.Context, username string, rec *models.AnalyticsRecord, staleBefore time.Time) (bool, error)
}

// Options configures a Cache
type Options struct {
	// TTL bounds the age of a served record. Zero keeps records forever.
	TTL time.Duration
	// Now defaults to time.Now
	Now func() time.Time
}

// Result is a record plus whether it came from the store
type Result struct {
	Record *models.AnalyticsRecord
	Cached bool
}

// Cache is the profile cache
type Cache struct {
	upstream Upstream
	store    Store
	logger   *log.Logger
	ttl      time.Duration
	now      func() time.Time
}

// New creates a Cache
func New(upstream Upstream, store Store, logger *log.Logger, opts Options) *Cache {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ttl := opts.TTL
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{
		upstream: upstream,
		store:    store,
		logger:   logger.With("component", "cache"),
		ttl:      ttl,
		now:      now,
	}
}

// Get returns the record for username, computing and storing it on a miss.
// Upstream errors from the profile lookup are returned unchanged.
func (c *Cache) Get(ctx context.Context, username string) (*Result, error) {
	if strings.TrimSpace(username) == "" {
		return nil, ErrUsernameRequired
	}

	rec, err := c.store.GetProfile(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read cached profile: %w", ErrStoreUnavailable, err)
	}

	now := c.now().UTC().Truncate(time.Millisecond)
	if rec != nil {
		if !c.stale(rec, now) {
			c.logger.Debug("cache hit", "username", username, "cachedAt", rec.CachedAt)
			return &Result{Record: rec, Cached: true}, nil
		}
		c.logger.Info("cached profile expired", "username", username, "cachedAt", rec.CachedAt)
	}

	rec, err = c.compute(ctx, username, now)
	if err != nil {
		return nil, err
	}

	stored, err := c.store.SaveProfile(ctx, username, rec, c.staleBefore(now))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to save profile: %w", ErrStoreUnavailable, err)
	}
	if !stored {
		c.logger.Warn("another request stored this profile first", "username", username)
	} else {
		c.logger.Info("cached profile", "username", username, "repos", rec.TotalRepos)
	}

	return &Result{Record: rec, Cached: false}, nil
}

func (c *Cache) stale(rec *models.AnalyticsRecord, now time.Time) bool {
	return c.ttl > 0 && now.Sub(rec.CachedAt) > c.ttl
}

// staleBefore is the newest cachedAt a replaced record may have
func (c *Cache) staleBefore(now time.Time) time.Time {
	if c.ttl == 0 {
		return time.Time{}
	}
	return now.Add(-c.ttl)
}

func (c *Cache) compute(ctx context.Context, username string, now time.Time) (*models.AnalyticsRecord, error) {
	start := time.Now()

	profile, err := c.upstream.FetchProfile(ctx, username)
	if err != nil {
		return nil, err
	}

	// The secondary fetches never fail, so the group only joins them.
	in := analytics.Input{Profile: *profile}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		in.Repositories = c.upstream.FetchRepositories(gctx, username)
		return nil
	})
	g.Go(func() error {
		in.Events = c.upstream.FetchEvents(gctx, username)
		return nil
	})
	g.Go(func() error {
		in.PinnedItems = c.upstream.FetchPinnedItems(gctx, username)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rec := analytics.Enrich(in, now)
	c.logger.Debug("aggregated profile", "username", username,
		"repos", len(in.Repositories), "events", len(in.Events), "took", time.Since(start))
	return rec, nil
}
