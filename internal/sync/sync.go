// Package sync preloads the profile cache for a list of usernames
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/manishdashsharma/gitview/internal/api"
	"github.com/manishdashsharma/gitview/internal/cache"
)

// Profiles is the cache being warmed
type Profiles interface {
	Get(ctx context.Context, username string) (*cache.Result, error)
}

// Summary counts the outcomes of a warm run
type Summary struct {
	Fetched  int
	Cached   int
	NotFound int
	Failed   int
	Errors   []error
}

// Warmer fetches profiles into the cache with a pool of workers
type Warmer struct {
	profiles Profiles
	logger   *log.Logger
	// Default number of workers for parallel processing
	workers int
}

// New creates a new warmer
func New(profiles Profiles, logger *log.Logger) *Warmer {
	return &Warmer{
		profiles: profiles,
		logger:   logger.With("component", "warm"),
		workers:  4,
	}
}

// SetWorkers sets the number of parallel workers
func (w *Warmer) SetWorkers(workers int) {
	if workers < 1 {
		workers = 1
	}
	if workers > 10 {
		workers = 10 // Cap at 10 to stay well inside the unauthenticated API quota
	}
	w.workers = workers
}

// Warm loads every username into the cache. Failures are collected in the
// summary; only a cancelled context aborts the run.
func (w *Warmer) Warm(ctx context.Context, usernames []string) (*Summary, error) {
	total := len(usernames)
	summary := &Summary{}
	if total == 0 {
		return summary, nil
	}

	w.logger.Info("warming cache", "profiles", total, "workers", w.workers)

	jobs := make(chan string)
	var wg sync.WaitGroup
	var mu sync.Mutex
	processed := 0
	lastProgressUpdate := time.Now()
	progressInterval := 5 * time.Second

	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for username := range jobs {
				res, err := w.profiles.Get(ctx, username)

				mu.Lock()
				switch {
				case err == nil && res.Cached:
					summary.Cached++
				case err == nil:
					summary.Fetched++
				case errors.Is(err, api.ErrUserNotFound):
					summary.NotFound++
				default:
					summary.Failed++
					summary.Errors = append(summary.Errors, fmt.Errorf("%s: %w", username, err))
				}

				processed++
				if processed == 1 || processed == total || time.Since(lastProgressUpdate) >= progressInterval {
					w.logger.Info("progress", "done", processed, "total", total,
						"percent", fmt.Sprintf("%.1f", float64(processed)/float64(total)*100.0))
					lastProgressUpdate = time.Now()
				}
				mu.Unlock()
			}
		}()
	}

	var err error
send:
	for _, username := range usernames {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break send
		case jobs <- username:
		}
	}
	close(jobs)
	wg.Wait()

	if len(summary.Errors) > 0 {
		w.logger.Warn("completed with errors", "count", len(summary.Errors))
		sampleSize := min(5, len(summary.Errors))
		for _, e := range summary.Errors[:sampleSize] {
			w.logger.Warn("sample error", "err", e)
		}
	}

	w.logger.Info("warm finished", "fetched", summary.Fetched, "cached", summary.Cached,
		"notFound", summary.NotFound, "failed", summary.Failed)
	return summary, err
}

// ParseUsernames splits a comma or whitespace separated list, dropping
// empty entries and duplicates while keeping the first-seen order
func ParseUsernames(list string) []string {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})

	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
