// Package counters keeps day-bucketed visit and profile-view counts.
//
// Reads never fail: when the store is unreachable a synthetic series is
// served instead. Writes differ per counter. A failed visit increment is
// reported to the caller, while a failed profile-view increment is
// acknowledged with a count of one.
package counters

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/manishdashsharma/gitview/internal/models"
)

const (
	// DefaultDays is the series length when none or an invalid one is asked for
	DefaultDays = 30
	// MaxDays caps the series length
	MaxDays = 365
)

var (
	// ErrStoreUnavailable is returned when a visit cannot be recorded
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUsernameRequired is returned for a profile-view scope without a username
	ErrUsernameRequired = errors.New("username is required")
)

// Store is the persistence the counters need. An empty username addresses
// the global visit counter.
type Store interface {
	IncrementCounter(ctx context.Context, username, date string, at time.Time) (int64, error)
	CounterRange(ctx context.Context, username, from, to string) ([]models.DayCounter, error)
	CounterTotal(ctx context.Context, username string) (int64, error)
}

// Scope selects one of the counters
type Scope struct {
	username string
	views    bool
}

// Visits is the process-wide visit counter
func Visits() Scope {
	return Scope{}
}

// ProfileViews is the view counter of one profile
func ProfileViews(username string) Scope {
	return Scope{username: username, views: true}
}

// Username is empty for the visit counter
func (s Scope) Username() string {
	return s.username
}

func (s Scope) String() string {
	if !s.views {
		return "visits"
	}
	return "profile-views/" + s.username
}

// Tick is the outcome of an increment
type Tick struct {
	Date  string
	Count int64
	// Fallback is set when the store was unreachable and nothing was recorded
	Fallback bool
}

// Series is a 0-filled daily series ending today
type Series struct {
	Daily    []models.DayCount
	Total    int64
	Today    int64
	Fallback bool
}

// Options configures Counters
type Options struct {
	// Now defaults to time.Now
	Now func() time.Time
}

// Counters reads and increments the day counters
type Counters struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
}

// New creates Counters
func New(store Store, logger *log.Logger, opts Options) *Counters {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Counters{
		store:  store,
		logger: logger.With("component", "counters"),
		now:    now,
	}
}

func (c *Counters) today() time.Time {
	t := c.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (c *Counters) validate(scope Scope) error {
	if scope.views && strings.TrimSpace(scope.username) == "" {
		return ErrUsernameRequired
	}
	return nil
}

// Increment adds one to today's count of scope
func (c *Counters) Increment(ctx context.Context, scope Scope) (*Tick, error) {
	if err := c.validate(scope); err != nil {
		return nil, err
	}

	at := c.now().UTC()
	date := c.today().Format(models.DateLayout)

	count, err := c.store.IncrementCounter(ctx, scope.username, date, at)
	if err != nil {
		if !scope.views {
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		c.logger.Warn("store unavailable, profile view not recorded", "scope", scope, "err", err)
		return &Tick{Date: date, Count: 1, Fallback: true}, nil
	}

	return &Tick{Date: date, Count: count}, nil
}

// ReadRange returns the last days days of scope, oldest first, together with
// the all-time total and today's count. days is clamped with ClampDays.
func (c *Counters) ReadRange(ctx context.Context, scope Scope, days int) (*Series, error) {
	if err := c.validate(scope); err != nil {
		return nil, err
	}

	days = ClampDays(days)
	dates := dateRange(c.today(), days)

	series, err := c.readStore(ctx, scope, dates)
	if err != nil {
		c.logger.Warn("store unavailable, serving fallback counts", "scope", scope, "err", err)
		return c.fallback(scope, dates), nil
	}
	return series, nil
}

func (c *Counters) readStore(ctx context.Context, scope Scope, dates []string) (*Series, error) {
	rows, err := c.store.CounterRange(ctx, scope.username, dates[0], dates[len(dates)-1])
	if err != nil {
		return nil, err
	}
	total, err := c.store.CounterTotal(ctx, scope.username)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]int64, len(rows))
	for _, row := range rows {
		byDate[row.Date] = row.Count
	}

	daily := make([]models.DayCount, len(dates))
	for i, date := range dates {
		daily[i] = models.DayCount{Date: date, Count: byDate[date]}
	}

	return &Series{
		Daily: daily,
		Total: total,
		Today: daily[len(daily)-1].Count,
	}, nil
}

func (c *Counters) fallback(scope Scope, dates []string) *Series {
	var counts []int64
	if scope.views {
		counts = DeterministicCounts(scope.username, len(dates))
	} else {
		counts = randomCounts(len(dates))
	}

	daily := make([]models.DayCount, len(dates))
	var total int64
	for i, date := range dates {
		daily[i] = models.DayCount{Date: date, Count: counts[i]}
		total += counts[i]
	}

	return &Series{
		Daily:    daily,
		Total:    total,
		Today:    counts[len(counts)-1],
		Fallback: true,
	}
}

// ClampDays maps days to [1, MaxDays], using DefaultDays for anything below 1
func ClampDays(days int) int {
	if days < 1 {
		return DefaultDays
	}
	if days > MaxDays {
		return MaxDays
	}
	return days
}

// ParseDays parses a days query value, falling back to DefaultDays
func ParseDays(raw string) int {
	days, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultDays
	}
	return ClampDays(days)
}

// dateRange lists days dates ending at today, oldest first
func dateRange(today time.Time, days int) []string {
	dates := make([]string, days)
	for i := 0; i < days; i++ {
		dates[i] = today.AddDate(0, 0, i-days+1).Format(models.DateLayout)
	}
	return dates
}

// DeterministicCounts generates n counts in [5, 24] that depend only on
// seed. The seed is hashed with the usual 31-multiplier string hash and
// drives a 32-bit linear congruential generator.
func DeterministicCounts(seed string, n int) []int64 {
	var h int32
	for _, r := range seed {
		h = h*31 + int32(r)
	}

	state := uint32(h)
	counts := make([]int64, n)
	for i := range counts {
		state = state*1664525 + 1013904223
		counts[i] = 5 + int64((state>>16)%20)
	}
	return counts
}

func randomCounts(n int) []int64 {
	counts := make([]int64, n)
	for i := range counts {
		counts[i] = int64(rand.Intn(50) + 10)
	}
	return counts
}
