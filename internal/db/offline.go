package db

import (
	"context"
	"fmt"
	"time"

	"github.com/manishdashsharma/gitview/internal/models"
)

// Offline stands in for a store that could not be reached at startup.
// Every call fails with Err so callers take their unavailable-store paths.
type Offline struct {
	Err error
}

func (o Offline) err() error {
	return fmt.Errorf("store offline: %w", o.Err)
}

func (o Offline) GetProfile(ctx context.Context, username string) (*models.AnalyticsRecord, error) {
	return nil, o.err()
}

func (o Offline) SaveProfile(ctx context.Context, username string, rec *models.AnalyticsRecord, staleBefore time.Time) (bool, error) {
	return false, o.err()
}

func (o Offline) IncrementCounter(ctx context.Context, username, date string, at time.Time) (int64, error) {
	return 0, o.err()
}

func (o Offline) CounterRange(ctx context.Context, username, from, to string) ([]models.DayCounter, error) {
	return nil, o.err()
}

func (o Offline) CounterTotal(ctx context.Context, username string) (int64, error) {
	return 0, o.err()
}

func (o Offline) Ping(ctx context.Context) error {
	return o.err()
}

func (o Offline) Close() error {
	return nil
}
