package api

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/manishdashsharma/gitview/internal/models"
)

// Source combines the REST and GraphQL clients behind the two error policies
// of an aggregation run: the profile lookup fails hard, every other fetch
// degrades to an empty result and is only logged.
type Source struct {
	rest    *GitHubClient
	graphql *GraphQLClient
	logger  *log.Logger
}

// NewSource creates a Source. graphql may be nil, in which case no pinned items are fetched.
func NewSource(rest *GitHubClient, graphql *GraphQLClient, logger *log.Logger) *Source {
	return &Source{
		rest:    rest,
		graphql: graphql,
		logger:  logger.With("component", "upstream"),
	}
}

// FetchProfile returns ErrUserNotFound or an *UpstreamError on failure
func (s *Source) FetchProfile(ctx context.Context, username string) (*models.RawProfile, error) {
	return s.rest.GetUser(ctx, username)
}

// FetchRepositories never fails; an upstream error yields an empty slice
func (s *Source) FetchRepositories(ctx context.Context, username string) []models.RawRepository {
	repos, err := s.rest.ListRepositories(ctx, username)
	return orEmpty(s.logger, "repositories", username, repos, err)
}

// FetchEvents never fails; an upstream error yields an empty slice
func (s *Source) FetchEvents(ctx context.Context, username string) []models.RawEvent {
	events, err := s.rest.ListEvents(ctx, username)
	return orEmpty(s.logger, "events", username, events, err)
}

// FetchPinnedItems never fails; it returns nil when no GraphQL client is configured
func (s *Source) FetchPinnedItems(ctx context.Context, username string) []models.PinnedItem {
	if s.graphql == nil {
		return nil
	}
	items, err := s.graphql.PinnedItems(ctx, username)
	if err != nil {
		s.logger.Warn("pinned items unavailable", "username", username, "err", err)
		return nil
	}
	return items
}

func orEmpty[T any](logger *log.Logger, what, username string, items []T, err error) []T {
	if err != nil {
		logger.Warn("treating upstream "+what+" as empty", "username", username, "err", err)
		return []T{}
	}
	if items == nil {
		return []T{}
	}
	return items
}
