package api

import (
	"context"
	"fmt"

	"github.com/manishdashsharma/gitview/internal/models"
	"github.com/shurcooL/githubv4"
)

// MaxPinnedItems is the most pinned items a GitHub profile can show
const MaxPinnedItems = 6

// GraphQLClient represents a client for the GitHub GraphQL API.
// The GraphQL API rejects anonymous requests, so it is only built with a token.
type GraphQLClient struct {
	client *githubv4.Client
}

// NewGraphQLClient creates a new GraphQL client. An empty endpoint keeps the public API.
func NewGraphQLClient(token, endpoint string) *GraphQLClient {
	httpClient := newHTTPClient(token)
	if endpoint == "" {
		return &GraphQLClient{client: githubv4.NewClient(httpClient)}
	}
	return &GraphQLClient{client: githubv4.NewEnterpriseClient(endpoint, httpClient)}
}

// pinnedRepository is the Repository fragment of a pinned item
type pinnedRepository struct {
	Name            githubv4.String
	NameWithOwner   githubv4.String
	Description     githubv4.String
	URL             githubv4.String
	StargazerCount  githubv4.Int
	PrimaryLanguage *struct {
		Name githubv4.String
	}
}

// PinnedItems gets the repositories a user pinned on their profile
func (c *GraphQLClient) PinnedItems(ctx context.Context, login string) ([]models.PinnedItem, error) {
	var query struct {
		User struct {
			PinnedItems struct {
				Nodes []struct {
					Repository pinnedRepository `graphql:"... on Repository"`
				}
			} `graphql:"pinnedItems(first: $first, types: [REPOSITORY])"`
		} `graphql:"user(login: $login)"`
	}

	variables := map[string]interface{}{
		"login": githubv4.String(login),
		"first": githubv4.Int(MaxPinnedItems),
	}

	if err := c.client.Query(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("failed to query pinned items: %w", err)
	}

	items := make([]models.PinnedItem, 0, len(query.User.PinnedItems.Nodes))
	for _, node := range query.User.PinnedItems.Nodes {
		items = append(items, convertPinnedRepository(node.Repository))
	}
	return items, nil
}

// convertPinnedRepository converts a GraphQL repository fragment to our model
func convertPinnedRepository(repo pinnedRepository) models.PinnedItem {
	var language *string
	if repo.PrimaryLanguage != nil {
		l := string(repo.PrimaryLanguage.Name)
		language = &l
	}

	return models.PinnedItem{
		Name:          string(repo.Name),
		NameWithOwner: string(repo.NameWithOwner),
		Description:   string(repo.Description),
		URL:           string(repo.URL),
		Stars:         int(repo.StargazerCount),
		Language:      language,
	}
}
