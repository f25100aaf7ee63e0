package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/manishdashsharma/gitview/internal/models"
	"golang.org/x/oauth2"
)

// PageSize is the number of repositories and events requested from the upstream
const PageSize = 100

// ErrUserNotFound is returned when the upstream has no account for a username
var ErrUserNotFound = errors.New("user not found")

// UpstreamError wraps any other failure of the primary profile lookup
type UpstreamError struct {
	Username string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("failed to fetch profile %q from upstream: %v", e.Username, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// GitHubClient represents a client for the GitHub REST API
type GitHubClient struct {
	client *github.Client
}

// NewGitHubClient creates a new GitHub API client. An empty baseURL keeps
// the public api.github.com endpoint.
func NewGitHubClient(token, baseURL string) (*GitHubClient, error) {
	client := github.NewClient(newHTTPClient(token))

	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse GitHub API URL: %w", err)
		}
		client.BaseURL = u
	}

	return &GitHubClient{client: client}, nil
}

// newHTTPClient returns an authenticated client if a token is provided, nil otherwise
func newHTTPClient(token string) *http.Client {
	if token == "" {
		return nil
	}
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	return oauth2.NewClient(context.Background(), ts)
}

// isGitHubResponse reports whether err is an API error with the given status
func isGitHubResponse(err error, status int) bool {
	var res *github.ErrorResponse
	if errors.As(err, &res) && res.Response != nil {
		return res.Response.StatusCode == status
	}
	return false
}

// GetUser gets the profile of a user
func (c *GitHubClient) GetUser(ctx context.Context, username string) (*models.RawProfile, error) {
	user, _, err := c.client.Users.Get(ctx, username)
	if err != nil {
		if isGitHubResponse(err, http.StatusNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return nil, &UpstreamError{Username: username, Err: err}
	}

	return ConvertGitHubUser(user), nil
}

// ListRepositories gets the first page of a user's repositories, most recently updated first
func (c *GitHubClient) ListRepositories(ctx context.Context, username string) ([]models.RawRepository, error) {
	opts := &github.RepositoryListByUserOptions{
		Sort: "updated",
		ListOptions: github.ListOptions{
			PerPage: PageSize,
		},
	}

	repos, _, err := c.client.Repositories.ListByUser(ctx, username, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}

	result := make([]models.RawRepository, 0, len(repos))
	for _, repo := range repos {
		result = append(result, ConvertGitHubRepository(repo))
	}
	return result, nil
}

// ListEvents gets the first page of a user's public events, most recent first
func (c *GitHubClient) ListEvents(ctx context.Context, username string) ([]models.RawEvent, error) {
	opts := &github.ListOptions{
		PerPage: PageSize,
	}

	events, _, err := c.client.Activity.ListEventsPerformedByUser(ctx, username, false, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	result := make([]models.RawEvent, 0, len(events))
	for _, event := range events {
		result = append(result, ConvertGitHubEvent(event))
	}
	return result, nil
}

// ConvertGitHubUser converts a GitHub user to our model
func ConvertGitHubUser(user *github.User) *models.RawProfile {
	if user == nil {
		return nil
	}

	var company *string
	if user.Company != nil {
		c := *user.Company
		company = &c
	}

	return &models.RawProfile{
		ID:              user.GetID(),
		Login:           user.GetLogin(),
		Name:            user.GetName(),
		Bio:             user.GetBio(),
		AvatarURL:       user.GetAvatarURL(),
		Location:        user.GetLocation(),
		Company:         company,
		Blog:            user.GetBlog(),
		HTMLURL:         user.GetHTMLURL(),
		TwitterUsername: user.GetTwitterUsername(),
		PublicRepos:     user.GetPublicRepos(),
		PublicGists:     user.GetPublicGists(),
		Followers:       user.GetFollowers(),
		Following:       user.GetFollowing(),
		CreatedAt:       user.GetCreatedAt().Time,
	}
}

// ConvertGitHubRepository converts a GitHub repository to our model
func ConvertGitHubRepository(repo *github.Repository) models.RawRepository {
	var language *string
	if repo.Language != nil {
		l := *repo.Language
		language = &l
	}

	topics := repo.Topics
	if topics == nil {
		topics = []string{}
	}

	return models.RawRepository{
		Name:            repo.GetName(),
		FullName:        repo.GetFullName(),
		Description:     repo.GetDescription(),
		StargazersCount: repo.GetStargazersCount(),
		ForksCount:      repo.GetForksCount(),
		WatchersCount:   repo.GetWatchersCount(),
		Size:            repo.GetSize(),
		Language:        language,
		Fork:            repo.GetFork(),
		Private:         repo.GetPrivate(),
		Topics:          topics,
		HTMLURL:         repo.GetHTMLURL(),
		UpdatedAt:       repo.GetUpdatedAt().Time,
	}
}

// pushPayload is the part of an event payload we read; commits may be absent
type pushPayload struct {
	Commits []json.RawMessage `json:"commits"`
}

// ConvertGitHubEvent converts a GitHub event to our model
func ConvertGitHubEvent(event *github.Event) models.RawEvent {
	var commits int
	if event.RawPayload != nil {
		var p pushPayload
		if err := json.Unmarshal(*event.RawPayload, &p); err == nil {
			commits = len(p.Commits)
		}
	}

	return models.RawEvent{
		ID:          event.GetID(),
		Type:        event.GetType(),
		RepoName:    event.GetRepo().GetName(),
		CreatedAt:   event.GetCreatedAt().Time,
		Public:      event.GetPublic(),
		CommitCount: commits,
	}
}
