package github

import (
	"context"
	"fmt"
	"time"

	gh "github.com/google/go-github/v80/github"
)

// Repository is the subset of a GitHub repository the service keeps.
type Repository struct {
	Name        string
	FullName    string
	HTMLURL     string
	Description string
	Language    string
	Private     bool
	UpdatedAt   time.Time
}

// ListRepositories returns the first page of repositories the token owner can access.
func (c *Client) ListRepositories(ctx context.Context) ([]Repository, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		ListOptions: gh.ListOptions{PerPage: c.perPage},
	}
	repos, resp, err := c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, c.wrapError(err, "list repos")
	}

	out := make([]Repository, 0, len(repos))
	for _, r := range repos {
		if r == nil || r.GetHTMLURL() == "" {
			continue
		}
		out = append(out, Repository{
			Name:        r.GetName(),
			FullName:    r.GetFullName(),
			HTMLURL:     r.GetHTMLURL(),
			Description: r.GetDescription(),
			Language:    r.GetLanguage(),
			Private:     r.GetPrivate(),
			UpdatedAt:   r.GetUpdatedAt().Time,
		})
	}
	return out, nil
}
