package analysis

import (
	"context"

	"github.com/codeverdict/core/internal/modules/github"
)

// Host is the hosting-provider boundary of the pipeline.
type Host interface {
	ListRepositories(ctx context.Context, token string) ([]github.Repository, error)
	DownloadArchive(ctx context.Context, token string, loc github.Locator) ([]byte, error)
}

// Credentials resolves the stored hosting-provider token of a user. A user
// without a linked account yields an error wrapping github.ErrMissingToken;
// anything else is treated as a storage failure.
type Credentials interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

type githubHost struct{ provider *github.Provider }

// NewGitHubHost adapts a github.Provider to Host.
func NewGitHubHost(p *github.Provider) Host { return &githubHost{provider: p} }

func (h *githubHost) ListRepositories(ctx context.Context, token string) ([]github.Repository, error) {
	c, err := h.provider.ForToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return c.ListRepositories(ctx)
}

func (h *githubHost) DownloadArchive(ctx context.Context, token string, loc github.Locator) ([]byte, error) {
	c, err := h.provider.ForToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return c.DownloadArchive(ctx, loc)
}
