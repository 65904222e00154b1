package github

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"
	"sync"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultArchiveTimeout = 5 * time.Minute
	defaultPerPage        = 30
)

// Options configures clients produced by a Provider.
type Options struct {
	APIBaseURL string // must end with "/"; empty means api.github.com
	// Timeout bounds API calls; ArchiveTimeout bounds a zipball download
	// including its body.
	Timeout         time.Duration
	ArchiveTimeout  time.Duration
	PerPage         int
	MaxArchiveBytes int64
	// Transport is the base round tripper under the bearer transport.
	Transport http.RoundTripper
}

// Provider builds per-token clients that share a rate limiter per token.
type Provider struct {
	opts     Options
	baseURL  *neturl.URL
	limiters sync.Map // sha256(token) -> *RateLimiter
}

func NewProvider(opts Options) (*Provider, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ArchiveTimeout <= 0 {
		opts.ArchiveTimeout = DefaultArchiveTimeout
	}
	if opts.PerPage <= 0 {
		opts.PerPage = defaultPerPage
	}
	p := &Provider{opts: opts}
	if opts.APIBaseURL != "" {
		u, err := neturl.Parse(opts.APIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github api base url: %w", err)
		}
		p.baseURL = u
	}
	return p, nil
}

// ForToken returns a client authenticating as the token's owner.
func (p *Provider) ForToken(ctx context.Context, token string) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	return &Client{
		gh:              p.newGitHubClient(token, p.opts.Timeout),
		archive:         p.newGitHubClient(token, p.opts.ArchiveTimeout),
		rateLimiter:     p.limiterFor(token),
		perPage:         p.opts.PerPage,
		maxArchiveBytes: p.opts.MaxArchiveBytes,
	}, nil
}

func (p *Provider) newGitHubClient(token string, timeout time.Duration) *gh.Client {
	base := p.opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   base,
		},
	}
	ghc := gh.NewClient(httpClient)
	if p.baseURL != nil {
		ghc.BaseURL = p.baseURL
	}
	return ghc
}

func (p *Provider) limiterFor(token string) *RateLimiter {
	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])
	if v, ok := p.limiters.Load(key); ok {
		return v.(*RateLimiter)
	}
	v, _ := p.limiters.LoadOrStore(key, NewRateLimiter())
	return v.(*RateLimiter)
}

// Client wraps the go-github client with helper methods.
type Client struct {
	gh              *gh.Client
	archive         *gh.Client
	rateLimiter     *RateLimiter
	perPage         int
	maxArchiveBytes int64
}

// RateLimiter exposes the limiter shared by every client of the same token.
func (c *Client) RateLimiter() *RateLimiter { return c.rateLimiter }

// User is the signed-in account as reported by GitHub.
type User struct {
	ID        int64
	Login     string
	Name      string
	Email     string
	AvatarURL string
}

// CurrentUser fetches the token owner's profile.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	u, resp, err := c.gh.Users.Get(ctx, "")
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, c.wrapError(err, "get user")
	}
	return &User{
		ID:        u.GetID(),
		Login:     u.GetLogin(),
		Name:      u.GetName(),
		Email:     u.GetEmail(),
		AvatarURL: u.GetAvatarURL(),
	}, nil
}

// updateRateLimitFromResponse updates the rate limiter from GitHub response headers.
func (c *Client) updateRateLimitFromResponse(resp *gh.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	c.rateLimiter.UpdateFromResponse(resp.Response)
}

// wrapError converts go-github errors to our error types.
func (c *Client) wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &RateLimitError{
			ResetAt:   rateLimitErr.Rate.Reset.Time,
			Remaining: rateLimitErr.Rate.Remaining,
			Limit:     rateLimitErr.Rate.Limit,
		}
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		reset := c.rateLimiter.ResetTime()
		if reset.Before(time.Now()) {
			reset = time.Now().Add(time.Minute)
		}
		if abuseErr.RetryAfter != nil {
			reset = time.Now().Add(*abuseErr.RetryAfter)
		}
		return &RateLimitError{ResetAt: reset, Remaining: c.rateLimiter.Remaining(), Limit: c.rateLimiter.Limit()}
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr := &APIError{StatusCode: ghErr.Response.StatusCode, Message: ghErr.Message}
		if ghErr.Response.Request != nil {
			apiErr.URL = ghErr.Response.Request.URL.String()
		}
		return apiErr
	}

	return fmt.Errorf("github: %s: %w", operation, err)
}
