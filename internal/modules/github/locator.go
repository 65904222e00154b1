package github

import (
	"fmt"
	neturl "net/url"
	"strings"
)

const webHost = "github.com"

// Locator identifies one hosted repository.
type Locator struct {
	Owner string
	Repo  string
}

// ParseLocator accepts "https://github.com/<owner>/<repo>[.git][/...]" and the
// scheme-less "github.com/<owner>/<repo>" form.
func ParseLocator(raw string) (Locator, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Locator{}, fmt.Errorf("%w: empty url", ErrInvalidLocator)
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := neturl.Parse(trimmed)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != webHost {
		return Locator{}, fmt.Errorf("%w: unsupported host %q", ErrInvalidLocator, u.Hostname())
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Locator{}, fmt.Errorf("%w: missing owner or repository in %q", ErrInvalidLocator, raw)
	}
	repo := strings.TrimSuffix(parts[1], ".git")
	if repo == "" {
		return Locator{}, fmt.Errorf("%w: missing repository in %q", ErrInvalidLocator, raw)
	}
	return Locator{Owner: parts[0], Repo: repo}, nil
}

// URL is the canonical, lowercased web URL used as the storage and cache key.
func (l Locator) URL() string {
	return "https://" + webHost + "/" + strings.ToLower(l.Owner) + "/" + strings.ToLower(l.Repo)
}

func (l Locator) String() string { return l.Owner + "/" + l.Repo }

// CanonicalURL parses raw and returns its canonical URL.
func CanonicalURL(raw string) (string, error) {
	loc, err := ParseLocator(raw)
	if err != nil {
		return "", err
	}
	return loc.URL(), nil
}
