package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, maxBytes int64) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewProvider(Options{APIBaseURL: srv.URL + "/", PerPage: 5, MaxArchiveBytes: maxBytes})
	require.NoError(t, err)
	c, err := p.ForToken(context.Background(), "tok-123")
	require.NoError(t, err)
	return c
}

func TestParseLocator(t *testing.T) {
	tests := []struct {
		in      string
		want    Locator
		wantURL string
		wantErr bool
	}{
		{in: "https://github.com/Octo/Hello-World", want: Locator{"Octo", "Hello-World"}, wantURL: "https://github.com/octo/hello-world"},
		{in: "https://github.com/octo/repo.git", want: Locator{"octo", "repo"}, wantURL: "https://github.com/octo/repo"},
		{in: "github.com/octo/repo/tree/main/src", want: Locator{"octo", "repo"}, wantURL: "https://github.com/octo/repo"},
		{in: "https://www.github.com/octo/repo/", want: Locator{"octo", "repo"}, wantURL: "https://github.com/octo/repo"},
		{in: "https://gitlab.com/octo/repo", wantErr: true},
		{in: "https://github.com/octo", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLocator(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLocator)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantURL, got.URL())
		})
	}
}

func TestListRepositories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "5", r.URL.Query().Get("per_page"))
		w.Header().Set("X-RateLimit-Remaining", "4999")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"name":"alpha","full_name":"octo/alpha","html_url":"https://github.com/octo/alpha","private":true},
			{"name":"beta","full_name":"octo/beta","html_url":"https://github.com/octo/beta","language":"Go"}
		]`))
	})
	c := newTestClient(t, mux, 0)

	repos, err := c.ListRepositories(context.Background())
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "alpha", repos[0].Name)
	assert.True(t, repos[0].Private)
	assert.Equal(t, "https://github.com/octo/beta", repos[1].HTMLURL)
	assert.Equal(t, "Go", repos[1].Language)
	assert.Equal(t, 4999, c.RateLimiter().Remaining())
}

func TestDownloadArchiveFollowsRedirect(t *testing.T) {
	payload := []byte("PK\x03\x04fake-zip-bytes")
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/alpha/zipball", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/codeload/octo/alpha/legacy.zip/main", http.StatusFound)
	})
	mux.HandleFunc("/codeload/octo/alpha/legacy.zip/main", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	})
	c := newTestClient(t, mux, 1024)

	data, err := c.DownloadArchive(context.Background(), Locator{Owner: "octo", Repo: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestArchiveTimeoutIsSeparateFromAPITimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/slow/zipball", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		_, _ = w.Write([]byte("PK\x03\x04slow"))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1,"login":"octo"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p, err := NewProvider(Options{
		APIBaseURL:     srv.URL + "/",
		Timeout:        50 * time.Millisecond,
		ArchiveTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	c, err := p.ForToken(context.Background(), "tok-123")
	require.NoError(t, err)

	data, err := c.DownloadArchive(context.Background(), Locator{Owner: "octo", Repo: "slow"})
	require.NoError(t, err)
	assert.Equal(t, []byte("PK\x03\x04slow"), data)

	_, err = c.CurrentUser(context.Background())
	assert.Error(t, err)
}

func TestDownloadArchiveErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/missing/zipball", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})
	mux.HandleFunc("/repos/octo/huge/zipball", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 4096))
	})
	c := newTestClient(t, mux, 1024)

	_, err := c.DownloadArchive(context.Background(), Locator{Owner: "octo", Repo: "missing"})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	_, err = c.DownloadArchive(context.Background(), Locator{Owner: "octo", Repo: "huge"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArchiveTooLarge))
}

func TestCurrentUserUnauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
	})
	c := newTestClient(t, mux, 0)

	_, err := c.CurrentUser(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}

func TestListRepositoriesRateLimited(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "4102444800")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"API rate limit exceeded for user ID 1."}`))
	})
	c := newTestClient(t, mux, 0)

	_, err := c.ListRepositories(context.Background())
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.False(t, IsUnauthorized(err))
}

func TestForTokenRequiresToken(t *testing.T) {
	p, err := NewProvider(Options{})
	require.NoError(t, err)
	_, err = p.ForToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)
}
