package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codeverdict/core/internal/pkg/jwt"
	"github.com/codeverdict/core/internal/pkg/memcache"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeSessions struct {
	mu      sync.Mutex
	active  map[string]bool
	touched int
}

func (f *fakeSessions) IsActive(_ context.Context, _ string, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[sessionID], nil
}

func (f *fakeSessions) Touch(context.Context, string, string) {
	f.mu.Lock()
	f.touched++
	f.mu.Unlock()
}

func TestAuth(t *testing.T) {
	signer := jwt.NewSigner("secret")
	sessions := &fakeSessions{active: map[string]bool{"live": true}}

	r := gin.New()
	r.GET("/me", Auth(signer, sessions), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUserID(c)+"|"+CurrentSessionID(c))
	})

	live, err := signer.Sign("u1", "live", time.Hour)
	require.NoError(t, err)
	revoked, err := signer.Sign("u1", "gone", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
		body   string
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+live) }, http.StatusOK, "u1|live"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: TokenCookie, Value: live}) }, http.StatusOK, "u1|live"},
		{"revoked session", func(r *http.Request) { r.Header.Set("Authorization", revoked) }, http.StatusUnauthorized, ""},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"status":"failed"`)
			}
		})
	}
	assert.Equal(t, 2, sessions.touched)
}

func TestIdempotenceRejectsInFlightDuplicate(t *testing.T) {
	store, err := memcache.New(64)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	r := gin.New()
	r.POST("/analyze", Idempotence(store, zap.NewNop()), func(c *gin.Context) {
		select {
		case entered <- struct{}{}:
			<-release
		default:
		}
		c.Status(http.StatusOK)
	})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"url":"x"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	first := make(chan int)
	go func() { first <- send() }()
	<-entered

	assert.Equal(t, http.StatusConflict, send())
	close(release)
	assert.Equal(t, http.StatusOK, <-first)

	// Marker is cleared once the first request finishes.
	assert.Equal(t, http.StatusOK, send())
}

func TestIdempotenceByHeaderPassesUnkeyedDuplicates(t *testing.T) {
	store, err := memcache.New(64)
	require.NoError(t, err)

	var inFlight sync.WaitGroup
	inFlight.Add(2)
	r := gin.New()
	r.POST("/analyze", IdempotenceByHeader(store, zap.NewNop()), func(c *gin.Context) {
		if c.GetHeader(idempotenceHeader) == "" {
			// both unkeyed requests must be inside the handler at once
			inFlight.Done()
			inFlight.Wait()
		}
		c.Status(http.StatusOK)
	})

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"url":"x"}`))
		if key != "" {
			req.Header.Set(idempotenceHeader, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	codes := make(chan int, 2)
	for i := 0; i < 2; i++ {
		go func() { codes <- send("") }()
	}
	assert.Equal(t, http.StatusOK, <-codes)
	assert.Equal(t, http.StatusOK, <-codes)

	require.NoError(t, store.SetWithExpiry(context.Background(), idempotencePrefix+"k1", time.Minute, "0"))
	assert.Equal(t, http.StatusConflict, send("k1"))
	assert.Equal(t, http.StatusOK, send("k2"))
}

func TestRateLimit(t *testing.T) {
	store, err := memcache.New(64)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/auth", RateLimit(store, 2, time.Hour), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/auth", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "abc", NormalizeToken("  Bearer abc "))
	assert.Equal(t, "abc", NormalizeToken("bearer abc"))
	assert.Equal(t, "abc", NormalizeToken("abc"))
	assert.Empty(t, NormalizeToken("   "))
}
