package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	appcfg "github.com/codeverdict/core/internal/config"
	"github.com/codeverdict/core/internal/middleware"
	"github.com/codeverdict/core/internal/models"
	"github.com/codeverdict/core/internal/modules/github"
	"github.com/codeverdict/core/internal/pkg/cache"
	"github.com/codeverdict/core/internal/pkg/response"
	sessionpkg "github.com/codeverdict/core/internal/pkg/session"
)

const (
	stateTTL    = 10 * time.Minute
	stateMarker = "1"
)

// Accounts is the user store the handler writes to. *Service satisfies it.
type Accounts interface {
	UpsertGitHubUser(ctx context.Context, u *github.User, accessToken, scope string) (*models.UserModel, error)
	User(ctx context.Context, userID string) (*models.UserModel, error)
}

// Sessions is satisfied by *session.Manager.
type Sessions interface {
	Issue(ctx context.Context, userID, ip, ua string) (string, *models.UserSession, error)
	Revoke(ctx context.Context, userID, sessionID string) error
}

// HandlerOptions wires the login flow.
type HandlerOptions struct {
	Accounts Accounts
	Sessions Sessions
	GitHub   *github.Provider
	State    cache.Store
	Config   appcfg.GitHubConfig
	// Endpoint overrides the GitHub OAuth endpoint.
	Endpoint   *oauth2.Endpoint
	SessionTTL time.Duration
	Logger     *zap.Logger
}

type Handler struct {
	accounts    Accounts
	sessions    Sessions
	github      *github.Provider
	state       cache.Store
	oauth       *oauth2.Config
	frontendURL string
	sessionTTL  time.Duration
	log         *zap.Logger
}

func NewHandler(opts HandlerOptions) *Handler {
	endpoint := oauthgithub.Endpoint
	if opts.Endpoint != nil {
		endpoint = *opts.Endpoint
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handler{
		accounts: opts.Accounts,
		sessions: opts.Sessions,
		github:   opts.GitHub,
		state:    opts.State,
		oauth: &oauth2.Config{
			ClientID:     opts.Config.ClientID,
			ClientSecret: opts.Config.ClientSecret,
			RedirectURL:  opts.Config.RedirectURL,
			Scopes:       opts.Config.Scopes,
			Endpoint:     endpoint,
		},
		frontendURL: strings.TrimSpace(opts.Config.FrontendURL),
		sessionTTL:  opts.SessionTTL,
		log:         opts.Logger.Named("auth"),
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/auth")
	g.GET("/github", h.redirect)
	g.GET("/github/callback", h.callback)
	g.GET("/me", authMW, h.me)
	g.POST("/logout", authMW, h.logout)
}

func stateKey(state string) string { return "oauth:state:" + state }

// GET /auth/github
func (h *Handler) redirect(c *gin.Context) {
	if h.oauth.ClientID == "" {
		response.Failed(c, http.StatusServiceUnavailable, "github login is not configured")
		return
	}
	state, err := newState()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if err := h.state.SetWithExpiry(c.Request.Context(), stateKey(state), stateTTL, stateMarker); err != nil {
		response.InternalError(c, fmt.Errorf("store oauth state: %w", err))
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, h.oauth.AuthCodeURL(state))
}

// GET /auth/github/callback?code=...&state=...
func (h *Handler) callback(c *gin.Context) {
	ctx := c.Request.Context()
	code := strings.TrimSpace(c.Query("code"))
	state := strings.TrimSpace(c.Query("state"))
	if code == "" || state == "" {
		response.BadRequest(c, "missing code or state")
		return
	}
	ok, err := h.state.DelIfEqual(ctx, stateKey(state), stateMarker)
	if err != nil {
		response.InternalError(c, fmt.Errorf("check oauth state: %w", err))
		return
	}
	if !ok {
		response.BadRequest(c, "invalid or expired state")
		return
	}

	tok, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.log.Warn("oauth code exchange failed", zap.Error(err))
		response.Failed(c, http.StatusBadGateway, "github token exchange failed")
		return
	}
	client, err := h.github.ForToken(ctx, tok.AccessToken)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	ghUser, err := client.CurrentUser(ctx)
	if err != nil {
		h.log.Warn("fetch github user failed", zap.Error(err))
		response.Failed(c, http.StatusBadGateway, "failed to fetch github profile")
		return
	}

	user, err := h.accounts.UpsertGitHubUser(ctx, ghUser, tok.AccessToken, grantedScope(tok))
	if err != nil {
		response.InternalError(c, fmt.Errorf("link github account: %w", err))
		return
	}
	token, _, err := h.sessions.Issue(ctx, user.ID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.InternalError(c, fmt.Errorf("issue session: %w", err))
		return
	}
	h.setTokenCookie(c, token)
	h.log.Info("user signed in", zap.String("user_id", user.ID), zap.String("login", user.Login))

	if h.frontendURL != "" {
		c.Redirect(http.StatusFound, h.frontendURL)
		return
	}
	response.OK(c, gin.H{"token": token, "user": user})
}

// GET /auth/me [auth]
func (h *Handler) me(c *gin.Context) {
	user, err := h.accounts.User(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.NotFoundMsg(c, "user not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, user)
}

// POST /auth/logout [auth]
func (h *Handler) logout(c *gin.Context) {
	err := h.sessions.Revoke(c.Request.Context(), middleware.CurrentUserID(c), middleware.CurrentSessionID(c))
	if err != nil && !errors.Is(err, sessionpkg.ErrNotFound) {
		response.InternalError(c, err)
		return
	}
	h.clearTokenCookie(c)
	response.NoContent(c)
}

func (h *Handler) setTokenCookie(c *gin.Context, token string) {
	maxAge := int(h.sessionTTL / time.Second)
	secure := c.Request.TLS != nil
	c.SetCookie(middleware.TokenCookie, token, maxAge, "/", "", secure, true)
}

func (h *Handler) clearTokenCookie(c *gin.Context) {
	secure := c.Request.TLS != nil
	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", secure, true)
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// grantedScope reads the scope GitHub reports in the token response.
func grantedScope(tok *oauth2.Token) string {
	if s, ok := tok.Extra("scope").(string); ok {
		return s
	}
	return ""
}
