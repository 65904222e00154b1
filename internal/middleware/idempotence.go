package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/codeverdict/core/internal/pkg/cache"
	"github.com/codeverdict/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	idempotenceHeader = "x-idempotence"
	idempotenceTTL    = 60 * time.Second
	idempotencePrefix = "cv:idempotence:"
)

// Idempotence rejects an identical non-GET request while the first one is still in flight.
// The marker is cleared once the handler finishes, so replays after completion reach the handler.
func Idempotence(store cache.Store, log *zap.Logger) gin.HandlerFunc {
	return idempotence(store, log, resolveIdempotenceKey)
}

// IdempotenceByHeader only guards requests carrying an explicit x-idempotence
// key. Requests without one pass through, for handlers that coalesce
// identical work themselves.
func IdempotenceByHeader(store cache.Store, log *zap.Logger) gin.HandlerFunc {
	return idempotence(store, log, func(c *gin.Context) (string, error) {
		return c.GetHeader(idempotenceHeader), nil
	})
}

func idempotence(store cache.Store, log *zap.Logger, resolve func(*gin.Context) (string, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		key, err := resolve(c)
		if err != nil || key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		storeKey := idempotencePrefix + key
		claimed, err := store.SetNX(ctx, storeKey, "0", idempotenceTTL)
		if err != nil {
			log.Warn("idempotence check failed", zap.Error(err))
			c.Next()
			return
		}
		if !claimed {
			response.Conflict(c, "an identical request is already being processed")
			return
		}

		defer func() {
			// The request context may already be cancelled here.
			if err := store.Del(context.WithoutCancel(ctx), storeKey); err != nil {
				log.Warn("idempotence release failed", zap.Error(err))
			}
		}()
		c.Next()
	}
}

// resolveIdempotenceKey returns the explicit header or a digest of the request.
func resolveIdempotenceKey(c *gin.Context) (string, error) {
	if hdr := c.GetHeader(idempotenceHeader); hdr != "" {
		return hdr, nil
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	ua := c.Request.UserAgent()
	ip := c.ClientIP()
	authToken := extractToken(c)

	if len(body) == 0 && ua == "" && ip == "" && authToken == "" {
		return "", nil
	}

	raw := c.Request.Method + "|" + c.Request.URL.String() + "|" + string(body) + "|" + ua + "|" + ip + "|" + authToken
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:]), nil
}
