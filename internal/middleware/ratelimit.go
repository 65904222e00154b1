package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/codeverdict/core/internal/pkg/cache"
	"github.com/codeverdict/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

const rateLimitPrefix = "cv:rate_limit:"

// RateLimit enforces a fixed-window limit of max requests per window for each
// anonymous client IP. Authenticated requests bypass it.
func RateLimit(store cache.Store, max int, window time.Duration) gin.HandlerFunc {
	if window <= 0 {
		window = time.Second
	}
	retryAfter := strconv.Itoa(int(window.Round(time.Second) / time.Second))
	if retryAfter == "0" {
		retryAfter = "1"
	}
	return func(c *gin.Context) {
		if IsAuthenticated(c) {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		bucket := time.Now().UnixNano() / int64(window)
		key := fmt.Sprintf("%s%s:%d", rateLimitPrefix, ip, bucket)
		count, err := store.IncrWithExpiry(c.Request.Context(), key, window+time.Second)
		if err != nil {
			c.Next()
			return
		}

		if count > int64(max) {
			c.Header("Retry-After", retryAfter)
			response.TooManyRequests(c, "too many requests, slow down")
			return
		}
		c.Next()
	}
}
