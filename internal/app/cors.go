package app

import (
	"net/url"
	"strings"

	"github.com/gin-contrib/cors"

	"github.com/codeverdict/core/internal/config"
)

// corsConfig allows any origin in development. Elsewhere allowed_origins may
// hold exact hosts, "*.example.com" or "localhost:*" patterns.
func corsConfig(cfg *config.AppConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "x-idempotence"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) == 0 || cfg.IsDev() {
		c.AllowOriginFunc = func(string) bool { return true }
		return c
	}
	patterns := cfg.AllowedOrigins
	c.AllowOriginFunc = func(origin string) bool {
		host := originHost(origin)
		for _, p := range patterns {
			if matchOrigin(p, host) {
				return true
			}
		}
		return false
	}
	return c
}

func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

func matchOrigin(pattern, host string) bool {
	if pattern == host {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:])
	}
	if strings.HasSuffix(pattern, ":*") {
		return strings.HasPrefix(host, pattern[:len(pattern)-1])
	}
	return false
}
