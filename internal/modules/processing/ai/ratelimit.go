package ai

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimit throttles calls to at most rps per second with the given burst.
// rps <= 0 disables it.
func RateLimit(rps float64, burst int) Middleware {
	if rps <= 0 {
		return func(next Generator) Generator { return next }
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next Generator) Generator {
		return &limited{next: next, limiter: limiter}
	}
}

type limited struct {
	next    Generator
	limiter *rate.Limiter
}

func (l *limited) Name() string { return l.next.Name() }

func (l *limited) Generate(ctx context.Context, system, user string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.Generate(ctx, system, user)
}
