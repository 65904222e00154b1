package ai

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Retry retries Generate up to maxAttempts with exponential backoff starting at
// baseDelay. Permanent errors and context cancellation stop it immediately.
func Retry(maxAttempts int, baseDelay time.Duration, log *zap.Logger) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return func(next Generator) Generator {
		return &retrying{next: next, max: maxAttempts, base: baseDelay, log: log}
	}
}

type retrying struct {
	next Generator
	max  int
	base time.Duration
	log  *zap.Logger
}

func (r *retrying) Name() string { return r.next.Name() }

func (r *retrying) Generate(ctx context.Context, system, user string) (string, error) {
	var last error
	for i := 0; i < r.max; i++ {
		text, err := r.next.Generate(ctx, system, user)
		if err == nil {
			return text, nil
		}
		if IsPermanent(err) {
			return "", err
		}
		last = err
		if i == r.max-1 {
			break
		}

		delay := r.base * time.Duration(1<<i)
		r.log.Debug("retrying generation",
			zap.String("backend", r.next.Name()),
			zap.Int("attempt", i+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", last
}
