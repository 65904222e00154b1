package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	pkgcron "github.com/codeverdict/core/internal/pkg/cron"
)

// sessionPurger is satisfied by *session.Manager.
type sessionPurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, sessions sessionPurger, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")

	sched.Register(pkgcron.Job{
		Name:        "cleanup_sessions",
		Description: "delete sessions that expired or were revoked more than a day ago",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			n, err := sessions.PurgeExpired(ctx, time.Now().Add(-24*time.Hour))
			if err != nil {
				cronLogger.Warn("session cleanup failed", zap.Error(err))
				return err
			}
			cronLogger.Info("session cleanup finished", zap.Int64("deleted", n))
			return nil
		},
	})
}
