package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/codeverdict/core/internal/config"
	jwtpkg "github.com/codeverdict/core/internal/pkg/jwt"
	"github.com/codeverdict/core/internal/pkg/nativelog"
)

// applyRuntimeSettings exports the log dir, sets the process timezone and
// builds the token signer.
func applyRuntimeSettings(cfg *config.AppConfig, logger *zap.Logger) (*jwtpkg.Signer, error) {
	_ = os.Setenv(nativelog.EnvLogDir, cfg.LogDir())

	signer := jwtpkg.NewSigner(strings.TrimSpace(cfg.JWTSecret))
	if signer.UsesDefaultSecret() {
		logger.Warn("jwt_secret is empty, using built-in default secret")
	}

	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		return signer, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	time.Local = loc
	_ = os.Setenv("TZ", tz)
	return signer, nil
}

func humanizeDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Truncate(time.Second).String()
	}
	if d < time.Hour {
		return d.Truncate(time.Minute).String()
	}
	if d < 24*time.Hour {
		return d.Truncate(time.Hour).String()
	}
	return d.Truncate(24 * time.Hour).String()
}
