package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/codeverdict/core/internal/config"
	"github.com/codeverdict/core/internal/database"
	"github.com/codeverdict/core/internal/middleware"
	"github.com/codeverdict/core/internal/modules/analysis"
	"github.com/codeverdict/core/internal/modules/auth"
	"github.com/codeverdict/core/internal/modules/github"
	"github.com/codeverdict/core/internal/modules/processing/ai"
	"github.com/codeverdict/core/internal/pkg/cache"
	pkgcron "github.com/codeverdict/core/internal/pkg/cron"
	"github.com/codeverdict/core/internal/pkg/memcache"
	pkgredis "github.com/codeverdict/core/internal/pkg/redis"
	"github.com/codeverdict/core/internal/pkg/session"
)

// App holds all application dependencies.
type App struct {
	cfg      *config.AppConfig
	router   *gin.Engine
	db       *gorm.DB
	cache    cache.Store
	redis    *pkgredis.Client
	logger   *zap.Logger
	cancel   context.CancelFunc
	sched    *pkgcron.Scheduler
	started  time.Time
	sessions *session.Manager
	auth     *auth.Handler
	analysis *analysis.Handler
}

// New wires config → DB → cache → GitHub and AI clients → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	signer, err := applyRuntimeSettings(cfg, logger)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	store, rc, err := connectCache(cfg)
	if err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	abort := func(stage string, err error) (*App, error) {
		cancel()
		if rc != nil {
			_ = rc.Close()
		}
		_ = database.Close(db)
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	gen, err := ai.New(ctx, cfg.AI, logger)
	if err != nil {
		return abort("ai", err)
	}
	provider, err := github.NewProvider(github.Options{
		APIBaseURL:      cfg.GitHub.APIBaseURL,
		Timeout:         cfg.GitHub.Timeout(),
		ArchiveTimeout:  cfg.GitHub.ArchiveTimeout(),
		PerPage:         cfg.GitHub.PerPage,
		MaxArchiveBytes: cfg.Analysis.MaxArchiveBytes,
	})
	if err != nil {
		return abort("github", err)
	}

	sessions := session.NewManager(db, signer, session.DefaultTTL)
	accounts := auth.NewService(db)
	svc := analysis.NewService(analysis.Deps{
		Store:       analysis.NewStore(db),
		Cache:       store,
		Credentials: accounts,
		Host:        analysis.NewGitHubHost(provider),
		Generator:   gen,
		Logger:      logger,
	}, analysis.OptionsFromConfig(cfg))

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	sched := pkgcron.New(logger.Named("CronService"))
	registerCronJobs(sched, sessions, logger)
	go sched.Start(ctx)

	app := &App{
		cfg:      cfg,
		router:   router,
		db:       db,
		cache:    store,
		redis:    rc,
		logger:   logger,
		cancel:   cancel,
		sched:    sched,
		started:  time.Now(),
		sessions: sessions,
		auth: auth.NewHandler(auth.HandlerOptions{
			Accounts:   accounts,
			Sessions:   sessions,
			GitHub:     provider,
			State:      store,
			Config:     cfg.GitHub,
			SessionTTL: session.DefaultTTL,
			Logger:     logger,
		}),
		analysis: analysis.NewHandler(svc, logger),
	}
	app.registerRoutes()

	logger.Info("application initialized",
		zap.String("env", cfg.Env),
		zap.String("cache", cfg.Cache.Driver),
		zap.String("ai", gen.Name()))
	return app, nil
}

// connectCache returns the configured cache driver. rc is nil for the memory driver.
func connectCache(cfg *config.AppConfig) (cache.Store, *pkgredis.Client, error) {
	if cfg.Cache.Driver == config.CacheDriverMemory {
		mc, err := memcache.New(cfg.Cache.MemorySize)
		if err != nil {
			return nil, nil, err
		}
		return mc, nil, nil
	}
	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return rc, rc, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background jobs and releases connections.
func (a *App) Shutdown() {
	a.cancel()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
}
