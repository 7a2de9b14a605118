// Package control assembles the recovery engine from configuration.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/autoacdc/internal/core/config"
	"github.com/vietddude/autoacdc/internal/core/domain"
	"github.com/vietddude/autoacdc/internal/core/orchestrator"
	"github.com/vietddude/autoacdc/internal/infra/redis"
	"github.com/vietddude/autoacdc/internal/infra/reqmgr"
	"github.com/vietddude/autoacdc/internal/infra/rpc"
	"github.com/vietddude/autoacdc/internal/infra/sitedb"
	"github.com/vietddude/autoacdc/internal/infra/storage"
	"github.com/vietddude/autoacdc/internal/infra/storage/memory"
	"github.com/vietddude/autoacdc/internal/infra/storage/postgres"
	"github.com/vietddude/autoacdc/internal/metrics"
	"github.com/vietddude/autoacdc/internal/planning/sites"
)

// App holds the wired components of one CLI invocation.
type App struct {
	cfg          *config.AppConfig
	Orchestrator *orchestrator.Orchestrator
	Workflows    *reqmgr.Client
	Ledger       storage.RunRepository

	db          *postgres.DB
	redisClient *redis.Client
	httpClients []*rpc.Client
}

// NewApp creates the service clients, the run ledger and the orchestrator.
func NewApp(ctx context.Context, cfg *config.AppConfig, opts ...orchestrator.Option) (*App, error) {
	if cfg.Sites.URL == "" {
		return nil, errors.New("sites.url is not configured")
	}
	app := &App{cfg: cfg}

	// 1. Remote services
	reqmgrHTTP, err := rpc.NewClient("reqmgr", cfg.ReqMgr.HTTP, cfg.Auth)
	if err != nil {
		return nil, err
	}
	sitesHTTP, err := rpc.NewClient("sitedb", cfg.Sites.HTTP, cfg.Auth)
	if err != nil {
		return nil, err
	}
	app.httpClients = []*rpc.Client{reqmgrHTTP, sitesHTTP}
	app.Workflows = reqmgr.NewClient(reqmgrHTTP, cfg.ReqMgr.URL, cfg.ACDC)

	// 2. Site catalog, cached when Redis is available
	var siteProvider sites.Provider = sitedb.NewClient(sitesHTTP, cfg.Sites.URL)
	if cfg.Redis.URL != "" {
		rc, err := redis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, site cache disabled", "error", err)
		} else {
			app.redisClient = rc
			siteProvider = redis.NewCachedSiteProvider(siteProvider, rc, cfg.Sites.CacheTTL)
			slog.Debug("Using Redis site cache", "ttl", cfg.Sites.CacheTTL)
		}
	}

	// 3. Run ledger
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			app.Close()
			return nil, err
		}
		app.db = db
		app.Ledger = postgres.NewRunRepo(db)
		slog.Debug("Using PostgreSQL run ledger")
	} else {
		app.Ledger = memory.NewRunRepo()
		slog.Debug("Using Memory run ledger")
	}

	// 4. Orchestrator
	endpoints := orchestrator.Endpoints{Production: cfg.ReqMgr.URL, Testbed: cfg.ReqMgr.TestbedURL}
	opts = append([]orchestrator.Option{orchestrator.WithRecorder(app.Ledger)}, opts...)
	app.Orchestrator = orchestrator.New(
		endpoints,
		app.Workflows,
		siteProvider,
		app.Workflows,
		app.Workflows,
		opts...,
	)
	return app, nil
}

// Options fills unset options from the configured defaults.
func (a *App) Options(opts domain.Options) domain.Options {
	if opts.Team == "" {
		opts.Team = a.cfg.Defaults.Team
	}
	if opts.DashboardActivity == "" {
		opts.DashboardActivity = a.cfg.Defaults.Activity
	}
	if opts.ExceptionRules == nil {
		opts.ExceptionRules = a.cfg.Exceptions
	}
	return opts
}

// WriteMetrics exports the process metrics to the configured textfile.
func (a *App) WriteMetrics() error {
	return metrics.WriteTextfile(a.cfg.Metrics.Textfile)
}

// Close releases connections. It is safe to call on a partially built App.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.httpClients {
		errs = append(errs, c.Close())
	}
	if a.redisClient != nil {
		errs = append(errs, a.redisClient.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
