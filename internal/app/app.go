// Package app wires configuration, storage, observability and the trending
// engine together for the command line entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/trending/config"
	"github.com/d60-Lab/trending/internal/repository"
	"github.com/d60-Lab/trending/internal/scheduler"
	"github.com/d60-Lab/trending/internal/score"
	"github.com/d60-Lab/trending/internal/service"
	"github.com/d60-Lab/trending/pkg/alert"
	"github.com/d60-Lab/trending/pkg/database"
	"github.com/d60-Lab/trending/pkg/logger"
	"github.com/d60-Lab/trending/pkg/tracing"
)

type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Repo     repository.TrendingRepository
	Trending service.TrendingService

	shutdownTracing tracing.ShutdownFunc
}

// New 初始化日志、告警、追踪与存储后端，并构建热度引擎
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	if err := alert.Init(cfg.Sentry.DSN, cfg.Sentry.Environment, cfg.Sentry.SampleRate); err != nil {
		return nil, err
	}

	a := &App{Config: cfg}
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(ctx, cfg.Tracing)
		if err != nil {
			return nil, err
		}
		a.shutdownTracing = shutdown
	}

	repo, err := a.openStore(cfg)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Repo = repo
	a.Trending = service.NewTrendingService(repo,
		service.WithMaxAttempts(cfg.Trending.MaxAttempts),
		service.WithSweepRate(cfg.Trending.SweepRPS),
		service.WithScoreModel(score.ExponentialDecay{Lifetime: cfg.Trending.DecayLifetime}),
	)

	logger.Info("trending engine ready",
		zap.String("store", cfg.Trending.Store),
		zap.Int("max_attempts", cfg.Trending.MaxAttempts),
		zap.Duration("decay_lifetime", cfg.Trending.DecayLifetime),
	)
	return a, nil
}

func (a *App) openStore(cfg *config.Config) (repository.TrendingRepository, error) {
	opts := []repository.Option{
		repository.WithKeyPrefix(cfg.Trending.KeyPrefix),
		repository.WithPageSize(cfg.Trending.PageSize),
	}
	switch cfg.Trending.Store {
	case "redis":
		client, err := database.InitRedis(cfg)
		if err != nil {
			return nil, err
		}
		a.Redis = client
		return repository.NewRedisTrendingRepository(client, opts...), nil
	case "gorm":
		db, err := database.InitDB(cfg)
		if err != nil {
			return nil, err
		}
		a.DB = db
		return repository.NewGormTrendingRepository(db, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported trending store %q", cfg.Trending.Store)
	}
}

// Migrate 为 SQL 后端建表；redis 后端无需迁移
func (a *App) Migrate() error {
	if a.DB == nil {
		return nil
	}
	return repository.InitSchema(a.DB)
}

func (a *App) Scheduler(opts ...scheduler.Option) (*scheduler.Scheduler, error) {
	return scheduler.New(a.Config.Scheduler, a.Config.Trending.Retention, a.Trending, opts...)
}

// Close 释放连接并刷新日志、告警与追踪缓冲
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	errs = append(errs, database.Close(a.DB))
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
	}
	alert.Flush(2 * time.Second)
	logger.Sync()
	return errors.Join(errs...)
}
