// Package scheduler runs the periodic trending sweep: for every item type a
// reindex at the current time followed by a tail eviction under that type's
// retention policy.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/d60-Lab/trending/config"
	"github.com/d60-Lab/trending/internal/model"
	"github.com/d60-Lab/trending/internal/service"
	"github.com/d60-Lab/trending/pkg/logger"
)

// Sweeper is the part of the trending engine the scheduler drives.
type Sweeper interface {
	Reindex(ctx context.Context, itemType model.ItemType, cutoff time.Time) (service.ReindexStats, error)
	EvictTail(ctx context.Context, itemType model.ItemType, maxRetained int64, minScore float64) (service.EvictStats, error)
}

// Result 单个条目类型一次清扫的统计
type Result struct {
	ItemType model.ItemType       `json:"item_type"`
	Reindex  service.ReindexStats `json:"reindex"`
	Evict    service.EvictStats   `json:"evict"`
}

type Scheduler struct {
	cron      *cron.Cron
	engine    Sweeper
	retention config.RetentionSet
	itemTypes []model.ItemType
	now       func() time.Time
	location  *time.Location
}

type Option func(*Scheduler)

// WithClock 替换时间源，测试用
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithItemTypes 限定清扫的条目类型
func WithItemTypes(types ...model.ItemType) Option {
	return func(s *Scheduler) { s.itemTypes = types }
}

func New(cfg config.SchedulerConfig, retention config.RetentionSet, engine Sweeper, opts ...Option) (*Scheduler, error) {
	if engine == nil {
		return nil, errors.New("scheduler: engine must not be nil")
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	s := &Scheduler{
		engine:    engine,
		retention: retention,
		itemTypes: model.ItemTypes,
		now:       time.Now,
		location:  loc,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, t := range s.itemTypes {
		if _, ok := retention.For(string(t)); !ok {
			return nil, fmt.Errorf("scheduler: no retention policy for %q", t)
		}
	}

	cl := cronLogger{}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, t := range s.itemTypes {
		t := t
		if _, err := s.cron.AddFunc(cfg.Spec, func() {
			if _, err := s.sweep(context.Background(), t); err != nil {
				logger.Error("trending sweep failed", zap.String("item_type", string(t)), zap.Error(err))
			}
		}); err != nil {
			return nil, fmt.Errorf("add cron %q: %w", cfg.Spec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的清扫结束（或 ctx 到期）
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Location() *time.Location { return s.location }

// RunOnce 同步执行一轮完整清扫；某个类型失败不影响其余类型
func (s *Scheduler) RunOnce(ctx context.Context) ([]Result, error) {
	results := make([]Result, 0, len(s.itemTypes))
	var errs []error
	for _, t := range s.itemTypes {
		res, err := s.sweep(ctx, t)
		results = append(results, res)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

func (s *Scheduler) sweep(ctx context.Context, t model.ItemType) (Result, error) {
	res := Result{ItemType: t}
	policy, _ := s.retention.For(string(t))
	now := s.now().In(s.location)

	start := time.Now()
	stats, err := s.engine.Reindex(ctx, t, now)
	res.Reindex = stats
	if err != nil {
		return res, fmt.Errorf("reindex %s: %w", t, err)
	}
	evicted, err := s.engine.EvictTail(ctx, t, policy.MaxRetained, policy.MinScore)
	res.Evict = evicted
	if err != nil {
		return res, fmt.Errorf("evict %s: %w", t, err)
	}

	logger.Info("trending sweep finished",
		zap.String("item_type", string(t)),
		zap.Int("updated", stats.Updated),
		zap.Int("evicted", evicted.Evicted),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}

// cronLogger adapts the global zap logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.L().Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.L().Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
