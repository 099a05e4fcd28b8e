package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/trending/internal/model"
	"github.com/d60-Lab/trending/internal/repository"
	"github.com/d60-Lab/trending/internal/score"
	"github.com/d60-Lab/trending/pkg/alert"
	"github.com/d60-Lab/trending/pkg/logger"
)

var (
	ErrInvalidItemType  = errors.New("invalid trending item type")
	ErrInvalidItemID    = errors.New("trending item id is required")
	ErrItemTypeMismatch = errors.New("trending record belongs to another item type")
)

const DefaultMaxAttempts = 3

// RetryExhaustedError RecordView 在重试预算内始终遇到并发冲突
type RetryExhaustedError struct {
	ItemID   string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("record view for %s: gave up after %d attempts: %v", e.ItemID, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

type ReindexStats struct {
	Scanned   int `json:"scanned"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Unchanged int `json:"unchanged"`
}

type EvictStats struct {
	Scanned   int   `json:"scanned"`
	Evicted   int   `json:"evicted"`
	Skipped   int   `json:"skipped"`
	Remaining int64 `json:"remaining"`
}

// TrendingService 热度引擎：记录浏览、周期性衰减重算、尾部淘汰
type TrendingService interface {
	RecordView(ctx context.Context, itemType model.ItemType, itemID string, amount int64, now time.Time) (*model.TrendingRecord, error)
	Reindex(ctx context.Context, itemType model.ItemType, cutoff time.Time) (ReindexStats, error)
	EvictTail(ctx context.Context, itemType model.ItemType, maxRetained int64, minScore float64) (EvictStats, error)
	OnItemDeleted(ctx context.Context, itemID string) error
	Lookup(ctx context.Context, itemID string) (*model.TrendingRecord, error)
}

type Option func(*trendingService)

// WithMaxAttempts 交互路径上的冲突重试次数（含首次）
func WithMaxAttempts(n int) Option {
	return func(s *trendingService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithSweepRate 限制 reindex/evictTail 每秒写入次数，rps <= 0 表示不限速
func WithSweepRate(rps float64) Option {
	return func(s *trendingService) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithScoreModel(m score.Model) Option {
	return func(s *trendingService) {
		if m != nil {
			s.model = m
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *trendingService) {
		if t != nil {
			s.tracer = t
		}
	}
}

type trendingService struct {
	repo        repository.TrendingRepository
	model       score.Model
	maxAttempts int
	limiter     *rate.Limiter
	tracer      trace.Tracer
}

func NewTrendingService(repo repository.TrendingRepository, opts ...Option) TrendingService {
	s := &trendingService{
		repo:        repo,
		model:       score.Default,
		maxAttempts: DefaultMaxAttempts,
		tracer:      otel.Tracer("trending"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *trendingService) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "trending."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *trendingService) RecordView(ctx context.Context, itemType model.ItemType, itemID string, amount int64, now time.Time) (rec *model.TrendingRecord, err error) {
	ctx, span := s.start(ctx, "RecordView",
		attribute.String("trending.item_type", string(itemType)),
		attribute.String("trending.item_id", itemID),
		attribute.Int64("trending.amount", amount),
	)
	defer func() { endSpan(span, err) }()

	if amount <= 0 {
		return nil, nil
	}
	if !itemType.Valid() {
		return nil, ErrInvalidItemType
	}
	if itemID == "" {
		return nil, ErrInvalidItemID
	}

	var conflict error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		rec, err = s.recordOnce(ctx, itemType, itemID, amount, now)
		if !errors.Is(err, repository.ErrConcurrentModification) {
			return rec, err
		}
		conflict = err
		span.AddEvent("conflict", trace.WithAttributes(attribute.Int("attempt", attempt)))
		logger.Debug("record view conflict",
			zap.String("item_id", itemID),
			zap.Int("attempt", attempt),
		)
	}

	exhausted := &RetryExhaustedError{ItemID: itemID, Attempts: s.maxAttempts, Err: conflict}
	logger.Error("record view retry budget exhausted",
		zap.String("item_type", string(itemType)),
		zap.String("item_id", itemID),
		zap.Int("attempts", s.maxAttempts),
		zap.Error(conflict),
	)
	alert.Capture(exhausted, map[string]string{
		"item_type": string(itemType),
		"item_id":   itemID,
		"attempts":  strconv.Itoa(s.maxAttempts),
	})
	return nil, exhausted
}

// recordOnce 读取当前记录并选择分支：新建 / 直接累加 / 进入 pending
func (s *trendingService) recordOnce(ctx context.Context, itemType model.ItemType, itemID string, amount int64, now time.Time) (*model.TrendingRecord, error) {
	cur, err := s.repo.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return s.repo.Create(ctx, itemType, itemID, float64(amount), now)
	}
	if cur.ItemType != itemType {
		return nil, fmt.Errorf("%w: %s is tracked as %s", ErrItemTypeMismatch, itemID, cur.ItemType)
	}

	ts := model.Micros(now)
	switch {
	case ts == cur.LastIndexedAt:
		return s.repo.IncrementScoreDirect(ctx, itemID, float64(amount), now)
	case ts > cur.LastIndexedAt:
		return s.repo.IncrementPendingViews(ctx, itemID, amount, now)
	default:
		logger.Info("drop out-of-order view",
			zap.String("item_id", itemID),
			zap.Time("view_at", now),
			zap.Time("last_indexed_at", cur.IndexedAt()),
		)
		return nil, fmt.Errorf("view of %s at %s precedes %s: %w",
			itemID, now.UTC().Format(time.RFC3339Nano), cur.IndexedAt().Format(time.RFC3339Nano), repository.ErrInvalidOrdering)
	}
}

func (s *trendingService) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func (s *trendingService) Reindex(ctx context.Context, itemType model.ItemType, cutoff time.Time) (stats ReindexStats, err error) {
	ctx, span := s.start(ctx, "Reindex",
		attribute.String("trending.item_type", string(itemType)),
		attribute.String("trending.cutoff", cutoff.UTC().Format(time.RFC3339Nano)),
	)
	defer func() {
		span.SetAttributes(
			attribute.Int("trending.updated", stats.Updated),
			attribute.Int("trending.skipped", stats.Skipped),
		)
		endSpan(span, err)
	}()

	if !itemType.Valid() {
		return stats, ErrInvalidItemType
	}
	// 与存储精度对齐
	cutoff = model.FromMicros(model.Micros(cutoff))
	cutoffUs := model.Micros(cutoff)

	for rec, err := range s.repo.ListByType(ctx, itemType, &cutoff) {
		if err != nil {
			return stats, fmt.Errorf("list %s for reindex: %w", itemType, err)
		}
		stats.Scanned++
		if rec.LastIndexedAt > cutoffUs {
			// 读取后被更晚的清扫推进
			stats.Skipped++
			continue
		}
		if rec.LastIndexedAt == cutoffUs && rec.PendingViewCount == 0 {
			stats.Unchanged++
			continue
		}
		if err := s.wait(ctx); err != nil {
			return stats, err
		}

		pending := rec.PendingViewCount
		newScore := s.model.NewScore(rec.Score, rec.IndexedAt(), pending, cutoff)
		_, err := s.repo.UpdateScore(ctx, rec.ItemID, newScore, cutoff, rec.IndexedAt(), pending,
			repository.WithExpectedScore(rec.Score))
		switch {
		case err == nil:
			stats.Updated++
		case errors.Is(err, repository.ErrConcurrentModification), errors.Is(err, repository.ErrNotFound):
			// 下一轮清扫会修正
			stats.Skipped++
			logger.Debug("reindex skipped record", zap.String("item_id", rec.ItemID), zap.Error(err))
		default:
			return stats, fmt.Errorf("reindex %s: %w", rec.ItemID, err)
		}
	}

	logger.Info("reindex finished",
		zap.String("item_type", string(itemType)),
		zap.Time("cutoff", cutoff),
		zap.Int("scanned", stats.Scanned),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("unchanged", stats.Unchanged),
	)
	return stats, nil
}

func (s *trendingService) EvictTail(ctx context.Context, itemType model.ItemType, maxRetained int64, minScore float64) (stats EvictStats, err error) {
	ctx, span := s.start(ctx, "EvictTail",
		attribute.String("trending.item_type", string(itemType)),
		attribute.Int64("trending.max_retained", maxRetained),
		attribute.Float64("trending.min_score", minScore),
	)
	defer func() {
		span.SetAttributes(attribute.Int("trending.evicted", stats.Evicted))
		endSpan(span, err)
	}()

	if !itemType.Valid() {
		return stats, ErrInvalidItemType
	}
	remaining, err := s.repo.CountByType(ctx, itemType)
	if err != nil {
		return stats, fmt.Errorf("count %s: %w", itemType, err)
	}

	for rec, err := range s.repo.ListTailByType(ctx, itemType) {
		if err != nil {
			return stats, fmt.Errorf("list %s tail: %w", itemType, err)
		}
		overCap := maxRetained > 0 && remaining > maxRetained
		if !overCap && rec.Score >= minScore {
			break
		}
		stats.Scanned++
		if err := s.wait(ctx); err != nil {
			return stats, err
		}

		deleted, err := s.repo.Delete(ctx, rec.ItemID, repository.WithExpectedScore(rec.Score))
		switch {
		case errors.Is(err, repository.ErrConcurrentModification):
			stats.Skipped++
			logger.Debug("evict skipped record", zap.String("item_id", rec.ItemID), zap.Float64("score", rec.Score))
		case err != nil:
			return stats, fmt.Errorf("evict %s: %w", rec.ItemID, err)
		case deleted == nil:
			// 已被其他流程删除
			remaining--
		default:
			stats.Evicted++
			remaining--
		}
	}
	stats.Remaining = remaining

	logger.Info("evict tail finished",
		zap.String("item_type", string(itemType)),
		zap.Int64("max_retained", maxRetained),
		zap.Float64("min_score", minScore),
		zap.Int("evicted", stats.Evicted),
		zap.Int("skipped", stats.Skipped),
		zap.Int64("remaining", remaining),
	)
	return stats, nil
}

func (s *trendingService) OnItemDeleted(ctx context.Context, itemID string) (err error) {
	ctx, span := s.start(ctx, "OnItemDeleted", attribute.String("trending.item_id", itemID))
	defer func() { endSpan(span, err) }()

	rec, err := s.repo.Delete(ctx, itemID)
	if err != nil {
		logger.Warn("delete trending record failed", zap.String("item_id", itemID), zap.Error(err))
		return err
	}
	if rec != nil {
		logger.Debug("trending record deleted", zap.String("item_id", itemID))
	}
	return nil
}

func (s *trendingService) Lookup(ctx context.Context, itemID string) (rec *model.TrendingRecord, err error) {
	ctx, span := s.start(ctx, "Lookup", attribute.String("trending.item_id", itemID))
	defer func() { endSpan(span, err) }()

	if itemID == "" {
		return nil, ErrInvalidItemID
	}
	return s.repo.Get(ctx, itemID)
}
