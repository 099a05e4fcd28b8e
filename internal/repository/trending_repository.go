package repository

import (
	"context"
	"iter"
	"math"
	"time"

	"github.com/d60-Lab/trending/internal/model"
)

// TrendingRepository 热度条目的持久化契约
// 所有写操作都是单条目的条件写（CAS），不持有跨调用的锁
type TrendingRepository interface {
	// Get returns (nil, nil) when the item has no record.
	Get(ctx context.Context, itemID string) (*model.TrendingRecord, error)
	// Create 新建条目：score=initialScore, pending=0, lastIndexedAt=createdAt=now
	Create(ctx context.Context, itemType model.ItemType, itemID string, initialScore float64, now time.Time) (*model.TrendingRecord, error)
	// Delete 删除并返回被删除的条目；不存在时返回 (nil, nil)
	Delete(ctx context.Context, itemID string, conds ...Condition) (*model.TrendingRecord, error)
	// IncrementPendingViews 要求 now 严格晚于 lastIndexedAt
	IncrementPendingViews(ctx context.Context, itemID string, amount int64, now time.Time) (*model.TrendingRecord, error)
	// IncrementScoreDirect 要求 now 恰好等于 lastIndexedAt
	IncrementScoreDirect(ctx context.Context, itemID string, amount float64, now time.Time) (*model.TrendingRecord, error)
	// UpdateScore 写入新分数并从 pending 中扣除 expectedPendingFold
	// 同时间戳的直接累加不改变 lastIndexedAt 与 pending，需要 WithExpectedScore 才能检测到
	UpdateScore(ctx context.Context, itemID string, newScore float64, newLastIndexedAt, expectedLastIndexedAt time.Time, expectedPendingFold int64, conds ...Condition) (*model.TrendingRecord, error)
	// ListByType 按 lastIndexedAt 升序惰性枚举，maxLastIndexedAt 非空时为闭区间上界
	ListByType(ctx context.Context, itemType model.ItemType, maxLastIndexedAt *time.Time) iter.Seq2[*model.TrendingRecord, error]
	// ListTailByType 按 score 升序惰性枚举
	ListTailByType(ctx context.Context, itemType model.ItemType) iter.Seq2[*model.TrendingRecord, error]
	CountByType(ctx context.Context, itemType model.ItemType) (int64, error)
}

// Condition adds a precondition to a conditional write.
type Condition func(*conditions)

type conditions struct {
	expectScore bool
	score       float64
}

// WithExpectedScore makes the write fail with ErrConcurrentModification when
// the stored score differs from score.
func WithExpectedScore(score float64) Condition {
	return func(c *conditions) {
		c.expectScore = true
		c.score = score
	}
}

func applyConditions(conds []Condition) conditions {
	var c conditions
	for _, cond := range conds {
		cond(&c)
	}
	return c
}

const (
	DefaultKeyPrefix = "trending"
	DefaultPageSize  = 200
)

// Option configures a TrendingRepository implementation.
type Option func(*options)

type options struct {
	keyPrefix string
	pageSize  int
}

// WithKeyPrefix sets the redis key namespace. The gorm store ignores it.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithPageSize sets how many records one enumeration round trip fetches.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{keyPrefix: DefaultKeyPrefix, pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func validScore(s float64) bool {
	return s >= 0 && !math.IsInf(s, 0) && !math.IsNaN(s)
}

func validateUpdate(newScore float64, newLastIndexedAt, expectedLastIndexedAt time.Time, fold int64) error {
	if !validScore(newScore) {
		return ErrInvalidScore
	}
	if fold < 0 {
		return ErrInvalidAmount
	}
	if model.Micros(newLastIndexedAt) < model.Micros(expectedLastIndexedAt) {
		return ErrInvalidOrdering
	}
	return nil
}
