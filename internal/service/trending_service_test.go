package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/trending/internal/model"
	"github.com/d60-Lab/trending/internal/repository"
	"github.com/d60-Lab/trending/internal/score"
	"github.com/d60-Lab/trending/pkg/logger"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newGormRepo(t *testing.T) repository.TrendingRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repository.InitSchema(db))
	return repository.NewGormTrendingRepository(db, repository.WithPageSize(3))
}

func newRedisRepo(t *testing.T) repository.TrendingRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return repository.NewRedisTrendingRepository(client, repository.WithPageSize(3))
}

func forEachStore(t *testing.T, fn func(t *testing.T, repo repository.TrendingRepository)) {
	t.Run("gorm", func(t *testing.T) { fn(t, newGormRepo(t)) })
	t.Run("redis", func(t *testing.T) { fn(t, newRedisRepo(t)) })
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zapcore.DebugLevel)
	logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(nil) })
	return logs
}

// conflictRepo 前 conflicts 次自增调用返回并发冲突
type conflictRepo struct {
	repository.TrendingRepository
	conflicts int
	calls     int
}

func (r *conflictRepo) IncrementPendingViews(ctx context.Context, itemID string, amount int64, now time.Time) (*model.TrendingRecord, error) {
	r.calls++
	if r.conflicts > 0 {
		r.conflicts--
		return nil, repository.ErrConcurrentModification
	}
	return r.TrendingRepository.IncrementPendingViews(ctx, itemID, amount, now)
}

func (r *conflictRepo) IncrementScoreDirect(ctx context.Context, itemID string, amount float64, now time.Time) (*model.TrendingRecord, error) {
	r.calls++
	if r.conflicts > 0 {
		r.conflicts--
		return nil, repository.ErrConcurrentModification
	}
	return r.TrendingRepository.IncrementScoreDirect(ctx, itemID, amount, now)
}

// racingRepo 在条件写之前执行一次"并发"写
type racingRepo struct {
	repository.TrendingRepository
	beforeUpdate func(itemID string)
	beforeDelete func(itemID string)
}

func (r *racingRepo) UpdateScore(ctx context.Context, itemID string, newScore float64, newLastIndexedAt, expectedLastIndexedAt time.Time, fold int64, conds ...repository.Condition) (*model.TrendingRecord, error) {
	if r.beforeUpdate != nil {
		r.beforeUpdate(itemID)
	}
	return r.TrendingRepository.UpdateScore(ctx, itemID, newScore, newLastIndexedAt, expectedLastIndexedAt, fold, conds...)
}

func (r *racingRepo) Delete(ctx context.Context, itemID string, conds ...repository.Condition) (*model.TrendingRecord, error) {
	if r.beforeDelete != nil {
		r.beforeDelete(itemID)
	}
	return r.TrendingRepository.Delete(ctx, itemID, conds...)
}

func TestEndToEndScenario(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		svc := NewTrendingService(repo)

		rec, err := svc.RecordView(ctx, model.ItemTypePost, "p1", 10, t0)
		require.NoError(t, err)
		assert.Equal(t, 10.0, rec.Score)
		assert.Equal(t, int64(0), rec.PendingViewCount)
		assert.True(t, rec.IndexedAt().Equal(t0))

		rec, err = svc.RecordView(ctx, model.ItemTypePost, "p1", 5, t0)
		require.NoError(t, err)
		assert.Equal(t, 15.0, rec.Score)
		assert.Equal(t, int64(0), rec.PendingViewCount)

		rec, err = svc.RecordView(ctx, model.ItemTypePost, "p1", 3, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 15.0, rec.Score)
		assert.Equal(t, int64(3), rec.PendingViewCount)

		cutoff := t0.Add(24 * time.Hour)
		stats, err := svc.Reindex(ctx, model.ItemTypePost, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Updated)

		rec, err = svc.Lookup(ctx, "p1")
		require.NoError(t, err)
		assert.InDelta(t, 15/math.E+3, rec.Score, 1e-9)
		assert.InDelta(t, 8.518, rec.Score, 1e-3)
		assert.Equal(t, int64(0), rec.PendingViewCount)
		assert.True(t, rec.IndexedAt().Equal(cutoff))
	})
}

func TestRecordViewSameTimestampGoesToScore(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		svc := NewTrendingService(repo)

		_, err := svc.RecordView(ctx, model.ItemTypeUser, "u1", 1, t0)
		require.NoError(t, err)
		for i := 0; i < 4; i++ {
			rec, err := svc.RecordView(ctx, model.ItemTypeUser, "u1", 2, t0)
			require.NoError(t, err)
			assert.Equal(t, int64(0), rec.PendingViewCount)
		}
		rec, err := svc.Lookup(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 9.0, rec.Score)
	})
}

func TestRecordViewLaterTimestampGoesToPending(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		svc := NewTrendingService(repo)

		_, err := svc.RecordView(ctx, model.ItemTypePost, "p1", 4, t0)
		require.NoError(t, err)
		for i, amount := range []int64{1, 7, 2} {
			before, err := svc.Lookup(ctx, "p1")
			require.NoError(t, err)
			rec, err := svc.RecordView(ctx, model.ItemTypePost, "p1", amount, t0.Add(time.Duration(i+1)*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, before.PendingViewCount+amount, rec.PendingViewCount)
			assert.Equal(t, 4.0, rec.Score)
		}
	})
}

func TestRecordViewRejectsOutOfOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		svc := NewTrendingService(repo)
		logs := observeLogs(t)

		_, err := svc.RecordView(ctx, model.ItemTypePost, "p1", 2, t0)
		require.NoError(t, err)
		_, err = svc.Reindex(ctx, model.ItemTypePost, t0.Add(time.Hour))
		require.NoError(t, err)
		before, err := svc.Lookup(ctx, "p1")
		require.NoError(t, err)

		rec, err := svc.RecordView(ctx, model.ItemTypePost, "p1", 5, t0.Add(30*time.Minute))
		assert.Nil(t, rec)
		assert.ErrorIs(t, err, repository.ErrInvalidOrdering)
		assert.Equal(t, 1, logs.FilterMessage("drop out-of-order view").Len())

		after, err := svc.Lookup(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestRecordViewValidation(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		svc := NewTrendingService(repo)

		_, err := svc.RecordView(ctx, model.ItemType("comment"), "c1", 1, t0)
		assert.ErrorIs(t, err, ErrInvalidItemType)
		_, err = svc.RecordView(ctx, model.ItemTypePost, "", 1, t0)
		assert.ErrorIs(t, err, ErrInvalidItemID)

		rec, err := svc.RecordView(ctx, model.ItemTypePost, "p1", 0, t0)
		assert.NoError(t, err)
		assert.Nil(t, rec)
		got, err := svc.Lookup(ctx, "p1")
		require.NoError(t, err)
		assert.Nil(t, got, "non-positive amount creates nothing")

		rec, err = svc.RecordView(ctx, model.ItemType("comment"), "", -3, t0)
		assert.NoError(t, err, "non-positive amount is a no-op before any other check")
		assert.Nil(t, rec)

		_, err = svc.RecordView(ctx, model.ItemTypePost, "x1", 1, t0)
		require.NoError(t, err)
		_, err = svc.RecordView(ctx, model.ItemTypeUser, "x1", 1, t0.Add(time.Minute))
		assert.ErrorIs(t, err, ErrItemTypeMismatch)
	})
}

func TestRecordViewRetriesConflicts(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		_, err := repo.Create(ctx, model.ItemTypePost, "p1", 1, t0)
		require.NoError(t, err)

		flaky := &conflictRepo{TrendingRepository: repo, conflicts: 2}
		svc := NewTrendingService(flaky, WithMaxAttempts(3))

		rec, err := svc.RecordView(ctx, model.ItemTypePost, "p1", 4, t0.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(4), rec.PendingViewCount)
		assert.Equal(t, 3, flaky.calls)
	})
}

func TestRecordViewRetryExhausted(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		logs := observeLogs(t)
		_, err := repo.Create(ctx, model.ItemTypePost, "p1", 1, t0)
		require.NoError(t, err)

		flaky := &conflictRepo{TrendingRepository: repo, conflicts: 100}
		svc := NewTrendingService(flaky, WithMaxAttempts(3))

		rec, err := svc.RecordView(ctx, model.ItemTypePost, "p1", 4, t0)
		assert.Nil(t, rec)

		var exhausted *RetryExhaustedError
		require.True(t, errors.As(err, &exhausted))
		assert.Equal(t, "p1", exhausted.ItemID)
		assert.Equal(t, 3, exhausted.Attempts)
		assert.ErrorIs(t, err, repository.ErrConcurrentModification)
		assert.Equal(t, 3, flaky.calls, "retry budget is bounded")

		entries := logs.FilterMessage("record view retry budget exhausted").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)

		got, err := repo.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 1.0, got.Score)
	})
}

func TestReindexIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		svc := NewTrendingService(repo)

		for i := 0; i < 7; i++ {
			id := fmt.Sprintf("p%d", i)
			_, err := svc.RecordView(ctx, model.ItemTypePost, id, int64(i+1), t0.Add(time.Duration(i)*time.Hour))
			require.NoError(t, err)
			_, err = svc.RecordView(ctx, model.ItemTypePost, id, 2, t0.Add(time.Duration(i)*time.Hour+time.Minute))
			require.NoError(t, err)
		}

		cutoff := t0.Add(48 * time.Hour)
		first, err := svc.Reindex(ctx, model.ItemTypePost, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 7, first.Updated)
		snapshot := make(map[string]*model.TrendingRecord)
		for i := 0; i < 7; i++ {
			id := fmt.Sprintf("p%d", i)
			rec, err := svc.Lookup(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, int64(0), rec.PendingViewCount)
			snapshot[id] = rec
		}

		second, err := svc.Reindex(ctx, model.ItemTypePost, cutoff)
		require.NoError(t, err)
		assert.Zero(t, second.Updated)
		for id, want := range snapshot {
			got, err := svc.Lookup(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})
}

func TestReindexRespectsCutoff(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		svc := NewTrendingService(repo)

		_, err := svc.RecordView(ctx, model.ItemTypePost, "old", 1, t0)
		require.NoError(t, err)
		_, err = svc.RecordView(ctx, model.ItemTypePost, "new", 1, t0.Add(10*time.Hour))
		require.NoError(t, err)
		_, err = svc.RecordView(ctx, model.ItemTypeUser, "u1", 1, t0)
		require.NoError(t, err)

		stats, err := svc.Reindex(ctx, model.ItemTypePost, t0.Add(5*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Updated)

		fresh, err := svc.Lookup(ctx, "new")
		require.NoError(t, err)
		assert.Equal(t, 1.0, fresh.Score)
		user, err := svc.Lookup(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, user.IndexedAt().Equal(t0), "other item types are untouched")
	})
}

func TestReindexKeepsViewsRecordedMidSweep(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		_, err := repo.Create(ctx, model.ItemTypePost, "p1", 10, t0)
		require.NoError(t, err)
		_, err = repo.IncrementPendingViews(ctx, "p1", 3, t0.Add(time.Hour))
		require.NoError(t, err)

		race := &racingRepo{TrendingRepository: repo}
		race.beforeUpdate = func(itemID string) {
			_, err := repo.IncrementPendingViews(ctx, itemID, 2, t0.Add(2*time.Hour))
			require.NoError(t, err)
		}
		svc := NewTrendingService(race)

		cutoff := t0.Add(24 * time.Hour)
		stats, err := svc.Reindex(ctx, model.ItemTypePost, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Updated)

		rec, err := repo.Get(ctx, "p1")
		require.NoError(t, err)
		assert.InDelta(t, 10/math.E+3, rec.Score, 1e-9)
		assert.Equal(t, int64(2), rec.PendingViewCount, "views recorded after the read wait for the next sweep")
	})
}

func TestReindexSkipsConflicts(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		_, err := repo.Create(ctx, model.ItemTypePost, "p1", 10, t0)
		require.NoError(t, err)
		_, err = repo.Create(ctx, model.ItemTypePost, "p2", 10, t0)
		require.NoError(t, err)

		race := &racingRepo{TrendingRepository: repo}
		race.beforeUpdate = func(itemID string) {
			if itemID != "p1" {
				return
			}
			// 另一个 reindex 抢先推进了 p1
			_, err := repo.UpdateScore(ctx, itemID, 4, t0.Add(time.Hour), t0, 0)
			require.NoError(t, err)
		}
		svc := NewTrendingService(race)

		stats, err := svc.Reindex(ctx, model.ItemTypePost, t0.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Skipped)
		assert.GreaterOrEqual(t, stats.Updated, 1)

		p1, err := repo.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 4.0, p1.Score, "conflicting record is left for the next pass")
	})
}

func TestReindexSkipsSameTimestampViewRace(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		_, err := repo.Create(ctx, model.ItemTypePost, "p1", 10, t0)
		require.NoError(t, err)

		writer := NewTrendingService(repo)
		race := &racingRepo{TrendingRepository: repo}
		race.beforeUpdate = func(itemID string) {
			_, err := writer.RecordView(ctx, model.ItemTypePost, itemID, 5, t0)
			require.NoError(t, err)
		}
		svc := NewTrendingService(race)

		cutoff := t0.Add(24 * time.Hour)
		stats, err := svc.Reindex(ctx, model.ItemTypePost, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Updated)
		assert.Equal(t, 1, stats.Skipped)

		rec, err := repo.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 15.0, rec.Score, "the direct increment survives the sweep")

		race.beforeUpdate = nil
		stats, err = svc.Reindex(ctx, model.ItemTypePost, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Updated)

		rec, err = repo.Get(ctx, "p1")
		require.NoError(t, err)
		assert.InDelta(t, 15/math.E, rec.Score, 1e-9)
	})
}

// laggingListRepo 模拟枚举读到的条目已被更晚的清扫推进
type laggingListRepo struct {
	repository.TrendingRepository
	advance time.Duration
}

func (r *laggingListRepo) ListByType(ctx context.Context, itemType model.ItemType, maxLastIndexedAt *time.Time) iter.Seq2[*model.TrendingRecord, error] {
	return func(yield func(*model.TrendingRecord, error) bool) {
		for rec, err := range r.TrendingRepository.ListByType(ctx, itemType, maxLastIndexedAt) {
			if rec != nil {
				moved := *rec
				moved.LastIndexedAt += r.advance.Microseconds()
				rec = &moved
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}

func TestReindexSkipsRecordsAdvancedPastCutoff(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		_, err := repo.Create(ctx, model.ItemTypePost, "p1", 10, t0)
		require.NoError(t, err)

		svc := NewTrendingService(&laggingListRepo{TrendingRepository: repo, advance: 48 * time.Hour})
		stats, err := svc.Reindex(ctx, model.ItemTypePost, t0.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Scanned)
		assert.Equal(t, 1, stats.Skipped)
		assert.Equal(t, 0, stats.Updated)
	})
}

func TestConcurrentViewsAndReindexKeepEveryView(t *testing.T) {
	const (
		writers = 8
		views   = 60
	)
	// 不衰减的模型下 score+pending 必须等于所有成功记录的浏览量之和
	sum := score.Func(func(oldScore float64, _ time.Time, pending int64, _ time.Time) float64 {
		return oldScore + float64(pending)
	})

	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		svc := NewTrendingService(repo, WithScoreModel(sum), WithMaxAttempts(100))

		var (
			clock    atomic.Int64
			accepted atomic.Int64
			wg       sync.WaitGroup
		)
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < views; i++ {
					amount := int64(1 + (w+i)%3)
					now := t0.Add(time.Duration(clock.Add(1)) * time.Microsecond)
					if _, err := svc.RecordView(ctx, model.ItemTypePost, "hot", amount, now); err == nil {
						accepted.Add(amount)
					}
				}
			}(w)
		}

		done := make(chan struct{})
		sweeps := make(chan error, 1)
		go func() {
			for {
				select {
				case <-done:
					sweeps <- nil
					return
				default:
				}
				cutoff := t0.Add(time.Duration(clock.Load()) * time.Microsecond)
				if _, err := svc.Reindex(ctx, model.ItemTypePost, cutoff); err != nil {
					sweeps <- err
					return
				}
			}
		}()

		wg.Wait()
		close(done)
		require.NoError(t, <-sweeps)

		rec, err := repo.Get(ctx, "hot")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Positive(t, accepted.Load())
		assert.Equal(t, float64(accepted.Load()), rec.Score+float64(rec.PendingViewCount))
	})
}

func TestReindexThrottleHonoursDeadline(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			_, err := repo.Create(ctx, model.ItemTypePost, fmt.Sprintf("p%d", i), 1, t0)
			require.NoError(t, err)
		}
		svc := NewTrendingService(repo, WithSweepRate(0.001))

		dctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		stats, err := svc.Reindex(dctx, model.ItemTypePost, t0.Add(time.Hour))
		assert.Error(t, err)
		assert.Equal(t, 1, stats.Updated)
	})
}

func TestEvictionScenario(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		svc := NewTrendingService(repo)

		_, err := svc.RecordView(ctx, model.ItemTypePost, "p1", 1, t0)
		require.NoError(t, err)
		_, err = svc.Reindex(ctx, model.ItemTypePost, t0.Add(25*time.Hour))
		require.NoError(t, err)

		rec, err := svc.Lookup(ctx, "p1")
		require.NoError(t, err)
		assert.InDelta(t, math.Exp(-25.0/24.0), rec.Score, 1e-9)
		assert.InDelta(t, 0.353, rec.Score, 1e-3)

		stats, err := svc.EvictTail(ctx, model.ItemTypePost, 100, 0.5)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Evicted)

		rec, err = svc.Lookup(ctx, "p1")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})
}

func TestEvictTailAbstainsOnConcurrentBump(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		_, err := repo.Create(ctx, model.ItemTypePost, "low", 0.1, t0)
		require.NoError(t, err)
		_, err = repo.Create(ctx, model.ItemTypePost, "bumped", 0.2, t0)
		require.NoError(t, err)

		race := &racingRepo{TrendingRepository: repo}
		race.beforeDelete = func(itemID string) {
			if itemID != "bumped" {
				return
			}
			_, err := repo.IncrementScoreDirect(ctx, itemID, 5, t0)
			require.NoError(t, err)
		}
		svc := NewTrendingService(race)

		stats, err := svc.EvictTail(ctx, model.ItemTypePost, 0, 0.5)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Evicted)
		assert.Equal(t, 1, stats.Skipped)

		got, err := repo.Get(ctx, "bumped")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.InDelta(t, 5.2, got.Score, 1e-9)
	})
}

func TestEvictTailRetentionProperties(t *testing.T) {
	scores := []float64{0.05, 0.3, 0.3, 0.49, 0.5, 0.75, 1, 2, 2, 3.5, 8, 13}
	policies := []struct {
		maxRetained int64
		minScore    float64
	}{
		{0, 0.5}, {5, 0}, {5, 0.5}, {3, 1}, {100, 0.3}, {1, 100}, {20, 0},
	}

	for _, p := range policies {
		p := p
		t.Run(fmt.Sprintf("max=%d/min=%v", p.maxRetained, p.minScore), func(t *testing.T) {
			forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
				ctx := context.Background()
				for i, s := range scores {
					_, err := repo.Create(ctx, model.ItemTypePost, fmt.Sprintf("p%02d", i), s, t0)
					require.NoError(t, err)
				}
				_, err := repo.Create(ctx, model.ItemTypeUser, "u1", 0, t0)
				require.NoError(t, err)
				svc := NewTrendingService(repo)

				stats, err := svc.EvictTail(ctx, model.ItemTypePost, p.maxRetained, p.minScore)
				require.NoError(t, err)

				var survivors []float64
				for rec, err := range repo.ListTailByType(ctx, model.ItemTypePost) {
					require.NoError(t, err)
					survivors = append(survivors, rec.Score)
				}
				assert.Equal(t, int64(len(survivors)), stats.Remaining)
				assert.Equal(t, len(scores)-len(survivors), stats.Evicted)

				if p.maxRetained > 0 {
					assert.LessOrEqual(t, int64(len(survivors)), p.maxRetained)
				}
				for _, s := range survivors {
					assert.GreaterOrEqual(t, s, p.minScore)
				}
				// only the tail is evicted
				if len(survivors) > 0 && stats.Evicted > 0 {
					assert.LessOrEqual(t, scores[stats.Evicted-1], survivors[0])
				}
				// nothing above the floor is evicted unless the cap requires it
				above := 0
				for _, s := range scores {
					if s >= p.minScore {
						above++
					}
				}
				want := above
				if p.maxRetained > 0 && int64(want) > p.maxRetained {
					want = int(p.maxRetained)
				}
				assert.Equal(t, want, len(survivors))

				n, err := repo.CountByType(ctx, model.ItemTypeUser)
				require.NoError(t, err)
				assert.Equal(t, int64(1), n, "other item types are untouched")
			})
		})
	}
}

func TestEvictTailEmpty(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		stats, err := NewTrendingService(repo).EvictTail(context.Background(), model.ItemTypePost, 10, 0.5)
		require.NoError(t, err)
		assert.Equal(t, EvictStats{}, stats)
	})
}

func TestOnItemDeleted(t *testing.T) {
	forEachStore(t, func(t *testing.T, repo repository.TrendingRepository) {
		ctx := context.Background()
		svc := NewTrendingService(repo)

		assert.NoError(t, svc.OnItemDeleted(ctx, "never-tracked"))

		_, err := svc.RecordView(ctx, model.ItemTypePost, "p1", 1, t0)
		require.NoError(t, err)
		require.NoError(t, svc.OnItemDeleted(ctx, "p1"))
		rec, err := svc.Lookup(ctx, "p1")
		require.NoError(t, err)
		assert.Nil(t, rec)

		assert.NoError(t, svc.OnItemDeleted(ctx, "p1"), "second delete is a no-op")
	})
}

func TestInvalidItemTypeOnSweeps(t *testing.T) {
	svc := NewTrendingService(newGormRepo(t))
	_, err := svc.Reindex(context.Background(), "comment", t0)
	assert.ErrorIs(t, err, ErrInvalidItemType)
	_, err = svc.EvictTail(context.Background(), "comment", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidItemType)
}
