package repository

import (
	"context"
	"iter"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/trending/internal/model"
)

type gormTrendingRepository struct {
	db   *gorm.DB
	opts options
}

// NewGormTrendingRepository 基于 gorm 的实现（PostgreSQL / SQLite）
// 每个写操作是事务内的一条条件 UPDATE/DELETE/INSERT，影响行数为 0 时重新读取该行区分失败原因
func NewGormTrendingRepository(db *gorm.DB, opts ...Option) TrendingRepository {
	return &gormTrendingRepository{db: db, opts: applyOptions(opts)}
}

// InitSchema 建表与索引
func InitSchema(db *gorm.DB) error {
	return db.AutoMigrate(&model.TrendingRecord{})
}

func (r *gormTrendingRepository) Get(ctx context.Context, itemID string) (*model.TrendingRecord, error) {
	return findRecord(r.db.WithContext(ctx), itemID)
}

func findRecord(tx *gorm.DB, itemID string) (*model.TrendingRecord, error) {
	var rec model.TrendingRecord
	res := tx.Where("item_id = ?", itemID).Limit(1).Find(&rec)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (r *gormTrendingRepository) Create(ctx context.Context, itemType model.ItemType, itemID string, initialScore float64, now time.Time) (*model.TrendingRecord, error) {
	if !validScore(initialScore) {
		return nil, ErrInvalidScore
	}
	ts := model.Micros(now)
	rec := &model.TrendingRecord{
		ItemID:        itemID,
		ItemType:      itemType,
		Score:         initialScore,
		LastIndexedAt: ts,
		CreatedAt:     ts,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyExists
	}
	return rec, nil
}

func (r *gormTrendingRepository) Delete(ctx context.Context, itemID string, conds ...Condition) (*model.TrendingRecord, error) {
	o := applyConditions(conds)
	var deleted *model.TrendingRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := findRecord(tx, itemID)
		if err != nil || cur == nil {
			return err
		}
		if o.expectScore && cur.Score != o.score {
			return ErrConcurrentModification
		}
		// 以读到的 score 为条件，防止读与删之间分数被并发更新
		res := tx.Where("item_id = ? AND score = ?", itemID, cur.Score).Delete(&model.TrendingRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			again, err := findRecord(tx, itemID)
			if err != nil {
				return err
			}
			if again == nil {
				return nil
			}
			return ErrConcurrentModification
		}
		deleted = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *gormTrendingRepository) IncrementPendingViews(ctx context.Context, itemID string, amount int64, now time.Time) (*model.TrendingRecord, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	ts := model.Micros(now)
	return r.conditionalUpdate(ctx, itemID, ErrInvalidOrdering, func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&model.TrendingRecord{}).
			Where("item_id = ? AND last_indexed_at < ?", itemID, ts).
			UpdateColumn("pending_view_count", gorm.Expr("pending_view_count + ?", amount))
	})
}

func (r *gormTrendingRepository) IncrementScoreDirect(ctx context.Context, itemID string, amount float64, now time.Time) (*model.TrendingRecord, error) {
	if !(amount > 0) {
		return nil, ErrInvalidAmount
	}
	ts := model.Micros(now)
	return r.conditionalUpdate(ctx, itemID, ErrStaleIndex, func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&model.TrendingRecord{}).
			Where("item_id = ? AND last_indexed_at = ?", itemID, ts).
			UpdateColumn("score", gorm.Expr("score + ?", amount))
	})
}

func (r *gormTrendingRepository) UpdateScore(ctx context.Context, itemID string, newScore float64, newLastIndexedAt, expectedLastIndexedAt time.Time, expectedPendingFold int64, conds ...Condition) (*model.TrendingRecord, error) {
	if err := validateUpdate(newScore, newLastIndexedAt, expectedLastIndexedAt, expectedPendingFold); err != nil {
		return nil, err
	}
	o := applyConditions(conds)
	expected := model.Micros(expectedLastIndexedAt)
	return r.conditionalUpdate(ctx, itemID, ErrConcurrentModification, func(tx *gorm.DB) *gorm.DB {
		q := tx.Model(&model.TrendingRecord{}).
			Where("item_id = ? AND last_indexed_at = ? AND pending_view_count >= ?", itemID, expected, expectedPendingFold)
		if o.expectScore {
			q = q.Where("score = ?", o.score)
		}
		return q.UpdateColumns(map[string]any{
				"score":              newScore,
				"last_indexed_at":    model.Micros(newLastIndexedAt),
				"pending_view_count": gorm.Expr("pending_view_count - ?", expectedPendingFold),
			})
	})
}

// conditionalUpdate 执行条件更新；没有命中行时，条目不存在返回 ErrNotFound，否则返回 failed
func (r *gormTrendingRepository) conditionalUpdate(ctx context.Context, itemID string, failed error, update func(tx *gorm.DB) *gorm.DB) (*model.TrendingRecord, error) {
	var out *model.TrendingRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := update(tx)
		if res.Error != nil {
			return res.Error
		}
		cur, err := findRecord(tx, itemID)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrNotFound
		}
		if res.RowsAffected == 0 {
			return failed
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gormTrendingRepository) ListByType(ctx context.Context, itemType model.ItemType, maxLastIndexedAt *time.Time) iter.Seq2[*model.TrendingRecord, error] {
	return paginate(ctx, func(ctx context.Context, after cursor) ([]*model.TrendingRecord, cursor, bool, error) {
		q := r.db.WithContext(ctx).Where("item_type = ?", itemType)
		if maxLastIndexedAt != nil {
			q = q.Where("last_indexed_at <= ?", model.Micros(*maxLastIndexedAt))
		}
		if after.started {
			k := int64(after.key)
			q = q.Where("(last_indexed_at > ? OR (last_indexed_at = ? AND item_id > ?))", k, k, after.id)
		}
		return r.page(q.Order("last_indexed_at ASC, item_id ASC"), func(rec *model.TrendingRecord) float64 {
			return float64(rec.LastIndexedAt)
		})
	})
}

func (r *gormTrendingRepository) ListTailByType(ctx context.Context, itemType model.ItemType) iter.Seq2[*model.TrendingRecord, error] {
	return paginate(ctx, func(ctx context.Context, after cursor) ([]*model.TrendingRecord, cursor, bool, error) {
		q := r.db.WithContext(ctx).Where("item_type = ?", itemType)
		if after.started {
			q = q.Where("(score > ? OR (score = ? AND item_id > ?))", after.key, after.key, after.id)
		}
		return r.page(q.Order("score ASC, item_id ASC"), func(rec *model.TrendingRecord) float64 {
			return rec.Score
		})
	})
}

func (r *gormTrendingRepository) page(q *gorm.DB, key func(*model.TrendingRecord) float64) ([]*model.TrendingRecord, cursor, bool, error) {
	var page []*model.TrendingRecord
	if err := q.Limit(r.opts.pageSize).Find(&page).Error; err != nil {
		return nil, cursor{}, false, err
	}
	var next cursor
	if n := len(page); n > 0 {
		last := page[n-1]
		next = cursor{key: key(last), id: last.ItemID, started: true}
	}
	return page, next, len(page) < r.opts.pageSize, nil
}

func (r *gormTrendingRepository) CountByType(ctx context.Context, itemType model.ItemType) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.TrendingRecord{}).Where("item_type = ?", itemType).Count(&n).Error
	return n, err
}
