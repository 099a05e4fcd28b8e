package repository

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/trending/internal/model"
)

// redis 布局：
//
//	<prefix>:item:<id>        hash  type score pending indexed created
//	<prefix>:<type>:indexed   zset  member=id score=lastIndexedAt(微秒)
//	<prefix>:<type>:score     zset  member=id score=score
const (
	fieldType    = "type"
	fieldScore   = "score"
	fieldPending = "pending"
	fieldIndexed = "indexed"
	fieldCreated = "created"
)

type redisTrendingRepository struct {
	client *redis.Client
	opts   options
}

// NewRedisTrendingRepository 基于 go-redis 的实现
// 每个写操作是 WATCH 条目 hash → 读取 → MULTI/EXEC；EXEC 被中止时返回 ErrConcurrentModification
func NewRedisTrendingRepository(client *redis.Client, opts ...Option) TrendingRepository {
	return &redisTrendingRepository{client: client, opts: applyOptions(opts)}
}

func (r *redisTrendingRepository) itemKey(id string) string {
	return fmt.Sprintf("%s:item:%s", r.opts.keyPrefix, id)
}

func (r *redisTrendingRepository) indexedKey(t model.ItemType) string {
	return fmt.Sprintf("%s:%s:indexed", r.opts.keyPrefix, t)
}

func (r *redisTrendingRepository) scoreKey(t model.ItemType) string {
	return fmt.Sprintf("%s:%s:score", r.opts.keyPrefix, t)
}

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func (r *redisTrendingRepository) read(ctx context.Context, c hashReader, itemID string) (*model.TrendingRecord, error) {
	fields, err := c.HGetAll(ctx, r.itemKey(itemID)).Result()
	if err != nil {
		return nil, err
	}
	return decodeRecord(itemID, fields)
}

func decodeRecord(itemID string, fields map[string]string) (*model.TrendingRecord, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	rec := &model.TrendingRecord{ItemID: itemID, ItemType: model.ItemType(fields[fieldType])}
	var err error
	if rec.Score, err = strconv.ParseFloat(fields[fieldScore], 64); err != nil {
		return nil, fmt.Errorf("decode %s score: %w", itemID, err)
	}
	if rec.PendingViewCount, err = strconv.ParseInt(fields[fieldPending], 10, 64); err != nil {
		return nil, fmt.Errorf("decode %s pending: %w", itemID, err)
	}
	if rec.LastIndexedAt, err = strconv.ParseInt(fields[fieldIndexed], 10, 64); err != nil {
		return nil, fmt.Errorf("decode %s indexed: %w", itemID, err)
	}
	if rec.CreatedAt, err = strconv.ParseInt(fields[fieldCreated], 10, 64); err != nil {
		return nil, fmt.Errorf("decode %s created: %w", itemID, err)
	}
	return rec, nil
}

func formatScore(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// store 在事务管道中写入完整的 hash 与两个 zset 索引
func (r *redisTrendingRepository) store(ctx context.Context, pipe redis.Pipeliner, rec *model.TrendingRecord) {
	pipe.HSet(ctx, r.itemKey(rec.ItemID),
		fieldType, string(rec.ItemType),
		fieldScore, formatScore(rec.Score),
		fieldPending, rec.PendingViewCount,
		fieldIndexed, rec.LastIndexedAt,
		fieldCreated, rec.CreatedAt,
	)
	pipe.ZAdd(ctx, r.indexedKey(rec.ItemType), redis.Z{Score: float64(rec.LastIndexedAt), Member: rec.ItemID})
	pipe.ZAdd(ctx, r.scoreKey(rec.ItemType), redis.Z{Score: rec.Score, Member: rec.ItemID})
}

// mutate 乐观事务：fn 基于读到的当前值返回新值（nil 表示删除）
func (r *redisTrendingRepository) mutate(ctx context.Context, itemID string, fn func(cur *model.TrendingRecord) (*model.TrendingRecord, error)) (before, after *model.TrendingRecord, err error) {
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := r.read(ctx, tx, itemID)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		before, after = cur, next
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, r.itemKey(itemID))
				pipe.ZRem(ctx, r.indexedKey(cur.ItemType), itemID)
				pipe.ZRem(ctx, r.scoreKey(cur.ItemType), itemID)
				return nil
			}
			r.store(ctx, pipe, next)
			return nil
		})
		return err
	}, r.itemKey(itemID))
	if errors.Is(err, redis.TxFailedErr) {
		return nil, nil, ErrConcurrentModification
	}
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

func (r *redisTrendingRepository) Get(ctx context.Context, itemID string) (*model.TrendingRecord, error) {
	return r.read(ctx, r.client, itemID)
}

func (r *redisTrendingRepository) Create(ctx context.Context, itemType model.ItemType, itemID string, initialScore float64, now time.Time) (*model.TrendingRecord, error) {
	if !validScore(initialScore) {
		return nil, ErrInvalidScore
	}
	ts := model.Micros(now)
	_, rec, err := r.mutate(ctx, itemID, func(cur *model.TrendingRecord) (*model.TrendingRecord, error) {
		if cur != nil {
			return nil, ErrAlreadyExists
		}
		return &model.TrendingRecord{
			ItemID:        itemID,
			ItemType:      itemType,
			Score:         initialScore,
			LastIndexedAt: ts,
			CreatedAt:     ts,
		}, nil
	})
	if errors.Is(err, ErrConcurrentModification) {
		// EXEC 被中止且条目已被并发创建
		if cur, getErr := r.Get(ctx, itemID); getErr == nil && cur != nil {
			return nil, ErrAlreadyExists
		}
	}
	return rec, err
}

var errAbsent = errors.New("absent")

func (r *redisTrendingRepository) Delete(ctx context.Context, itemID string, conds ...Condition) (*model.TrendingRecord, error) {
	o := applyConditions(conds)
	deleted, _, err := r.mutate(ctx, itemID, func(cur *model.TrendingRecord) (*model.TrendingRecord, error) {
		if cur == nil {
			return nil, errAbsent
		}
		if o.expectScore && cur.Score != o.score {
			return nil, ErrConcurrentModification
		}
		return nil, nil
	})
	if errors.Is(err, errAbsent) {
		return nil, nil
	}
	return deleted, err
}

func (r *redisTrendingRepository) IncrementPendingViews(ctx context.Context, itemID string, amount int64, now time.Time) (*model.TrendingRecord, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	ts := model.Micros(now)
	_, rec, err := r.mutate(ctx, itemID, func(cur *model.TrendingRecord) (*model.TrendingRecord, error) {
		if cur == nil {
			return nil, ErrNotFound
		}
		if ts <= cur.LastIndexedAt {
			return nil, ErrInvalidOrdering
		}
		next := *cur
		next.PendingViewCount += amount
		return &next, nil
	})
	return rec, err
}

func (r *redisTrendingRepository) IncrementScoreDirect(ctx context.Context, itemID string, amount float64, now time.Time) (*model.TrendingRecord, error) {
	if !(amount > 0) {
		return nil, ErrInvalidAmount
	}
	ts := model.Micros(now)
	_, rec, err := r.mutate(ctx, itemID, func(cur *model.TrendingRecord) (*model.TrendingRecord, error) {
		if cur == nil {
			return nil, ErrNotFound
		}
		if ts != cur.LastIndexedAt {
			return nil, ErrStaleIndex
		}
		next := *cur
		next.Score += amount
		return &next, nil
	})
	return rec, err
}

func (r *redisTrendingRepository) UpdateScore(ctx context.Context, itemID string, newScore float64, newLastIndexedAt, expectedLastIndexedAt time.Time, expectedPendingFold int64, conds ...Condition) (*model.TrendingRecord, error) {
	if err := validateUpdate(newScore, newLastIndexedAt, expectedLastIndexedAt, expectedPendingFold); err != nil {
		return nil, err
	}
	o := applyConditions(conds)
	expected := model.Micros(expectedLastIndexedAt)
	_, rec, err := r.mutate(ctx, itemID, func(cur *model.TrendingRecord) (*model.TrendingRecord, error) {
		if cur == nil {
			return nil, ErrNotFound
		}
		if cur.LastIndexedAt != expected || cur.PendingViewCount < expectedPendingFold {
			return nil, ErrConcurrentModification
		}
		if o.expectScore && cur.Score != o.score {
			return nil, ErrConcurrentModification
		}
		next := *cur
		next.Score = newScore
		next.LastIndexedAt = model.Micros(newLastIndexedAt)
		next.PendingViewCount -= expectedPendingFold
		return &next, nil
	})
	return rec, err
}

func (r *redisTrendingRepository) ListByType(ctx context.Context, itemType model.ItemType, maxLastIndexedAt *time.Time) iter.Seq2[*model.TrendingRecord, error] {
	upper := "+inf"
	var within func(*model.TrendingRecord) bool
	if maxLastIndexedAt != nil {
		bound := model.Micros(*maxLastIndexedAt)
		upper = strconv.FormatInt(bound, 10)
		within = func(rec *model.TrendingRecord) bool { return rec.LastIndexedAt <= bound }
	}
	return paginate(ctx, r.scan(r.indexedKey(itemType), upper, within))
}

func (r *redisTrendingRepository) ListTailByType(ctx context.Context, itemType model.ItemType) iter.Seq2[*model.TrendingRecord, error] {
	return paginate(ctx, r.scan(r.scoreKey(itemType), "+inf", nil))
}

// scan 在 zset 上做键集分页：下界取上一页最后的分值（闭区间），再过滤掉同分值中 id 不大于游标的成员；
// 一整页都是已返回过的同分值成员时，用 offset 越过这一段。
// within 非空时丢弃在 zset 读取与 hash 读取之间被并发写推出上界的条目
func (r *redisTrendingRepository) scan(key, upper string, within func(*model.TrendingRecord) bool) pageFetcher {
	size := r.opts.pageSize
	return func(ctx context.Context, after cursor) ([]*model.TrendingRecord, cursor, bool, error) {
		lower := "-inf"
		if after.started {
			lower = formatScore(after.key)
		}
		var offset int64
		for {
			zs, err := r.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
				Min:    lower,
				Max:    upper,
				Offset: offset,
				Count:  int64(size),
			}).Result()
			if err != nil {
				return nil, cursor{}, false, err
			}
			done := len(zs) < size

			next := after
			ids := make([]string, 0, len(zs))
			for _, z := range zs {
				id, _ := z.Member.(string)
				if !after.after(z.Score, id) {
					continue
				}
				ids = append(ids, id)
				next = cursor{key: z.Score, id: id, started: true}
			}
			if len(ids) == 0 && !done {
				offset += int64(len(zs))
				continue
			}
			page, err := r.load(ctx, ids, within)
			return page, next, done, err
		}
	}
}

// load 批量读取 hash，跳过在两次往返之间被删除的条目
func (r *redisTrendingRepository) load(ctx context.Context, ids []string, within func(*model.TrendingRecord) bool) ([]*model.TrendingRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.itemKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.TrendingRecord, 0, len(ids))
	for i, cmd := range cmds {
		rec, err := decodeRecord(ids[i], cmd.Val())
		if err != nil {
			return nil, err
		}
		if rec == nil || (within != nil && !within(rec)) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *redisTrendingRepository) CountByType(ctx context.Context, itemType model.ItemType) (int64, error) {
	return r.client.ZCard(ctx, r.scoreKey(itemType)).Result()
}
