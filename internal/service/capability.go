package service

import (
	"context"
	"errors"
	"time"

	"github.com/d60-Lab/trending/internal/model"
)

var ErrNotEligible = errors.New("item is not eligible for trending")

// Eligibility 由领域对象提供的准入判断（发布时间窗口、反作弊等），仅在首次建档前调用
type Eligibility func(ctx context.Context) (bool, error)

// Capability 领域对象（帖子、用户）持有的热度能力，以组合代替继承
type Capability struct {
	engine      TrendingService
	itemType    model.ItemType
	itemID      string
	eligibility Eligibility
}

// Trendable is implemented by domain objects that take part in trending.
type Trendable interface {
	Trending() *Capability
}

func NewCapability(engine TrendingService, itemType model.ItemType, itemID string, eligibility Eligibility) *Capability {
	return &Capability{engine: engine, itemType: itemType, itemID: itemID, eligibility: eligibility}
}

func (c *Capability) ItemType() model.ItemType { return c.itemType }
func (c *Capability) ItemID() string           { return c.itemID }

// RecordView 记录浏览；条目尚未建档且不满足准入条件时返回 ErrNotEligible
func (c *Capability) RecordView(ctx context.Context, amount int64, now time.Time) (*model.TrendingRecord, error) {
	if c.eligibility != nil && amount > 0 {
		cur, err := c.engine.Lookup(ctx, c.itemID)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			ok, err := c.eligibility(ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrNotEligible
			}
		}
	}
	return c.engine.RecordView(ctx, c.itemType, c.itemID, amount, now)
}

// Score returns the current score and whether the item is tracked.
func (c *Capability) Score(ctx context.Context) (float64, bool, error) {
	rec, err := c.engine.Lookup(ctx, c.itemID)
	if err != nil || rec == nil {
		return 0, false, err
	}
	return rec.Score, true, nil
}

// Forget 由领域对象的删除流程调用
func (c *Capability) Forget(ctx context.Context) error {
	return c.engine.OnItemDeleted(ctx, c.itemID)
}
