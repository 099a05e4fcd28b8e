package repository

import (
	"context"
	"iter"

	"github.com/d60-Lab/trending/internal/model"
)

// cursor 键集分页位置：上一页最后一条记录的 (排序键, itemID)
type cursor struct {
	key     float64
	id      string
	started bool
}

func (c cursor) after(key float64, id string) bool {
	if !c.started {
		return true
	}
	return key > c.key || (key == c.key && id > c.id)
}

// pageFetcher 返回 after 之后的一页记录、下一页的游标以及是否已到末尾
type pageFetcher func(ctx context.Context, after cursor) (page []*model.TrendingRecord, next cursor, done bool, err error)

// paginate turns a page fetcher into a lazy sequence. The context is checked
// before every round trip, so an abandoned or cancelled sweep stops at the
// next page boundary.
func paginate(ctx context.Context, fetch pageFetcher) iter.Seq2[*model.TrendingRecord, error] {
	return func(yield func(*model.TrendingRecord, error) bool) {
		var at cursor
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			page, next, done, err := fetch(ctx, at)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
			}
			if done {
				return
			}
			at = next
		}
	}
}
