package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/trending/config"
	"github.com/d60-Lab/trending/internal/model"
	"github.com/d60-Lab/trending/internal/service"
)

type call struct {
	op       string
	itemType model.ItemType
	cutoff   time.Time
	max      int64
	min      float64
}

type fakeSweeper struct {
	mu         sync.Mutex
	calls      []call
	reindexErr map[model.ItemType]error
}

func (f *fakeSweeper) Reindex(_ context.Context, t model.ItemType, cutoff time.Time) (service.ReindexStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "reindex", itemType: t, cutoff: cutoff})
	return service.ReindexStats{Scanned: 2, Updated: 1}, f.reindexErr[t]
}

func (f *fakeSweeper) EvictTail(_ context.Context, t model.ItemType, maxRetained int64, minScore float64) (service.EvictStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "evict", itemType: t, max: maxRetained, min: minScore})
	return service.EvictStats{Evicted: 3}, nil
}

var (
	fixedNow  = time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	retention = config.RetentionSet{
		Post: config.RetentionPolicy{MaxRetained: 100, MinScore: 0.5},
		User: config.RetentionPolicy{MaxRetained: 50, MinScore: 0.25},
	}
	schedCfg = config.SchedulerConfig{Enabled: true, Spec: "@every 5m", Timezone: "UTC"}
)

func TestRunOnceReindexesThenEvictsEachType(t *testing.T) {
	f := &fakeSweeper{}
	s, err := New(schedCfg, retention, f, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	results, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, model.ItemTypePost, results[0].ItemType)
	assert.Equal(t, 1, results[0].Reindex.Updated)
	assert.Equal(t, 3, results[1].Evict.Evicted)

	require.Len(t, f.calls, 4)
	assert.Equal(t, call{op: "reindex", itemType: model.ItemTypePost, cutoff: fixedNow}, f.calls[0])
	assert.Equal(t, call{op: "evict", itemType: model.ItemTypePost, max: 100, min: 0.5}, f.calls[1])
	assert.Equal(t, "reindex", f.calls[2].op)
	assert.Equal(t, call{op: "evict", itemType: model.ItemTypeUser, max: 50, min: 0.25}, f.calls[3])
}

func TestRunOnceSkipsEvictionAfterFailedReindex(t *testing.T) {
	boom := errors.New("store down")
	f := &fakeSweeper{reindexErr: map[model.ItemType]error{model.ItemTypePost: boom}}
	s, err := New(schedCfg, retention, f, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)

	var ops []string
	for _, c := range f.calls {
		ops = append(ops, c.op+":"+string(c.itemType))
	}
	assert.Equal(t, []string{"reindex:post", "reindex:user", "evict:user"}, ops)
}

func TestNewValidation(t *testing.T) {
	_, err := New(config.SchedulerConfig{Spec: "not a spec", Timezone: "UTC"}, retention, &fakeSweeper{})
	assert.Error(t, err)

	_, err = New(config.SchedulerConfig{Spec: "@every 5m", Timezone: "Mars/Olympus"}, retention, &fakeSweeper{})
	assert.Error(t, err)

	_, err = New(schedCfg, retention, nil)
	assert.Error(t, err)

	_, err = New(schedCfg, retention, &fakeSweeper{}, WithItemTypes("comment"))
	assert.Error(t, err)
}

func TestSchedulesOneJobPerItemType(t *testing.T) {
	s, err := New(schedCfg, retention, &fakeSweeper{}, WithItemTypes(model.ItemTypeUser))
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 1)
	assert.Equal(t, time.UTC, s.Location())

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
