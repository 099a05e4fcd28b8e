package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/trending/config"
	"github.com/d60-Lab/trending/internal/model"
	"github.com/d60-Lab/trending/internal/scheduler"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("TRENDING_CONFIG", "")
	cfg, err := config.LoadFrom("")
	require.NoError(t, err)
	cfg.Server.Mode = "test"
	cfg.Log.Level = "error"
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = ":memory:"
	return cfg
}

func TestNewGormAppSweeps(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	defer a.Close(ctx)
	require.NoError(t, a.Migrate())

	t0 := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err = a.Trending.RecordView(ctx, model.ItemTypePost, "p1", 1, t0)
	require.NoError(t, err)

	s, err := a.Scheduler(scheduler.WithClock(func() time.Time { return t0.Add(25 * time.Hour) }))
	require.NoError(t, err)
	results, err := s.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, results, len(model.ItemTypes))
	assert.Equal(t, 1, results[0].Reindex.Updated)
	assert.Equal(t, 1, results[0].Evict.Evicted, "e^(-25/24) is below the default floor")
}

func TestNewRedisApp(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Trending.Store = "redis"
	cfg.Redis.Addr = mr.Addr()

	ctx := context.Background()
	a, err := New(ctx, cfg)
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Nil(t, a.DB)
	assert.NoError(t, a.Migrate())
	_, err = a.Trending.RecordView(ctx, model.ItemTypeUser, "u1", 2, time.Now())
	require.NoError(t, err)
	assert.True(t, mr.Exists("trending:item:u1"))
}

func TestNewRedisAppUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trending.Store = "redis"
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
