package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/trending/config"
	"github.com/d60-Lab/trending/internal/app"
	"github.com/d60-Lab/trending/internal/model"
	"github.com/d60-Lab/trending/internal/service"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// 压测热点条目上的并发浏览写入与一次全量清扫
//
//	ITEMS  条目数（默认 1000）
//	HOT    热点条目数，HOT_PCT% 的浏览集中在这些条目上（默认 10 / 80）
//	VIEWS  浏览事件总数（默认 50000）
//	CONC   并发写入者（默认 16）
func main() {
	cfg := must(config.Load())
	ctx := context.Background()
	a := must(app.New(ctx, cfg))
	defer a.Close(ctx)
	if err := a.Migrate(); err != nil {
		panic(err)
	}
	svc := a.Trending

	items := envInt("ITEMS", 1000)
	hot := envInt("HOT", 10)
	hotPct := envInt("HOT_PCT", 80)
	views := envInt("VIEWS", 50000)
	conc := envInt("CONC", 16)
	if hot > items {
		hot = items
	}

	ids := make([]string, items)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	base := time.Now().Add(-time.Hour)

	var (
		exhausted atomic.Int64
		dropped   atomic.Int64
		mismatch  atomic.Int64
		next      atomic.Int64
	)
	lat := make(chan time.Duration, views)

	t0 := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < conc; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				i := next.Add(1)
				if i > int64(views) {
					return
				}
				id := ids[rng.Intn(items)]
				if rng.Intn(100) < hotPct {
					id = ids[rng.Intn(hot)]
				}
				// 多数事件带不同时间戳，少量与建档时间相同，走直接累加分支
				at := base.Add(time.Duration(i) * time.Microsecond)
				if rng.Intn(20) == 0 {
					at = base
				}
				st := time.Now()
				_, err := svc.RecordView(ctx, model.ItemTypePost, id, 1, at)
				lat <- time.Since(st)

				var rex *service.RetryExhaustedError
				switch {
				case err == nil:
				case errors.As(err, &rex):
					exhausted.Add(1)
				case errors.Is(err, service.ErrItemTypeMismatch):
					mismatch.Add(1)
				default:
					dropped.Add(1)
				}
			}
		}(int64(w) + 1)
	}
	wg.Wait()
	close(lat)
	writeDur := time.Since(t0)

	recs := make([]time.Duration, 0, views)
	for d := range lat {
		recs = append(recs, d)
	}

	r0 := time.Now()
	stats, err := svc.Reindex(ctx, model.ItemTypePost, time.Now())
	if err != nil {
		panic(err)
	}
	reindexDur := time.Since(r0)

	policy, _ := cfg.Trending.Retention.For(string(model.ItemTypePost))
	e0 := time.Now()
	evicted, err := svc.EvictTail(ctx, model.ItemTypePost, policy.MaxRetained, policy.MinScore)
	if err != nil {
		panic(err)
	}
	evictDur := time.Since(e0)

	pct := func(vs []time.Duration, p float64) time.Duration {
		if len(vs) == 0 {
			return 0
		}
		xs := append([]time.Duration(nil), vs...)
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		k := int(math.Ceil(p*float64(len(xs)))) - 1
		if k < 0 {
			k = 0
		}
		if k >= len(xs) {
			k = len(xs) - 1
		}
		return xs[k]
	}

	fmt.Printf("store=%s ITEMS=%d HOT=%d HOT_PCT=%d VIEWS=%d CONC=%d\n", cfg.Trending.Store, items, hot, hotPct, views, conc)
	fmt.Printf("RecordView total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
		writeDur, writeDur/time.Duration(views), pct(recs, 0.50), pct(recs, 0.95), pct(recs, 0.99))
	fmt.Printf("retry exhausted: %d, rejected: %d, type mismatch: %d\n", exhausted.Load(), dropped.Load(), mismatch.Load())
	fmt.Printf("Reindex: %v scanned=%d updated=%d skipped=%d\n", reindexDur, stats.Scanned, stats.Updated, stats.Skipped)
	fmt.Printf("EvictTail: %v evicted=%d skipped=%d remaining=%d\n", evictDur, evicted.Evicted, evicted.Skipped, evicted.Remaining)
}
