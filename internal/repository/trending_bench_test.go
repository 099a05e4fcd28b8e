package repository

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/d60-Lab/trending/internal/model"
)

func seedBench(b *testing.B, repo TrendingRepository, n int) []string {
	ctx := context.Background()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%05d", i)
		if _, err := repo.Create(ctx, model.ItemTypePost, ids[i], float64(i%97), t0); err != nil {
			b.Fatalf("seed: %v", err)
		}
	}
	return ids
}

func BenchmarkIncrementPendingViews(b *testing.B) {
	for name, setup := range map[string]func(testing.TB, ...Option) TrendingRepository{"gorm": setupGorm, "redis": setupRedis} {
		b.Run(name, func(b *testing.B) {
			repo := setup(b)
			ids := seedBench(b, repo, 1000)
			ctx := context.Background()
			rng := rand.New(rand.NewSource(1))

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				now := t0.Add(time.Duration(i+1) * time.Microsecond)
				_, _ = repo.IncrementPendingViews(ctx, ids[rng.Intn(len(ids))], 1, now)
			}
		})
	}
}

func BenchmarkListTail(b *testing.B) {
	for name, setup := range map[string]func(testing.TB, ...Option) TrendingRepository{"gorm": setupGorm, "redis": setupRedis} {
		b.Run(name, func(b *testing.B) {
			repo := setup(b, WithPageSize(200))
			seedBench(b, repo, 5000)
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				for _, err := range repo.ListTailByType(ctx, model.ItemTypePost) {
					if err != nil {
						b.Fatal(err)
					}
				}
			}
		})
	}
}
