package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/d60-Lab/trending/internal/model"
)

func TestOperationsAreTraced(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	repo := newGormRepo(t)
	ctx := context.Background()
	_, err := repo.Create(ctx, model.ItemTypePost, "p1", 1, t0)
	require.NoError(t, err)

	flaky := &conflictRepo{TrendingRepository: repo, conflicts: 100}
	svc := NewTrendingService(flaky, WithTracer(tp.Tracer("test")), WithMaxAttempts(2))

	_, err = svc.RecordView(ctx, model.ItemTypePost, "p1", 1, t0)
	require.Error(t, err)
	_, err = svc.Reindex(ctx, model.ItemTypePost, t0)
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)

	view := spans[0]
	assert.Equal(t, "trending.RecordView", view.Name())
	assert.Equal(t, codes.Error, view.Status().Code)
	assert.Len(t, view.Events(), 2+1, "two conflict events and the recorded error")

	assert.Equal(t, "trending.Reindex", spans[1].Name())
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}
