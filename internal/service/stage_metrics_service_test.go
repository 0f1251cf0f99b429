package service

import (
	"context"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStageMetrics(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	daysAgo := func(d int) *time.Time {
		ts := now.Add(-time.Duration(d) * 24 * time.Hour)
		return &ts
	}
	stages := []domain.Stage{
		{ID: 10, OrderIndex: 0},
		{ID: 11, OrderIndex: 1},
		{ID: 12, OrderIndex: 2},
	}

	t.Run("aggregates per stage", func(t *testing.T) {
		deals := []domain.Deal{
			{StageID: 10, Amount: decimal.NewFromInt(100), CreatedAt: *daysAgo(2)},
			{StageID: 11, Amount: decimal.NewFromInt(50), CreatedAt: *daysAgo(5), MovedAt: daysAgo(1)},
			{StageID: 12, Amount: decimal.NewFromInt(25), CreatedAt: *daysAgo(9), MovedAt: daysAgo(3)},
			{StageID: 12, Amount: decimal.RequireFromString("25.50"), CreatedAt: *daysAgo(9), MovedAt: daysAgo(1)},
		}

		rows := computeStageMetrics(stages, deals, now)
		require.Len(t, rows, 3)

		assert.Equal(t, int64(10), rows[0].StageID)
		assert.Equal(t, 1, rows[0].DealsCount)
		assert.True(t, rows[0].TotalAmount.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, 2.0, rows[0].AvgDaysInStage)
		assert.Equal(t, 100.0, rows[0].ConversionPercent)

		assert.Equal(t, 1, rows[1].DealsCount)
		assert.Equal(t, 1.0, rows[1].AvgDaysInStage)
		assert.Equal(t, 75.0, rows[1].ConversionPercent)

		assert.Equal(t, 2, rows[2].DealsCount)
		assert.True(t, rows[2].TotalAmount.Equal(decimal.RequireFromString("50.50")))
		assert.Equal(t, 2.0, rows[2].AvgDaysInStage)
		assert.Equal(t, 50.0, rows[2].ConversionPercent)

		for _, row := range rows {
			require.NotNil(t, row.RefreshedAt)
			assert.Equal(t, now, *row.RefreshedAt)
		}
	})

	t.Run("empty funnel yields zero rows per stage", func(t *testing.T) {
		rows := computeStageMetrics(stages, nil, now)
		require.Len(t, rows, 3)
		for _, row := range rows {
			assert.Zero(t, row.DealsCount)
			assert.True(t, row.TotalAmount.IsZero())
			assert.Zero(t, row.AvgDaysInStage)
			assert.Zero(t, row.ConversionPercent)
		}
	})

	t.Run("conversion rounds to two decimals", func(t *testing.T) {
		deals := []domain.Deal{
			{StageID: 10, Amount: decimal.Zero, CreatedAt: now},
			{StageID: 10, Amount: decimal.Zero, CreatedAt: now},
			{StageID: 11, Amount: decimal.Zero, CreatedAt: now},
		}
		rows := computeStageMetrics(stages, deals, now)
		assert.Equal(t, 33.33, rows[1].ConversionPercent)
		assert.Zero(t, rows[2].ConversionPercent)
	})
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, round2(1.234))
	assert.Equal(t, 1.24, round2(1.236))
	assert.Equal(t, 0.0, round2(0.004))
}

func TestStageMetricsService(t *testing.T) {
	ctx := context.Background()

	t.Run("refresh fills the cache", func(t *testing.T) {
		s := newTestServices(t)
		funnel := s.createDefaultFunnel(t, "Sales")

		for _, amount := range []float64{100, 200} {
			_, err := s.deals.Create(ctx, &domain.CreateDealRequest{Title: "Deal", IsManualAmount: true, Amount: float64Ptr(amount)}, testActor)
			require.NoError(t, err)
		}
		moved, err := s.deals.Create(ctx, &domain.CreateDealRequest{Title: "Moved", IsManualAmount: true, Amount: float64Ptr(50)}, testActor)
		require.NoError(t, err)
		_, err = s.deals.MoveToStage(ctx, moved.ID, funnel.Stages[4].ID, testActor)
		require.NoError(t, err)

		cached, err := s.stageMetrics.GetFunnelMetrics(ctx, funnel.ID)
		require.NoError(t, err)
		require.Len(t, cached, 5)
		assert.Zero(t, cached[0].DealsCount)

		refreshed, err := s.stageMetrics.RefreshFunnel(ctx, funnel.ID)
		require.NoError(t, err)
		require.Len(t, refreshed, 5)
		assert.Equal(t, 2, refreshed[0].DealsCount)
		assert.Equal(t, 300.0, refreshed[0].TotalAmount)
		assert.Equal(t, 100.0, refreshed[0].ConversionPercent)
		assert.Equal(t, 1, refreshed[4].DealsCount)
		assert.Equal(t, 33.33, refreshed[4].ConversionPercent)

		cached, err = s.stageMetrics.GetFunnelMetrics(ctx, funnel.ID)
		require.NoError(t, err)
		assert.Equal(t, refreshed[0].DealsCount, cached[0].DealsCount)
		assert.Equal(t, "prospect", cached[0].StageKey)
		assert.NotNil(t, cached[0].RefreshedAt)
		assert.Equal(t, int64(len(refreshed)), countRows(t, s.db, &domain.StageMetrics{}, "1 = 1"))
	})

	t.Run("refresh all covers every funnel", func(t *testing.T) {
		s := newTestServices(t)
		s.createDefaultFunnel(t, "Sales")
		other, err := s.funnels.Create(ctx, &domain.CreateFunnelRequest{Name: "Partners"}, testActor)
		require.NoError(t, err)
		_, err = s.funnels.AddStage(ctx, other.ID, &domain.CreateStageRequest{StageKey: "intro", Name: "Intro"})
		require.NoError(t, err)

		require.NoError(t, s.stageMetrics.RefreshAll(ctx))

		partners, err := s.stageMetrics.GetFunnelMetrics(ctx, other.ID)
		require.NoError(t, err)
		require.Len(t, partners, 1)
		assert.NotNil(t, partners[0].RefreshedAt)
		assert.Equal(t, 1, promtestutil.CollectAndCount(s.metrics.MetricsRefreshDuration))
	})

	t.Run("unknown funnel", func(t *testing.T) {
		s := newTestServices(t)
		_, err := s.stageMetrics.RefreshFunnel(ctx, 404)
		assert.ErrorIs(t, err, ErrFunnelNotFound)
		_, err = s.stageMetrics.GetFunnelMetrics(ctx, 404)
		assert.ErrorIs(t, err, ErrFunnelNotFound)
	})
}
