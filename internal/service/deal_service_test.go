package service

import (
	"context"
	"errors"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestDealService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults to the first stage of the default funnel", func(t *testing.T) {
		s := newTestServices(t)
		funnel := s.createDefaultFunnel(t, "Sales")

		deal := s.createDeal(t, "  Website redesign ")
		assert.Equal(t, "Website redesign", deal.Title)
		assert.Equal(t, "DEAL-00001", deal.DealNumber)
		assert.Equal(t, funnel.ID, deal.FunnelID)
		assert.Equal(t, funnel.Stages[0].ID, deal.StageID)
		assert.Equal(t, domain.DealTypeSale, deal.DealType)
		assert.Equal(t, domain.DefaultCurrency, deal.Currency)
		assert.Equal(t, domain.DefaultProbability, deal.ProbabilityPercent)
		assert.Equal(t, testActor, deal.ResponsibleUserID)
		assert.Equal(t, testActor, deal.CreatedBy)
		assert.Zero(t, deal.Amount)
		assert.True(t, deal.IsNew)
		require.NotNil(t, deal.Stage)
		assert.Equal(t, "prospect", deal.Stage.StageKey)
		require.NotNil(t, deal.Funnel)
		assert.Equal(t, "Sales", deal.Funnel.Name)

		require.Len(t, deal.History, 1)
		assert.Equal(t, domain.ChangeTypeCreate, deal.History[0].ChangeType)
		assert.Equal(t, historyFieldDealCreated, deal.History[0].FieldName)

		second := s.createDeal(t, "Second")
		assert.Equal(t, "DEAL-00002", second.DealNumber)
	})

	t.Run("derived amount ignores a requested amount", func(t *testing.T) {
		s := newTestServices(t)
		s.createDefaultFunnel(t, "Sales")

		deal, err := s.deals.Create(ctx, &domain.CreateDealRequest{Title: "Derived", Amount: float64Ptr(999)}, testActor)
		require.NoError(t, err)
		assert.Zero(t, deal.Amount)

		manual, err := s.deals.Create(ctx, &domain.CreateDealRequest{Title: "Manual", Amount: float64Ptr(1234.567), IsManualAmount: true}, testActor)
		require.NoError(t, err)
		assert.Equal(t, 1234.57, manual.Amount)
	})

	t.Run("explicit stage must belong to the funnel", func(t *testing.T) {
		s := newTestServices(t)
		funnel := s.createDefaultFunnel(t, "Sales")
		other, err := s.funnels.Create(ctx, &domain.CreateFunnelRequest{Name: "Partners"}, testActor)
		require.NoError(t, err)

		_, err = s.deals.Create(ctx, &domain.CreateDealRequest{Title: "Bad", FunnelID: &other.ID, StageID: &funnel.Stages[1].ID}, testActor)
		assert.ErrorIs(t, err, ErrStageNotInFunnel)

		// a failed create does not burn a deal number
		deal := s.createDeal(t, "Good")
		assert.Equal(t, "DEAL-00001", deal.DealNumber)
	})

	t.Run("needs a funnel", func(t *testing.T) {
		s := newTestServices(t)
		_, err := s.deals.Create(ctx, &domain.CreateDealRequest{Title: "Orphan"}, testActor)
		assert.ErrorIs(t, err, ErrNoFunnelConfigured)
	})

	t.Run("funnel without stages", func(t *testing.T) {
		s := newTestServices(t)
		s.createDefaultFunnel(t, "Sales")
		empty, err := s.funnels.Create(ctx, &domain.CreateFunnelRequest{Name: "Empty"}, testActor)
		require.NoError(t, err)

		_, err = s.deals.Create(ctx, &domain.CreateDealRequest{Title: "Nowhere", FunnelID: &empty.ID}, testActor)
		assert.ErrorIs(t, err, ErrFunnelHasNoStages)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		s := newTestServices(t)
		s.createDefaultFunnel(t, "Sales")

		_, err := s.deals.Create(ctx, &domain.CreateDealRequest{Title: " "}, testActor)
		assert.ErrorIs(t, err, ErrTitleRequired)

		_, err = s.deals.Create(ctx, &domain.CreateDealRequest{Title: "x", CloseDate: "31/12/2026"}, testActor)
		assert.ErrorIs(t, err, ErrInvalidDate)

		_, err = s.deals.Create(ctx, &domain.CreateDealRequest{Title: "x", DealType: "BARTER"}, testActor)
		assert.ErrorIs(t, err, ErrInvalidDealType)
	})
}

func TestDealService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("one history row per changed field", func(t *testing.T) {
		s := newTestServices(t)
		s.createDefaultFunnel(t, "Sales")
		deal := s.createDeal(t, "Original")

		updated, err := s.deals.Update(ctx, deal.ID, &domain.UpdateDealRequest{
			Title:              stringPtr("Renamed"),
			ProbabilityPercent: intPtr(80),
			Currency:           stringPtr("rub"), // same value after normalisation
			CloseDate:          stringPtr("2026-12-31"),
		}, 9)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Title)
		assert.Equal(t, 80, updated.ProbabilityPercent)
		require.NotNil(t, updated.CloseDate)
		assert.Equal(t, "2026-12-31", *updated.CloseDate)
		assert.Equal(t, int64(9), updated.ModifiedBy)

		history := s.historyOf(t, deal.ID)
		require.Len(t, history, 4) // CREATE + three updates
		fields := map[string]domain.DealHistoryEntry{}
		for _, entry := range history[1:] {
			assert.Equal(t, domain.ChangeTypeUpdate, entry.ChangeType)
			assert.Equal(t, int64(9), entry.ChangedBy)
			fields[entry.FieldName] = entry
		}
		require.Contains(t, fields, "title")
		assert.Equal(t, "Original", *fields["title"].OldValue)
		assert.Equal(t, "Renamed", *fields["title"].NewValue)
		assert.Equal(t, "50", *fields["probability_percent"].OldValue)
		assert.Nil(t, fields["close_date"].OldValue)
		assert.Equal(t, "2026-12-31", *fields["close_date"].NewValue)
	})

	t.Run("no changes writes nothing", func(t *testing.T) {
		s := newTestServices(t)
		s.createDefaultFunnel(t, "Sales")
		deal := s.createDeal(t, "Same")

		_, err := s.deals.Update(ctx, deal.ID, &domain.UpdateDealRequest{Title: stringPtr("Same")}, testActor)
		require.NoError(t, err)
		assert.Len(t, s.historyOf(t, deal.ID), 1)
	})

	t.Run("stage change through update stamps the move", func(t *testing.T) {
		s := newTestServices(t)
		funnel := s.createDefaultFunnel(t, "Sales")
		deal := s.createDeal(t, "Mover")

		updated, err := s.deals.Update(ctx, deal.ID, &domain.UpdateDealRequest{StageID: &funnel.Stages[3].ID}, 11)
		require.NoError(t, err)
		assert.Equal(t, funnel.Stages[3].ID, updated.StageID)
		assert.NotNil(t, updated.MovedAt)
		require.NotNil(t, updated.MovedBy)
		assert.Equal(t, int64(11), *updated.MovedBy)
	})

	t.Run("switching funnel lands on its first stage", func(t *testing.T) {
		s := newTestServices(t)
		s.createDefaultFunnel(t, "Sales")
		other, err := s.funnels.Create(ctx, &domain.CreateFunnelRequest{Name: "Enterprise", IsDefault: true}, testActor)
		require.NoError(t, err)
		_, err = s.funnels.SetDefault(ctx, other.ID)
		require.NoError(t, err)

		// default switched; create on the old funnel explicitly
		funnels, err := s.funnels.List(ctx)
		require.NoError(t, err)
		old := funnels[1]
		deal, err := s.deals.Create(ctx, &domain.CreateDealRequest{Title: "Cross", FunnelID: &old.ID}, testActor)
		require.NoError(t, err)

		updated, err := s.deals.Update(ctx, deal.ID, &domain.UpdateDealRequest{FunnelID: &other.ID}, testActor)
		require.NoError(t, err)
		assert.Equal(t, other.ID, updated.FunnelID)
		assert.Equal(t, other.Stages[0].ID, updated.StageID)
	})

	t.Run("stage must belong to the target funnel", func(t *testing.T) {
		s := newTestServices(t)
		s.createDefaultFunnel(t, "Sales")
		other, err := s.funnels.Create(ctx, &domain.CreateFunnelRequest{Name: "Partners"}, testActor)
		require.NoError(t, err)
		foreign, err := s.funnels.AddStage(ctx, other.ID, &domain.CreateStageRequest{StageKey: "intro", Name: "Intro"})
		require.NoError(t, err)
		deal := s.createDeal(t, "Stay")

		_, err = s.deals.Update(ctx, deal.ID, &domain.UpdateDealRequest{StageID: &foreign.ID}, testActor)
		assert.ErrorIs(t, err, ErrStageNotInFunnel)
	})

	t.Run("closing stamps closed_at and reopening clears it", func(t *testing.T) {
		s := newTestServices(t)
		s.createDefaultFunnel(t, "Sales")
		deal := s.createDeal(t, "Closer")

		closed, err := s.deals.Update(ctx, deal.ID, &domain.UpdateDealRequest{IsClosed: boolPtr(true)}, testActor)
		require.NoError(t, err)
		assert.True(t, closed.IsClosed)
		assert.NotNil(t, closed.ClosedAt)

		reopened, err := s.deals.Update(ctx, deal.ID, &domain.UpdateDealRequest{IsClosed: boolPtr(false)}, testActor)
		require.NoError(t, err)
		assert.False(t, reopened.IsClosed)
		assert.Nil(t, reopened.ClosedAt)
	})

	t.Run("switching to a manual amount", func(t *testing.T) {
		s := newTestServices(t)
		s.createDefaultFunnel(t, "Sales")
		deal := s.createDeal(t, "Manual")

		updated, err := s.deals.Update(ctx, deal.ID, &domain.UpdateDealRequest{
			IsManualAmount: boolPtr(true),
			Amount:         float64Ptr(500),
		}, testActor)
		require.NoError(t, err)
		assert.True(t, updated.IsManualAmount)
		assert.Equal(t, 500.0, updated.Amount)
	})

	t.Run("a derived amount cannot be overwritten", func(t *testing.T) {
		s := newTestServices(t)
		s.createDefaultFunnel(t, "Sales")
		deal := s.createDeal(t, "Derived")

		updated, err := s.deals.Update(ctx, deal.ID, &domain.UpdateDealRequest{Amount: float64Ptr(500)}, testActor)
		require.NoError(t, err)
		assert.Zero(t, updated.Amount)
	})

	t.Run("unknown deal", func(t *testing.T) {
		s := newTestServices(t)
		_, err := s.deals.Update(ctx, 404, &domain.UpdateDealRequest{Title: stringPtr("x")}, testActor)
		assert.ErrorIs(t, err, ErrDealNotFound)
	})
}

func TestDealService_MoveToStage(t *testing.T) {
	ctx := context.Background()

	t.Run("records a stage change", func(t *testing.T) {
		s := newTestServices(t)
		funnel := s.createDefaultFunnel(t, "Sales")
		deal := s.createDeal(t, "Mover")

		moved, err := s.deals.MoveToStage(ctx, deal.ID, funnel.Stages[2].ID, 5)
		require.NoError(t, err)
		assert.Equal(t, funnel.Stages[2].ID, moved.StageID)
		require.NotNil(t, moved.MovedBy)
		assert.Equal(t, int64(5), *moved.MovedBy)

		history := s.historyOf(t, deal.ID)
		require.Len(t, history, 2)
		assert.Equal(t, domain.ChangeTypeStageChange, history[1].ChangeType)
		assert.Equal(t, idString(funnel.Stages[0].ID), history[1].OldValue)
		assert.Equal(t, idString(funnel.Stages[2].ID), history[1].NewValue)

		assert.Equal(t, 1.0, promtestutil.ToFloat64(s.metrics.StageMovesTotal.WithLabelValues(idStringValue(funnel.ID))))
	})

	t.Run("moving to the current stage is a no-op", func(t *testing.T) {
		s := newTestServices(t)
		funnel := s.createDefaultFunnel(t, "Sales")
		deal := s.createDeal(t, "Still")

		_, err := s.deals.MoveToStage(ctx, deal.ID, funnel.Stages[0].ID, testActor)
		require.NoError(t, err)
		assert.Len(t, s.historyOf(t, deal.ID), 1)
	})

	t.Run("cannot leave the funnel", func(t *testing.T) {
		s := newTestServices(t)
		s.createDefaultFunnel(t, "Sales")
		other, err := s.funnels.Create(ctx, &domain.CreateFunnelRequest{Name: "Partners"}, testActor)
		require.NoError(t, err)
		foreign, err := s.funnels.AddStage(ctx, other.ID, &domain.CreateStageRequest{StageKey: "intro", Name: "Intro"})
		require.NoError(t, err)
		deal := s.createDeal(t, "Loyal")

		_, err = s.deals.MoveToStage(ctx, deal.ID, foreign.ID, testActor)
		assert.ErrorIs(t, err, ErrStageNotInFunnel)

		_, err = s.deals.MoveToStage(ctx, deal.ID, 999, testActor)
		assert.ErrorIs(t, err, ErrStageNotFound)
	})
}

func TestDealService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the deal and everything attached", func(t *testing.T) {
		s := newTestServices(t)
		s.createDefaultFunnel(t, "Sales")
		deal := s.createDeal(t, "Doomed")
		user := testutil.CreateTestUser(t, s.db, "Ann")

		_, err := s.products.AddProduct(ctx, deal.ID, &domain.AddDealProductRequest{Name: "Widget", Price: 10, Quantity: 1}, testActor)
		require.NoError(t, err)
		_, err = s.participants.Add(ctx, deal.ID, &domain.AddParticipantRequest{UserID: &user.ID})
		require.NoError(t, err)
		_, err = s.files.AddFile(ctx, deal.ID, &domain.AddDealFileRequest{FileName: "q.pdf", FilePath: "/q.pdf", FileType: domain.FileTypeQuote}, testActor)
		require.NoError(t, err)
		_, err = s.comments.AddComment(ctx, deal.ID, &domain.AddDealCommentRequest{Content: "hi"}, testActor)
		require.NoError(t, err)

		removed, err := s.deals.Delete(ctx, deal.ID, testActor)
		require.NoError(t, err)
		assert.True(t, removed)

		_, err = s.deals.GetByID(ctx, deal.ID)
		assert.ErrorIs(t, err, ErrDealNotFound)
		for _, model := range []interface{}{&domain.DealProduct{}, &domain.DealParticipant{}, &domain.DealFile{}, &domain.DealComment{}, &domain.DealHistoryEntry{}} {
			assert.Zero(t, countRows(t, s.db, model, "deal_id = ?", deal.ID))
		}
	})

	t.Run("unknown deal", func(t *testing.T) {
		s := newTestServices(t)
		removed, err := s.deals.Delete(ctx, 404, testActor)
		assert.ErrorIs(t, err, ErrDealNotFound)
		assert.False(t, removed)
	})

	t.Run("a failing history write does not block deletion", func(t *testing.T) {
		s := newTestServices(t)
		s.createDefaultFunnel(t, "Sales")
		deal := s.createDeal(t, "Fragile")

		require.NoError(t, s.db.Callback().Create().Before("gorm:create").Register("test:fail_delete_history", func(db *gorm.DB) {
			if entry, ok := db.Statement.Dest.(*domain.DealHistoryEntry); ok && entry.ChangeType == domain.ChangeTypeDelete {
				_ = db.AddError(errors.New("history store unavailable"))
			}
		}))

		removed, err := s.deals.Delete(ctx, deal.ID, testActor)
		require.NoError(t, err)
		assert.True(t, removed)
		assert.Zero(t, countRows(t, s.db, &domain.Deal{}, "id = ?", deal.ID))
		assert.Equal(t, 1.0, promtestutil.ToFloat64(s.metrics.HistoryWriteFailures))
	})
}

func TestDealService_List(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t)
	funnel := s.createDefaultFunnel(t, "Sales")

	for _, title := range []string{"Alpha", "Beta", "Gamma"} {
		s.createDeal(t, title)
	}
	beta, err := s.deals.List(ctx, &domain.DealFilters{Search: "bet"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), beta.Total)
	betaID := beta.Data.([]domain.DealDTO)[0].ID
	_, err = s.deals.MoveToStage(ctx, betaID, funnel.Stages[1].ID, testActor)
	require.NoError(t, err)

	t.Run("pages newest first", func(t *testing.T) {
		page, err := s.deals.List(ctx, nil, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		assert.Equal(t, 2, page.TotalPages)
		deals := page.Data.([]domain.DealDTO)
		require.Len(t, deals, 2)
		assert.Equal(t, "Gamma", deals[0].Title)
	})

	t.Run("filters by stage", func(t *testing.T) {
		page, err := s.deals.List(ctx, &domain.DealFilters{StageID: &funnel.Stages[0].ID}, 1, 20)
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
	})

	t.Run("clamps paging input", func(t *testing.T) {
		page, err := s.deals.List(ctx, nil, 0, 1000)
		require.NoError(t, err)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 200, page.PageSize)
	})
}

// TestPipelineScenario walks a deal through the main lifecycle
func TestPipelineScenario(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t)

	funnel := s.createDefaultFunnel(t, "F")
	stage0 := funnel.Stages[0]
	stage2 := funnel.Stages[2]

	deal := s.createDeal(t, "D")
	require.Equal(t, stage0.ID, deal.StageID)
	require.Zero(t, deal.Amount)
	require.False(t, deal.IsManualAmount)

	_, err := s.products.AddProduct(ctx, deal.ID, &domain.AddDealProductRequest{Name: "Item", Price: 10, Quantity: 3}, testActor)
	require.NoError(t, err)

	reloaded, err := s.deals.GetByID(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, 30.0, reloaded.Amount)

	_, err = s.deals.MoveToStage(ctx, deal.ID, stage2.ID, testActor)
	require.NoError(t, err)

	var stageChanges []domain.DealHistoryEntry
	for _, entry := range s.historyOf(t, deal.ID) {
		if entry.ChangeType == domain.ChangeTypeStageChange {
			stageChanges = append(stageChanges, entry)
		}
	}
	require.Len(t, stageChanges, 1)
	assert.Equal(t, idString(stage0.ID), stageChanges[0].OldValue)
	assert.Equal(t, idString(stage2.ID), stageChanges[0].NewValue)

	require.NoError(t, s.funnels.DeleteStage(ctx, funnel.ID, stage0.ID, testActor))
	assert.Zero(t, countRows(t, s.db, &domain.Deal{}, "stage_id = ?", stage0.ID))
}

func idStringValue(id int64) string {
	return *idString(id)
}
