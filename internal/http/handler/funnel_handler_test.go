package handler_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunnelHandler_Create(t *testing.T) {
	api := newTestAPI(t)

	t.Run("first funnel is default with system stages", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/funnels", domain.CreateFunnelRequest{Name: "Sales"})
		requireStatus(t, rr, http.StatusCreated)

		funnel := decode[domain.FunnelDTO](t, rr)
		assert.True(t, funnel.IsDefault)
		require.Len(t, funnel.Stages, 5)
		assert.Equal(t, "prospect", funnel.Stages[0].StageKey)
		assert.Equal(t, "done", funnel.Stages[4].StageKey)
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/funnels", domain.CreateFunnelRequest{Name: "Sales"})
		requireStatus(t, rr, http.StatusConflict)
		assert.Equal(t, domain.ErrorTypeConflict, decode[domain.APIError](t, rr).Type)
	})

	t.Run("missing name fails validation", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/funnels", map[string]interface{}{"description": "no name"})
		requireStatus(t, rr, http.StatusBadRequest)

		problem := decode[domain.APIError](t, rr)
		assert.Equal(t, domain.ErrorTypeValidation, problem.Type)
		assert.Contains(t, problem.Errors, "name")
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/funnels", `{"name":"X","colour":"red"}`)
		requireStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("requires an actor", func(t *testing.T) {
		rr := api.doAs(t, 0, http.MethodPost, "/funnels", domain.CreateFunnelRequest{Name: "Anonymous"})
		requireStatus(t, rr, http.StatusUnauthorized)
	})
}

func TestFunnelHandler_DefaultAndDelete(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/funnels/default", nil)
	requireStatus(t, rr, http.StatusNotFound)

	sales := decode[domain.FunnelDTO](t, api.do(t, http.MethodPost, "/funnels", domain.CreateFunnelRequest{Name: "Sales"}))
	partners := decode[domain.FunnelDTO](t, api.do(t, http.MethodPost, "/funnels", domain.CreateFunnelRequest{Name: "Partners"}))
	assert.False(t, partners.IsDefault)
	assert.Empty(t, partners.Stages)

	rr = api.do(t, http.MethodDelete, fmt.Sprintf("/funnels/%d", sales.ID), nil)
	requireStatus(t, rr, http.StatusConflict)
	assert.Equal(t, domain.ErrorTypeInvariant, decode[domain.APIError](t, rr).Type)

	rr = api.do(t, http.MethodPost, fmt.Sprintf("/funnels/%d/default", partners.ID), nil)
	requireStatus(t, rr, http.StatusOK)
	assert.True(t, decode[domain.FunnelDTO](t, rr).IsDefault)

	rr = api.do(t, http.MethodGet, "/funnels/default", nil)
	requireStatus(t, rr, http.StatusOK)
	assert.Equal(t, partners.ID, decode[domain.FunnelDTO](t, rr).ID)

	list := decode[[]domain.FunnelDTO](t, api.do(t, http.MethodGet, "/funnels", nil))
	require.Len(t, list, 2)
	assert.Equal(t, partners.ID, list[0].ID)

	rr = api.do(t, http.MethodDelete, fmt.Sprintf("/funnels/%d", sales.ID), nil)
	requireStatus(t, rr, http.StatusNoContent)

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/funnels/%d", sales.ID), nil)
	requireStatus(t, rr, http.StatusNotFound)

	rr = api.do(t, http.MethodGet, "/funnels/abc", nil)
	requireStatus(t, rr, http.StatusBadRequest)
}

func TestFunnelHandler_Stages(t *testing.T) {
	api := newTestAPI(t)
	funnel := decode[domain.FunnelDTO](t, api.do(t, http.MethodPost, "/funnels", domain.CreateFunnelRequest{Name: "Sales"}))
	base := fmt.Sprintf("/funnels/%d/stages", funnel.ID)

	rr := api.do(t, http.MethodPost, base, domain.CreateStageRequest{StageKey: "lost", Name: "Lost", SemanticID: domain.SemanticFailure})
	requireStatus(t, rr, http.StatusCreated)
	lost := decode[domain.StageDTO](t, rr)
	assert.Equal(t, 5, lost.OrderIndex)

	rr = api.do(t, http.MethodPost, base, domain.CreateStageRequest{StageKey: "lost", Name: "Again"})
	requireStatus(t, rr, http.StatusConflict)

	rr = api.do(t, http.MethodPost, base, map[string]interface{}{"stageKey": "x", "name": "X", "semanticId": "Q"})
	requireStatus(t, rr, http.StatusBadRequest)

	rr = api.do(t, http.MethodPut, fmt.Sprintf("%s/%d", base, lost.ID), map[string]interface{}{"name": "Closed lost"})
	requireStatus(t, rr, http.StatusOK)
	assert.Equal(t, "Closed lost", decode[domain.StageDTO](t, rr).Name)

	t.Run("reorder", func(t *testing.T) {
		ids := []int64{lost.ID}
		for i := len(funnel.Stages) - 1; i >= 0; i-- {
			ids = append(ids, funnel.Stages[i].ID)
		}
		rr := api.do(t, http.MethodPut, base+"/order", domain.ReorderStagesRequest{StageIDs: ids})
		requireStatus(t, rr, http.StatusOK)

		stages := decode[[]domain.StageDTO](t, rr)
		require.Len(t, stages, 6)
		for i, stage := range stages {
			assert.Equal(t, ids[i], stage.ID)
			assert.Equal(t, i, stage.OrderIndex)
		}

		rr = api.do(t, http.MethodPut, base+"/order", domain.ReorderStagesRequest{StageIDs: ids[:2]})
		requireStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("delete", func(t *testing.T) {
		rr := api.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, lost.ID), nil)
		requireStatus(t, rr, http.StatusNoContent)

		rr = api.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, lost.ID), nil)
		requireStatus(t, rr, http.StatusNotFound)
	})
}

func TestFunnelHandler_Metrics(t *testing.T) {
	api := newTestAPI(t)
	funnel := decode[domain.FunnelDTO](t, api.do(t, http.MethodPost, "/funnels", domain.CreateFunnelRequest{Name: "Sales"}))
	amount := 250.0
	rr := api.do(t, http.MethodPost, "/deals", domain.CreateDealRequest{Title: "Counted", IsManualAmount: true, Amount: &amount})
	requireStatus(t, rr, http.StatusCreated)

	rr = api.do(t, http.MethodPost, fmt.Sprintf("/funnels/%d/metrics/refresh", funnel.ID), nil)
	requireStatus(t, rr, http.StatusOK)

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/funnels/%d/metrics", funnel.ID), nil)
	requireStatus(t, rr, http.StatusOK)
	metrics := decode[[]domain.StageMetricsDTO](t, rr)
	require.Len(t, metrics, 5)
	assert.Equal(t, 1, metrics[0].DealsCount)
	assert.Equal(t, 250.0, metrics[0].TotalAmount)

	rr = api.do(t, http.MethodGet, "/funnels/999/metrics", nil)
	requireStatus(t, rr, http.StatusNotFound)
}
