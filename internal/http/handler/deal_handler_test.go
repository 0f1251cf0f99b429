package handler_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDealAPI(t *testing.T) (*testAPI, domain.FunnelDTO) {
	t.Helper()
	api := newTestAPI(t)
	rr := api.do(t, http.MethodPost, "/funnels", domain.CreateFunnelRequest{Name: "Sales"})
	requireStatus(t, rr, http.StatusCreated)
	return api, decode[domain.FunnelDTO](t, rr)
}

func createDeal(t *testing.T, api *testAPI, title string) domain.DealDTO {
	t.Helper()
	rr := api.do(t, http.MethodPost, "/deals", domain.CreateDealRequest{Title: title})
	requireStatus(t, rr, http.StatusCreated)
	return decode[domain.DealDTO](t, rr)
}

func TestDealHandler_Create(t *testing.T) {
	api, funnel := setupDealAPI(t)

	t.Run("defaults", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/deals", domain.CreateDealRequest{Title: "New deal"})
		requireStatus(t, rr, http.StatusCreated)

		deal := decode[domain.DealDTO](t, rr)
		assert.Equal(t, "DEAL-00001", deal.DealNumber)
		assert.Equal(t, funnel.Stages[0].ID, deal.StageID)
		assert.Equal(t, testActor, deal.ResponsibleUserID)
		assert.Equal(t, fmt.Sprintf("/api/v1/deals/%d", deal.ID), rr.Header().Get("Location"))
	})

	t.Run("invalid body", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/deals", "invalid json")
		requireStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("validation", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/deals", map[string]interface{}{"title": "x", "probabilityPercent": 150, "currency": "RUBLES"})
		requireStatus(t, rr, http.StatusBadRequest)

		problem := decode[domain.APIError](t, rr)
		assert.Contains(t, problem.Errors, "probabilityPercent")
		assert.Contains(t, problem.Errors, "currency")
	})

	t.Run("stage outside the funnel", func(t *testing.T) {
		other := decode[domain.FunnelDTO](t, api.do(t, http.MethodPost, "/funnels", domain.CreateFunnelRequest{Name: "Other"}))
		rr := api.do(t, http.MethodPost, "/deals", domain.CreateDealRequest{Title: "x", FunnelID: &other.ID, StageID: &funnel.Stages[1].ID})
		requireStatus(t, rr, http.StatusBadRequest)
	})
}

func TestDealHandler_Lifecycle(t *testing.T) {
	api, funnel := setupDealAPI(t)
	deal := createDeal(t, api, "Lifecycle")
	base := fmt.Sprintf("/deals/%d", deal.ID)

	rr := api.do(t, http.MethodPost, base+"/products", domain.AddDealProductRequest{Name: "Licence", Price: 10, Quantity: 3})
	requireStatus(t, rr, http.StatusCreated)
	product := decode[domain.DealProductDTO](t, rr)
	assert.Equal(t, 30.0, product.LineTotal)

	rr = api.do(t, http.MethodGet, base, nil)
	requireStatus(t, rr, http.StatusOK)
	assert.Equal(t, 30.0, decode[domain.DealDTO](t, rr).Amount)

	rr = api.do(t, http.MethodPost, base+"/move", domain.MoveDealRequest{StageID: funnel.Stages[2].ID})
	requireStatus(t, rr, http.StatusOK)
	assert.Equal(t, funnel.Stages[2].ID, decode[domain.DealDTO](t, rr).StageID)

	rr = api.do(t, http.MethodPut, base, map[string]interface{}{"title": "Lifecycle renamed", "probabilityPercent": 90})
	requireStatus(t, rr, http.StatusOK)
	assert.Equal(t, "Lifecycle renamed", decode[domain.DealDTO](t, rr).Title)

	rr = api.do(t, http.MethodGet, base+"/history", nil)
	requireStatus(t, rr, http.StatusOK)
	history := decode[[]domain.DealHistoryDTO](t, rr)
	changeTypes := map[domain.ChangeType]int{}
	for _, entry := range history {
		changeTypes[entry.ChangeType]++
	}
	assert.Equal(t, 1, changeTypes[domain.ChangeTypeCreate])
	assert.Equal(t, 1, changeTypes[domain.ChangeTypeStageChange])
	assert.Equal(t, 4, changeTypes[domain.ChangeTypeUpdate]) // product, amount, title, probability

	rr = api.do(t, http.MethodDelete, fmt.Sprintf("%s/products/%d", base, product.ID), nil)
	requireStatus(t, rr, http.StatusNoContent)

	rr = api.do(t, http.MethodDelete, base, nil)
	requireStatus(t, rr, http.StatusNoContent)

	rr = api.do(t, http.MethodGet, base, nil)
	requireStatus(t, rr, http.StatusNotFound)
	assert.Equal(t, domain.ErrorTypeNotFound, decode[domain.APIError](t, rr).Type)
}

func TestDealHandler_List(t *testing.T) {
	api, funnel := setupDealAPI(t)
	for _, title := range []string{"Alpha", "Beta", "Gamma"} {
		createDeal(t, api, title)
	}

	rr := api.do(t, http.MethodGet, "/deals?page=1&pageSize=2", nil)
	requireStatus(t, rr, http.StatusOK)
	page := decode[struct {
		Data       []domain.DealDTO `json:"data"`
		Total      int64            `json:"total"`
		TotalPages int              `json:"totalPages"`
	}](t, rr)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Data, 2)

	rr = api.do(t, http.MethodGet, "/deals?q=gam", nil)
	requireStatus(t, rr, http.StatusOK)
	assert.Equal(t, float64(1), decode[map[string]interface{}](t, rr)["total"])

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/deals?stageId=%d", funnel.Stages[1].ID), nil)
	requireStatus(t, rr, http.StatusOK)
	assert.Equal(t, float64(0), decode[map[string]interface{}](t, rr)["total"])
}

func TestDealHandler_Participants(t *testing.T) {
	api, _ := setupDealAPI(t)
	deal := createDeal(t, api, "Team")
	user := testutil.CreateTestUser(t, api.db, "Anna")
	base := fmt.Sprintf("/deals/%d/participants", deal.ID)

	rr := api.do(t, http.MethodPost, base, domain.AddParticipantRequest{UserID: &user.ID})
	requireStatus(t, rr, http.StatusCreated)
	participant := decode[domain.DealParticipantDTO](t, rr)
	assert.Equal(t, "Anna", participant.DisplayName)

	rr = api.do(t, http.MethodPost, base, domain.AddParticipantRequest{UserID: &user.ID})
	requireStatus(t, rr, http.StatusConflict)
	assert.Equal(t, domain.ErrorTypeInvariant, decode[domain.APIError](t, rr).Type)

	rr = api.do(t, http.MethodPost, base, map[string]interface{}{})
	requireStatus(t, rr, http.StatusConflict)

	rr = api.do(t, http.MethodGet, base, nil)
	requireStatus(t, rr, http.StatusOK)
	assert.Len(t, decode[[]domain.DealParticipantDTO](t, rr), 1)

	rr = api.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, participant.ID), nil)
	requireStatus(t, rr, http.StatusNoContent)
}

func TestDealHandler_FilesAndComments(t *testing.T) {
	api, _ := setupDealAPI(t)
	deal := createDeal(t, api, "Docs")
	base := fmt.Sprintf("/deals/%d", deal.ID)

	for i := 1; i <= 2; i++ {
		rr := api.do(t, http.MethodPost, base+"/files", domain.AddDealFileRequest{
			FileName: fmt.Sprintf("quote-%d.pdf", i),
			FilePath: fmt.Sprintf("/quotes/%d.pdf", i),
			FileType: domain.FileTypeQuote,
		})
		requireStatus(t, rr, http.StatusCreated)
		assert.Equal(t, i, decode[domain.DealFileDTO](t, rr).VersionNumber)
	}

	rr := api.do(t, http.MethodGet, base+"/files", nil)
	requireStatus(t, rr, http.StatusOK)
	files := decode[[]domain.DealFileDTO](t, rr)
	require.Len(t, files, 2)

	rr = api.do(t, http.MethodDelete, fmt.Sprintf("%s/files/%d", base, files[0].ID), nil)
	requireStatus(t, rr, http.StatusNoContent)

	rr = api.do(t, http.MethodPost, base+"/comments", domain.AddDealCommentRequest{Content: "Looks good"})
	requireStatus(t, rr, http.StatusCreated)
	comment := decode[domain.DealCommentDTO](t, rr)

	rr = api.doAs(t, testActor+1, http.MethodDelete, fmt.Sprintf("%s/comments/%d", base, comment.ID), nil)
	requireStatus(t, rr, http.StatusForbidden)

	rr = api.do(t, http.MethodDelete, fmt.Sprintf("%s/comments/%d", base, comment.ID), nil)
	requireStatus(t, rr, http.StatusNoContent)

	rr = api.do(t, http.MethodGet, base+"/comments", nil)
	requireStatus(t, rr, http.StatusOK)
	assert.Empty(t, decode[[]domain.DealCommentDTO](t, rr))
}

func TestDealHandler_ProductValidation(t *testing.T) {
	api, _ := setupDealAPI(t)
	deal := createDeal(t, api, "Priced")

	rr := api.do(t, http.MethodPost, fmt.Sprintf("/deals/%d/products", deal.ID),
		map[string]interface{}{"name": "Washer", "price": 0.005, "quantity": 1000, "taxPercent": 1500})
	requireStatus(t, rr, http.StatusBadRequest)
	assert.Contains(t, decode[domain.APIError](t, rr).Errors, "taxPercent")
}
