package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// DealHandler serves deals and everything attached to them
type DealHandler struct {
	dealService        *service.DealService
	productService     *service.DealProductService
	participantService *service.DealParticipantService
	historyService     *service.DealHistoryService
	fileService        *service.DealFileService
	commentService     *service.DealCommentService
	logger             *zap.Logger
}

func NewDealHandler(
	dealService *service.DealService,
	productService *service.DealProductService,
	participantService *service.DealParticipantService,
	historyService *service.DealHistoryService,
	fileService *service.DealFileService,
	commentService *service.DealCommentService,
	logger *zap.Logger,
) *DealHandler {
	return &DealHandler{
		dealService:        dealService,
		productService:     productService,
		participantService: participantService,
		historyService:     historyService,
		fileService:        fileService,
		commentService:     commentService,
		logger:             logger,
	}
}

// List returns a page of deals matching the query filters
func (h *DealHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("pageSize"))

	filters := &domain.DealFilters{
		FunnelID:          queryInt64(r, "funnelId"),
		StageID:           queryInt64(r, "stageId"),
		ResponsibleUserID: queryInt64(r, "responsibleUserId"),
		IsClosed:          queryBool(r, "isClosed"),
		Search:            strings.TrimSpace(query.Get("q")),
	}

	result, err := h.dealService.List(r.Context(), filters, page, pageSize)
	if err != nil {
		handleServiceError(w, h.logger, err, "list deals")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Create creates a deal on the given stage, or on the first stage of the default funnel
func (h *DealHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var req domain.CreateDealRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	deal, err := h.dealService.Create(r.Context(), &req, actor)
	if err != nil {
		handleServiceError(w, h.logger, err, "create deal")
		return
	}

	w.Header().Set("Location", "/api/v1/deals/"+strconv.FormatInt(deal.ID, 10))
	respondJSON(w, http.StatusCreated, deal)
}

func (h *DealHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	deal, err := h.dealService.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "get deal")
		return
	}
	respondJSON(w, http.StatusOK, deal)
}

// Update applies a partial update; every changed field is recorded in the history
func (h *DealHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.UpdateDealRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	deal, err := h.dealService.Update(r.Context(), id, &req, actor)
	if err != nil {
		handleServiceError(w, h.logger, err, "update deal")
		return
	}
	respondJSON(w, http.StatusOK, deal)
}

func (h *DealHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.dealService.Delete(r.Context(), id, actor); err != nil {
		handleServiceError(w, h.logger, err, "delete deal")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Move moves the deal to another stage of its funnel
func (h *DealHandler) Move(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.MoveDealRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	deal, err := h.dealService.MoveToStage(r.Context(), id, req.StageID, actor)
	if err != nil {
		handleServiceError(w, h.logger, err, "move deal")
		return
	}
	respondJSON(w, http.StatusOK, deal)
}

func (h *DealHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	history, err := h.historyService.ListByDeal(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "list deal history")
		return
	}
	respondJSON(w, http.StatusOK, history)
}

// Products

func (h *DealHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	products, err := h.productService.ListProducts(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "list products")
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *DealHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.AddDealProductRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	product, err := h.productService.AddProduct(r.Context(), id, &req, actor)
	if err != nil {
		handleServiceError(w, h.logger, err, "add product")
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

func (h *DealHandler) RemoveProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	productID, ok := parseIDParam(w, r, "productId")
	if !ok {
		return
	}
	if _, err := h.productService.RemoveProduct(r.Context(), id, productID, actor); err != nil {
		handleServiceError(w, h.logger, err, "remove product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Participants

func (h *DealHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	participants, err := h.participantService.List(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "list participants")
		return
	}
	respondJSON(w, http.StatusOK, participants)
}

func (h *DealHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.AddParticipantRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	participant, err := h.participantService.Add(r.Context(), id, &req)
	if err != nil {
		handleServiceError(w, h.logger, err, "add participant")
		return
	}
	respondJSON(w, http.StatusCreated, participant)
}

func (h *DealHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	participantID, ok := parseIDParam(w, r, "participantId")
	if !ok {
		return
	}
	if _, err := h.participantService.Remove(r.Context(), id, participantID); err != nil {
		handleServiceError(w, h.logger, err, "remove participant")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Files

func (h *DealHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	files, err := h.fileService.ListFiles(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "list files")
		return
	}
	respondJSON(w, http.StatusOK, files)
}

func (h *DealHandler) AddFile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.AddDealFileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	file, err := h.fileService.AddFile(r.Context(), id, &req, actor)
	if err != nil {
		handleServiceError(w, h.logger, err, "add file")
		return
	}
	respondJSON(w, http.StatusCreated, file)
}

func (h *DealHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	fileID, ok := parseIDParam(w, r, "fileId")
	if !ok {
		return
	}
	if err := h.fileService.DeleteFile(r.Context(), id, fileID); err != nil {
		handleServiceError(w, h.logger, err, "delete file")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Comments

func (h *DealHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	comments, err := h.commentService.ListComments(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "list comments")
		return
	}
	respondJSON(w, http.StatusOK, comments)
}

func (h *DealHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.AddDealCommentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	comment, err := h.commentService.AddComment(r.Context(), id, &req, actor)
	if err != nil {
		handleServiceError(w, h.logger, err, "add comment")
		return
	}
	respondJSON(w, http.StatusCreated, comment)
}

func (h *DealHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	commentID, ok := parseIDParam(w, r, "commentId")
	if !ok {
		return
	}
	if err := h.commentService.DeleteComment(r.Context(), id, commentID, actor); err != nil {
		handleServiceError(w, h.logger, err, "delete comment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
