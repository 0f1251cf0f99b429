package handler

import (
	"net/http"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// FunnelHandler serves funnels, their stages and the stage metrics cache
type FunnelHandler struct {
	funnelService  *service.FunnelService
	metricsService *service.StageMetricsService
	logger         *zap.Logger
}

func NewFunnelHandler(funnelService *service.FunnelService, metricsService *service.StageMetricsService, logger *zap.Logger) *FunnelHandler {
	return &FunnelHandler{
		funnelService:  funnelService,
		metricsService: metricsService,
		logger:         logger,
	}
}

// List lists funnels with their ordered stages, default first
func (h *FunnelHandler) List(w http.ResponseWriter, r *http.Request) {
	funnels, err := h.funnelService.List(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err, "list funnels")
		return
	}
	respondJSON(w, http.StatusOK, funnels)
}

func (h *FunnelHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var req domain.CreateFunnelRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	funnel, err := h.funnelService.Create(r.Context(), &req, actor)
	if err != nil {
		handleServiceError(w, h.logger, err, "create funnel")
		return
	}
	respondJSON(w, http.StatusCreated, funnel)
}

func (h *FunnelHandler) GetDefault(w http.ResponseWriter, r *http.Request) {
	funnel, err := h.funnelService.GetDefault(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err, "get default funnel")
		return
	}
	respondJSON(w, http.StatusOK, funnel)
}

func (h *FunnelHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	funnel, err := h.funnelService.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "get funnel")
		return
	}
	respondJSON(w, http.StatusOK, funnel)
}

func (h *FunnelHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.UpdateFunnelRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	funnel, err := h.funnelService.Update(r.Context(), id, &req)
	if err != nil {
		handleServiceError(w, h.logger, err, "update funnel")
		return
	}
	respondJSON(w, http.StatusOK, funnel)
}

// Delete fails with 409 for the default funnel or a funnel that still has deals
func (h *FunnelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.funnelService.Delete(r.Context(), id); err != nil {
		handleServiceError(w, h.logger, err, "delete funnel")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FunnelHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	funnel, err := h.funnelService.SetDefault(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "set default funnel")
		return
	}
	respondJSON(w, http.StatusOK, funnel)
}

func (h *FunnelHandler) AddStage(w http.ResponseWriter, r *http.Request) {
	funnelID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.CreateStageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	stage, err := h.funnelService.AddStage(r.Context(), funnelID, &req)
	if err != nil {
		handleServiceError(w, h.logger, err, "add stage")
		return
	}
	respondJSON(w, http.StatusCreated, stage)
}

func (h *FunnelHandler) UpdateStage(w http.ResponseWriter, r *http.Request) {
	funnelID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	stageID, ok := parseIDParam(w, r, "stageId")
	if !ok {
		return
	}
	var req domain.UpdateStageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	stage, err := h.funnelService.UpdateStage(r.Context(), funnelID, stageID, &req)
	if err != nil {
		handleServiceError(w, h.logger, err, "update stage")
		return
	}
	respondJSON(w, http.StatusOK, stage)
}

// DeleteStage moves the stage's deals to the first remaining stage, then deletes it
func (h *FunnelHandler) DeleteStage(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	funnelID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	stageID, ok := parseIDParam(w, r, "stageId")
	if !ok {
		return
	}

	if err := h.funnelService.DeleteStage(r.Context(), funnelID, stageID, actor); err != nil {
		handleServiceError(w, h.logger, err, "delete stage")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FunnelHandler) ReorderStages(w http.ResponseWriter, r *http.Request) {
	funnelID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var req domain.ReorderStagesRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	stages, err := h.funnelService.ReorderStages(r.Context(), funnelID, req.StageIDs)
	if err != nil {
		handleServiceError(w, h.logger, err, "reorder stages")
		return
	}
	respondJSON(w, http.StatusOK, stages)
}

func (h *FunnelHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	funnelID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	metrics, err := h.metricsService.GetFunnelMetrics(r.Context(), funnelID)
	if err != nil {
		handleServiceError(w, h.logger, err, "get stage metrics")
		return
	}
	respondJSON(w, http.StatusOK, metrics)
}

func (h *FunnelHandler) RefreshMetrics(w http.ResponseWriter, r *http.Request) {
	funnelID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	metrics, err := h.metricsService.RefreshFunnel(r.Context(), funnelID)
	if err != nil {
		handleServiceError(w, h.logger, err, "refresh stage metrics")
		return
	}
	respondJSON(w, http.StatusOK, metrics)
}
