package mapper

import (
	"time"

	"github.com/straye-as/pipeline-api/internal/domain"
)

const (
	timestampFormat = "2006-01-02T15:04:05Z"
	dateFormat      = "2006-01-02"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateFormat)
	return &s
}

// ToFunnelDTO converts a Funnel and its (already ordered) stages
func ToFunnelDTO(funnel *domain.Funnel, stages []domain.Stage) domain.FunnelDTO {
	dto := domain.FunnelDTO{
		ID:          funnel.ID,
		Name:        funnel.Name,
		Description: funnel.Description,
		IsDefault:   funnel.IsDefault,
		IsActive:    funnel.IsActive,
		CreatedBy:   funnel.CreatedBy,
		CreatedAt:   formatTime(funnel.CreatedAt),
		UpdatedAt:   formatTime(funnel.UpdatedAt),
	}
	if len(stages) > 0 {
		dto.Stages = make([]domain.StageDTO, len(stages))
		for i := range stages {
			dto.Stages[i] = ToStageDTO(&stages[i])
		}
	}
	return dto
}

func ToStageDTO(stage *domain.Stage) domain.StageDTO {
	return domain.StageDTO{
		ID:          stage.ID,
		FunnelID:    stage.FunnelID,
		StageKey:    stage.StageKey,
		Name:        stage.Name,
		Label:       stage.Label,
		TextColor:   stage.TextColor,
		BgColor:     stage.BgColor,
		BorderColor: stage.BorderColor,
		OrderIndex:  stage.OrderIndex,
		IsSystem:    stage.IsSystem,
		SemanticID:  stage.SemanticID,
	}
}

// ToStageMetricsDTO joins the cached aggregate with its stage. A nil metrics
// row renders as an empty, never refreshed aggregate.
func ToStageMetricsDTO(stage *domain.Stage, metrics *domain.StageMetrics) domain.StageMetricsDTO {
	dto := domain.StageMetricsDTO{
		StageID:    stage.ID,
		StageKey:   stage.StageKey,
		StageName:  stage.Name,
		OrderIndex: stage.OrderIndex,
	}
	if metrics != nil {
		dto.DealsCount = metrics.DealsCount
		dto.TotalAmount = metrics.TotalAmount.InexactFloat64()
		dto.AvgDaysInStage = metrics.AvgDaysInStage
		dto.ConversionPercent = metrics.ConversionPercent
		dto.RefreshedAt = formatTimePtr(metrics.RefreshedAt)
	}
	return dto
}

// ToDealDTO converts the deal row only; callers attach related collections
func ToDealDTO(deal *domain.Deal) domain.DealDTO {
	return domain.DealDTO{
		ID:                 deal.ID,
		DealNumber:         deal.DealNumber,
		Title:              deal.Title,
		Description:        deal.Description,
		DealType:           deal.DealType,
		FunnelID:           deal.FunnelID,
		StageID:            deal.StageID,
		Amount:             deal.Amount.InexactFloat64(),
		Currency:           deal.Currency,
		IsManualAmount:     deal.IsManualAmount,
		ProbabilityPercent: deal.ProbabilityPercent,
		TaxValue:           deal.TaxValue.InexactFloat64(),
		StartDate:          formatDatePtr(deal.StartDate),
		CloseDate:          formatDatePtr(deal.CloseDate),
		ResponsibleUserID:  deal.ResponsibleUserID,
		CompanyID:          deal.CompanyID,
		PrimaryContactID:   deal.PrimaryContactID,
		IsClosed:           deal.IsClosed,
		IsPublic:           deal.IsPublic,
		IsNew:              deal.IsNew,
		IsRecurring:        deal.IsRecurring,
		RecurrencePattern:  deal.RecurrencePattern,
		SourceID:           deal.SourceID,
		SourceDescription:  deal.SourceDescription,
		UTMSource:          deal.UTMSource,
		UTMMedium:          deal.UTMMedium,
		UTMCampaign:        deal.UTMCampaign,
		CreatedBy:          deal.CreatedBy,
		ModifiedBy:         deal.ModifiedBy,
		MovedBy:            deal.MovedBy,
		MovedAt:            formatTimePtr(deal.MovedAt),
		ClosedAt:           formatTimePtr(deal.ClosedAt),
		CreatedAt:          formatTime(deal.CreatedAt),
		UpdatedAt:          formatTime(deal.UpdatedAt),
	}
}

func ToStageSummaryDTO(stage *domain.Stage) *domain.StageSummaryDTO {
	if stage == nil {
		return nil
	}
	return &domain.StageSummaryDTO{
		ID:         stage.ID,
		StageKey:   stage.StageKey,
		Name:       stage.Name,
		OrderIndex: stage.OrderIndex,
		SemanticID: stage.SemanticID,
	}
}

func ToFunnelSummaryDTO(funnel *domain.Funnel) *domain.FunnelSummaryDTO {
	if funnel == nil {
		return nil
	}
	return &domain.FunnelSummaryDTO{ID: funnel.ID, Name: funnel.Name}
}

func ToDealProductDTO(product *domain.DealProduct) domain.DealProductDTO {
	return domain.DealProductDTO{
		ID:              product.ID,
		DealID:          product.DealID,
		Name:            product.Name,
		Description:     product.Description,
		SKU:             product.SKU,
		Price:           product.Price.InexactFloat64(),
		Quantity:        product.Quantity.InexactFloat64(),
		Unit:            product.Unit,
		DiscountPercent: product.DiscountPercent.InexactFloat64(),
		TaxPercent:      product.TaxPercent.InexactFloat64(),
		LineTotal:       product.LineTotal.InexactFloat64(),
		AddedBy:         product.AddedBy,
		AddedAt:         formatTime(product.AddedAt),
	}
}

func ToDealHistoryDTO(entry *domain.DealHistoryEntry) domain.DealHistoryDTO {
	return domain.DealHistoryDTO{
		ID:         entry.ID,
		DealID:     entry.DealID,
		FieldName:  entry.FieldName,
		OldValue:   entry.OldValue,
		NewValue:   entry.NewValue,
		ChangeType: entry.ChangeType,
		ChangedBy:  entry.ChangedBy,
		ChangedAt:  formatTime(entry.ChangedAt),
	}
}

func ToDealParticipantDTO(participant *domain.DealParticipant, displayName string) domain.DealParticipantDTO {
	return domain.DealParticipantDTO{
		ID:              participant.ID,
		DealID:          participant.DealID,
		ContactID:       participant.ContactID,
		UserID:          participant.UserID,
		DisplayName:     displayName,
		ParticipantType: participant.ParticipantType,
		JoinedAt:        formatTime(participant.JoinedAt),
	}
}

func ToDealFileDTO(file *domain.DealFile) domain.DealFileDTO {
	return domain.DealFileDTO{
		ID:              file.ID,
		DealID:          file.DealID,
		FileName:        file.FileName,
		FilePath:        file.FilePath,
		FileSize:        file.FileSize,
		MimeType:        file.MimeType,
		FileType:        file.FileType,
		VersionNumber:   file.VersionNumber,
		ParentVersionID: file.ParentVersionID,
		IsCurrent:       file.IsCurrent,
		UploadedBy:      file.UploadedBy,
		UploadedAt:      formatTime(file.UploadedAt),
	}
}

func ToDealCommentDTO(comment *domain.DealComment) domain.DealCommentDTO {
	return domain.DealCommentDTO{
		ID:              comment.ID,
		DealID:          comment.DealID,
		ParentCommentID: comment.ParentCommentID,
		AuthorID:        comment.AuthorID,
		Content:         comment.Content,
		CreatedAt:       formatTime(comment.CreatedAt),
		UpdatedAt:       formatTime(comment.UpdatedAt),
	}
}
