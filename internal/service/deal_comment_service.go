package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type DealCommentService struct {
	dealRepo    *repository.DealRepository
	commentRepo *repository.DealCommentRepository
	logger      *zap.Logger
}

func NewDealCommentService(dealRepo *repository.DealRepository, commentRepo *repository.DealCommentRepository, logger *zap.Logger) *DealCommentService {
	return &DealCommentService{
		dealRepo:    dealRepo,
		commentRepo: commentRepo,
		logger:      logger,
	}
}

// AddComment posts a comment, optionally as a reply within the same deal
func (s *DealCommentService) AddComment(ctx context.Context, dealID int64, req *domain.AddDealCommentRequest, actor int64) (*domain.DealCommentDTO, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrContentRequired
	}

	if _, err := s.dealRepo.GetByID(ctx, dealID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}

	parentID := positiveID(req.ParentCommentID)
	if parentID != nil {
		parent, err := s.commentRepo.GetByID(ctx, *parentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrCommentNotFound
			}
			return nil, fmt.Errorf("failed to get parent comment: %w", err)
		}
		if parent.DealID != dealID {
			return nil, ErrParentNotInDeal
		}
	}

	comment := &domain.DealComment{
		DealID:          dealID,
		ParentCommentID: parentID,
		AuthorID:        actor,
		Content:         content,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	s.logger.Debug("deal comment added", zap.Int64("deal_id", dealID), zap.Int64("comment_id", comment.ID))

	dto := mapper.ToDealCommentDTO(comment)
	return &dto, nil
}

// DeleteComment soft deletes a comment; only its author may do so
func (s *DealCommentService) DeleteComment(ctx context.Context, dealID, commentID, actor int64) error {
	comment, err := s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCommentNotFound
		}
		return fmt.Errorf("failed to get comment: %w", err)
	}
	if comment.DealID != dealID {
		return ErrCommentNotFound
	}
	if comment.AuthorID != actor {
		return ErrNotCommentAuthor
	}

	if err := s.commentRepo.SoftDelete(ctx, commentID); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}

func (s *DealCommentService) ListComments(ctx context.Context, dealID int64) ([]domain.DealCommentDTO, error) {
	if _, err := s.dealRepo.GetByID(ctx, dealID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}

	comments, err := s.commentRepo.ListByDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	dtos := make([]domain.DealCommentDTO, len(comments))
	for i := range comments {
		dtos[i] = mapper.ToDealCommentDTO(&comments[i])
	}
	return dtos, nil
}
