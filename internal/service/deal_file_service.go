package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DealFileService records metadata of documents attached to deals. The
// bytes live elsewhere; only the path is stored.
type DealFileService struct {
	dealRepo    *repository.DealRepository
	fileRepo    *repository.DealFileRepository
	historyRepo *repository.DealHistoryRepository
	logger      *zap.Logger
	db          *gorm.DB
}

func NewDealFileService(
	dealRepo *repository.DealRepository,
	fileRepo *repository.DealFileRepository,
	historyRepo *repository.DealHistoryRepository,
	logger *zap.Logger,
	db *gorm.DB,
) *DealFileService {
	return &DealFileService{
		dealRepo:    dealRepo,
		fileRepo:    fileRepo,
		historyRepo: historyRepo,
		logger:      logger,
		db:          db,
	}
}

// AddFile attaches a document. A new quote supersedes the current one and
// continues its version chain.
func (s *DealFileService) AddFile(ctx context.Context, dealID int64, req *domain.AddDealFileRequest, actor int64) (*domain.DealFileDTO, error) {
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		return nil, ErrFileNameRequired
	}
	fileType := req.FileType
	if fileType == "" {
		fileType = domain.FileTypeOther
	}
	if !fileType.IsValid() {
		return nil, ErrInvalidFileType
	}

	file := &domain.DealFile{
		DealID:        dealID,
		FileName:      name,
		FilePath:      req.FilePath,
		FileSize:      req.FileSize,
		MimeType:      req.MimeType,
		FileType:      fileType,
		VersionNumber: 1,
		IsCurrent:     true,
		UploadedBy:    actor,
		UploadedAt:    time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.dealRepo.WithTx(tx).GetByIDForUpdate(ctx, dealID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDealNotFound
			}
			return fmt.Errorf("failed to get deal: %w", err)
		}

		fileRepo := s.fileRepo.WithTx(tx)

		if fileType == domain.FileTypeQuote {
			previous, err := fileRepo.GetCurrentByType(ctx, dealID, fileType)
			switch {
			case err == nil:
				if err := fileRepo.MarkNotCurrent(ctx, previous.ID); err != nil {
					return fmt.Errorf("failed to supersede quote: %w", err)
				}
				file.VersionNumber = previous.VersionNumber + 1
				file.ParentVersionID = &previous.ID
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return fmt.Errorf("failed to get current quote: %w", err)
			}
		}

		if err := fileRepo.Create(ctx, file); err != nil {
			return fmt.Errorf("failed to create file: %w", err)
		}

		label := fmt.Sprintf("%s: %s", fileType, name)
		return recordHistory(ctx, s.historyRepo.WithTx(tx),
			newHistoryEntry(dealID, historyFieldFileUploaded, domain.ChangeTypeFileAdded, nil, &label, actor, file.UploadedAt))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("deal file added",
		zap.Int64("deal_id", dealID),
		zap.Int64("file_id", file.ID),
		zap.String("file_type", string(fileType)),
		zap.Int("version", file.VersionNumber))

	dto := mapper.ToDealFileDTO(file)
	return &dto, nil
}

// DeleteFile hides a file. Version links of later quotes stay intact.
func (s *DealFileService) DeleteFile(ctx context.Context, dealID, fileID int64) error {
	file, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFileNotFound
		}
		return fmt.Errorf("failed to get file: %w", err)
	}
	if file.DealID != dealID {
		return ErrFileNotFound
	}

	if err := s.fileRepo.SoftDelete(ctx, fileID); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	s.logger.Info("deal file deleted", zap.Int64("deal_id", dealID), zap.Int64("file_id", fileID))
	return nil
}

func (s *DealFileService) ListFiles(ctx context.Context, dealID int64) ([]domain.DealFileDTO, error) {
	if _, err := s.dealRepo.GetByID(ctx, dealID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}

	files, err := s.fileRepo.ListByDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	dtos := make([]domain.DealFileDTO, len(files))
	for i := range files {
		dtos[i] = mapper.ToDealFileDTO(&files[i])
	}
	return dtos, nil
}
