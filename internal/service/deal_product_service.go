package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/metrics"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// Column scales of deal_products; inputs are rounded to them before the line
// total is computed so the stored row always reproduces its line_total.
const (
	moneyScale    = 2
	quantityScale = 3
	percentScale  = 2
	maxPercent    = 999.99
)

// ComputeLineTotal returns price × quantity × (1 − discount/100) × (1 + tax/100)
// rounded to two decimal places
func ComputeLineTotal(price, quantity, discountPercent, taxPercent decimal.Decimal) decimal.Decimal {
	discount := decimal.NewFromInt(1).Sub(discountPercent.Div(hundred))
	tax := decimal.NewFromInt(1).Add(taxPercent.Div(hundred))
	return price.Mul(quantity).Mul(discount).Mul(tax).Round(moneyScale)
}

// DealProductService manages the line items of a deal and keeps derived
// amounts in sync with them
type DealProductService struct {
	dealRepo    *repository.DealRepository
	productRepo *repository.DealProductRepository
	historyRepo *repository.DealHistoryRepository
	metrics     *metrics.PipelineMetrics
	logger      *zap.Logger
	db          *gorm.DB
}

func NewDealProductService(
	dealRepo *repository.DealRepository,
	productRepo *repository.DealProductRepository,
	historyRepo *repository.DealHistoryRepository,
	pipelineMetrics *metrics.PipelineMetrics,
	logger *zap.Logger,
	db *gorm.DB,
) *DealProductService {
	return &DealProductService{
		dealRepo:    dealRepo,
		productRepo: productRepo,
		historyRepo: historyRepo,
		metrics:     pipelineMetrics,
		logger:      logger,
		db:          db,
	}
}

// AddProduct inserts a line item and re-derives the deal amount
func (s *DealProductService) AddProduct(ctx context.Context, dealID int64, req *domain.AddDealProductRequest, actor int64) (*domain.DealProductDTO, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if req.Price < 0 || req.Quantity <= 0 || req.DiscountPercent < 0 || req.DiscountPercent > 100 ||
		req.TaxPercent < 0 || req.TaxPercent > maxPercent {
		return nil, ErrInvalidProduct
	}

	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		unit = domain.DefaultUnit
	}

	price := decimal.NewFromFloat(req.Price).Round(moneyScale)
	quantity := decimal.NewFromFloat(req.Quantity).Round(quantityScale)
	discount := decimal.NewFromFloat(req.DiscountPercent).Round(percentScale)
	tax := decimal.NewFromFloat(req.TaxPercent).Round(percentScale)
	if !quantity.IsPositive() || tax.GreaterThan(decimal.NewFromFloat(maxPercent)) {
		return nil, ErrInvalidProduct
	}

	product := &domain.DealProduct{
		DealID:          dealID,
		Name:            name,
		Description:     req.Description,
		SKU:             req.SKU,
		Price:           price,
		Quantity:        quantity,
		Unit:            unit,
		DiscountPercent: discount,
		TaxPercent:      tax,
		LineTotal:       ComputeLineTotal(price, quantity, discount, tax),
		AddedBy:         actor,
		AddedAt:         time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deal, err := s.lockDeal(ctx, tx, dealID)
		if err != nil {
			return err
		}

		if err := s.productRepo.WithTx(tx).Create(ctx, product); err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}

		entry := newHistoryEntry(dealID, historyFieldProductAdded, domain.ChangeTypeUpdate, nil, strPtr(productLabel(product)), actor, product.AddedAt)
		if err := recordHistory(ctx, s.historyRepo.WithTx(tx), entry); err != nil {
			return err
		}

		return s.recalculateAmount(ctx, tx, deal, actor)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ProductOperation("add")
	s.logger.Info("deal product added",
		zap.Int64("deal_id", dealID),
		zap.Int64("product_id", product.ID),
		zap.String("line_total", product.LineTotal.StringFixed(2)))

	dto := mapper.ToDealProductDTO(product)
	return &dto, nil
}

// RemoveProduct deletes a line item of the deal and re-derives the deal amount
func (s *DealProductService) RemoveProduct(ctx context.Context, dealID, productID, actor int64) (bool, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deal, err := s.lockDeal(ctx, tx, dealID)
		if err != nil {
			return err
		}

		productRepo := s.productRepo.WithTx(tx)
		product, err := productRepo.GetByID(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return fmt.Errorf("failed to get product: %w", err)
		}
		if product.DealID != dealID {
			return ErrProductNotFound
		}

		if _, err := productRepo.Delete(ctx, productID); err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}

		entry := newHistoryEntry(dealID, historyFieldProductRemoved, domain.ChangeTypeUpdate, strPtr(productLabel(product)), nil, actor, time.Now().UTC())
		if err := recordHistory(ctx, s.historyRepo.WithTx(tx), entry); err != nil {
			return err
		}

		return s.recalculateAmount(ctx, tx, deal, actor)
	})
	if err != nil {
		return false, err
	}

	s.metrics.ProductOperation("remove")
	s.logger.Info("deal product removed", zap.Int64("deal_id", dealID), zap.Int64("product_id", productID))
	return true, nil
}

// ListProducts returns the deal's line items in insertion order
func (s *DealProductService) ListProducts(ctx context.Context, dealID int64) ([]domain.DealProductDTO, error) {
	if _, err := s.dealRepo.GetByID(ctx, dealID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}

	products, err := s.productRepo.ListByDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	dtos := make([]domain.DealProductDTO, len(products))
	for i := range products {
		dtos[i] = mapper.ToDealProductDTO(&products[i])
	}
	return dtos, nil
}

func (s *DealProductService) lockDeal(ctx context.Context, tx *gorm.DB, dealID int64) (*domain.Deal, error) {
	deal, err := s.dealRepo.WithTx(tx).GetByIDForUpdate(ctx, dealID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}
	return deal, nil
}

// recalculateAmount sets amount to the sum of line totals. Manual amounts
// are left alone.
func (s *DealProductService) recalculateAmount(ctx context.Context, tx *gorm.DB, deal *domain.Deal, actor int64) error {
	if deal.IsManualAmount {
		return nil
	}

	total, err := s.productRepo.WithTx(tx).SumLineTotals(ctx, deal.ID)
	if err != nil {
		return fmt.Errorf("failed to sum line items: %w", err)
	}
	if total.Equal(deal.Amount) {
		return nil
	}

	if err := s.dealRepo.WithTx(tx).Update(ctx, deal.ID, map[string]interface{}{
		"amount":      total,
		"modified_by": actor,
	}); err != nil {
		return fmt.Errorf("failed to update deal amount: %w", err)
	}

	entry := newHistoryEntry(deal.ID, "amount", domain.ChangeTypeUpdate,
		strPtr(deal.Amount.StringFixed(2)), strPtr(total.StringFixed(2)), actor, time.Now().UTC())
	return recordHistory(ctx, s.historyRepo.WithTx(tx), entry)
}

func productLabel(p *domain.DealProduct) string {
	return fmt.Sprintf("%s x %s = %s", p.Name, p.Quantity.String(), p.LineTotal.StringFixed(2))
}
