package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/domain"
	"gorm.io/gorm"
)

type DealProductRepository struct {
	db *gorm.DB
}

func NewDealProductRepository(db *gorm.DB) *DealProductRepository {
	return &DealProductRepository{db: db}
}

func (r *DealProductRepository) WithTx(tx *gorm.DB) *DealProductRepository {
	return &DealProductRepository{db: tx}
}

func (r *DealProductRepository) Create(ctx context.Context, product *domain.DealProduct) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *DealProductRepository) GetByID(ctx context.Context, id int64) (*domain.DealProduct, error) {
	var product domain.DealProduct
	err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *DealProductRepository) ListByDeal(ctx context.Context, dealID int64) ([]domain.DealProduct, error) {
	var products []domain.DealProduct
	err := r.db.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Order("added_at ASC, id ASC").
		Find(&products).Error
	return products, err
}

// SumLineTotals adds up the line totals of a deal. The sum is taken in
// decimal on the client so the result does not depend on how the driver
// reports NUMERIC aggregates.
func (r *DealProductRepository) SumLineTotals(ctx context.Context, dealID int64) (decimal.Decimal, error) {
	var products []domain.DealProduct
	err := r.db.WithContext(ctx).
		Select("id", "line_total").
		Where("deal_id = ?", dealID).
		Find(&products).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range products {
		total = total.Add(p.LineTotal)
	}
	return total, nil
}

func (r *DealProductRepository) Delete(ctx context.Context, id int64) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&domain.DealProduct{}, "id = ?", id)
	return result.RowsAffected > 0, result.Error
}

func (r *DealProductRepository) DeleteByDeal(ctx context.Context, dealID int64) error {
	return r.db.WithContext(ctx).Delete(&domain.DealProduct{}, "deal_id = ?", dealID).Error
}
