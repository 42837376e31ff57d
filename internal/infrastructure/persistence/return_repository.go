package persistence

import (
	"context"

	"github.com/erp/customer-ledger/internal/domain/ledger"
	"github.com/erp/customer-ledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormReturnRepository implements ReturnRepository using GORM
type GormReturnRepository struct {
	db *gorm.DB
}

// NewGormReturnRepository creates a new GormReturnRepository
func NewGormReturnRepository(db *gorm.DB) *GormReturnRepository {
	return &GormReturnRepository{db: db}
}

// FindByCustomer returns every return of a customer, oldest first
func (r *GormReturnRepository) FindByCustomer(ctx context.Context, customerID string) ([]ledger.Return, error) {
	var returnModels []models.ReturnModel
	if err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at, id").
		Find(&returnModels).Error; err != nil {
		return nil, err
	}

	returns := make([]ledger.Return, len(returnModels))
	for i := range returnModels {
		returns[i] = returnModels[i].ToDomain()
	}
	return returns, nil
}

// Save creates or updates a return. Returns are recorded by the sales flow;
// this is used for imports and seeding.
func (r *GormReturnRepository) Save(ctx context.Context, ret *ledger.Return) error {
	var model models.ReturnModel
	model.FromDomain(ret)
	return r.db.WithContext(ctx).Save(&model).Error
}

// Ensure GormReturnRepository implements ReturnRepository
var _ ledger.ReturnRepository = (*GormReturnRepository)(nil)
