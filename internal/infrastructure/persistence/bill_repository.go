package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/customer-ledger/internal/domain/ledger"
	"github.com/erp/customer-ledger/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormBillRepository implements BillRepository using GORM
type GormBillRepository struct {
	db *gorm.DB
}

// NewGormBillRepository creates a new GormBillRepository
func NewGormBillRepository(db *gorm.DB) *GormBillRepository {
	return &GormBillRepository{db: db}
}

// FindByCustomer returns every bill of a customer, oldest first
func (r *GormBillRepository) FindByCustomer(ctx context.Context, customerID string) ([]ledger.Bill, error) {
	var billModels []models.BillModel
	if err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at, id").
		Find(&billModels).Error; err != nil {
		return nil, err
	}

	bills := make([]ledger.Bill, len(billModels))
	for i := range billModels {
		bills[i] = billModels[i].ToDomain()
	}
	return bills, nil
}

// FindByID finds a bill by ID, returning nil when it does not exist
func (r *GormBillRepository) FindByID(ctx context.Context, id string) (*ledger.Bill, error) {
	var model models.BillModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	bill := model.ToDomain()
	return &bill, nil
}

// AdjustAmountPaid moves amount_paid by delta in a single UPDATE so concurrent
// payment writes on the same bill cannot lose each other's change.
func (r *GormBillRepository) AdjustAmountPaid(ctx context.Context, id string, delta decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.BillModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"amount_paid": gorm.Expr("amount_paid + ?", delta),
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledger.ErrBillNotFound
	}
	return nil
}

// Save creates or updates a bill. Bills belong to the sales flow; this is used
// for imports and seeding.
func (r *GormBillRepository) Save(ctx context.Context, bill *ledger.Bill) error {
	var model models.BillModel
	model.FromDomain(bill)
	return r.db.WithContext(ctx).Save(&model).Error
}

// Ensure GormBillRepository implements BillRepository
var _ ledger.BillRepository = (*GormBillRepository)(nil)
