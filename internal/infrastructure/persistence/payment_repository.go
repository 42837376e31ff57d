package persistence

import (
	"context"
	"errors"

	"github.com/erp/customer-ledger/internal/domain/ledger"
	"github.com/erp/customer-ledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPaymentRepository implements PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByCustomer returns every recovery payment of a customer, oldest first
func (r *GormPaymentRepository) FindByCustomer(ctx context.Context, customerID string) ([]ledger.Payment, error) {
	var paymentModels []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at, id").
		Find(&paymentModels).Error; err != nil {
		return nil, err
	}

	payments := make([]ledger.Payment, len(paymentModels))
	for i := range paymentModels {
		payments[i] = paymentModels[i].ToDomain()
	}
	return payments, nil
}

// FindByID finds a payment by ID, returning nil when it does not exist
func (r *GormPaymentRepository) FindByID(ctx context.Context, id string) (*ledger.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	payment := model.ToDomain()
	return &payment, nil
}

// Save creates or updates a payment
func (r *GormPaymentRepository) Save(ctx context.Context, payment *ledger.Payment) error {
	var model models.PaymentModel
	model.FromDomain(payment)
	if err := r.db.WithContext(ctx).Save(&model).Error; err != nil {
		return err
	}
	payment.CreatedAt = model.ToDomain().CreatedAt
	return nil
}

// Delete removes a payment
func (r *GormPaymentRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.PaymentModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledger.ErrPaymentNotFound
	}
	return nil
}

// Ensure GormPaymentRepository implements PaymentRepository
var _ ledger.PaymentRepository = (*GormPaymentRepository)(nil)
