package models

import (
	"encoding/json"
	"time"

	"github.com/erp/customer-ledger/internal/domain/ledger"
	"github.com/erp/customer-ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BillModel is the persistence model for a sale or opening balance
type BillModel struct {
	RecordModel
	BillNumber      string          `gorm:"type:varchar(64)"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	AmountPaid      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	DueDate         *time.Time
	IsManualBalance bool `gorm:"not null;default:false"`
	LineItems       datatypes.JSON
	Notes           string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (BillModel) TableName() string {
	return "bills"
}

// ToDomain converts the persistence model to a domain Bill
func (m *BillModel) ToDomain() ledger.Bill {
	b := ledger.Bill{
		ID:              m.ID,
		CustomerID:      m.CustomerID,
		BillNumber:      m.BillNumber,
		TotalAmount:     valueobject.AmountOf(m.TotalAmount),
		AmountPaid:      valueobject.AmountOf(m.AmountPaid),
		CreatedAt:       valueobject.TimeOf(m.CreatedAt),
		IsManualBalance: m.IsManualBalance,
		LineItems:       decodeLineItems(m.LineItems),
		Notes:           m.Notes,
	}
	if m.DueDate != nil {
		b.DueDate = valueobject.TimeOf(*m.DueDate)
	}
	return b
}

// FromDomain populates the model from a domain Bill
func (m *BillModel) FromDomain(b *ledger.Bill) {
	m.ID = b.ID
	m.CustomerID = b.CustomerID
	m.BillNumber = b.BillNumber
	m.TotalAmount = b.TotalAmount.Decimal()
	m.AmountPaid = b.AmountPaid.Decimal()
	m.CreatedAt = parseTime(b.CreatedAt)
	m.IsManualBalance = b.IsManualBalance
	m.LineItems = encodeLineItems(b.LineItems)
	m.Notes = b.Notes
	m.DueDate = nil
	if due, ok := valueobject.ParseDate(string(b.DueDate)); ok {
		m.DueDate = &due
	}
}

// PaymentModel is the persistence model for a recovery payment.
// CreatedAt is the date the payment was received.
type PaymentModel struct {
	RecordModel
	SaleID        string          `gorm:"type:varchar(64);not null;index"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PaymentMethod string          `gorm:"type:varchar(32)"`
	Notes         string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() ledger.Payment {
	return ledger.Payment{
		ID:            m.ID,
		CustomerID:    m.CustomerID,
		SaleID:        m.SaleID,
		Amount:        valueobject.AmountOf(m.Amount),
		CreatedAt:     valueobject.TimeOf(m.CreatedAt),
		PaymentMethod: m.PaymentMethod,
		Notes:         m.Notes,
	}
}

// FromDomain populates the model from a domain Payment
func (m *PaymentModel) FromDomain(p *ledger.Payment) {
	m.ID = p.ID
	m.CustomerID = p.CustomerID
	m.SaleID = p.SaleID
	m.Amount = p.Amount.Decimal()
	m.CreatedAt = parseTime(p.CreatedAt)
	m.PaymentMethod = p.PaymentMethod
	m.Notes = p.Notes
}

// ReturnModel is the persistence model for a return
type ReturnModel struct {
	RecordModel
	SaleID       *string         `gorm:"type:varchar(64);index"`
	TotalRefund  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	RefundMethod string          `gorm:"type:varchar(16);not null"`
	ReturnType   string          `gorm:"type:varchar(16)"`
	LineItems    datatypes.JSON
	Notes        string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (ReturnModel) TableName() string {
	return "returns"
}

// ToDomain converts the persistence model to a domain Return
func (m *ReturnModel) ToDomain() ledger.Return {
	r := ledger.Return{
		ID:           m.ID,
		CustomerID:   m.CustomerID,
		TotalRefund:  valueobject.AmountOf(m.TotalRefund),
		RefundMethod: ledger.RefundMethod(m.RefundMethod),
		ReturnType:   ledger.ReturnType(m.ReturnType),
		CreatedAt:    valueobject.TimeOf(m.CreatedAt),
		LineItems:    decodeLineItems(m.LineItems),
		Notes:        m.Notes,
	}
	if m.SaleID != nil {
		r.SaleID = *m.SaleID
	}
	return r
}

// FromDomain populates the model from a domain Return
func (m *ReturnModel) FromDomain(r *ledger.Return) {
	m.ID = r.ID
	m.CustomerID = r.CustomerID
	m.SaleID = nil
	if r.SaleID != "" {
		saleID := r.SaleID
		m.SaleID = &saleID
	}
	m.TotalRefund = r.TotalRefund.Decimal()
	m.RefundMethod = string(r.RefundMethod.Normalize())
	m.ReturnType = string(r.ReturnType)
	m.CreatedAt = parseTime(r.CreatedAt)
	m.LineItems = encodeLineItems(r.LineItems)
	m.Notes = r.Notes
}

// parseTime returns the zero time for unparsable input so GORM stamps the row on create
func parseTime(t valueobject.RawTime) time.Time {
	parsed, ok := valueobject.ParseDate(string(t))
	if !ok {
		return time.Time{}
	}
	return parsed
}

func encodeLineItems(items []ledger.LineItem) datatypes.JSON {
	if len(items) == 0 {
		return nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}

// decodeLineItems drops malformed line items rather than failing the whole read
func decodeLineItems(data datatypes.JSON) []ledger.LineItem {
	if len(data) == 0 {
		return nil
	}
	var items []ledger.LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	return items
}
