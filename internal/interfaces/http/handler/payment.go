package handler

import (
	"time"

	ledgerapp "github.com/erp/customer-ledger/internal/application/ledger"
	"github.com/erp/customer-ledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// PaymentHandler records, edits and deletes recovery payments. Each write
// answers with the payment and the customer's recomputed ledger.
type PaymentHandler struct {
	BaseHandler
	payments *ledgerapp.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments *ledgerapp.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// RecordPaymentRequest is the body of POST /payments. Amount accepts a JSON number or string.
type RecordPaymentRequest struct {
	SaleID        string          `json:"sale_id" binding:"required,max=64"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method" binding:"omitempty,max=32"`
	Notes         string          `json:"notes" binding:"omitempty,max=500"`
	PaidAt        *time.Time      `json:"paid_at"`
}

// UpdatePaymentRequest is the body of PUT /payments/:paymentId.
// Omitted optional fields keep their stored values.
type UpdatePaymentRequest struct {
	SaleID        string          `json:"sale_id" binding:"omitempty,max=64"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod *string         `json:"payment_method" binding:"omitempty,max=32"`
	Notes         *string         `json:"notes" binding:"omitempty,max=500"`
	PaidAt        *time.Time      `json:"paid_at"`
}

// RecordPayment godoc
// @Summary      Record a recovery payment against a bill
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        customerId path string true "Customer ID"
// @Param        request body RecordPaymentRequest true "Payment"
// @Success      201 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /api/v1/customers/{customerId}/payments [post]
func (h *PaymentHandler) RecordPayment(c *gin.Context) {
	var path dto.CustomerPath
	if err := c.ShouldBindUri(&path); err != nil {
		h.BindingError(c, err)
		return
	}
	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	result, err := h.payments.RecordPayment(c.Request.Context(), ledgerapp.RecordPaymentCommand{
		CustomerID:    path.CustomerID,
		SaleID:        req.SaleID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		PaidAt:        req.PaidAt,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// UpdatePayment godoc
// @Summary      Edit a recovery payment
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        customerId path string true "Customer ID"
// @Param        paymentId path string true "Payment ID"
// @Param        request body UpdatePaymentRequest true "Payment changes"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /api/v1/customers/{customerId}/payments/{paymentId} [put]
func (h *PaymentHandler) UpdatePayment(c *gin.Context) {
	var path dto.PaymentPath
	if err := c.ShouldBindUri(&path); err != nil {
		h.BindingError(c, err)
		return
	}
	var req UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	result, err := h.payments.UpdatePayment(c.Request.Context(), ledgerapp.UpdatePaymentCommand{
		CustomerID:    path.CustomerID,
		PaymentID:     path.PaymentID,
		SaleID:        req.SaleID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		PaidAt:        req.PaidAt,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// DeletePayment godoc
// @Summary      Delete a recovery payment
// @Tags         payments
// @Produce      json
// @Param        customerId path string true "Customer ID"
// @Param        paymentId path string true "Payment ID"
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /api/v1/customers/{customerId}/payments/{paymentId} [delete]
func (h *PaymentHandler) DeletePayment(c *gin.Context) {
	var path dto.PaymentPath
	if err := c.ShouldBindUri(&path); err != nil {
		h.BindingError(c, err)
		return
	}

	result, err := h.payments.DeletePayment(c.Request.Context(), ledgerapp.DeletePaymentCommand{
		CustomerID: path.CustomerID,
		PaymentID:  path.PaymentID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
