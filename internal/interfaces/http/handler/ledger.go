package handler

import (
	"bytes"
	"fmt"
	"net/http"

	ledgerapp "github.com/erp/customer-ledger/internal/application/ledger"
	"github.com/erp/customer-ledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// LedgerHandler serves the read side of a customer's ledger. Every request
// recomputes the ledger from the stored bills, payments and returns.
type LedgerHandler struct {
	BaseHandler
	ledgers *ledgerapp.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(ledgers *ledgerapp.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgers: ledgers}
}

// BillListQuery filters the bill partition
type BillListQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=paid unpaid"`
}

// StatementQuery selects a statement period and export format.
// Dates are RFC 3339 timestamps or YYYY-MM-DD; a bare date for "to" covers the whole day.
type StatementQuery struct {
	From   string `form:"from"`
	To     string `form:"to"`
	Format string `form:"format" binding:"omitempty,oneof=json csv text"`
}

// GetLedger godoc
// @Summary      Get a customer's reconciled ledger
// @Tags         ledger
// @Produce      json
// @Param        customerId path string true "Customer ID"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Router       /api/v1/customers/{customerId}/ledger [get]
func (h *LedgerHandler) GetLedger(c *gin.Context) {
	var path dto.CustomerPath
	if err := c.ShouldBindUri(&path); err != nil {
		h.BindingError(c, err)
		return
	}

	result, err := h.ledgers.GetCustomerLedger(c.Request.Context(), path.CustomerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListBills godoc
// @Summary      List a customer's bills, optionally only paid or unpaid ones
// @Tags         ledger
// @Produce      json
// @Param        customerId path string true "Customer ID"
// @Param        status query string false "paid or unpaid"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Router       /api/v1/customers/{customerId}/bills [get]
func (h *LedgerHandler) ListBills(c *gin.Context) {
	var path dto.CustomerPath
	if err := c.ShouldBindUri(&path); err != nil {
		h.BindingError(c, err)
		return
	}
	var query BillListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindingError(c, err)
		return
	}

	result, err := h.ledgers.ListBills(c.Request.Context(), path.CustomerID, query.Status)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListDuePayments godoc
// @Summary      List unpaid bills with a due date, soonest first
// @Tags         ledger
// @Produce      json
// @Param        customerId path string true "Customer ID"
// @Success      200 {object} dto.Response
// @Router       /api/v1/customers/{customerId}/due-payments [get]
func (h *LedgerHandler) ListDuePayments(c *gin.Context) {
	var path dto.CustomerPath
	if err := c.ShouldBindUri(&path); err != nil {
		h.BindingError(c, err)
		return
	}

	result, err := h.ledgers.ListDuePayments(c.Request.Context(), path.CustomerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GetStatement godoc
// @Summary      Get a customer statement as JSON, CSV or a text table
// @Tags         ledger
// @Produce      json,text/csv,text/plain
// @Param        customerId path string true "Customer ID"
// @Param        from query string false "Period start (RFC 3339 or YYYY-MM-DD)"
// @Param        to query string false "Period end (RFC 3339 or YYYY-MM-DD)"
// @Param        format query string false "json, csv or text"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Router       /api/v1/customers/{customerId}/statement [get]
func (h *LedgerHandler) GetStatement(c *gin.Context) {
	var path dto.CustomerPath
	if err := c.ShouldBindUri(&path); err != nil {
		h.BindingError(c, err)
		return
	}
	var query StatementQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindingError(c, err)
		return
	}

	format, err := ledgerapp.ParseStatementFormat(query.Format)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	period, err := ledgerapp.ParsePeriod(query.From, query.To)
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeValidationFormat, err.Error())
		return
	}

	ctx := c.Request.Context()
	st, err := h.ledgers.GetStatement(ctx, path.CustomerID, period)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if format == ledgerapp.FormatJSON {
		h.Success(c, st)
		return
	}

	var buf bytes.Buffer
	if err := h.ledgers.ExportStatement(ctx, &buf, st, format); err != nil {
		h.HandleError(c, err)
		return
	}

	contentType := "text/plain; charset=utf-8"
	ext := "txt"
	if format == ledgerapp.FormatCSV {
		contentType = "text/csv; charset=utf-8"
		ext = "csv"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="statement-%s.%s"`, path.CustomerID, ext))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}
