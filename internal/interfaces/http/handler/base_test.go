package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/customer-ledger/internal/domain/ledger"
	"github.com/erp/customer-ledger/internal/domain/shared"
	"github.com/erp/customer-ledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name: "from context",
			setup: func(c *gin.Context) {
				c.Set("request_id", "ctx-request-id")
			},
			expectedID: "ctx-request-id",
		},
		{
			name: "from header when context empty",
			setup: func(c *gin.Context) {
				c.Request.Header.Set(RequestIDHeader, "header-request-id")
			},
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
		{
			name: "context takes precedence over header",
			setup: func(c *gin.Context) {
				c.Set("request_id", "ctx-id")
				c.Request.Header.Set(RequestIDHeader, "header-id")
			},
			expectedID: "ctx-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext()
			tt.setup(c)
			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestBaseHandler_Success(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	h.Success(c, map[string]string{"balance": "800.50"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "800.50", resp.Data.(map[string]any)["balance"])
}

func TestBaseHandler_Created(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	h.Created(c, map[string]string{"id": "pay-1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decodeResponse(t, w).Success)
}

func TestBaseHandler_ErrorHelpers(t *testing.T) {
	tests := []struct {
		name       string
		call       func(h *BaseHandler, c *gin.Context)
		wantStatus int
		wantCode   string
	}{
		{"bad request", func(h *BaseHandler, c *gin.Context) { h.BadRequest(c, "bad") }, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"not found", func(h *BaseHandler, c *gin.Context) { h.NotFound(c, "gone") }, http.StatusNotFound, dto.ErrCodeNotFound},
		{"internal", func(h *BaseHandler, c *gin.Context) { h.InternalError(c, "boom") }, http.StatusInternalServerError, dto.ErrCodeInternal},
		{"with code", func(h *BaseHandler, c *gin.Context) { h.ErrorWithCode(c, dto.ErrCodeTimeout, "slow") }, http.StatusGatewayTimeout, dto.ErrCodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			c, w := newTestContext()
			c.Set("request_id", "req-1")

			tt.call(h, c)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, "req-1", resp.Error.RequestID)
		})
	}
}

func TestBaseHandler_BindingError(t *testing.T) {
	type sample struct {
		SaleID string `validate:"required"`
		Method string `validate:"oneof=cash card"`
	}
	fieldErr := validator.New().Struct(sample{Method: "cheque"})
	require.Error(t, fieldErr)

	var syntaxTarget map[string]any
	syntaxErr := json.Unmarshal([]byte(`{"sale_id":`), &syntaxTarget)
	require.Error(t, syntaxErr)

	var typeTarget struct {
		SaleID string `json:"sale_id"`
	}
	typeErr := json.Unmarshal([]byte(`{"sale_id":7}`), &typeTarget)
	require.Error(t, typeErr)

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantDetails int
	}{
		{"field errors become details", fieldErr, http.StatusBadRequest, dto.ErrCodeValidation, 2},
		{"syntax error", syntaxErr, http.StatusBadRequest, dto.ErrCodeInvalidJSON, 0},
		{"type error", typeErr, http.StatusBadRequest, dto.ErrCodeInvalidJSON, 0},
		{"body too large", fmt.Errorf("read body: %w", &http.MaxBytesError{Limit: 10}), http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, 0},
		{"anything else", errors.New("invalid uri"), http.StatusBadRequest, dto.ErrCodeBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			c, w := newTestContext()

			h.BindingError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Len(t, resp.Error.Details, tt.wantDetails)
		})
	}

	t.Run("detail messages name the rule", func(t *testing.T) {
		h := &BaseHandler{}
		c, w := newTestContext()

		h.BindingError(c, fieldErr)

		details := decodeResponse(t, w).Error.Details
		require.Len(t, details, 2)
		assert.Equal(t, "SaleID", details[0].Field)
		assert.Equal(t, "SaleID is required", details[0].Message)
		assert.Equal(t, "Method must be one of: cash card", details[1].Message)
	})
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"bill not found", ledger.ErrBillNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"payment not found", fmt.Errorf("update: %w", ledger.ErrPaymentNotFound), http.StatusNotFound, dto.ErrCodeNotFound},
		{"invalid input", shared.NewDomainError("INVALID_INPUT", "bad period"), http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"validation", shared.NewDomainError("VALIDATION_ERROR", "amount"), http.StatusBadRequest, dto.ErrCodeValidation},
		{"fetch timeout", fmt.Errorf("load bills: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, dto.ErrCodeTimeout},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			c, w := newTestContext()

			h.HandleError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}

	t.Run("unexpected errors are attached to the context", func(t *testing.T) {
		h := &BaseHandler{}
		c, _ := newTestContext()

		h.HandleError(c, errors.New("connection reset"))

		require.Len(t, c.Errors, 1)
		assert.Equal(t, "connection reset", c.Errors[0].Error())
	})

	t.Run("unexpected error message is not leaked", func(t *testing.T) {
		h := &BaseHandler{}
		c, w := newTestContext()

		h.HandleError(c, errors.New("pq: password authentication failed"))

		assert.NotContains(t, w.Body.String(), "password")
	})

	t.Run("nil writes nothing", func(t *testing.T) {
		h := &BaseHandler{}
		c, w := newTestContext()

		h.HandleError(c, nil)

		assert.False(t, c.Writer.Written())
		assert.Empty(t, w.Body.String())
	})
}
