package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/gateway-orchestrator/internal/models"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/service"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/telemetry"
)

type PaymentHandler struct {
	orchestrator *service.Orchestrator
}

func NewPaymentHandler(orchestrator *service.Orchestrator) *PaymentHandler {
	useJSONFieldNames()
	return &PaymentHandler{orchestrator: orchestrator}
}

type initiatePaymentRequest struct {
	OrderID       string          `json:"order_id" binding:"required,max=255"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" binding:"omitempty,len=3,alpha"`
	CustomerID    string          `json:"customer_id" binding:"required,max=255"`
	CustomerName  string          `json:"customer_name" binding:"required,max=255"`
	CustomerPhone string          `json:"customer_phone" binding:"required,max=20"`
	CustomerEmail string          `json:"customer_email" binding:"omitempty,email,max=255"`
	Description   string          `json:"description" binding:"max=1000"`
}

type transactionRef struct {
	OrderID string `json:"order_id" binding:"required"`
	TrxID   string `json:"trx_id" binding:"required"`
}

type cancelPaymentRequest struct {
	transactionRef
	Reason string `json:"reason" binding:"max=500"`
}

type refundPaymentRequest struct {
	transactionRef
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason" binding:"max=500"`
}

type paymentSummary struct {
	TrxID    string                   `json:"trx_id"`
	TrxToken string                   `json:"trx_token,omitempty"`
	OrderID  string                   `json:"order_id"`
	Amount   decimal.Decimal          `json:"amount"`
	Currency string                   `json:"currency"`
	Status   models.TransactionStatus `json:"status"`
}

func summarize(rec *models.Transaction) paymentSummary {
	return paymentSummary{
		TrxID:    rec.TrxID,
		TrxToken: rec.TrxToken,
		OrderID:  rec.OrderID,
		Amount:   rec.Amount,
		Currency: rec.Currency,
		Status:   rec.Status,
	}
}

// InitiatePayment handles POST /api/payment/initiate.
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	rec, err := h.orchestrator.Initiate(c.Request.Context(), models.InitiateRequest{
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Description:   req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	telemetry.Logger.Info("Payment initiated",
		zap.String("order_id", rec.OrderID),
		zap.String("trx_id", rec.TrxID),
	)
	respondOK(c, "payment initiated", summarize(rec))
}

// CheckStatus handles POST /api/payment/check-status.
func (h *PaymentHandler) CheckStatus(c *gin.Context) {
	var req transactionRef
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.orchestrator.CheckStatus(c.Request.Context(), req.OrderID, req.TrxID)
	if err != nil {
		respondError(c, err)
		return
	}

	rec := result.Transaction
	respondOK(c, "transaction status checked", gin.H{
		"trx_id":         rec.TrxID,
		"order_id":       rec.OrderID,
		"status":         rec.Status,
		"gateway_status": result.GatewayStatus,
		"is_successful":  rec.Status == models.StatusPaid,
		"completed_at":   rec.CompletedAt,
	})
}

// ConfirmPayment handles POST /api/payment/confirm.
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	var req transactionRef
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	rec, err := h.orchestrator.Confirm(c.Request.Context(), req.OrderID, req.TrxID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "payment confirmed", summarize(rec))
}

// CancelPayment handles POST /api/payment/cancel.
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	var req cancelPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	rec, err := h.orchestrator.Cancel(c.Request.Context(), req.OrderID, req.TrxID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "payment cancelled", gin.H{
		"trx_id":              rec.TrxID,
		"order_id":            rec.OrderID,
		"status":              rec.Status,
		"cancellation_reason": rec.CancellationReason,
		"cancelled_at":        rec.CancelledAt,
	})
}

// RefundPayment handles POST /api/payment/refund.
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req refundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	rec, err := h.orchestrator.Refund(c.Request.Context(), models.RefundRequest{
		OrderID: req.OrderID,
		TrxID:   req.TrxID,
		Amount:  req.Amount,
		Reason:  req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "payment refunded", gin.H{
		"trx_id":        rec.TrxID,
		"order_id":      rec.OrderID,
		"status":        rec.Status,
		"refund_amount": rec.RefundAmount,
		"refund_reason": rec.RefundReason,
		"refunded_at":   rec.RefundedAt,
	})
}
