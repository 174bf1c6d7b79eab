package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/terminal-connector/internal/interfaces"
	"github.com/akylbek/payment-system/terminal-connector/internal/models"
	"github.com/akylbek/payment-system/terminal-connector/internal/service"
	"github.com/akylbek/payment-system/terminal-connector/internal/telemetry"
)

type PaymentHandler struct {
	store     interfaces.OrderLineStore
	terminals *service.Registry
}

type createLineRequest struct {
	OrderID string          `json:"order_id" binding:"required"`
	Amount  decimal.Decimal `json:"amount"`
}

func NewPaymentHandler(store interfaces.OrderLineStore, terminals *service.Registry) *PaymentHandler {
	return &PaymentHandler{
		store:     store,
		terminals: terminals,
	}
}

func (h *PaymentHandler) CreatePaymentLine(c *gin.Context) {
	var req createLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Logger.Error("Error decoding payment line", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	line := models.PaymentLine{
		ID:      uuid.New(),
		OrderID: req.OrderID,
		Amount:  req.Amount,
		Status:  models.StatusInit,
	}
	if err := h.store.InsertLine(c.Request.Context(), line); err != nil {
		telemetry.Logger.Error("Error creating payment line",
			zap.String("order_id", req.OrderID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create payment line"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"line_id":  line.ID,
		"order_id": line.OrderID,
		"amount":   line.Amount.StringFixed(2),
		"status":   line.Status,
	})
}

func (h *PaymentHandler) GetPaymentLine(c *gin.Context) {
	lineID, ok := parseLineID(c)
	if !ok {
		return
	}

	line, err := h.store.GetLine(c.Request.Context(), lineID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, lineJSON(line))
}

func (h *PaymentHandler) SendPayment(c *gin.Context) {
	lineID, ok := parseLineID(c)
	if !ok {
		return
	}
	terminal, err := h.terminals.Get(c.Param("method"))
	if err != nil {
		writeError(c, err)
		return
	}

	var order models.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if order.ID == "" || order.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id and session_id are required"})
		return
	}

	resp, err := terminal.Initiate(c.Request.Context(), order, lineID)
	if err != nil {
		telemetry.Logger.Error("Error sending payment request",
			telemetry.LineID(lineID),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}

	body := gin.H{
		"line_id": lineID,
		"outcome": resp.Kind,
		"message": resp.Message,
	}
	if resp.Settlement != nil {
		body["settlement"] = resp.Settlement
	}
	if line, err := h.store.GetLine(c.Request.Context(), lineID); err == nil {
		body["status"] = line.Status
	}
	c.JSON(http.StatusOK, body)
}

func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	lineID, ok := parseLineID(c)
	if !ok {
		return
	}
	terminal, err := h.terminals.Get(c.Param("method"))
	if err != nil {
		writeError(c, err)
		return
	}

	if err := terminal.Cancel(c.Request.Context(), lineID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"line_id": lineID,
		"status":  models.StatusRetry,
	})
}

func (h *PaymentHandler) GetTerminalStatus(c *gin.Context) {
	terminal, err := h.terminals.Get(c.Param("method"))
	if err != nil {
		writeError(c, err)
		return
	}

	body := gin.H{
		"method_id": terminal.MethodID(),
		"device_id": terminal.DeviceID(),
		"state":     terminal.State(),
	}
	if lineID, ok := terminal.PendingLine(); ok {
		body["pending_line_id"] = lineID
	}
	c.JSON(http.StatusOK, body)
}

func parseLineID(c *gin.Context) (uuid.UUID, bool) {
	lineID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment line id"})
		return uuid.Nil, false
	}
	return lineID, true
}

func lineJSON(line *models.PaymentLine) gin.H {
	body := gin.H{
		"line_id":    line.ID,
		"order_id":   line.OrderID,
		"amount":     line.Amount.StringFixed(2),
		"status":     line.Status,
		"updated_at": line.UpdatedAt,
	}
	if line.Settlement != nil {
		body["settlement"] = line.Settlement
	}
	return body
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrLineNotFound), errors.Is(err, models.ErrTerminalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidAmount):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrWaiterExists), errors.Is(err, models.ErrLineLocked), errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrConnectivity):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retryable": service.IsRetryable(err)})
	case errors.Is(err, models.ErrSessionClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "payment still awaiting confirmation"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
