package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/terminal-connector/internal/interfaces"
	"github.com/akylbek/payment-system/terminal-connector/internal/models"
	"github.com/akylbek/payment-system/terminal-connector/internal/service"
	"github.com/akylbek/payment-system/terminal-connector/internal/telemetry"
)

const maxNotificationSize = 1 << 20

// NotificationHandler receives terminal webhooks, buffers the payload for
// get_latest_status and signals the terminal session.
type NotificationHandler struct {
	terminals *service.Registry
	buffer    interfaces.StatusBuffer
	channel   interfaces.NotificationChannel
}

func NewNotificationHandler(terminals *service.Registry, buffer interfaces.StatusBuffer, channel interfaces.NotificationChannel) *NotificationHandler {
	return &NotificationHandler{terminals: terminals, buffer: buffer, channel: channel}
}

func (h *NotificationHandler) HandleCloverNotification(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Unreadable body"})
		return
	}

	var notification models.RawResponse
	if err := json.Unmarshal(data, &notification); err != nil {
		telemetry.Logger.Warn("Invalid JSON in terminal notification", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid JSON"})
		return
	}

	deviceID := notification.DeviceID
	if deviceID == "" && notification.Payment != nil && notification.Payment.Device != nil {
		deviceID = notification.Payment.Device.ID
	}
	if deviceID == "" && notification.MerchantID == "" {
		telemetry.Logger.Warn("Terminal notification missing device or merchant ID")
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Missing identifiers"})
		return
	}

	terminal, err := h.terminals.Match(deviceID, notification.MerchantID)
	if err != nil {
		telemetry.Logger.Warn("No terminal found for notification",
			zap.String("device_id", deviceID),
			zap.String("merchant_id", notification.MerchantID),
		)
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "Payment method not found"})
		return
	}

	ctx := c.Request.Context()
	if err := h.buffer.Store(ctx, terminal.DeviceID(), json.RawMessage(data)); err != nil {
		telemetry.Logger.Error("Failed to buffer terminal notification", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Failed to store notification"})
		return
	}

	signal := models.Signal{
		MethodID:   terminal.MethodID(),
		DeviceID:   deviceID,
		MerchantID: notification.MerchantID,
	}
	if h.channel != nil {
		err = h.channel.Publish(ctx, signal)
	} else {
		err = terminal.HandleNotification(ctx)
	}
	if err != nil {
		telemetry.Logger.Error("Failed to notify terminal session",
			zap.String("method_id", terminal.MethodID()),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
