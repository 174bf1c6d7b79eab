package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/terminal-connector/internal/handlers"
	"github.com/akylbek/payment-system/terminal-connector/internal/interfaces"
	"github.com/akylbek/payment-system/terminal-connector/internal/service"
	"github.com/akylbek/payment-system/terminal-connector/internal/telemetry"
)

func NewRouter(
	store interfaces.OrderLineStore,
	terminals *service.Registry,
	buffer interfaces.StatusBuffer,
	channel interfaces.NotificationChannel,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "terminal-connector"})
	})

	paymentHandler := handlers.NewPaymentHandler(store, terminals)
	r.POST("/payments", paymentHandler.CreatePaymentLine)
	r.GET("/payments/:id", paymentHandler.GetPaymentLine)
	r.GET("/terminals/:method/status", paymentHandler.GetTerminalStatus)
	r.POST("/terminals/:method/payments/:id/send", paymentHandler.SendPayment)
	r.POST("/terminals/:method/payments/:id/cancel", paymentHandler.CancelPayment)

	notificationHandler := handlers.NewNotificationHandler(terminals, buffer, channel)
	r.POST("/notifications/clover", notificationHandler.HandleCloverNotification)

	return r
}
