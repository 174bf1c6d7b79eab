package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/terminal-connector/internal/alerting"
	"github.com/akylbek/payment-system/terminal-connector/internal/api"
	"github.com/akylbek/payment-system/terminal-connector/internal/config"
	"github.com/akylbek/payment-system/terminal-connector/internal/events"
	"github.com/akylbek/payment-system/terminal-connector/internal/interfaces"
	"github.com/akylbek/payment-system/terminal-connector/internal/models"
	"github.com/akylbek/payment-system/terminal-connector/internal/notify"
	"github.com/akylbek/payment-system/terminal-connector/internal/proxy"
	"github.com/akylbek/payment-system/terminal-connector/internal/repository"
	"github.com/akylbek/payment-system/terminal-connector/internal/service"
	"github.com/akylbek/payment-system/terminal-connector/internal/telemetry"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("terminal-connector", cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Terminal Connector")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	lines := repository.NewPaymentLineRepository(db)
	if err := lines.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	txLogs := repository.NewTransactionLogRepository(db)
	if err := txLogs.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize transaction log", zap.Error(err))
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	defer redisClient.Close()
	buffer := repository.NewStatusBuffer(redisClient, 24*time.Hour)
	locker := repository.NewLineLock(redisClient, cfg.LineLockTTL)

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()
	channel := notify.NewNATSChannel(nc)

	// Connect to Kafka; topics are set per message
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()

	var backend interfaces.Backend
	switch cfg.BackendTransport {
	case "nats":
		backend = proxy.NewNATSBackend(nc, cfg.ProxyTimeout)
	default:
		backend = proxy.NewHTTPBackend(&http.Client{Timeout: cfg.ProxyTimeout}, cfg.BackendURL, os.Getenv("BACKEND_TOKEN"))
	}
	backend = proxy.NewBufferedBackend(backend, buffer, cfg.Terminal.DeviceID)

	client := proxy.NewClient(backend, txLogs, cfg.Terminal.MethodID, cfg.Terminal.DeviceID)
	terminal := service.NewTerminal(service.TerminalOptions{
		MethodID:   cfg.Terminal.MethodID,
		DeviceID:   cfg.Terminal.DeviceID,
		MerchantID: cfg.Terminal.MerchantID,
		Client:     client,
		Store:      lines,
		Publisher:  events.NewKafkaPublisher(kafkaWriter),
		Alerter:    alerting.NewKafkaAlerter(kafkaWriter),
		Locker:     locker,
	})

	registry := service.NewRegistry()
	registry.Add(terminal)

	unsubscribe, err := channel.Subscribe(terminal.MethodID(), func(sig models.Signal) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ProxyTimeout)
		defer cancel()
		if err := terminal.HandleNotification(ctx); err != nil {
			telemetry.Logger.Error("Error handling terminal notification",
				zap.String("method_id", sig.MethodID),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		telemetry.Logger.Fatal("Failed to subscribe to notifications", zap.Error(err))
	}
	defer unsubscribe()

	r := api.NewRouter(lines, registry, buffer, channel)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Terminal Connector starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	// Outstanding confirmation waits resolve as cancelled so their requests can drain.
	registry.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
