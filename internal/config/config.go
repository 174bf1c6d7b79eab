package config

import (
	"os"
	"time"
)

type Config struct {
	DatabaseURL      string
	RedisURL         string
	KafkaBrokers     string
	NatsURL          string
	JaegerEndpoint   string
	Port             string
	BackendTransport string
	BackendURL       string
	ProxyTimeout     time.Duration
	LineLockTTL      time.Duration
	Terminal         TerminalConfig
}

// TerminalConfig identifies the payment method and the device it drives.
type TerminalConfig struct {
	MethodID   string
	DeviceID   string
	MerchantID string
}

func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8084"
	}

	transport := os.Getenv("BACKEND_TRANSPORT")
	if transport == "" {
		transport = "http"
	}

	backendURL := os.Getenv("BACKEND_URL")
	if backendURL == "" {
		backendURL = "http://localhost:8069"
	}

	methodID := os.Getenv("TERMINAL_METHOD_ID")
	if methodID == "" {
		methodID = "clover"
	}

	return &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		KafkaBrokers:     os.Getenv("KAFKA_BROKERS"),
		NatsURL:          os.Getenv("NATS_URL"),
		JaegerEndpoint:   os.Getenv("JAEGER_ENDPOINT"),
		Port:             port,
		BackendTransport: transport,
		BackendURL:       backendURL,
		// Payment operations wait on the cardholder.
		ProxyTimeout: duration("PROXY_TIMEOUT", 120*time.Second),
		LineLockTTL:  duration("LINE_LOCK_TTL", 10*time.Minute),
		Terminal: TerminalConfig{
			MethodID:   methodID,
			DeviceID:   os.Getenv("CLOVER_DEVICE_ID"),
			MerchantID: os.Getenv("CLOVER_MERCHANT_ID"),
		},
	}
}

func duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
