package proxy

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/terminal-connector/internal/interfaces"
	"github.com/akylbek/payment-system/terminal-connector/internal/models"
	"github.com/akylbek/payment-system/terminal-connector/internal/telemetry"
)

const (
	OpWelcome      = "welcome"
	OpSale         = "sale"
	OpCancel       = "cancel"
	OpThankYou     = "thank_you"
	OpLatestStatus = "get_latest_status"
)

type lineKey struct{}

// WithLine tags the context so proxied calls are logged against a payment line.
func WithLine(ctx context.Context, lineID string) context.Context {
	return context.WithValue(ctx, lineKey{}, lineID)
}

func lineFrom(ctx context.Context) string {
	id, _ := ctx.Value(lineKey{}).(string)
	return id
}

// Client invokes terminal actions through the backend proxy and turns every
// transport failure into a *models.ConnectivityError.
type Client struct {
	backend  interfaces.Backend
	txLog    interfaces.TransactionLogger
	methodID string
	target   string

	mu        sync.RWMutex
	state     models.SessionState
	onFailure func(ctx context.Context, operation string)
}

func NewClient(backend interfaces.Backend, txLog interfaces.TransactionLogger, methodID, target string) *Client {
	return &Client{
		backend:  backend,
		txLog:    txLog,
		methodID: methodID,
		target:   target,
		state:    models.SessionDisconnected,
	}
}

// OnConnectivityFailure registers the hook that runs before a connectivity
// failure is returned to the caller.
func (c *Client) OnConnectivityFailure(fn func(ctx context.Context, operation string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailure = fn
}

func (c *Client) State() models.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(state models.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

func (c *Client) Invoke(ctx context.Context, operation string, payload any) (json.RawMessage, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "terminal.proxy."+operation)
	defer span.End()
	span.SetAttributes(
		attribute.String("terminal.method_id", c.methodID),
		attribute.String("terminal.operation", operation),
	)

	entry := c.logRequest(ctx, operation, payload)

	start := time.Now()
	raw, err := c.backend.Call(ctx, c.target, operation, payload)
	telemetry.ProxyCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err != nil {
		telemetry.ProxyCalls.WithLabelValues(operation, "connectivity_failure").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "connectivity failure")
		c.logResponse(ctx, entry, nil, err)

		telemetry.Logger.Warn("Terminal proxy call failed",
			zap.String("method_id", c.methodID),
			zap.String("operation", operation),
			zap.Error(err),
		)

		c.setState(models.SessionDisconnected)
		c.mu.RLock()
		hook := c.onFailure
		c.mu.RUnlock()
		if hook != nil {
			hook(ctx, operation)
		}
		return nil, &models.ConnectivityError{Operation: operation, Err: err}
	}

	telemetry.ProxyCalls.WithLabelValues(operation, "ok").Inc()
	c.setState(models.SessionConnected)
	c.logResponse(ctx, entry, raw, nil)
	return raw, nil
}

func (c *Client) logRequest(ctx context.Context, operation string, payload any) *models.TransactionLog {
	if c.txLog == nil {
		return nil
	}
	entry := &models.TransactionLog{
		MethodID:         c.methodID,
		LineID:           lineFrom(ctx),
		Operation:        operation,
		Status:           models.LogStatusPending,
		RequestTimestamp: time.Now(),
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			entry.RequestData = string(data)
		}
	}
	if err := c.txLog.LogRequest(ctx, entry); err != nil {
		telemetry.Logger.Warn("Failed to write terminal transaction log",
			zap.String("operation", operation),
			zap.Error(err),
		)
		return nil
	}
	return entry
}

func (c *Client) logResponse(ctx context.Context, entry *models.TransactionLog, raw json.RawMessage, callErr error) {
	if entry == nil {
		return
	}
	entry.ResponseTimestamp = time.Now()
	entry.ResponseData = string(raw)
	entry.Status = models.LogStatusSuccess
	if callErr != nil {
		entry.Status = models.LogStatusFailed
		entry.ErrorMessage = callErr.Error()
	}
	if err := c.txLog.LogResponse(ctx, entry); err != nil {
		telemetry.Logger.Warn("Failed to update terminal transaction log",
			zap.Int64("log_id", entry.ID),
			zap.Error(err),
		)
	}
}
