package interfaces

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/akylbek/payment-system/terminal-connector/internal/models"
)

// PaymentTerminal is the capability every terminal integration exposes to the
// order layer.
type PaymentTerminal interface {
	Initiate(ctx context.Context, order models.Order, lineID uuid.UUID) (models.TerminalResponse, error)
	Cancel(ctx context.Context, lineID uuid.UUID) error
	Close()
}

// Backend is the intermediary proxy that forwards operations to the terminal
// vendor's cloud. A returned error is always a transport failure.
type Backend interface {
	Call(ctx context.Context, target, operation string, payload any) (json.RawMessage, error)
}

// Alerter displays errors to the operator. Delivery is best effort.
type Alerter interface {
	Alert(ctx context.Context, alert models.Alert)
}

// EventPublisher announces payment line transitions.
type EventPublisher interface {
	PublishLineTransition(ctx context.Context, transition models.LineTransition) error
}

// StatusBuffer keeps the latest notification payload per device.
type StatusBuffer interface {
	Store(ctx context.Context, deviceID string, payload json.RawMessage) error
	Latest(ctx context.Context, deviceID string) (json.RawMessage, error)
	Clear(ctx context.Context, deviceID string) error
}

// NotificationChannel pushes "new status available" signals to terminal sessions.
type NotificationChannel interface {
	Publish(ctx context.Context, signal models.Signal) error
	Subscribe(methodID string, handle func(models.Signal)) (unsubscribe func() error, err error)
}
