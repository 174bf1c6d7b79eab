package interfaces

import (
	"context"

	"github.com/google/uuid"

	"github.com/akylbek/payment-system/terminal-connector/internal/models"
)

// PaymentLineStore defines the contract for payment line data access.
// The core only reads lines and updates status and settlement fields.
type PaymentLineStore interface {
	GetLine(ctx context.Context, id uuid.UUID) (*models.PaymentLine, error)
	// TransitionLine moves the line to `to` only if its current status is one
	// of `from`, and returns the number of rows changed.
	TransitionLine(ctx context.Context, id uuid.UUID, from []models.LineStatus, to models.LineStatus, settlement *models.Settlement) (int64, error)
}

// OrderLineStore is the order surface's view of the lines: it also creates them.
type OrderLineStore interface {
	PaymentLineStore
	InsertLine(ctx context.Context, line models.PaymentLine) error
}

// TransactionLogger records proxied calls to the terminal.
type TransactionLogger interface {
	LogRequest(ctx context.Context, entry *models.TransactionLog) error
	LogResponse(ctx context.Context, entry *models.TransactionLog) error
}

// LineLocker guards a payment line against concurrent initiation across instances.
type LineLocker interface {
	Acquire(ctx context.Context, lineID uuid.UUID) (release func(), err error)
}
