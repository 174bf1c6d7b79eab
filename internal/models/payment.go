package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentLine is one payment attempt attached to an order.
type PaymentLine struct {
	ID         uuid.UUID
	OrderID    string
	Amount     decimal.Decimal
	Status     LineStatus
	Settlement *Settlement
	UpdatedAt  time.Time
}

// Settlement holds the fields reported by the terminal on success.
type Settlement struct {
	TransactionID  string          `json:"transaction_id"`
	CardType       string          `json:"card_type"`
	CardLastFour   string          `json:"card_last_four"`
	AuthCode       string          `json:"auth_code"`
	CardholderName string          `json:"cardholder_name"`
	Reference      string          `json:"reference"`
	Amount         decimal.Decimal `json:"amount"`
	Result         string          `json:"result"`
}

// Order is the order/session context a payment request is built from.
type Order struct {
	ID        string `json:"order_id"`
	Name      string `json:"order_name"`
	SessionID string `json:"session_id"`
	Currency  string `json:"currency"`
}

// PaymentRequest is the terminal-ready payload for one sale attempt.
type PaymentRequest struct {
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	ExternalPaymentID string `json:"externalPaymentId"`
	OrderName         string `json:"orderName"`
	Note              string `json:"note"`
}

// SessionState is the display-only connectivity indicator of a terminal.
type SessionState string

const (
	SessionConnected    SessionState = "connected"
	SessionDisconnected SessionState = "disconnected"
)

// LineTransition is published whenever a payment line changes status.
type LineTransition struct {
	LineID    uuid.UUID  `json:"line_id"`
	MethodID  string     `json:"method_id"`
	From      LineStatus `json:"from"`
	To        LineStatus `json:"to"`
	Reason    string     `json:"reason,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Alert is a human-readable message for the operator.
type Alert struct {
	MethodID string `json:"method_id"`
	LineID   string `json:"line_id,omitempty"`
	Title    string `json:"title,omitempty"`
	Message  string `json:"message"`
}

// TransactionLog records one proxied call to the terminal.
type TransactionLog struct {
	ID                int64
	MethodID          string
	LineID            string
	Operation         string
	Status            string
	RequestData       string
	ResponseData      string
	ErrorMessage      string
	RequestTimestamp  time.Time
	ResponseTimestamp time.Time
}

// Duration is the round trip time of the logged call.
func (l TransactionLog) Duration() time.Duration {
	if l.RequestTimestamp.IsZero() || l.ResponseTimestamp.IsZero() {
		return 0
	}
	return l.ResponseTimestamp.Sub(l.RequestTimestamp)
}

const (
	LogStatusPending = "pending"
	LogStatusSuccess = "success"
	LogStatusFailed  = "failed"
)
