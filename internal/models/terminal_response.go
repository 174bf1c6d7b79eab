package models

import (
	"encoding/json"
	"fmt"
)

type ResponseKind string

const (
	KindSuccess             ResponseKind = "success"
	KindPending             ResponseKind = "pending"
	KindDeclined            ResponseKind = "declined"
	KindTerminalError       ResponseKind = "terminal_error"
	KindConnectivityFailure ResponseKind = "connectivity_failure"
	KindCancelled           ResponseKind = "cancelled"
)

// TerminalResponse is the classified outcome of a sale reply or notification.
// Settlement is set only for KindSuccess; Code only for KindTerminalError.
type TerminalResponse struct {
	Kind       ResponseKind `json:"kind"`
	Settlement *Settlement  `json:"settlement,omitempty"`
	Code       int          `json:"code,omitempty"`
	Message    string       `json:"message,omitempty"`
}

func Success(s Settlement) TerminalResponse {
	return TerminalResponse{Kind: KindSuccess, Settlement: &s}
}

func Pending() TerminalResponse {
	return TerminalResponse{Kind: KindPending}
}

func Declined(message string) TerminalResponse {
	return TerminalResponse{Kind: KindDeclined, Message: message}
}

func TerminalFailure(code int, message string) TerminalResponse {
	return TerminalResponse{Kind: KindTerminalError, Code: code, Message: message}
}

func ConnectivityFailure(message string) TerminalResponse {
	return TerminalResponse{Kind: KindConnectivityFailure, Message: message}
}

func Cancelled(reason string) TerminalResponse {
	return TerminalResponse{Kind: KindCancelled, Message: reason}
}

// NextStatus maps an outcome onto the line status it drives.
// The boolean is false for outcomes that do not move the line.
func (r TerminalResponse) NextStatus() (LineStatus, bool) {
	switch r.Kind {
	case KindSuccess:
		return StatusDone, true
	case KindPending:
		return StatusWaitingConfirmation, true
	case KindDeclined, KindConnectivityFailure:
		return StatusRetry, true
	case KindTerminalError:
		return StatusForceDone, true
	default:
		return "", false
	}
}

// Err returns the outcome as an error value, nil for success and pending.
func (r TerminalResponse) Err() error {
	switch r.Kind {
	case KindDeclined:
		return &DeclinedError{Message: r.Message}
	case KindTerminalError:
		return &TerminalError{Code: r.Code, Message: r.Message}
	case KindConnectivityFailure:
		return &ConnectivityError{Err: fmt.Errorf("%s", r.Message)}
	case KindCancelled:
		return ErrSessionClosed
	default:
		return nil
	}
}

// RawResponse is the wire shape shared by sale replies and notifications.
type RawResponse struct {
	Error      *RawError   `json:"error"`
	Success    *bool       `json:"success"`
	Result     string      `json:"result"`
	Status     string      `json:"status"`
	Message    string      `json:"message"`
	Reason     string      `json:"reason"`
	Payment    *RawPayment `json:"payment"`
	DeviceID   string      `json:"deviceId"`
	MerchantID string      `json:"merchantId"`
}

type RawError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

type RawPayment struct {
	ID                string              `json:"id"`
	Amount            *int64              `json:"amount"`
	Result            string              `json:"result"`
	ExternalPaymentID string              `json:"externalPaymentId"`
	Order             *RawReference       `json:"order"`
	Device            *RawReference       `json:"device"`
	CardTransaction   *RawCardTransaction `json:"cardTransaction"`
}

type RawReference struct {
	ID string `json:"id"`
}

type RawCardTransaction struct {
	CardType       string `json:"cardType"`
	Type           string `json:"type"`
	ReferenceID    string `json:"referenceId"`
	CardholderName string `json:"cardholderName"`
	Last4          string `json:"last4"`
	AuthCode       string `json:"authCode"`
}

// Signal tells a terminal session that a new status is available.
type Signal struct {
	MethodID   string          `json:"method_id"`
	DeviceID   string          `json:"device_id,omitempty"`
	MerchantID string          `json:"merchant_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}
