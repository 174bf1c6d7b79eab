package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrConnectivity      = errors.New("terminal connectivity failure")
	ErrWaiterExists      = errors.New("payment line already has an outstanding request")
	ErrSessionClosed     = errors.New("payment session closed")
	ErrLineNotFound      = errors.New("payment line not found")
	ErrTerminalNotFound  = errors.New("terminal not found")
	ErrLineLocked        = errors.New("payment line is being processed")
	ErrInvalidTransition = errors.New("invalid payment line transition")
)

// ConnectivityError is the only error shape the proxy client returns for
// transport failures.
type ConnectivityError struct {
	Operation string
	Err       error
}

func (e *ConnectivityError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("terminal connectivity failure: %v", e.Err)
	}
	return fmt.Sprintf("terminal connectivity failure during %s: %v", e.Operation, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }

// TerminalError means the terminal rejected the request or returned ambiguous data.
type TerminalError struct {
	Code    int
	Message string
}

func (e *TerminalError) Error() string {
	if e.Code == 0 {
		return "terminal error: " + e.Message
	}
	return fmt.Sprintf("terminal error %d: %s", e.Code, e.Message)
}

// DeclinedError means the terminal explicitly refused the charge.
type DeclinedError struct {
	Message string
}

func (e *DeclinedError) Error() string { return "payment declined: " + e.Message }
