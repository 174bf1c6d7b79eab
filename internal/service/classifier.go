package service

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/akylbek/payment-system/terminal-connector/internal/models"
	"github.com/akylbek/payment-system/terminal-connector/internal/telemetry"
)

const (
	resultSuccess = "SUCCESS"
	resultPending = "PENDING"

	msgNoResponse   = "no response"
	msgMalformed    = "malformed response"
	msgAuthFailed   = "authentication failed"
	msgNotApproved  = "not approved"
	msgUnknownError = "terminal error"
)

// Classify buckets a sale reply or notification payload. Rules apply in a
// fixed order and the first match wins.
func Classify(raw json.RawMessage) models.TerminalResponse {
	resp := classify(raw)
	telemetry.Classifications.WithLabelValues(string(resp.Kind)).Inc()
	return resp
}

func classify(raw json.RawMessage) models.TerminalResponse {
	trimmed := bytes.TrimSpace(raw)
	if isAbsent(trimmed) {
		return models.TerminalFailure(0, msgNoResponse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return models.TerminalFailure(0, msgMalformed)
	}
	if len(fields) == 0 {
		return models.TerminalFailure(0, msgNoResponse)
	}

	var r models.RawResponse
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return models.TerminalFailure(0, msgMalformed)
	}

	if _, ok := fields["error"]; ok && !isNull(fields["error"]) {
		return classifyError(r.Error)
	}

	if isSuccess(r) {
		return models.Success(settlementFrom(r))
	}

	if isPending(r) {
		return models.Pending()
	}

	switch {
	case r.Message != "":
		return models.Declined(r.Message)
	case r.Reason != "":
		return models.Declined(r.Reason)
	default:
		return models.Declined(msgNotApproved)
	}
}

func isAbsent(raw []byte) bool {
	return len(raw) == 0 || isNull(raw) || string(raw) == "false"
}

func isNull(raw []byte) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func classifyError(e *models.RawError) models.TerminalResponse {
	if e == nil {
		return models.TerminalFailure(0, msgUnknownError)
	}
	if e.StatusCode == http.StatusUnauthorized {
		return models.TerminalFailure(e.StatusCode, msgAuthFailed)
	}
	if e.Message == "" {
		return models.TerminalFailure(e.StatusCode, msgUnknownError)
	}
	return models.TerminalFailure(e.StatusCode, e.Message)
}

func isSuccess(r models.RawResponse) bool {
	if r.Success != nil && *r.Success {
		return true
	}
	if strings.EqualFold(r.Result, resultSuccess) {
		return true
	}
	return r.Payment != nil
}

func isPending(r models.RawResponse) bool {
	return strings.EqualFold(r.Status, resultPending) || strings.EqualFold(r.Result, resultPending)
}

// settlementFrom never fails: missing sub-fields stay empty.
func settlementFrom(r models.RawResponse) models.Settlement {
	s := models.Settlement{Result: r.Result}
	p := r.Payment
	if p == nil {
		return s
	}

	s.TransactionID = p.ID
	if p.Result != "" {
		s.Result = p.Result
	}
	if p.Amount != nil {
		s.Amount = MinorUnitsToAmount(*p.Amount)
	}
	if ct := p.CardTransaction; ct != nil {
		s.CardType = ct.CardType
		if s.CardType == "" {
			s.CardType = ct.Type
		}
		s.CardLastFour = ct.Last4
		s.Reference = ct.ReferenceID
		s.CardholderName = ct.CardholderName
		s.AuthCode = ct.AuthCode
	}
	return s
}

// ExternalPaymentID returns the payment's externalPaymentId, or "" when the
// payload does not carry one.
func ExternalPaymentID(raw json.RawMessage) string {
	var r models.RawResponse
	if err := json.Unmarshal(raw, &r); err != nil || r.Payment == nil {
		return ""
	}
	return r.Payment.ExternalPaymentID
}
