package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/terminal-connector/internal/interfaces"
	"github.com/akylbek/payment-system/terminal-connector/internal/models"
	"github.com/akylbek/payment-system/terminal-connector/internal/telemetry"
)

// LineStateMachine applies payment line transitions with a check-and-set on
// the current status, so concurrent resolutions settle a line at most once.
type LineStateMachine struct {
	methodID  string
	store     interfaces.PaymentLineStore
	publisher interfaces.EventPublisher
}

func NewLineStateMachine(methodID string, store interfaces.PaymentLineStore, publisher interfaces.EventPublisher) *LineStateMachine {
	return &LineStateMachine{methodID: methodID, store: store, publisher: publisher}
}

// Transition moves the line to `to` if its current status is one of `from`.
// It reports false, without error, when the line was not in an allowed status.
func (m *LineStateMachine) Transition(ctx context.Context, lineID uuid.UUID, to models.LineStatus, settlement *models.Settlement, reason string, from ...models.LineStatus) (bool, error) {
	line, err := m.store.GetLine(ctx, lineID)
	if err != nil {
		return false, err
	}

	if !contains(from, line.Status) || !models.CanTransition(line.Status, to) {
		telemetry.Logger.Debug("Payment line transition skipped",
			telemetry.LineID(lineID),
			zap.String("status", string(line.Status)),
			zap.String("to_status", string(to)),
		)
		return false, nil
	}

	rows, err := m.store.TransitionLine(ctx, lineID, []models.LineStatus{line.Status}, to, settlement)
	if err != nil {
		return false, fmt.Errorf("transition line %s to %s: %w", lineID, to, err)
	}
	if rows == 0 {
		// Another path changed the line between the read and the update.
		return false, nil
	}

	telemetry.LineTransitions.WithLabelValues(string(to)).Inc()
	telemetry.Logger.Info("Payment line transition",
		telemetry.LineID(lineID),
		zap.String("method_id", m.methodID),
		zap.String("from_state", string(line.Status)),
		zap.String("to_state", string(to)),
		zap.String("reason", reason),
	)

	if m.publisher != nil && line.Status != to {
		event := models.LineTransition{
			LineID:    lineID,
			MethodID:  m.methodID,
			From:      line.Status,
			To:        to,
			Reason:    reason,
			Timestamp: time.Now(),
		}
		if err := m.publisher.PublishLineTransition(ctx, event); err != nil {
			telemetry.Logger.Warn("Failed to publish line transition",
				telemetry.LineID(lineID),
				zap.Error(err),
			)
		}
	}
	return true, nil
}

func contains(statuses []models.LineStatus, s models.LineStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
