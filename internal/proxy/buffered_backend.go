package proxy

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/terminal-connector/internal/interfaces"
	"github.com/akylbek/payment-system/terminal-connector/internal/telemetry"
)

// BufferedBackend answers get_latest_status from the notification buffer and
// forwards every other operation. A new sale clears the buffer so a stale
// notification is never mistaken for its outcome.
type BufferedBackend struct {
	next     interfaces.Backend
	buffer   interfaces.StatusBuffer
	deviceID string
}

func NewBufferedBackend(next interfaces.Backend, buffer interfaces.StatusBuffer, deviceID string) *BufferedBackend {
	return &BufferedBackend{next: next, buffer: buffer, deviceID: deviceID}
}

func (b *BufferedBackend) Call(ctx context.Context, target, operation string, payload any) (json.RawMessage, error) {
	switch operation {
	case OpLatestStatus:
		raw, err := b.buffer.Latest(ctx, b.deviceID)
		if err != nil {
			return nil, fmt.Errorf("read latest status: %w", err)
		}
		return raw, nil
	case OpSale:
		if err := b.buffer.Clear(ctx, b.deviceID); err != nil {
			telemetry.Logger.Warn("Sale sent with a stale status buffer",
				zap.String("device_id", b.deviceID),
				zap.Error(err),
			)
		}
	}
	return b.next.Call(ctx, target, operation, payload)
}
