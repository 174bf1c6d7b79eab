package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/terminal-connector/internal/models"
	"github.com/akylbek/payment-system/terminal-connector/internal/telemetry"
)

func subject(methodID string) string {
	return "terminal.notifications." + methodID
}

// NATSChannel pushes notification signals to every process serving a terminal.
type NATSChannel struct {
	nc *nats.Conn
}

func NewNATSChannel(nc *nats.Conn) *NATSChannel {
	return &NATSChannel{nc: nc}
}

func (c *NATSChannel) Publish(ctx context.Context, signal models.Signal) error {
	data, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.nc.Publish(subject(signal.MethodID), data)
}

func (c *NATSChannel) Subscribe(methodID string, handle func(models.Signal)) (func() error, error) {
	sub, err := c.nc.Subscribe(subject(methodID), func(msg *nats.Msg) {
		var signal models.Signal
		if err := json.Unmarshal(msg.Data, &signal); err != nil {
			telemetry.Logger.Error("Error unmarshaling notification signal", zap.Error(err))
			return
		}
		handle(signal)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject(methodID), err)
	}
	return sub.Unsubscribe, nil
}
