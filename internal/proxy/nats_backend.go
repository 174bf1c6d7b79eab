package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const targetHeader = "Terminal-Target"

// NATSBackend sends each operation as a request on terminal.proxy.<operation>.
type NATSBackend struct {
	nc      *nats.Conn
	timeout time.Duration
}

func NewNATSBackend(nc *nats.Conn, timeout time.Duration) *NATSBackend {
	return &NATSBackend{nc: nc, timeout: timeout}
}

func (b *NATSBackend) Call(ctx context.Context, target, operation string, payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok && b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	msg := nats.NewMsg("terminal.proxy." + operation)
	msg.Header.Set(targetHeader, target)
	msg.Data = data

	reply, err := b.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("nats request %s: %w", msg.Subject, err)
	}
	if len(reply.Data) == 0 {
		return json.RawMessage(`{"success":true}`), nil
	}
	return json.RawMessage(reply.Data), nil
}
