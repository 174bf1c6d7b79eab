package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/terminal-connector/internal/models"
	"github.com/akylbek/payment-system/terminal-connector/internal/telemetry"
)

// LineLock is a Redis lock held while a payment line's sale is being sent.
type LineLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLineLock(client *redis.Client, ttl time.Duration) *LineLock {
	return &LineLock{client: client, ttl: ttl}
}

func (l *LineLock) Acquire(ctx context.Context, lineID uuid.UUID) (func(), error) {
	lockKey := fmt.Sprintf("payment_line_lock:%s", lineID)
	token := uuid.NewString()

	locked, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire line lock: %w", err)
	}
	if !locked {
		return nil, models.ErrLineLocked
	}

	return func() {
		// The lock may have expired and been taken by another instance.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if held, err := l.client.Get(ctx, lockKey).Result(); err == nil && held == token {
			l.client.Del(ctx, lockKey)
		}
	}, nil
}

// StatusBuffer keeps the latest terminal notification per device, the way the
// backend exposes it to get_latest_status.
type StatusBuffer struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatusBuffer(client *redis.Client, ttl time.Duration) *StatusBuffer {
	return &StatusBuffer{client: client, ttl: ttl}
}

func bufferKey(deviceID string) string {
	return fmt.Sprintf("terminal_latest_response:%s", deviceID)
}

func (b *StatusBuffer) Store(ctx context.Context, deviceID string, payload json.RawMessage) error {
	return b.client.Set(ctx, bufferKey(deviceID), []byte(payload), b.ttl).Err()
}

// Latest returns nil when nothing is buffered.
func (b *StatusBuffer) Latest(ctx context.Context, deviceID string) (json.RawMessage, error) {
	data, err := b.client.Get(ctx, bufferKey(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (b *StatusBuffer) Clear(ctx context.Context, deviceID string) error {
	if err := b.client.Del(ctx, bufferKey(deviceID)).Err(); err != nil {
		telemetry.Logger.Warn("Failed to clear latest terminal response",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
