package alerting

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/terminal-connector/internal/models"
	"github.com/akylbek/payment-system/terminal-connector/internal/telemetry"
)

const AlertTopic = "terminal.operator.alerts"

// KafkaAlerter logs every alert and forwards it to the operator alerts topic,
// which the order UI consumes. Without a writer it only logs.
type KafkaAlerter struct {
	writer *kafka.Writer
}

func NewKafkaAlerter(writer *kafka.Writer) *KafkaAlerter {
	return &KafkaAlerter{writer: writer}
}

func (a *KafkaAlerter) Alert(ctx context.Context, alert models.Alert) {
	telemetry.Logger.Warn("Operator alert",
		zap.String("method_id", alert.MethodID),
		zap.String("line_id", alert.LineID),
		zap.String("title", alert.Title),
		zap.String("message", alert.Message),
	)

	if a.writer == nil {
		return
	}

	value, err := json.Marshal(alert)
	if err != nil {
		return
	}
	if err := a.writer.WriteMessages(ctx, kafka.Message{
		Topic: AlertTopic,
		Key:   []byte(alert.MethodID),
		Value: value,
	}); err != nil {
		telemetry.Logger.Error("Failed to deliver operator alert", zap.Error(err))
	}
}
