package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/akylbek/payment-system/terminal-connector/internal/models"
)

const LineTransitionTopic = "payment.line.transitioned"

// KafkaPublisher publishes payment line transitions keyed by line id.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) PublishLineTransition(ctx context.Context, transition models.LineTransition) error {
	eventJSON, err := json.Marshal(transition)
	if err != nil {
		return fmt.Errorf("marshal line transition: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: LineTransitionTopic,
		Key:   []byte(transition.LineID.String()),
		Value: eventJSON,
	})
}
