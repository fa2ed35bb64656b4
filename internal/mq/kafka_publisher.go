package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/yishak-cs/menu-recommender/internal/models"
)

// DefaultInteractionTopic carries one message per recorded interaction
const DefaultInteractionTopic = "recommendation-interactions"

// InteractionEvent is the message body published for each recorded interaction
type InteractionEvent struct {
	ID                string    `json:"id"`
	CustomerID        int       `json:"customer_id"`
	TenantID          string    `json:"tenant_id"`
	RecommendedItemID int       `json:"recommended_item_id"`
	Action            string    `json:"action"`
	CreatedAt         time.Time `json:"created_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher streams interactions to Kafka, keyed by tenant and customer
// so a customer's events stay on one partition
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher builds a writer for the given brokers. The caller owns Close.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultInteractionTopic
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}

	return &KafkaPublisher{writer: w, topic: topic}
}

// PublishInteraction sends one interaction event
func (p *KafkaPublisher) PublishInteraction(ctx context.Context, interaction models.RecommendationInteraction) error {
	msg, err := buildMessage(interaction)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func buildMessage(interaction models.RecommendationInteraction) (kafka.Message, error) {
	body, err := json.Marshal(InteractionEvent{
		ID:                interaction.ID,
		CustomerID:        interaction.CustomerID,
		TenantID:          interaction.TenantID,
		RecommendedItemID: interaction.RecommendedItemID,
		Action:            string(interaction.Action),
		CreatedAt:         interaction.CreatedAt,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode interaction: %w", err)
	}

	return kafka.Message{
		Key:   []byte(interaction.TenantID + ":" + strconv.Itoa(interaction.CustomerID)),
		Value: body,
		Time:  interaction.CreatedAt,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(interaction.Action)},
		},
	}, nil
}
