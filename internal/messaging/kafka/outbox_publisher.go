package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// checkoutEventEnvelope — wire-формат события в topic'е checkout-событий.
type checkoutEventEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
// Пустой topic означает topic checkout-событий по умолчанию.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicCheckoutEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	envelope := checkoutEventEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}

	// Ключ по агрегату сохраняет порядок событий одной сессии.
	key := event.AggregateID
	if key == "" {
		key = event.ID
	}
	return p.producer.PublishEvent(p.topic, key, envelope)
}
