package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"ms-raffle/internal/models"
)

type Producer struct {
	Writer *kafka.Writer
}

// NewProducer creates a producer that can publish to any raffle topic; the
// topic is chosen per message.
func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer}
}

// Publish writes a raw message to the given topic.
func (p *Producer) Publish(topic string, key string, value []byte) error {
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: value,
		},
	)
}

// PublishEvent marshals a domain event and publishes it keyed by raffle ID so
// events for one raffle stay ordered within a partition.
func (p *Producer) PublishEvent(topic string, event models.RaffleEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Publish(topic, event.RaffleID, value)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
