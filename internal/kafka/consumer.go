package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/segmentio/kafka-go"

	"ms-raffle/internal/models"
)

type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a Kafka consumer for the given topics and group.
func NewConsumer(brokers []string, topics []string, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupTopics: topics,
		GroupID:     groupID,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Start consumes raffle events until the context is cancelled.
func (c *Consumer) Start(ctx context.Context, handler func(event models.RaffleEvent)) {
	fmt.Println("🔄 Kafka consumer started...")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("❌ Error reading message: %v\n", err)
			continue
		}

		var event models.RaffleEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Printf("⚠️ Failed to unmarshal message: %v\n", err)
			continue
		}

		log.Printf("📩 Received raffle event: type=%s raffle=%s", event.Type, event.RaffleID)
		handler(event)
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
