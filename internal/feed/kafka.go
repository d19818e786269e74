// Package feed publishes executed trades to downstream consumers
// (analytics, notifications) over Kafka. The feed is best-effort: a
// publish failure is logged and never fails the trade that produced it.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gamemarket/market-engine/internal/model"
)

// Publisher emits executed trades. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishTrade(ctx context.Context, t model.Trade)
	Close() error
}

// KafkaPublisher writes trade events to a Kafka topic, keyed by asset id
// so per-asset ordering is preserved within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) PublishTrade(ctx context.Context, t model.Trade) {
	value, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.AssetID),
		Value: value,
	}); err != nil {
		slog.Error("trade feed publish failed", "trade_id", t.ID, "err", err)
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
