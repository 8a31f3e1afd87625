// Package kafka publishes engine events to Kafka, one topic per market and
// kind: trade@{market} and depth@{market}.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"spotcore"

	"github.com/segmentio/kafka-go"
)

// Publisher implements spotcore.EventPublisher over a single kafka.Writer
// with per-message topic routing.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewPublisher creates a publisher connected to the given brokers.
func NewPublisher(brokers []string, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			Async:                  false,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

// PublishTrade sends the trade event to trade@{market}.
func (p *Publisher) PublishTrade(event *spotcore.TradeEvent) {
	p.publish("trade@"+event.Market, event.Market, event)
}

// PublishDepth sends the depth update to depth@{market}.
func (p *Publisher) PublishDepth(event *spotcore.DepthEvent) {
	p.publish("depth@"+event.Market, event.Market, event)
}

// publish is best-effort: the engine's sequential loop must not stall on a
// broker outage, so failures are logged and dropped. Downstream consumers
// rebuild from snapshots and full depth reads.
func (p *Publisher) publish(topic, key string, event any) {
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal event failed", "topic", topic, "error", err)
		return
	}

	err = p.writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		p.logger.Error("publish failed", "topic", topic, "error", err)
	}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
