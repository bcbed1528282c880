// Package anchor publishes committed ledger writes to external consumers.
package anchor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"aegis/internal/ledger/models"
)

// KafkaPublisher produces one record per anchor, keyed by the entry hash or id.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(client *kgo.Client, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event models.AnchorEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode anchor: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Key),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(event.Kind)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce anchor: %w", err)
	}
	return nil
}

// LogPublisher writes anchors to the structured log when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event models.AnchorEvent) error {
	p.logger.InfoContext(ctx, "ledger anchor",
		"kind", event.Kind,
		"sequence", event.Sequence,
		"key", event.Key,
		"event_type", event.EventType,
	)
	return nil
}
