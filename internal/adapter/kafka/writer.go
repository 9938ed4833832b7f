// Package kafka announces committed archive records on a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/reef-sst-archive/internal/config"
	"github.com/couchcryptid/reef-sst-archive/internal/domain"
)

// maxBatch bounds a single WriteMessages call during large backfills.
const maxBatch = 500

// Writer publishes record events. It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a producer for the configured topic. Messages with the
// same key land on the same partition, so updates to one record stay ordered.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes one message per event.
func (w *Writer) Publish(ctx context.Context, events []domain.RecordEvent) error {
	for start := 0; start < len(events); start += maxBatch {
		end := min(start+maxBatch, len(events))
		msgs := make([]kafkago.Message, 0, end-start)
		for _, ev := range events[start:end] {
			msg, err := serializeToMessage(ev)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish %d record events: %w", len(msgs), err)
		}
		w.logger.Debug("record events published", "count", len(msgs))
	}
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// messageKey identifies the record an event refers to, e.g. "dhw/daily/2024-03-01".
func messageKey(ev domain.RecordEvent) string {
	return string(ev.Kind) + "/" + string(ev.Period) + "/" + ev.Key
}

// serializeToMessage marshals a RecordEvent into a Kafka message.
func serializeToMessage(ev domain.RecordEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(messageKey(ev)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
			{Key: "period", Value: []byte(ev.Period)},
			{Key: "run_id", Value: []byte(ev.RunID)},
			{Key: "committed_at", Value: []byte(ev.CommittedAt.Format(time.RFC3339))},
		},
	}, nil
}
