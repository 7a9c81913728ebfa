package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsumer runs a consumer-group reader for one topic until ctx is
// canceled. Offsets are committed only after the handler returns nil, so a
// failed handler run means the broker redelivers (at-least-once); the inbox
// guard absorbs the duplicates.
func StartConsumer(ctx context.Context, brokers []string, topic, groupID string, handler MessageHandler, l *zap.Logger) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: 0,
		Logger:         zap.NewStdLog(l.With(zap.String("kafka_component", "consumer"), zap.String("topic", topic))),
	})
	defer func() {
		if err := reader.Close(); err != nil {
			l.Error("Failed to close Kafka consumer", zap.String("topic", topic), zap.Error(err))
		}
	}()

	l.Info("Kafka consumer started",
		zap.String("topic", topic),
		zap.String("group_id", groupID),
		zap.Strings("brokers", brokers))

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				l.Info("Kafka consumer stopping", zap.String("topic", topic))
				return nil
			}
			l.Error("Error fetching message from Kafka", zap.String("topic", topic), zap.Error(err))
			time.Sleep(1 * time.Second)
			continue
		}

		if err := handler(ctx, m); err != nil {
			l.Error("Error handling Kafka message, offset not committed",
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
			continue
		}

		if err := reader.CommitMessages(ctx, m); err != nil {
			l.Error("Failed to commit offset for message",
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
		} else {
			l.Debug("Committed message offset",
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset))
		}
	}
}
