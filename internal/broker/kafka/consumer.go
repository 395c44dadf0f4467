package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/broker/messages"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads the telemetry topic back, e.g. for journal replay.
type Consumer struct {
	r messageReader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{r: kafka.NewReader(cfg)}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume hands each decoded telemetry envelope to handler. Undecodable
// messages are committed and skipped so they cannot wedge the stream; a
// handler error stops consumption without committing, so the message is
// redelivered.
func (c *Consumer) Consume(ctx context.Context, handler func(t messages.ConsignmentTelemetry) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}

		var t messages.ConsignmentTelemetry
		if err := json.Unmarshal(msg.Value, &t); err != nil {
			slog.Warn("bad telemetry message", "key", string(msg.Key), "error", err.Error())
			if err := c.r.CommitMessages(ctx, msg); err != nil {
				return errors.Wrap(err, "commit message")
			}
			continue
		}

		if err := handler(t); err != nil {
			// Commit только при успехе, иначе сообщение потеряем.
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}
