package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"chathub/internal/logx"
	"chathub/internal/models"
)

// NotificationHandler processes one notification read back from the topic.
type NotificationHandler func(ctx context.Context, n models.Notification) error

// NotificationConsumer reads offline notifications from the topic and hands
// them to a handler.
type NotificationConsumer struct {
	consumer *kafka.Consumer
	topic    string
	handler  NotificationHandler
	doneCh   chan struct{}
}

func NewNotificationConsumer(brokers, topic, groupID string, handler NotificationHandler) (*NotificationConsumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"group.id":           groupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	return &NotificationConsumer{
		consumer: c,
		topic:    topic,
		handler:  handler,
		doneCh:   make(chan struct{}),
	}, nil
}

// Start subscribes and consumes in the background until ctx is done.
func (nc *NotificationConsumer) Start(ctx context.Context) error {
	if err := nc.consumer.Subscribe(nc.topic, nil); err != nil {
		return fmt.Errorf("subscribe to topic %s: %w", nc.topic, err)
	}

	l := logx.L()
	l.Info().Str("topic", nc.topic).Msg("notification consumer started")

	go nc.consumeLoop(ctx)
	return nil
}

func (nc *NotificationConsumer) consumeLoop(ctx context.Context) {
	l := logx.L()
	defer close(nc.doneCh)

	for {
		select {
		case <-ctx.Done():
			l.Info().Msg("notification consumer shutting down")
			return
		default:
			msg, err := nc.consumer.ReadMessage(100 * time.Millisecond)
			if err != nil {
				var kerr kafka.Error
				if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
					continue
				}
				l.Error().Err(err).Msg("kafka consumer error")
				continue
			}

			n, err := decodeNotification(msg.Value)
			if err != nil {
				l.Error().Err(err).Str("key", string(msg.Key)).Msg("failed to decode notification")
				continue
			}
			if err := nc.handler(context.WithoutCancel(ctx), n); err != nil {
				l.Error().Err(err).Str("message_id", n.MessageID).Msg("notification handler failed")
			}
		}
	}
}

// Close waits for the consume loop to stop, then closes the consumer.
// The context passed to Start must already be cancelled.
func (nc *NotificationConsumer) Close() error {
	<-nc.doneCh
	return nc.consumer.Close()
}

func decodeNotification(value []byte) (models.Notification, error) {
	var n models.Notification
	if err := json.Unmarshal(value, &n); err != nil {
		return models.Notification{}, err
	}
	if n.ReceiverID == "" || n.MessageID == "" {
		return models.Notification{}, errors.New("notification missing receiver or message id")
	}
	return n, nil
}
