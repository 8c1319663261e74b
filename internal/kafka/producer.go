package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"chathub/internal/logx"
	"chathub/internal/observability"
)

// Producer publishes JSON events to a single topic. The routing key becomes
// the record key, so notifications for one receiver stay on one partition.
type Producer struct {
	producer *kafka.Producer
	topic    string
	doneCh   chan struct{}
}

func NewProducer(brokers, topic string, partitions int) (*Producer, error) {
	if err := ensureTopic(brokers, topic, partitions); err != nil {
		l := logx.L()
		l.Warn().Err(err).Str("topic", topic).Msg("failed to ensure topic (may already exist)")
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	kp := &Producer{
		producer: p,
		topic:    topic,
		doneCh:   make(chan struct{}),
	}
	go kp.deliveryReportHandler()
	return kp, nil
}

func ensureTopic(brokers, topic string, partitions int) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return fmt.Errorf("create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		},
	})
	if err != nil {
		return err
	}
	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("create topic %s: %v", result.Topic, result.Error)
		}
	}
	return nil
}

func (p *Producer) deliveryReportHandler() {
	for e := range p.producer.Events() {
		if ev, ok := e.(*kafka.Message); ok && ev.TopicPartition.Error != nil {
			observability.IncPublishError("kafka")
			l := logx.L()
			l.Error().Err(ev.TopicPartition.Error).Str("key", string(ev.Key)).Msg("kafka delivery failed")
		}
	}
	close(p.doneCh)
}

// Publish enqueues event on the producer. Delivery failures surface
// asynchronously through the delivery report handler.
func (p *Producer) Publish(ctx context.Context, routingKey string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &p.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(routingKey),
		Value: value,
	}, nil)
	if err != nil {
		observability.IncPublishError("kafka")
		return fmt.Errorf("produce message: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	p.producer.Flush(5000)
	p.producer.Close()
	<-p.doneCh
	return nil
}
