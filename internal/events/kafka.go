package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// KafkaConfig holds producer settings.
type KafkaConfig struct {
	Brokers           string
	Topic             string
	EnableIdempotence bool
	Acks              string
}

// KafkaPublisher writes events to a Kafka topic, keyed by session id so a
// session's transitions stay ordered within a partition.
type KafkaPublisher struct {
	producer *kafka.Producer
	config   KafkaConfig
	logger   *slog.Logger
}

// NewKafkaPublisher creates an idempotent producer.
func NewKafkaPublisher(config KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	if config.Brokers == "" {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if config.Topic == "" {
		config.Topic = "session-events"
	}
	if config.Acks == "" {
		config.Acks = "all"
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":                     config.Brokers,
		"enable.idempotence":                    config.EnableIdempotence,
		"acks":                                  config.Acks,
		"max.in.flight.requests.per.connection": 5,
		"retries":                               2147483647,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	pub := &KafkaPublisher{producer: p, config: config, logger: logger}
	go pub.handleDeliveryReports()

	logger.Info("Kafka producer initialized",
		"brokers", config.Brokers,
		"topic", config.Topic,
		"idempotence", config.EnableIdempotence)

	return pub, nil
}

// Publish enqueues ev. Delivery is reported asynchronously.
func (p *KafkaPublisher) Publish(_ context.Context, ev Event) error {
	msg, err := p.message(ev)
	if err != nil {
		return err
	}
	if err := p.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	p.logger.Debug("Session event published", "type", ev.Type, "session_id", ev.SessionID)
	return nil
}

func (p *KafkaPublisher) message(ev Event) (*kafka.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	topic := p.config.Topic
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(ev.SessionID),
		Value:          data,
		Headers:        []kafka.Header{{Key: "event-type", Value: []byte(ev.Type)}},
	}, nil
}

func (p *KafkaPublisher) handleDeliveryReports() {
	for e := range p.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				p.logger.Error("Delivery failed",
					"topic", *ev.TopicPartition.Topic,
					"error", ev.TopicPartition.Error)
			} else {
				p.logger.Debug("Message delivered",
					"topic", *ev.TopicPartition.Topic,
					"partition", ev.TopicPartition.Partition,
					"offset", ev.TopicPartition.Offset)
			}
		}
	}
}

// Close flushes pending messages (10s) and closes the producer.
func (p *KafkaPublisher) Close() {
	p.logger.Info("Closing Kafka producer...")
	if remaining := p.producer.Flush(10000); remaining > 0 {
		p.logger.Error("Some messages were not delivered", "count", remaining)
	}
	p.producer.Close()
	p.logger.Info("Kafka producer closed")
}
