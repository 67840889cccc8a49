// Package kafka publishes job lifecycle events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/codejobs/internal/domain/events"
	"github.com/ahrav/codejobs/internal/infra/eventbus/kafka/tracing"
	"github.com/ahrav/codejobs/pkg/common/logger"
)

// PublisherMetrics defines metrics operations needed to monitor Kafka message publishing.
type PublisherMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
}

// Config contains settings for connecting to Kafka brokers.
type Config struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string
	// Topic receives every job lifecycle event.
	Topic string
	// ClientID uniquely identifies this client to the Kafka cluster.
	ClientID string
}

// NewProducerConfig returns the sarama configuration used for the job event
// producer.
func NewProducerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V3_6_0_0
	return config
}

// message is the wire form of an event on the topic.
type message struct {
	Type      events.EventType  `json:"type"`
	Key       string            `json:"key,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   any               `json:"payload"`
}

var _ events.DomainEventPublisher = (*Publisher)(nil)

// brokerClient is the part of sarama.Client the publisher uses to report
// readiness and release the connection.
type brokerClient interface {
	Closed() bool
	Partitions(topic string) ([]int32, error)
	Close() error
}

var errNoBrokerClient = errors.New("kafka publisher has no broker client")

// Publisher implements events.DomainEventPublisher on top of a sarama
// SyncProducer. Events are JSON encoded and keyed by their publish key so a
// run's events land on one partition in order.
type Publisher struct {
	producer sarama.SyncProducer
	client   brokerClient
	topic    string

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics PublisherMetrics
}

// NewPublisher creates a Publisher that writes to topic through producer.
func NewPublisher(
	producer sarama.SyncProducer,
	topic string,
	logger *logger.Logger,
	metrics PublisherMetrics,
	tracer trace.Tracer,
) (*Publisher, error) {
	if producer == nil {
		return nil, errors.New("kafka producer is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if metrics == nil {
		return nil, errors.New("metrics are required for kafka publisher")
	}

	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger.With("component", "kafka_publisher", "topic", topic),
		tracer:   tracer,
		metrics:  metrics,
	}, nil
}

// PublishDomainEvent encodes event and sends it to the configured topic.
func (p *Publisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	ctx, span := tracing.StartProducerSpan(ctx, p.topic, p.tracer)
	defer span.End()

	env := events.NewEnvelope(event, opts...)
	span.SetAttributes(attribute.String("event.type", env.Type.String()))
	if env.Key != "" {
		span.SetAttributes(attribute.String("event.key", env.Key))
	}

	value, err := json.Marshal(message{
		Type:      env.Type,
		Key:       env.Key,
		Headers:   env.Headers,
		Timestamp: env.Timestamp,
		Payload:   env.Payload,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode event")
		p.metrics.IncPublishError(ctx, p.topic)
		return fmt.Errorf("failed to encode event %s: %w", env.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Value:     sarama.ByteEncoder(value),
		Timestamp: env.Timestamp,
	}
	if env.Key != "" {
		msg.Key = sarama.StringEncoder(env.Key)
	}
	msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte("event_type"), Value: []byte(env.Type)})
	for k, v := range env.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	tracing.InjectTraceContext(ctx, msg)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send message")
		p.metrics.IncPublishError(ctx, p.topic)
		return fmt.Errorf("failed to send message to kafka topic %s: %w", p.topic, err)
	}
	p.metrics.IncMessagePublished(ctx, p.topic)

	p.logger.Debug(ctx, "Published message to Kafka",
		"event_type", env.Type,
		"partition", partition,
		"offset", offset,
		"key", env.Key,
	)

	return nil
}

// Ping reports whether the brokers still serve metadata for the topic.
func (p *Publisher) Ping(ctx context.Context) error {
	if p.client == nil {
		return errNoBrokerClient
	}
	if p.client.Closed() {
		return errors.New("kafka client is closed")
	}
	partitions, err := p.client.Partitions(p.topic)
	if err != nil {
		return fmt.Errorf("reading partitions for topic %s: %w", p.topic, err)
	}
	if len(partitions) == 0 {
		return fmt.Errorf("topic %s has no partitions", p.topic)
	}
	return nil
}

// Close flushes and closes the producer, then the broker client when the
// Publisher owns one.
func (p *Publisher) Close() error {
	err := p.producer.Close()
	if p.client != nil {
		err = errors.Join(err, p.client.Close())
	}
	return err
}
