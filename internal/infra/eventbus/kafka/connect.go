package kafka

import (
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/codejobs/pkg/common"
	"github.com/ahrav/codejobs/pkg/common/logger"
)

// Connect dials the brokers with exponential backoff and returns a Publisher
// for cfg.Topic. The Publisher owns the client and closes it on Close.
func Connect(cfg *Config, logger *logger.Logger, metrics PublisherMetrics, tracer trace.Tracer) (*Publisher, error) {
	client, err := common.ConnectKafkaWithRetry(logger, func() (sarama.Client, error) {
		return sarama.NewClient(cfg.Brokers, NewProducerConfig(cfg.ClientID))
	})
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}

	pub, err := NewPublisher(producer, cfg.Topic, logger, metrics, tracer)
	if err != nil {
		producer.Close()
		client.Close()
		return nil, err
	}
	pub.client = client
	return pub, nil
}
