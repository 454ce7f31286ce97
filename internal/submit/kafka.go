package submit

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bardlex/gomc/pkg/circuit"
	"github.com/bardlex/gomc/pkg/errors"
	"github.com/bardlex/gomc/pkg/log"
	"github.com/bardlex/gomc/pkg/retry"
)

// KafkaPublisher publishes share messages to a single topic. Every
// write goes through a circuit breaker and a short retry budget:
// shares go stale quickly, so a slow broker is treated as a failed one.
type KafkaPublisher struct {
	writer      *kafka.Writer
	topic       string
	logger      *log.Logger
	breaker     *circuit.Breaker
	retryConfig *retry.Config
}

// NewKafkaPublisher creates a publisher for the given brokers and
// topic. The underlying writer connects lazily on first publish.
func NewKafkaPublisher(brokers []string, topic string, logger *log.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Compression:  kafka.Snappy,
	}

	breaker := circuit.New(&circuit.Config{
		Name:            "kafka_shares",
		MaxFailures:     5,
		SuccessRequired: 3,
		Timeout:         15 * time.Second,
		ResetTimeout:    60 * time.Second,
	})

	logger.Info("created Kafka share publisher", "topic", topic, "brokers", brokers)

	return &KafkaPublisher{
		writer:      writer,
		topic:       topic,
		logger:      logger.WithComponent("kafka_publisher"),
		breaker:     breaker,
		retryConfig: retry.SubmissionConfig(),
	}
}

// PublishShare sends one serialized share keyed by its stable identity.
func (p *KafkaPublisher) PublishShare(ctx context.Context, key string, payload []byte) error {
	return p.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, p.retryConfig, func() error {
			msg := kafka.Message{
				Key:   []byte(key),
				Value: payload,
				Time:  time.Now(),
			}

			if err := p.writer.WriteMessages(ctx, msg); err != nil {
				return errors.Wrap(err, errors.ErrorTypeKafka, "publish_share",
					"failed to publish share to Kafka").
					WithContext("topic", p.topic).
					WithContext("key", key).
					WithContext("message_size", len(payload))
			}

			p.logger.Debug("published share", "topic", p.topic, "key", key, "size", len(payload))
			return nil
		})
	})
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
