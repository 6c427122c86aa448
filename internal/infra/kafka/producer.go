package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/deadline-jail/internal/infra/config"
)

// Producer wraps a Sarama AsyncProducer with error draining and lifecycle management.
type Producer struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger
	cfg      config.KafkaSettings
	done     chan struct{}
}

// NewProducer connects an async producer to the configured brokers.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0

	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Flush.Messages = 100
	saramaConfig.Producer.Retry.Max = 3
	// Messages are keyed by user id; hashing keeps one user's events in order.
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true

	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := newProducer(producer, cfg, logger)

	p.logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
	)
	return p, nil
}

func newProducer(producer sarama.AsyncProducer, cfg config.KafkaSettings, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Producer{
		producer: producer,
		logger:   logger,
		cfg:      cfg,
		done:     make(chan struct{}),
	}
	go p.handleErrors()
	return p
}

// handleErrors drains the producer error channel so the producer never blocks on it.
func (p *Producer) handleErrors() {
	for {
		select {
		case err, ok := <-p.producer.Errors():
			if !ok {
				return
			}
			if err == nil {
				continue
			}
			p.logger.Error("kafka producer error",
				zap.Error(err.Err),
				zap.String("topic", err.Msg.Topic),
			)
		case <-p.done:
			return
		}
	}
}

// Producer returns the underlying Sarama AsyncProducer.
func (p *Producer) Producer() sarama.AsyncProducer {
	return p.producer
}

// Close flushes pending messages and closes the producer.
func (p *Producer) Close() error {
	p.logger.Info("closing kafka producer")
	close(p.done)

	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// TopicName returns the full topic name for an event type, e.g. "jail.task.failed".
func (p *Producer) TopicName(eventType string) string {
	if p.cfg.TopicPrefix == "" {
		return eventType
	}

	prefix := p.cfg.TopicPrefix + "."
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}
	return prefix + eventType
}
