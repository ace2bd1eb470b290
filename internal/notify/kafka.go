package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"hostline-siem/internal/alertstore"
)

// KafkaConfig configures the Kafka channel.
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultKafkaConfig returns the default Kafka channel configuration.
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "siem.alerts",
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
}

// Validate checks the configuration.
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("notify: kafka brokers are required")
	}
	if c.Topic == "" {
		return errors.New("notify: kafka topic is required")
	}
	return nil
}

// KafkaChannel publishes alert JSON to a topic, keyed by rule id so all
// alerts of one rule land on the same partition.
type KafkaChannel struct {
	writer *kafka.Writer
}

// NewKafkaChannel creates the channel and its writer. The writer connects
// lazily on first send.
func NewKafkaChannel(cfg KafkaConfig) (*KafkaChannel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaChannel{writer: writer}, nil
}

// Name implements Channel.
func (c *KafkaChannel) Name() string { return "kafka" }

// Send implements Channel.
func (c *KafkaChannel) Send(ctx context.Context, alert alertstore.Alert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("notify: encode alert: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(alert.RuleID),
		Value: value,
		Time:  alert.Timestamp,
	}
	if err := c.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("notify: kafka write: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (c *KafkaChannel) Close() error {
	return c.writer.Close()
}
