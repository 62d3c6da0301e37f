package status

import (
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/planport/pkg/config"
	"github.com/ajitpratap0/planport/pkg/errors"
	"github.com/ajitpratap0/planport/pkg/metrics"
)

// Event is the JSON value of a status message on Kafka.
type Event struct {
	LogContext string    `json:"logContext"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// KafkaSink publishes status lines to a Kafka topic, keyed by log context so
// lines of one invocation stay ordered within a partition.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
	now      func() time.Time
}

// NewKafkaSink connects a synchronous producer to the configured brokers.
func NewKafkaSink(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaSink, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, buildSaramaConfig(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create Kafka producer").
			WithDetail("brokers", cfg.Brokers)
	}
	return NewKafkaSinkFromProducer(producer, cfg.Topic, logger), nil
}

// NewKafkaSinkFromProducer creates a sink on an existing producer.
func NewKafkaSinkFromProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{
		producer: producer,
		topic:    topic,
		logger:   logger.With(zap.String("component", "kafka_status"), zap.String("topic", topic)),
		now:      time.Now,
	}
}

// Status publishes one event. Failures are logged and counted.
func (k *KafkaSink) Status(logContext, message string) {
	ev := Event{LogContext: logContext, Message: message, Timestamp: k.now().UTC()}
	value, err := json.Marshal(ev)
	if err != nil {
		k.drop(err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(logContext),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("content-type"), Value: []byte("application/json")},
		},
		Timestamp: ev.Timestamp,
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		k.drop(err)
	}
}

// Close closes the producer.
func (k *KafkaSink) Close() error {
	return k.producer.Close()
}

func (k *KafkaSink) drop(err error) {
	metrics.StatusMessagesDropped.WithLabelValues("kafka").Inc()
	k.logger.Warn("failed to publish status", zap.Error(err))
}

func buildSaramaConfig(cfg config.KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Compression = sarama.CompressionNone
	return sc
}
