package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/sage/pkg/metrics"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// EntityEvent represents a lifecycle event about a paper entity
type EntityEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"` // created, updated, deleted
	PaperID    string          `json:"paper_id"`
	EntityID   string          `json:"entity_id"`
	EntityType string          `json:"entity_type"`
	Version    int             `json:"version"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// AnnotationWarningEvent reports values the data mapping dropped or skipped
// while reading or writing a paper's entities
type AnnotationWarningEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"` // always annotation.warning
	PaperID   string          `json:"paper_id"`
	EntityID  string          `json:"entity_id,omitempty"`
	Operation string          `json:"operation"`
	Warnings  json.RawMessage `json:"warnings"`
	Timestamp time.Time       `json:"timestamp"`
}

// PublishEntityEvent publishes an entity event to Kafka
func (p *Producer) PublishEntityEvent(ctx context.Context, event *EntityEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishEntityEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.EntityID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "paper_id", Value: []byte(event.PaperID)},
			{Key: "entity_type", Value: []byte(event.EntityType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.KafkaMessagesPublished.WithLabelValues(event.EventType, "error").Inc()
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish entity event")
		return err
	}
	metrics.KafkaMessagesPublished.WithLabelValues(event.EventType, "success").Inc()

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":  event.EventType,
		"entity_id":   event.EntityID,
		"entity_type": event.EntityType,
	}).Debug("Published entity event")

	return nil
}

// PublishAnnotationWarning publishes a data mapping warning event to Kafka
func (p *Producer) PublishAnnotationWarning(ctx context.Context, event *AnnotationWarningEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishAnnotationWarning")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.PaperID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "paper_id", Value: []byte(event.PaperID)},
			{Key: "operation", Value: []byte(event.Operation)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.KafkaMessagesPublished.WithLabelValues(event.EventType, "error").Inc()
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish annotation warning event")
		return err
	}
	metrics.KafkaMessagesPublished.WithLabelValues(event.EventType, "success").Inc()

	return nil
}
