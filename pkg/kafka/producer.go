package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/tracing"
)

// Producer publishes linkage events
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

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
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

// FindingEvent reports a flagged merged record
type FindingEvent struct {
	EventType      string               `json:"event_type"`
	SchemaVersion  string               `json:"schema_version"`
	SearchID       string               `json:"search_id"`
	IntegrationKey string               `json:"integration_key"`
	Kind           models.FindingKind   `json:"kind"`
	Store          models.Store         `json:"store,omitempty"`
	Field          models.LinkingField  `json:"field,omitempty"`
	Observations   []models.Observation `json:"observations,omitempty"`
	RowIDs         []int64              `json:"row_ids,omitempty"`
	CorrelationID  string               `json:"correlation_id,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
}

// PublishFindingEvents publishes events in one batch. Events sharing an integration key land
// on the same partition.
func (p *Producer) PublishFindingEvents(ctx context.Context, events []*FindingEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishFindingEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Topic: p.topic,
			Key:   []byte(event.IntegrationKey),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "search_id", Value: []byte(event.SearchID)},
				{Key: "kind", Value: []byte(event.Kind)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish finding events")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"count": len(msgs),
		"topic": p.topic,
	}).Debug("Published finding events")
	return nil
}
