// Package events emits linkage findings to downstream consumers
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	requestctx "github.com/azuminxx/simple-redger-sub000/pkg/context"
	"github.com/azuminxx/simple-redger-sub000/pkg/kafka"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

const (
	EventTypeInconsistent = "linkage.inconsistent"
	EventTypeAmbiguous    = "linkage.ambiguous"
)

// Publisher sends finding events to the broker
type Publisher interface {
	PublishFindingEvents(ctx context.Context, events []*kafka.FindingEvent) error
}

// Emitter handles event emission for findings
type Emitter struct {
	producer Publisher
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitFindings emits one event per finding
func (e *Emitter) EmitFindings(ctx context.Context, findings []models.Finding) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitFindings")
	defer span.End()

	batch := make([]*kafka.FindingEvent, 0, len(findings))
	for _, finding := range findings {
		eventType := EventTypeInconsistent
		if finding.Kind == models.FindingAmbiguous {
			eventType = EventTypeAmbiguous
		}
		batch = append(batch, &kafka.FindingEvent{
			EventType:      eventType,
			SchemaVersion:  SchemaVersion,
			SearchID:       finding.SearchID,
			IntegrationKey: finding.IntegrationKey,
			Kind:           finding.Kind,
			Store:          finding.Store,
			Field:          finding.Field,
			Observations:   finding.Observations,
			RowIDs:         finding.RowIDs,
			CorrelationID:  requestctx.GetRequestID(ctx),
			Timestamp:      finding.DetectedAt,
		})
	}

	if err := e.producer.PublishFindingEvents(ctx, batch); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit finding events")
		return err
	}
	return nil
}
