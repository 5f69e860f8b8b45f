// Package audit forwards flagged merged records to the configured finding sinks.
package audit

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/azuminxx/simple-redger-sub000/internal/repositories/finding"
	"github.com/azuminxx/simple-redger-sub000/pkg/events"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/tracing"
)

// Sink stores or forwards findings.
type Sink interface {
	Name() string
	Write(ctx context.Context, findings []models.Finding) error
}

// Recorder turns flagged records into findings and hands them to every sink. A failing sink
// is logged and does not affect the others or the search.
type Recorder struct {
	sinks  []Sink
	logger ectologger.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder
func NewRecorder(logger ectologger.Logger, sinks ...Sink) *Recorder {
	return &Recorder{
		sinks:  sinks,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record implements search.Recorder.
func (r *Recorder) Record(ctx context.Context, searchID string, records []*models.MergedRecord) {
	ctx, span := tracing.StartSpan(ctx, "audit.Recorder.Record")
	defer span.End()

	if len(r.sinks) == 0 {
		return
	}

	detectedAt := r.now()
	var findings []models.Finding
	for _, record := range records {
		findings = append(findings, models.FindingsOf(searchID, record, detectedAt)...)
	}
	if len(findings) == 0 {
		return
	}

	for _, sink := range r.sinks {
		if err := sink.Write(ctx, findings); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"sink":      sink.Name(),
				"search_id": searchID,
				"findings":  len(findings),
			}).Error("Failed to record linkage findings")
		}
	}
}

// EventSink publishes findings as events.
type EventSink struct {
	Emitter *events.Emitter
}

func (s EventSink) Name() string { return "kafka" }

func (s EventSink) Write(ctx context.Context, findings []models.Finding) error {
	return s.Emitter.EmitFindings(ctx, findings)
}

// RepositorySink stores findings in postgres.
type RepositorySink struct {
	Repo *finding.Repository
}

func (s RepositorySink) Name() string { return "postgres" }

func (s RepositorySink) Write(ctx context.Context, findings []models.Finding) error {
	return s.Repo.CreateMany(ctx, findings)
}
