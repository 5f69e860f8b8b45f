package finding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/azuminxx/simple-redger-sub000/pkg/database"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/tracing"
)

const table = "linkage_findings"

var columns = []string{"id", "search_id", "integration_key", "kind", "store", "field", "observations", "row_ids", "detected_at"}

// Repository handles linkage finding persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new finding repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type row struct {
	ID             string    `db:"id"`
	SearchID       string    `db:"search_id"`
	IntegrationKey string    `db:"integration_key"`
	Kind           string    `db:"kind"`
	Store          string    `db:"store"`
	Field          string    `db:"field"`
	Observations   []byte    `db:"observations"`
	RowIDs         []byte    `db:"row_ids"`
	DetectedAt     time.Time `db:"detected_at"`
}

func (r row) toModel() (models.Finding, error) {
	f := models.Finding{
		ID:             r.ID,
		SearchID:       r.SearchID,
		IntegrationKey: r.IntegrationKey,
		Kind:           models.FindingKind(r.Kind),
		Store:          models.Store(r.Store),
		Field:          models.LinkingField(r.Field),
		DetectedAt:     r.DetectedAt,
	}
	if err := json.Unmarshal(r.Observations, &f.Observations); err != nil {
		return f, fmt.Errorf("failed to decode observations: %w", err)
	}
	if err := json.Unmarshal(r.RowIDs, &f.RowIDs); err != nil {
		return f, fmt.Errorf("failed to decode row ids: %w", err)
	}
	return f, nil
}

// CreateMany inserts findings in a single statement
func (r *Repository) CreateMany(ctx context.Context, findings []models.Finding) error {
	ctx, span := tracing.StartSpan(ctx, "finding.Repository.CreateMany")
	defer span.End()

	if len(findings) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	for i := range findings {
		f := &findings[i]
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		if f.DetectedAt.IsZero() {
			f.DetectedAt = time.Now().UTC()
		}
		observations, err := json.Marshal(nonNil(f.Observations))
		if err != nil {
			return fmt.Errorf("failed to encode observations: %w", err)
		}
		rowIDs, err := json.Marshal(nonNilIDs(f.RowIDs))
		if err != nil {
			return fmt.Errorf("failed to encode row ids: %w", err)
		}
		sb.Values(f.ID, f.SearchID, f.IntegrationKey, string(f.Kind), string(f.Store), string(f.Field), string(observations), string(rowIDs), f.DetectedAt)
	}

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create linkage findings")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create linkage findings")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"count":     len(findings),
		"search_id": findings[0].SearchID,
	}).Info("Created linkage findings")
	return nil
}

// ListBySearch returns the findings recorded for one search
func (r *Repository) ListBySearch(ctx context.Context, searchID string) ([]models.Finding, error) {
	ctx, span := tracing.StartSpan(ctx, "finding.Repository.ListBySearch")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("search_id", searchID))
	sb.OrderBy("integration_key", "kind", "field").Asc()

	return r.list(ctx, sb)
}

// ListByIntegrationKey returns the history of findings for one merged record
func (r *Repository) ListByIntegrationKey(ctx context.Context, integrationKey string, limit int) ([]models.Finding, error) {
	ctx, span := tracing.StartSpan(ctx, "finding.Repository.ListByIntegrationKey")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("integration_key", integrationKey))
	sb.OrderBy("detected_at").Desc()
	if limit > 0 {
		sb.Limit(limit)
	}

	return r.list(ctx, sb)
}

func (r *Repository) list(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.Finding, error) {
	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list linkage findings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list linkage findings")
	}

	findings := make([]models.Finding, 0, len(rows))
	for _, rw := range rows {
		f, err := rw.toModel()
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("id", rw.ID).Error("Failed to decode linkage finding")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decode linkage finding")
		}
		findings = append(findings, f)
	}
	return findings, nil
}

func nonNil(observations []models.Observation) []models.Observation {
	if observations == nil {
		return []models.Observation{}
	}
	return observations
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
