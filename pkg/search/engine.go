// Package search runs the three-stage discovery pipeline and manages search sessions.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/azuminxx/simple-redger-sub000/pkg/catalog"
	"github.com/azuminxx/simple-redger-sub000/pkg/keys"
	"github.com/azuminxx/simple-redger-sub000/pkg/merging"
	"github.com/azuminxx/simple-redger-sub000/pkg/metrics"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/query"
	"github.com/azuminxx/simple-redger-sub000/pkg/tracing"
)

// Fetcher reads rows from the record store.
type Fetcher interface {
	FetchAll(ctx context.Context, store models.Store, q query.Query) ([]models.RawRow, error)
	FetchByKeySet(ctx context.Context, store models.Store, field models.LinkingField, values []string) ([]models.RawRow, error)
}

// Config holds orchestration settings
type Config struct {
	// MaxConcurrentFetches bounds the fetches running at once within a stage; zero means no bound.
	MaxConcurrentFetches int
}

// Engine discovers every row related to a filter and merges them.
type Engine struct {
	fetcher Fetcher
	catalog *catalog.Catalog
	merger  *merging.Engine
	cfg     Config
	logger  ectologger.Logger
}

// NewEngine creates a search engine
func NewEngine(fetcher Fetcher, cat *catalog.Catalog, merger *merging.Engine, cfg Config, logger ectologger.Logger) *Engine {
	return &Engine{
		fetcher: fetcher,
		catalog: cat,
		merger:  merger,
		cfg:     cfg,
		logger:  logger,
	}
}

// Discovery holds the rows found by all stages, de-duplicated by row ID.
type Discovery struct {
	Rows map[models.Store][]models.RawRow
	// Queried lists the stores the filter was sent to directly.
	Queried map[models.Store]bool
}

// All returns every discovered row in canonical store order, each store ordered by row ID.
func (d *Discovery) All() []models.RawRow {
	var rows []models.RawRow
	for _, store := range models.Stores {
		rows = append(rows, d.Rows[store]...)
	}
	return rows
}

type target struct {
	store models.Store
	field models.LinkingField
}

type fetchTask struct {
	store models.Store
	fetch func(ctx context.Context) ([]models.RawRow, error)
}

// rowSet keeps the first occurrence of every (store, row ID).
type rowSet struct {
	rows map[models.Store]map[int64]models.RawRow
}

func newRowSet() *rowSet {
	return &rowSet{rows: make(map[models.Store]map[int64]models.RawRow)}
}

func (s *rowSet) add(rows []models.RawRow) {
	for _, row := range rows {
		byID, ok := s.rows[row.Store]
		if !ok {
			byID = make(map[int64]models.RawRow)
			s.rows[row.Store] = byID
		}
		if _, seen := byID[row.ID]; !seen {
			byID[row.ID] = row
		}
	}
}

func (s *rowSet) sorted() map[models.Store][]models.RawRow {
	out := make(map[models.Store][]models.RawRow, len(s.rows))
	for store, byID := range s.rows {
		rows := make([]models.RawRow, 0, len(byID))
		for _, row := range byID {
			rows = append(rows, row)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
		out[store] = rows
	}
	return out
}

// Run validates the filter, discovers related rows and merges them.
func (e *Engine) Run(ctx context.Context, filter models.Filter) ([]*models.MergedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "search.Engine.Run")
	defer span.End()

	discovery, err := e.Discover(ctx, filter)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	return e.merger.Merge(ctx, discovery.All()), nil
}

// Discover runs the direct, relational and supplementary stages in order. Fetches within a
// stage run concurrently; a stage starts only after every fetch of the previous one finished.
func (e *Engine) Discover(ctx context.Context, filter models.Filter) (*Discovery, error) {
	ctx, span := tracing.StartSpan(ctx, "search.Engine.Discover")
	defer span.End()

	active := filter.Active()
	if len(active) == 0 {
		return nil, ErrEmptyFilter
	}
	targets, err := e.catalog.Targets(active)
	if err != nil {
		return nil, err
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"filter":  active.Names(),
		"targets": targets,
	})

	found := newRowSet()
	queried := make(map[models.Store]bool, len(targets))

	// Stage 1: the filter itself, against the stores it addresses.
	var direct []fetchTask
	for _, store := range targets {
		q := query.New(e.catalog.Conditions(store, active)...)
		if q.IsEmpty() {
			continue
		}
		queried[store] = true
		direct = append(direct, fetchTask{store: store, fetch: func(ctx context.Context) ([]models.RawRow, error) {
			return e.fetcher.FetchAll(ctx, store, q)
		}})
	}
	directRows, err := e.runStage(ctx, StageDirect, direct)
	if err != nil {
		return nil, err
	}
	found.add(directRows)

	// Stage 2: every linking value of a direct row, against the other stores carrying that field.
	requested := make(map[target]map[string]struct{})
	relationalValues := make(map[target][]string)
	for _, row := range directRows {
		for _, field := range models.LinkingFields {
			value, ok := row.Link(field)
			if !ok {
				continue
			}
			for _, store := range e.catalog.StoresExposing(field) {
				if store == row.Store {
					continue
				}
				t := target{store: store, field: field}
				relationalValues[t] = append(relationalValues[t], value)
			}
		}
	}
	relational := e.keySetTasks(relationalValues, requested)
	relationalRows, err := e.runStage(ctx, StageRelational, relational)
	if err != nil {
		return nil, err
	}
	found.add(relationalRows)

	// Stage 3: stores the filter never reached, by the primary values their partners reference.
	integrationKeys := make(map[string]models.PartialKey)
	for _, row := range append(directRows, relationalRows...) {
		pk := keys.ExtractPartialKey(row)
		if len(pk) == 0 {
			continue
		}
		integrationKeys[keys.IntegrationKeyOf(pk)] = pk
	}
	supplementaryValues := make(map[target][]string)
	for _, store := range e.catalog.Declared() {
		if queried[store] {
			continue
		}
		field := store.PrimaryField()
		t := target{store: store, field: field}
		for _, pk := range integrationKeys {
			value, ok := pk[field]
			if !ok {
				continue
			}
			if _, done := requested[t][value]; done {
				continue
			}
			supplementaryValues[t] = append(supplementaryValues[t], value)
		}
	}
	supplementary := e.keySetTasks(supplementaryValues, requested)
	supplementaryRows, err := e.runStage(ctx, StageSupplementary, supplementary)
	if err != nil {
		return nil, err
	}
	found.add(supplementaryRows)

	discovery := &Discovery{Rows: found.sorted(), Queried: queried}
	log.WithFields(map[string]any{
		"direct_rows":        len(directRows),
		"relational_rows":    len(relationalRows),
		"supplementary_rows": len(supplementaryRows),
	}).Info("Discovery complete")
	return discovery, nil
}

// keySetTasks turns per-target value lists into fetch tasks in canonical order and records
// every value as requested.
func (e *Engine) keySetTasks(values map[target][]string, requested map[target]map[string]struct{}) []fetchTask {
	var tasks []fetchTask
	for _, store := range models.Stores {
		for _, field := range models.LinkingFields {
			t := target{store: store, field: field}
			list, ok := values[t]
			if !ok || len(list) == 0 {
				continue
			}
			if requested[t] == nil {
				requested[t] = make(map[string]struct{})
			}
			for _, v := range list {
				requested[t][v] = struct{}{}
			}
			tasks = append(tasks, fetchTask{store: store, fetch: func(ctx context.Context) ([]models.RawRow, error) {
				return e.fetcher.FetchByKeySet(ctx, store, field, list)
			}})
		}
	}
	return tasks
}

// runStage fans the tasks out and waits for all of them. The first failure cancels the rest.
func (e *Engine) runStage(ctx context.Context, stage Stage, tasks []fetchTask) ([]models.RawRow, error) {
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("search.Engine.stage.%s", stage), tracing.StageKey.String(string(stage)))
	defer span.End()

	if len(tasks) == 0 {
		return nil, nil
	}

	start := time.Now()
	results := make([][]models.RawRow, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.MaxConcurrentFetches > 0 {
		g.SetLimit(e.cfg.MaxConcurrentFetches)
	}
	for i, task := range tasks {
		g.Go(func() error {
			rows, err := task.fetch(gctx)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tracing.Fail(span, err)
		e.logger.WithContext(ctx).WithError(err).WithField("stage", stage).Error("Search stage failed")
		return nil, &StageError{Stage: stage, Err: err}
	}
	metrics.RecordStage(string(stage), time.Since(start))

	var rows []models.RawRow
	for _, r := range results {
		rows = append(rows, r...)
	}
	e.logger.WithContext(ctx).WithFields(map[string]any{
		"stage":   stage,
		"fetches": len(tasks),
		"rows":    len(rows),
	}).Debug("Search stage complete")
	return rows, nil
}
