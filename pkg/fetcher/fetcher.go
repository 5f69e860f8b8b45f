// Package fetcher reads complete result sets from the record store: paginated scans for a
// query, and batched lookups for a set of linking values.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/azuminxx/simple-redger-sub000/pkg/catalog"
	"github.com/azuminxx/simple-redger-sub000/pkg/metrics"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/query"
	"github.com/azuminxx/simple-redger-sub000/pkg/recordstore"
	"github.com/azuminxx/simple-redger-sub000/pkg/rowcache"
	"github.com/azuminxx/simple-redger-sub000/pkg/tracing"
)

// ErrOffsetLimit is returned when a scan would page past the platform's offset ceiling.
var ErrOffsetLimit = errors.New("offset limit exceeded")

// unboundedOffset sizes the pagination clause when no offset ceiling is configured.
const unboundedOffset = 9_999_999

// Config holds fetcher configuration
type Config struct {
	PageSize     int
	QueryBudget  int
	MinBatch     int
	MaxBatch     int
	SampleSize   int
	FetchTimeout time.Duration
	// MaxOffset is the deepest offset the platform accepts; zero means unlimited.
	MaxOffset int
}

// DefaultConfig returns the platform's limits
func DefaultConfig() Config {
	return Config{
		PageSize:     500,
		QueryBudget:  7000,
		MinBatch:     10,
		MaxBatch:     500,
		SampleSize:   20,
		FetchTimeout: 30 * time.Second,
		MaxOffset:    10000,
	}
}

// Fetcher reads rows through a record store client and records them in the row cache.
type Fetcher struct {
	client  recordstore.Client
	catalog *catalog.Catalog
	cache   rowcache.Cache
	cfg     Config
	logger  ectologger.Logger
}

// New creates a fetcher. cache may be nil; a cache attached with rowcache.WithCache takes
// precedence.
func New(client recordstore.Client, cat *catalog.Catalog, cache rowcache.Cache, cfg Config, logger ectologger.Logger) *Fetcher {
	return &Fetcher{
		client:  client,
		catalog: cat,
		cache:   cache,
		cfg:     cfg,
		logger:  logger,
	}
}

// FetchAll pages through every row matching q.
func (f *Fetcher) FetchAll(ctx context.Context, store models.Store, q query.Query) ([]models.RawRow, error) {
	ctx, span := tracing.StartSpan(ctx, "fetcher.Fetcher.FetchAll", tracing.StoreKey.String(string(store)))
	defer span.End()

	schema, ok := f.catalog.Schema(store)
	if !ok {
		return nil, fmt.Errorf("store %s is not in the catalog", store)
	}
	if n := len(q.Page(f.cfg.PageSize, f.offsetWidth())); n > f.cfg.QueryBudget {
		return nil, &QueryTooLongError{Store: store, Length: n, Budget: f.cfg.QueryBudget}
	}

	rows, err := f.fetchPages(ctx, schema, q)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(tracing.RowsKey.Int(len(rows)))
	f.remember(ctx, rows)
	return rows, nil
}

// FetchByKeySet returns every row of the store whose field holds one of values. Values are
// split into batches so no query exceeds the byte budget; every batch is planned before the
// first request goes out.
func (f *Fetcher) FetchByKeySet(ctx context.Context, store models.Store, field models.LinkingField, values []string) ([]models.RawRow, error) {
	ctx, span := tracing.StartSpan(ctx, "fetcher.Fetcher.FetchByKeySet",
		tracing.StoreKey.String(string(store)),
		tracing.FieldKey.String(string(field)),
	)
	defer span.End()

	schema, ok := f.catalog.Schema(store)
	if !ok {
		return nil, fmt.Errorf("store %s is not in the catalog", store)
	}
	code, ok := schema.LinkCode(field)
	if !ok {
		return nil, fmt.Errorf("store %s does not carry %s", store, field)
	}

	values = distinct(values)
	if len(values) == 0 {
		return nil, nil
	}

	batches, err := f.planBatches(store, field, code, values)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	f.logger.WithContext(ctx).WithFields(map[string]any{
		"store":   store,
		"field":   field,
		"values":  len(values),
		"batches": len(batches),
	}).Debug("Fetching by key set")

	var rows []models.RawRow
	for _, batch := range batches {
		metrics.FetchBatchesTotal.WithLabelValues(string(store), string(field)).Inc()
		batchRows, err := f.fetchPages(ctx, schema, query.New(query.In(code, batch...)))
		if err != nil {
			tracing.Fail(span, err)
			return nil, err
		}
		rows = append(rows, batchRows...)
	}

	span.SetAttributes(tracing.RowsKey.Int(len(rows)))
	f.remember(ctx, rows)
	return rows, nil
}

// BatchSize estimates how many values fit one query from the average length of a sample.
func (f *Fetcher) BatchSize(code string, values []string) int {
	sample := values
	if f.cfg.SampleSize > 0 && len(sample) > f.cfg.SampleSize {
		sample = sample[:f.cfg.SampleSize]
	}
	if len(sample) == 0 {
		return f.cfg.MaxBatch
	}

	total := 0
	for _, v := range sample {
		total += query.QuotedLen(v) - 2
	}
	avg := (total + len(sample) - 1) / len(sample)
	perEntry := avg + query.EntryOverhead

	size := (f.cfg.QueryBudget - f.fixedLen(code)) / perEntry
	if size < f.cfg.MinBatch {
		size = f.cfg.MinBatch
	}
	if size > f.cfg.MaxBatch {
		size = f.cfg.MaxBatch
	}
	return size
}

// planBatches splits values into batches of at most BatchSize entries, closing a batch early
// whenever the next value would push the serialized query over budget.
func (f *Fetcher) planBatches(store models.Store, field models.LinkingField, code string, values []string) ([][]string, error) {
	size := f.BatchSize(code, values)
	fixed := f.fixedLen(code)

	var batches [][]string
	var current []string
	length := fixed
	for _, v := range values {
		entry := query.QuotedLen(v)
		if fixed+entry > f.cfg.QueryBudget {
			return nil, &QueryTooLongError{Store: store, Field: field, Length: fixed + entry, Budget: f.cfg.QueryBudget}
		}

		added := entry
		if len(current) > 0 {
			added += 2 // ", "
		}
		if len(current) >= size || length+added > f.cfg.QueryBudget {
			batches = append(batches, current)
			current = nil
			length = fixed
			added = entry
		}
		current = append(current, v)
		length += added
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches, nil
}

// fixedLen is the length of an in-list query for code with no values, pagination included.
func (f *Fetcher) fixedLen(code string) int {
	return len(query.New(query.In(code)).Page(f.cfg.PageSize, f.offsetWidth()))
}

func (f *Fetcher) offsetWidth() int {
	if f.cfg.MaxOffset > 0 {
		return f.cfg.MaxOffset
	}
	return unboundedOffset
}

// fetchPages issues the query page by page until a short page or the total count ends it.
func (f *Fetcher) fetchPages(ctx context.Context, schema *catalog.Schema, q query.Query) ([]models.RawRow, error) {
	var rows []models.RawRow
	offset := 0
	for {
		req := recordstore.Request{
			Store:  schema.Store,
			App:    schema.App,
			Query:  q,
			Offset: offset,
			Limit:  f.cfg.PageSize,
		}
		if f.cfg.MaxOffset > 0 && offset > f.cfg.MaxOffset {
			return nil, &FetchError{Store: schema.Store, Query: req.String(), Offset: offset, Err: ErrOffsetLimit}
		}

		page, err := f.fetchPage(ctx, req)
		if err != nil {
			f.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"store":  schema.Store,
				"offset": offset,
				"query":  req.String(),
			}).Error("Record store page request failed")
			return nil, &FetchError{Store: schema.Store, Query: req.String(), Offset: offset, Err: err}
		}

		for _, record := range page.Records {
			rows = append(rows, schema.Decode(record.ID, record.Revision, record.Fields))
		}

		n := len(page.Records)
		offset += n
		if n < f.cfg.PageSize {
			break
		}
		if page.TotalCount != nil && offset >= *page.TotalCount {
			break
		}
	}

	metrics.FetchedRowsTotal.WithLabelValues(string(schema.Store)).Add(float64(len(rows)))
	return rows, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, req recordstore.Request) (*recordstore.Page, error) {
	if f.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.FetchTimeout)
		defer cancel()
	}
	return f.client.Query(ctx, req)
}

// remember writes rows to the cache attached to ctx, or the fetcher's own. Rows fetched by a
// cancelled search are not kept.
func (f *Fetcher) remember(ctx context.Context, rows []models.RawRow) {
	if len(rows) == 0 || ctx.Err() != nil {
		return
	}
	cache := f.cache
	if scoped, ok := rowcache.FromContext(ctx); ok {
		cache = scoped
	}
	if cache == nil {
		return
	}
	if err := cache.Put(ctx, rows); err != nil {
		f.logger.WithContext(ctx).WithError(err).Warn("Failed to cache fetched rows")
	}
}

// distinct drops empty and repeated values and sorts the rest.
func distinct(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
