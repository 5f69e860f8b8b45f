// Package merging links rows from different stores into merged records by transitive
// closure over their shared linking values.
package merging

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/azuminxx/simple-redger-sub000/pkg/consistency"
	"github.com/azuminxx/simple-redger-sub000/pkg/keys"
	"github.com/azuminxx/simple-redger-sub000/pkg/metrics"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/tracing"
)

// Engine handles record merging
type Engine struct {
	logger ectologger.Logger
}

// NewEngine creates a new merge engine
func NewEngine(logger ectologger.Logger) *Engine {
	return &Engine{logger: logger}
}

type cluster struct {
	first     int
	rows      []models.RawRow
	fragments []models.KeyPair
}

// Merge groups rows that share any (field, value) fragment, directly or through a chain of
// other rows, and returns one merged record per group in order of first appearance.
//
// A row without linking values becomes a record of its own, keyed by store and row ID.
// When a store contributes more than one row to a group the first is kept and the rest are
// reported as an ambiguity.
func (e *Engine) Merge(ctx context.Context, rows []models.RawRow) []*models.MergedRecord {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	ds := &disjointSet{}
	owners := make(map[models.KeyPair]int)
	elements := make([]int, len(rows))

	for i, row := range rows {
		element := ds.add()
		elements[i] = element
		for _, pair := range keys.Pairs(keys.ExtractPartialKey(row)) {
			if other, ok := owners[pair]; ok {
				ds.union(element, other)
				continue
			}
			owners[pair] = element
		}
	}

	clusters := make(map[int]*cluster)
	var order []*cluster
	for i, row := range rows {
		root := ds.find(elements[i])
		c, ok := clusters[root]
		if !ok {
			c = &cluster{first: i}
			clusters[root] = c
			order = append(order, c)
		}
		c.rows = append(c.rows, row)
	}
	for pair, element := range owners {
		c := clusters[ds.find(element)]
		c.fragments = append(c.fragments, pair)
	}

	records := make([]*models.MergedRecord, 0, len(order))
	for _, c := range order {
		records = append(records, e.buildRecord(ctx, c))
	}

	metrics.MergedRecordsTotal.Add(float64(len(records)))
	e.logger.WithContext(ctx).WithFields(map[string]any{
		"rows":    len(rows),
		"records": len(records),
	}).Debug("Merged rows")

	return records
}

func (e *Engine) buildRecord(ctx context.Context, c *cluster) *models.MergedRecord {
	record := &models.MergedRecord{
		Rows: make(map[models.Store]*models.RawRow),
	}

	extras := make(map[models.Store][]int64)
	partials := make([]models.PartialKey, 0, len(c.rows))
	for i := range c.rows {
		row := c.rows[i]
		if kept, ok := record.Rows[row.Store]; ok {
			extras[row.Store] = append(extras[row.Store], row.ID)
			e.logger.WithContext(ctx).WithFields(map[string]any{
				"store":        row.Store,
				"kept_row_id":  kept.ID,
				"extra_row_id": row.ID,
			}).Warn("Store contributed more than one row to a merged record")
			continue
		}
		record.Rows[row.Store] = &row
		partials = append(partials, keys.ExtractPartialKey(row))
	}

	for _, store := range models.Stores {
		ids, ok := extras[store]
		if !ok {
			continue
		}
		record.Ambiguities = append(record.Ambiguities, models.Ambiguity{
			Store:      store,
			KeptRowID:  record.Rows[store].ID,
			ExtraRowID: ids,
		})
	}

	sort.Slice(c.fragments, func(i, j int) bool {
		oi, oj := c.fragments[i].Field.Ordinal(), c.fragments[j].Field.Ordinal()
		if oi != oj {
			return oi < oj
		}
		return c.fragments[i].Value < c.fragments[j].Value
	})
	record.Fragments = c.fragments
	record.Key = keys.Union(partials...)
	record.IntegrationKey = keys.KeyOfPairs(c.fragments)
	if record.IntegrationKey == "" {
		record.IntegrationKey = c.rows[0].Ref()
	}
	record.ContributorsCount = len(record.Rows)
	record.Consistency = consistency.Check(record)

	if !record.Consistency.Consistent {
		metrics.FlaggedRecordsTotal.WithLabelValues(string(models.FindingInconsistent)).Inc()
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"integration_key": record.IntegrationKey,
			"fields":          consistency.FlaggedFields(record.Consistency),
		}).Debug("Merged record disagrees on linking fields")
	}
	if record.Ambiguous() {
		metrics.FlaggedRecordsTotal.WithLabelValues(string(models.FindingAmbiguous)).Inc()
	}
	return record
}
