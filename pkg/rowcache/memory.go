package rowcache

import (
	"context"
	"sync"

	"github.com/azuminxx/simple-redger-sub000/pkg/metrics"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
)

// Memory is the in-process row cache.
type Memory struct {
	rows   map[models.Store]map[string]models.RawRow
	mu     sync.RWMutex
	hits   int64
	misses int64
}

// Stats describes cache usage
type Stats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// NewMemory creates an empty in-process cache
func NewMemory() *Memory {
	return &Memory{rows: make(map[models.Store]map[string]models.RawRow)}
}

func (m *Memory) Put(_ context.Context, rows []models.RawRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range rows {
		key, ok := KeyOf(row)
		if !ok {
			continue
		}
		byStore, ok := m.rows[key.Store]
		if !ok {
			byStore = make(map[string]models.RawRow)
			m.rows[key.Store] = byStore
		}
		byStore[key.PK] = row
	}
	return nil
}

func (m *Memory) Get(_ context.Context, store models.Store, pk string) (*models.RawRow, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[store][pk]
	if !ok {
		m.misses++
		metrics.RecordCacheLookup(false)
		return nil, false, nil
	}
	m.hits++
	metrics.RecordCacheLookup(true)
	return &row, true, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows = make(map[models.Store]map[string]models.RawRow)
	return nil
}

// Stats returns cache statistics
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	size := 0
	for _, byStore := range m.rows {
		size += len(byStore)
	}
	return Stats{Size: size, Hits: m.hits, Misses: m.misses}
}
