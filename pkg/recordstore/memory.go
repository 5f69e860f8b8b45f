package recordstore

import (
	"context"
	"sort"
	"sync"

	"github.com/azuminxx/simple-redger-sub000/pkg/models"
)

// MemoryClient serves records held in process. It evaluates the structured query, so it
// answers exactly what the platform would for the same request.
type MemoryClient struct {
	mu       sync.Mutex
	records  map[models.Store][]Record
	requests []Request
}

// NewMemoryClient creates an empty in-process store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{records: make(map[models.Store][]Record)}
}

// Add stores records, keeping each store ordered by ID.
func (m *MemoryClient) Add(store models.Store, records ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[store] = append(m.records[store], records...)
	sort.SliceStable(m.records[store], func(i, j int) bool {
		return m.records[store][i].ID < m.records[store][j].ID
	})
}

// Query implements Client.
func (m *MemoryClient) Query(ctx context.Context, req Request) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	var matched []Record
	for _, record := range m.records[req.Store] {
		if req.Query.Matches(record.Fields) {
			matched = append(matched, record)
		}
	}

	total := len(matched)
	page := &Page{TotalCount: &total}
	if req.Offset >= len(matched) {
		return page, nil
	}
	end := len(matched)
	if req.Limit > 0 && req.Offset+req.Limit < end {
		end = req.Offset + req.Limit
	}
	page.Records = append(page.Records, matched[req.Offset:end]...)
	return page, nil
}

// Requests returns every request served so far.
func (m *MemoryClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}
