// Package recordstore talks to the remote record-store platform that hosts the ledgers.
package recordstore

import (
	"context"
	"fmt"

	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/query"
)

// Request is one page read against a store.
type Request struct {
	Store  models.Store
	App    string
	Query  query.Query
	Offset int
	Limit  int
}

// String renders the query exactly as it is sent.
func (r Request) String() string {
	return r.Query.Page(r.Limit, r.Offset)
}

// Record is a platform record with its field objects flattened to strings.
type Record struct {
	ID       int64
	Revision int64
	Fields   map[string]string
}

// Page is the result of one request. TotalCount is nil when the platform did not report it.
type Page struct {
	Records    []Record
	TotalCount *int
}

// Client reads pages from the platform.
type Client interface {
	Query(ctx context.Context, req Request) (*Page, error)
}

// StatusError is returned for non-success responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("record store responded %d: %s", e.StatusCode, e.Body)
}
