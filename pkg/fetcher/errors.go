package fetcher

import (
	"fmt"

	"github.com/azuminxx/simple-redger-sub000/pkg/models"
)

// FetchError is a failed page request. It aborts the fetch it belongs to.
type FetchError struct {
	Store  models.Store
	Query  string
	Offset int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed at offset %d (query %q): %v", e.Store, e.Offset, e.Query, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// QueryTooLongError is raised before any request when a value cannot fit the query budget.
type QueryTooLongError struct {
	Store  models.Store
	Field  models.LinkingField
	Length int
	Budget int
}

func (e *QueryTooLongError) Error() string {
	return fmt.Sprintf("query for %s.%s would be %d bytes, over the %d byte budget", e.Store, e.Field, e.Length, e.Budget)
}
