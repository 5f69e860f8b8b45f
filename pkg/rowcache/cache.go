// Package rowcache holds the raw rows fetched during a search, keyed by store and primary key,
// so callers can read back exactly what was fetched.
package rowcache

import (
	"context"

	"github.com/azuminxx/simple-redger-sub000/pkg/keys"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
)

// Key addresses one cached row.
type Key struct {
	Store models.Store
	PK    string
}

// Cache stores raw rows. Entries are only added or overwritten; the whole cache is cleared at
// the start of a fresh search.
type Cache interface {
	Put(ctx context.Context, rows []models.RawRow) error
	Get(ctx context.Context, store models.Store, pk string) (*models.RawRow, bool, error)
	Clear(ctx context.Context) error
}

// KeyOf returns the cache key of a row. Rows without a primary key value are not cacheable.
func KeyOf(row models.RawRow) (Key, bool) {
	_, value, ok := keys.ExtractPrimaryKey(row)
	if !ok {
		return Key{}, false
	}
	return Key{Store: row.Store, PK: value}, true
}
