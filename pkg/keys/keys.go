// Package keys derives linking keys from raw rows and renders them canonically.
package keys

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/azuminxx/simple-redger-sub000/pkg/models"
)

// ExtractPrimaryKey returns the row's own identifying linking field and its value.
func ExtractPrimaryKey(row models.RawRow) (models.LinkingField, string, bool) {
	field := row.Store.PrimaryField()
	value, ok := row.Link(field)
	return field, value, ok
}

// ExtractPartialKey collects every present, non-empty linking value of the row, including
// ones the store only carries as foreign attributes. When fields is empty all linking
// fields are considered.
func ExtractPartialKey(row models.RawRow, fields ...models.LinkingField) models.PartialKey {
	if len(fields) == 0 {
		fields = models.LinkingFields
	}
	pk := models.PartialKey{}
	for _, field := range fields {
		if value, ok := row.Link(field); ok {
			pk[field] = value
		}
	}
	return pk
}

// Pairs returns the fragments of a key in canonical field order.
func Pairs(pk models.PartialKey) []models.KeyPair {
	pairs := make([]models.KeyPair, 0, len(pk))
	for _, field := range models.LinkingFields {
		if value, ok := pk[field]; ok && value != "" {
			pairs = append(pairs, models.KeyPair{Field: field, Value: value})
		}
	}
	return pairs
}

// IntegrationKeyOf serializes a key canonically: fields in Seat, PC, Extension, User order,
// values quoted so separators inside values cannot collide.
func IntegrationKeyOf(pk models.PartialKey) string {
	return KeyOfPairs(Pairs(pk))
}

// KeyOfPairs serializes a set of fragments canonically. A merged record whose stores
// disagree holds more than one value for a field; those are ordered by value.
func KeyOfPairs(pairs []models.KeyPair) string {
	sorted := make([]models.KeyPair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool {
		oi, oj := sorted[i].Field.Ordinal(), sorted[j].Field.Ordinal()
		if oi != oj {
			return oi < oj
		}
		return sorted[i].Value < sorted[j].Value
	})

	parts := make([]string, 0, len(sorted))
	var last models.KeyPair
	for i, pair := range sorted {
		if pair.Value == "" || (i > 0 && pair == last) {
			continue
		}
		last = pair
		parts = append(parts, string(pair.Field)+"="+strconv.Quote(pair.Value))
	}
	return strings.Join(parts, "|")
}

// ParsePairs is the inverse of KeyOfPairs.
func ParsePairs(key string) ([]models.KeyPair, error) {
	var pairs []models.KeyPair
	rest := key
	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("malformed integration key %q", key)
		}
		field := models.LinkingField(rest[:eq])
		if !field.Valid() {
			return nil, fmt.Errorf("unknown linking field %q in integration key", field)
		}
		quoted, err := strconv.QuotedPrefix(rest[eq+1:])
		if err != nil {
			return nil, fmt.Errorf("malformed integration key %q: %w", key, err)
		}
		value, err := strconv.Unquote(quoted)
		if err != nil {
			return nil, fmt.Errorf("malformed integration key %q: %w", key, err)
		}
		pairs = append(pairs, models.KeyPair{Field: field, Value: value})

		rest = rest[eq+1+len(quoted):]
		if rest == "" {
			break
		}
		if rest[0] != '|' || len(rest) == 1 {
			return nil, fmt.Errorf("malformed integration key %q", key)
		}
		rest = rest[1:]
	}
	return pairs, nil
}

// ParseIntegrationKey parses a key produced by IntegrationKeyOf. When a field appears more
// than once the first value is kept.
func ParseIntegrationKey(key string) (models.PartialKey, error) {
	pairs, err := ParsePairs(key)
	if err != nil {
		return nil, err
	}
	pk := models.PartialKey{}
	for _, pair := range pairs {
		if _, ok := pk[pair.Field]; !ok {
			pk[pair.Field] = pair.Value
		}
	}
	return pk, nil
}

// Union merges keys into a new key. The first value seen for a field wins; callers check
// consistency separately.
func Union(pks ...models.PartialKey) models.PartialKey {
	out := models.PartialKey{}
	for _, pk := range pks {
		for field, value := range pk {
			if _, ok := out[field]; !ok && value != "" {
				out[field] = value
			}
		}
	}
	return out
}
