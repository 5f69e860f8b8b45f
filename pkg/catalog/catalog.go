// Package catalog describes how each ledger is laid out on the record-store platform:
// which linking fields it carries, under which field codes, and which filter fields it owns.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Gobusters/ectolinq"
	"gopkg.in/yaml.v3"

	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/query"
)

// ErrUnknownFilterField is returned when a filter names a field no store declares.
var ErrUnknownFilterField = errors.New("unknown filter field")

// MatchMode controls how a filter value is compared.
type MatchMode string

const (
	MatchExact MatchMode = "exact"
	MatchLike  MatchMode = "like"
)

// FieldSpec maps a filter field onto a store field code.
type FieldSpec struct {
	Code  string    `yaml:"code"`
	Match MatchMode `yaml:"match"`
}

// CommonField is a filter field several stores carry under their own codes.
type CommonField struct {
	Match MatchMode               `yaml:"match"`
	Codes map[models.Store]string `yaml:"codes"`
}

// Schema is the layout of one store.
type Schema struct {
	Store       models.Store                   `yaml:"-"`
	App         string                         `yaml:"app"`
	APITokenEnv string                         `yaml:"api_token_env"`
	Links       map[models.LinkingField]string `yaml:"links"`
	Fields      map[string]FieldSpec           `yaml:"fields"`
}

// Catalog is the full set of store schemas.
type Catalog struct {
	Stores       map[models.Store]*Schema `yaml:"stores"`
	CommonFields map[string]CommonField   `yaml:"common_fields"`

	owners map[string]models.Store
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) init() error {
	if len(c.Stores) == 0 {
		return errors.New("catalog declares no stores")
	}

	c.owners = make(map[string]models.Store)
	for _, store := range models.Stores {
		schema, ok := c.Stores[store]
		if !ok {
			continue
		}
		schema.Store = store
		if schema.Fields == nil {
			schema.Fields = make(map[string]FieldSpec)
		}

		primary := store.PrimaryField()
		code, ok := schema.Links[primary]
		if !ok || code == "" {
			return fmt.Errorf("store %s does not declare its primary field %s", store, primary)
		}
		for field := range schema.Links {
			if !field.Valid() {
				return fmt.Errorf("store %s declares unknown linking field %q", store, field)
			}
		}
		// The primary field is always searchable on its own store.
		if _, ok := schema.Fields[string(primary)]; !ok {
			schema.Fields[string(primary)] = FieldSpec{Code: code, Match: MatchExact}
		}

		for name, spec := range schema.Fields {
			if spec.Code == "" {
				return fmt.Errorf("store %s field %s has no code", store, name)
			}
			if owner, dup := c.owners[name]; dup {
				return fmt.Errorf("filter field %s is declared by both %s and %s", name, owner, store)
			}
			c.owners[name] = store
		}
	}

	for store := range c.Stores {
		if !store.Valid() {
			return fmt.Errorf("unknown store %q", store)
		}
	}

	for name, common := range c.CommonFields {
		if _, dup := c.owners[name]; dup {
			return fmt.Errorf("common field %s collides with a store field", name)
		}
		for store := range common.Codes {
			if _, ok := c.Stores[store]; !ok {
				return fmt.Errorf("common field %s references undeclared store %s", name, store)
			}
		}
	}

	return nil
}

// Schema returns the layout of a store.
func (c *Catalog) Schema(store models.Store) (*Schema, bool) {
	schema, ok := c.Stores[store]
	return schema, ok
}

// Declared returns the declared stores in canonical order.
func (c *Catalog) Declared() []models.Store {
	stores := make([]models.Store, 0, len(c.Stores))
	for _, store := range models.Stores {
		if _, ok := c.Stores[store]; ok {
			stores = append(stores, store)
		}
	}
	return stores
}

// Exposes reports whether the store physically carries the linking field.
func (c *Catalog) Exposes(store models.Store, field models.LinkingField) bool {
	schema, ok := c.Stores[store]
	if !ok {
		return false
	}
	code, ok := schema.Links[field]
	return ok && code != ""
}

// StoresExposing returns, in canonical order, every store that carries the field.
func (c *Catalog) StoresExposing(field models.LinkingField) []models.Store {
	return ectolinq.Filter(c.Declared(), func(store models.Store) bool {
		return c.Exposes(store, field)
	})
}

// Targets decides which stores a filter is sent to directly. Stores owning a referenced
// store-specific field are targeted; when none is referenced every store carrying one of the
// referenced common fields is.
func (c *Catalog) Targets(filter models.Filter) ([]models.Store, error) {
	owned := map[models.Store]bool{}
	var unknown []string
	for _, name := range filter.Names() {
		if owner, ok := c.owners[name]; ok {
			owned[owner] = true
			continue
		}
		if _, ok := c.CommonFields[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %v (known fields: %s)", ErrUnknownFilterField, unknown, strings.Join(c.FieldNames(), ", "))
	}

	if len(owned) > 0 {
		return ectolinq.Filter(c.Declared(), func(store models.Store) bool { return owned[store] }), nil
	}

	return ectolinq.Filter(c.Declared(), func(store models.Store) bool {
		return len(c.Conditions(store, filter)) > 0
	}), nil
}

// Conditions translates the parts of the filter a store can answer into its field codes.
func (c *Catalog) Conditions(store models.Store, filter models.Filter) []query.Condition {
	schema, ok := c.Stores[store]
	if !ok {
		return nil
	}

	var conditions []query.Condition
	for _, name := range filter.Names() {
		value := filter[name]
		if spec, ok := schema.Fields[name]; ok {
			conditions = append(conditions, condition(spec.Code, spec.Match, value))
			continue
		}
		if common, ok := c.CommonFields[name]; ok {
			if code, ok := common.Codes[store]; ok && code != "" {
				conditions = append(conditions, condition(code, common.Match, value))
			}
		}
	}
	return conditions
}

func condition(code string, mode MatchMode, value string) query.Condition {
	if mode == MatchLike {
		return query.Like(code, value)
	}
	return query.Equals(code, value)
}

// FieldNames lists every filter field name a caller may use.
func (c *Catalog) FieldNames() []string {
	names := make([]string, 0, len(c.owners)+len(c.CommonFields))
	for name := range c.owners {
		names = append(names, name)
	}
	for name := range c.CommonFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LinkCode returns the field code the store uses for a linking field.
func (s *Schema) LinkCode(field models.LinkingField) (string, bool) {
	code, ok := s.Links[field]
	return code, ok && code != ""
}

// Decode builds a raw row from a platform record, resolving linking values through the
// store's field codes.
func (s *Schema) Decode(id, revision int64, fields map[string]string) models.RawRow {
	links := make(map[models.LinkingField]string, len(s.Links))
	for field, code := range s.Links {
		if value, ok := fields[code]; ok && value != "" {
			links[field] = value
		}
	}
	return models.RawRow{
		Store:    s.Store,
		ID:       id,
		Revision: revision,
		Fields:   fields,
		Links:    links,
	}
}
