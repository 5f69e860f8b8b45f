package models

// PartialKey holds the linking values a single row (or merged record) carries.
type PartialKey map[LinkingField]string

// KeyPair is one (field, value) fragment of an integration key.
type KeyPair struct {
	Field LinkingField `json:"field"`
	Value string       `json:"value"`
}

// Observation is the value one store reports for a linking field.
type Observation struct {
	Store Store  `json:"store"`
	Value string `json:"value"`
}

// ConsistencyReport describes where the contributing stores of a merged record disagree.
type ConsistencyReport struct {
	Consistent bool                           `json:"consistent"`
	Fields     map[LinkingField][]Observation `json:"fields,omitempty"`
}

// Ambiguity records a store that contributed more than one row to the same merged record.
// The first row is kept; the others are listed here.
type Ambiguity struct {
	Store      Store   `json:"store"`
	KeptRowID  int64   `json:"kept_row_id"`
	ExtraRowID []int64 `json:"extra_row_ids"`
}

// MergedRecord is the logical record produced by linking rows across stores.
type MergedRecord struct {
	IntegrationKey    string            `json:"integration_key"`
	Key               PartialKey        `json:"key"`
	Fragments         []KeyPair         `json:"fragments"`
	Rows              map[Store]*RawRow `json:"rows"`
	Ambiguities       []Ambiguity       `json:"ambiguities,omitempty"`
	Consistency       ConsistencyReport `json:"consistency"`
	ContributorsCount int               `json:"contributors_count"`
}

// Row returns the row a store contributed, if any.
func (m *MergedRecord) Row(store Store) (*RawRow, bool) {
	row, ok := m.Rows[store]
	return row, ok && row != nil
}

// Ambiguous reports whether some store contributed more than one row.
func (m *MergedRecord) Ambiguous() bool {
	return len(m.Ambiguities) > 0
}

// Flagged reports whether the record needs attention.
func (m *MergedRecord) Flagged() bool {
	return !m.Consistency.Consistent || m.Ambiguous()
}
