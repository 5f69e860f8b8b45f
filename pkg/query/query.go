// Package query builds query strings for the record-store platform.
package query

import (
	"strconv"
	"strings"
)

// Operator is a comparison supported by the platform query language.
type Operator string

const (
	OpEquals Operator = "="
	OpLike   Operator = "like"
	OpIn     Operator = "in"
)

// EntryOverhead is the number of bytes an in-list adds per value besides the value itself:
// two quotes and a ", " separator.
const EntryOverhead = 4

// DefaultOrder keeps pagination and re-fetches stable.
const DefaultOrder = "order by $id asc"

// Condition is a single field predicate.
type Condition struct {
	Field  string   `json:"field"`
	Op     Operator `json:"op"`
	Values []string `json:"values"`
}

// Query is a conjunction of conditions.
type Query struct {
	Conditions []Condition `json:"conditions"`
}

// Equals builds a field = "value" condition.
func Equals(field, value string) Condition {
	return Condition{Field: field, Op: OpEquals, Values: []string{value}}
}

// Like builds a field like "value" condition.
func Like(field, value string) Condition {
	return Condition{Field: field, Op: OpLike, Values: []string{value}}
}

// In builds a field in ("a", "b") condition.
func In(field string, values ...string) Condition {
	return Condition{Field: field, Op: OpIn, Values: values}
}

// New creates a query from conditions.
func New(conditions ...Condition) Query {
	return Query{Conditions: conditions}
}

// Quote wraps a value in double quotes, escaping backslashes and quotes.
func Quote(value string) string {
	var b strings.Builder
	b.Grow(len(value) + 2)
	b.WriteByte('"')
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}

// QuotedLen is the serialized length of a value, without building it.
func QuotedLen(value string) int {
	n := len(value) + 2
	n += strings.Count(value, `"`) + strings.Count(value, `\`)
	return n
}

// String renders the condition.
func (c Condition) String() string {
	if c.Op != OpIn {
		value := ""
		if len(c.Values) > 0 {
			value = c.Values[0]
		}
		return c.Field + " " + string(c.Op) + " " + Quote(value)
	}

	quoted := make([]string, len(c.Values))
	for i, v := range c.Values {
		quoted[i] = Quote(v)
	}
	return c.Field + " in (" + strings.Join(quoted, ", ") + ")"
}

// String renders the query including its ordering clause.
func (q Query) String() string {
	parts := make([]string, 0, len(q.Conditions))
	for _, c := range q.Conditions {
		parts = append(parts, c.String())
	}
	where := strings.Join(parts, " and ")
	if where == "" {
		return DefaultOrder
	}
	return where + " " + DefaultOrder
}

// Page renders the query with its pagination clause.
func (q Query) Page(limit, offset int) string {
	return q.String() + " limit " + strconv.Itoa(limit) + " offset " + strconv.Itoa(offset)
}

// IsEmpty reports whether the query has no conditions, which would select every row.
func (q Query) IsEmpty() bool {
	return len(q.Conditions) == 0
}

// Matches evaluates the condition against a record's field values.
// like is a partial match, the way the platform evaluates it.
func (c Condition) Matches(fields map[string]string) bool {
	actual, ok := fields[c.Field]
	if !ok {
		return false
	}
	switch c.Op {
	case OpEquals:
		return len(c.Values) > 0 && actual == c.Values[0]
	case OpLike:
		return len(c.Values) > 0 && strings.Contains(strings.ToLower(actual), strings.ToLower(c.Values[0]))
	case OpIn:
		for _, v := range c.Values {
			if actual == v {
				return true
			}
		}
	}
	return false
}

// Matches reports whether every condition holds for the record.
func (q Query) Matches(fields map[string]string) bool {
	for _, c := range q.Conditions {
		if !c.Matches(fields) {
			return false
		}
	}
	return true
}
