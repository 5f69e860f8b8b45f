package rowcache

import (
	"sort"

	"github.com/azuminxx/simple-redger-sub000/pkg/models"
)

// FieldChange is one field a write-back would modify.
type FieldChange struct {
	Code string `json:"code"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Diff compares edited field values against the cached row. Only fields present in edited
// are considered; unchanged values are omitted.
func Diff(cached models.RawRow, edited map[string]string) []FieldChange {
	var changes []FieldChange
	for code, to := range edited {
		from := cached.Fields[code]
		if from == to {
			continue
		}
		changes = append(changes, FieldChange{Code: code, From: from, To: to})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Code < changes[j].Code })
	return changes
}
