// Package consistency detects linking fields on which the stores of a merged record disagree.
package consistency

import (
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
)

// Check compares, field by field, the values each contributing store reports. A field is
// flagged only when two or more stores report different non-empty values; a store that does
// not carry the field, or leaves it empty, never causes a conflict.
func Check(record *models.MergedRecord) models.ConsistencyReport {
	report := models.ConsistencyReport{Consistent: true}
	if len(record.Rows) < 2 {
		return report
	}

	for _, field := range models.LinkingFields {
		var observations []models.Observation
		distinct := map[string]struct{}{}
		for _, store := range models.Stores {
			row, ok := record.Row(store)
			if !ok {
				continue
			}
			value, ok := row.Link(field)
			if !ok {
				continue
			}
			observations = append(observations, models.Observation{Store: store, Value: value})
			distinct[value] = struct{}{}
		}
		if len(distinct) < 2 {
			continue
		}
		if report.Fields == nil {
			report.Fields = make(map[models.LinkingField][]models.Observation)
		}
		report.Fields[field] = observations
		report.Consistent = false
	}
	return report
}

// FlaggedFields lists the conflicting fields of a report in canonical order.
func FlaggedFields(report models.ConsistencyReport) []models.LinkingField {
	var fields []models.LinkingField
	for _, field := range models.LinkingFields {
		if _, ok := report.Fields[field]; ok {
			fields = append(fields, field)
		}
	}
	return fields
}
