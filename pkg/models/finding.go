package models

import "time"

// FindingKind classifies an audit finding.
type FindingKind string

const (
	FindingInconsistent FindingKind = "inconsistent"
	FindingAmbiguous    FindingKind = "ambiguous"
)

// Finding is an audit entry for a flagged merged record.
type Finding struct {
	ID             string        `json:"id" db:"id"`
	SearchID       string        `json:"search_id" db:"search_id"`
	IntegrationKey string        `json:"integration_key" db:"integration_key"`
	Kind           FindingKind   `json:"kind" db:"kind"`
	Store          Store         `json:"store,omitempty" db:"store"`
	Field          LinkingField  `json:"field,omitempty" db:"field"`
	Observations   []Observation `json:"observations,omitempty" db:"-"`
	RowIDs         []int64       `json:"row_ids,omitempty" db:"-"`
	DetectedAt     time.Time     `json:"detected_at" db:"detected_at"`
}

// FindingsOf builds the audit findings for a flagged record.
func FindingsOf(searchID string, record *MergedRecord, detectedAt time.Time) []Finding {
	findings := make([]Finding, 0, len(record.Consistency.Fields)+len(record.Ambiguities))
	for _, field := range LinkingFields {
		observations, ok := record.Consistency.Fields[field]
		if !ok {
			continue
		}
		findings = append(findings, Finding{
			SearchID:       searchID,
			IntegrationKey: record.IntegrationKey,
			Kind:           FindingInconsistent,
			Field:          field,
			Observations:   observations,
			DetectedAt:     detectedAt,
		})
	}
	for _, ambiguity := range record.Ambiguities {
		ids := append([]int64{ambiguity.KeptRowID}, ambiguity.ExtraRowID...)
		findings = append(findings, Finding{
			SearchID:       searchID,
			IntegrationKey: record.IntegrationKey,
			Kind:           FindingAmbiguous,
			Store:          ambiguity.Store,
			RowIDs:         ids,
			DetectedAt:     detectedAt,
		})
	}
	return findings
}
