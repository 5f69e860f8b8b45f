package search

import (
	"errors"
	"fmt"

	"github.com/azuminxx/simple-redger-sub000/pkg/catalog"
)

var (
	// ErrEmptyFilter is returned when a search has no non-empty filter value.
	ErrEmptyFilter = errors.New("search requires at least one non-empty filter field")

	// ErrUnknownFilterField is returned when a filter names a field no store declares.
	ErrUnknownFilterField = catalog.ErrUnknownFilterField

	// ErrSuperseded is returned to a search whose results were discarded because a newer one
	// started on the same session.
	ErrSuperseded = errors.New("search superseded by a newer search")
)

// Stage names a phase of the discovery pipeline.
type Stage string

const (
	StageDirect        Stage = "direct"
	StageRelational    Stage = "relational"
	StageSupplementary Stage = "supplementary"
)

// StageError wraps the fetch failure that aborted a stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IsUsageError reports whether err was caused by the caller's input rather than the stores.
func IsUsageError(err error) bool {
	return errors.Is(err, ErrEmptyFilter) || errors.Is(err, ErrUnknownFilterField)
}
