package scheduling

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrConflictPending means the operation hit conflicts and is waiting
	// on the caller to pick a resolution strategy. It is a decision point,
	// not a failure; nothing has been written.
	ErrConflictPending = errors.New("conflict resolution pending")

	// ErrNotRecurring means an all-future scope was requested for an item
	// that is not part of a series.
	ErrNotRecurring = errors.New("item is not part of a recurring series")
)

// FieldErrors is a recoverable, field-keyed validation failure surfaced to
// the caller verbatim.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return strings.Join(parts, "; ")
}
