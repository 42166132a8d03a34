package scheduling

import (
	"github.com/google/uuid"

	"agenda/backend/internal/domain"
)

// ResolutionState tracks one creation operation through its conflict
// decision. Transitions are one-shot per operation: a proposal is Clean or
// Conflicted when checked, and committing a Conflicted proposal moves it to
// Resolved or Aborted depending on the caller's strategy.
type ResolutionState string

const (
	StateClean      ResolutionState = "clean"
	StateConflicted ResolutionState = "conflicted"
	StateResolved   ResolutionState = "resolved"
	StateAborted    ResolutionState = "aborted"
)

type ResolutionStrategy string

const (
	StrategyUnspecified    ResolutionStrategy = ""
	StrategyAbort          ResolutionStrategy = "abort"
	StrategyKeepExisting   ResolutionStrategy = "keep_existing"
	StrategyCancelExisting ResolutionStrategy = "cancel_existing"
)

type resolutionDecision struct {
	state        ResolutionState
	cancelIDs    []uuid.UUID
	allowOverlap bool
}

// resolve applies the caller's strategy to an aggregate conflict report.
// Cancellation only ever targets appointments: a conflicting block is
// informational and must be resolved manually whatever is being created.
func resolve(report domain.ConflictReport, strategy ResolutionStrategy) (resolutionDecision, error) {
	if report.Total() == 0 {
		return resolutionDecision{state: StateClean}, nil
	}

	switch strategy {
	case StrategyUnspecified:
		return resolutionDecision{}, ErrConflictPending
	case StrategyAbort:
		return resolutionDecision{state: StateAborted}, nil
	case StrategyKeepExisting:
		return resolutionDecision{state: StateResolved, allowOverlap: true}, nil
	case StrategyCancelExisting:
		cancelIDs := make([]uuid.UUID, len(report.AppointmentIDs))
		copy(cancelIDs, report.AppointmentIDs)
		decision := resolutionDecision{state: StateResolved, cancelIDs: cancelIDs}
		// Cancelling appointments does not clear conflicting blocks, so
		// the commit must still tolerate those overlaps.
		decision.allowOverlap = len(report.BlockIDs) > 0
		return decision, nil
	}
	return resolutionDecision{}, FieldErrors{"strategy": "must be abort, keep_existing or cancel_existing"}
}
