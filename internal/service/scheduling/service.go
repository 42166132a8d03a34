package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

// Service is the scheduling core: recurrence expansion, conflict detection,
// conflict resolution and series-scoped mutation. It holds no state between
// operations; each call is independent and runs to completion apart from
// the caller's own decision point on a conflicted proposal.
type Service struct {
	repo store.CalendarRepository
}

func NewService(repo store.CalendarRepository) *Service {
	return &Service{repo: repo}
}

// Proposal is the outcome of ExpandAndCheck: the concrete instances one
// creation would produce and every existing item they collide with.
// Nothing has been written yet; a proposal with conflicts waits for the
// caller to choose a strategy.
type Proposal struct {
	Draft     Draft
	SeriesID  *uuid.UUID
	Instances []domain.TimeInterval
	Conflicts domain.ConflictReport
}

func (p Proposal) State() ResolutionState {
	if p.Conflicts.Total() == 0 {
		return StateClean
	}
	return StateConflicted
}

func (s *Service) ExpandAndCheck(ctx context.Context, in Draft) (Proposal, error) {
	in.normalize()
	if errs := validateDraft(in); errs != nil {
		return Proposal{}, errs
	}

	anchor := domain.TimeInterval{Start: in.StartTime, End: in.EndTime}
	exp, err := domain.ExpandRecurrence(anchor, in.Pattern, in.Count)
	if err != nil {
		return Proposal{}, err
	}

	report, err := s.findConflicts(ctx, in.PractitionerID, exp.Instances, nil)
	if err != nil {
		return Proposal{}, err
	}

	return Proposal{
		Draft:     in,
		SeriesID:  exp.SeriesID,
		Instances: exp.Instances,
		Conflicts: report,
	}, nil
}

type CommitOutcome struct {
	State        ResolutionState
	CreatedIDs   []uuid.UUID
	CancelledIDs []uuid.UUID
}

// ResolveAndCommit applies the caller's strategy to a checked proposal and,
// unless the operation was aborted, hands the whole batch (creations plus
// cancellations) to the collaborator as one transaction. An aborted
// operation writes nothing, including the original creation.
func (s *Service) ResolveAndCommit(ctx context.Context, p Proposal, strategy ResolutionStrategy) (CommitOutcome, error) {
	if len(p.Instances) == 0 {
		return CommitOutcome{}, FieldErrors{"instances": "proposal has no instances"}
	}

	decision, err := resolve(p.Conflicts, strategy)
	if err != nil {
		return CommitOutcome{}, err
	}
	if decision.state == StateAborted {
		return CommitOutcome{State: StateAborted}, nil
	}

	batch := store.CommitBatch{
		PractitionerID:       p.Draft.PractitionerID,
		CancelAppointmentIDs: decision.cancelIDs,
		AllowOverlap:         decision.allowOverlap,
	}
	for _, iv := range p.Instances {
		switch p.Draft.Kind {
		case domain.KindBlock:
			batch.Blocks = append(batch.Blocks, domain.Block{
				PractitionerID: p.Draft.PractitionerID,
				StartTime:      iv.Start,
				EndTime:        iv.End,
				Reason:         p.Draft.Reason,
				SeriesID:       p.SeriesID,
			})
		default:
			batch.Appointments = append(batch.Appointments, domain.Appointment{
				PractitionerID: p.Draft.PractitionerID,
				PatientID:      p.Draft.PatientID,
				StartTime:      iv.Start,
				EndTime:        iv.End,
				SeriesID:       p.SeriesID,
				Status:         domain.AppointmentScheduled,
				ValueCents:     p.Draft.ValueCents,
			})
		}
	}

	res, err := s.repo.CommitBatch(ctx, batch)
	if err != nil {
		return CommitOutcome{}, err
	}

	state := StateClean
	if p.Conflicts.Total() > 0 {
		state = StateResolved
	}
	return CommitOutcome{
		State:        state,
		CreatedIDs:   res.CreatedIDs,
		CancelledIDs: res.CancelledIDs,
	}, nil
}

// ListAgenda returns every occupied slot for a practitioner in a window,
// for the caller's calendar view.
func (s *Service) ListAgenda(ctx context.Context, practitionerID string, windowStart, windowEnd time.Time) ([]domain.OccupiedSlot, error) {
	if practitionerID == "" {
		return nil, FieldErrors{"practitioner_id": "is required"}
	}
	start := windowStart.UTC()
	end := windowEnd.UTC()
	if !end.After(start) {
		return nil, FieldErrors{"window_end": "must be after window_start"}
	}
	return s.repo.ListOccupied(ctx, practitionerID, start, end)
}

// findConflicts fetches the practitioner's occupied slots once over a
// window covering every instance, then checks each instance individually
// and merges the per-instance reports into one aggregate. The single merged
// report is what lets the caller decide once per operation instead of once
// per instance.
func (s *Service) findConflicts(ctx context.Context, practitionerID string, instances []domain.TimeInterval, exclude map[uuid.UUID]struct{}) (domain.ConflictReport, error) {
	if len(instances) == 0 {
		return domain.ConflictReport{}, nil
	}

	windowStart := instances[0].Start
	windowEnd := instances[0].End
	for _, iv := range instances[1:] {
		if iv.Start.Before(windowStart) {
			windowStart = iv.Start
		}
		if iv.End.After(windowEnd) {
			windowEnd = iv.End
		}
	}

	occupied, err := s.repo.ListOccupied(ctx, practitionerID, windowStart, windowEnd)
	if err != nil {
		return domain.ConflictReport{}, err
	}

	reports := make([]domain.ConflictReport, 0, len(instances))
	for _, iv := range instances {
		reports = append(reports, domain.FindOverlaps(occupied, iv, exclude))
	}
	return domain.MergeConflictReports(reports...), nil
}

// IsRecoverable reports whether err is a user-facing scheduling failure the
// caller can correct, as opposed to a collaborator or programming error.
func IsRecoverable(err error) bool {
	var fieldErrs FieldErrors
	if errors.As(err, &fieldErrs) {
		return true
	}
	return errors.Is(err, ErrConflictPending) ||
		errors.Is(err, ErrNotRecurring) ||
		errors.Is(err, domain.ErrInvalidInterval) ||
		errors.Is(err, domain.ErrUnsupportedPattern)
}
