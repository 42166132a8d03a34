package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"agenda/backend/internal/domain"
)

// CommitBatch is the atomic unit written at the end of a creation flow:
// every new instance of one recurrence expansion plus any cancellations the
// chosen resolution strategy demands. Either all of it applies or none.
type CommitBatch struct {
	PractitionerID       string
	Appointments         []domain.Appointment
	Blocks               []domain.Block
	CancelAppointmentIDs []uuid.UUID

	// AllowOverlap skips the collaborator's commit-time overlap recheck.
	// Set when the caller explicitly chose to keep existing conflicts.
	AllowOverlap bool
}

type CommitResult struct {
	CreatedIDs   []uuid.UUID
	CancelledIDs []uuid.UUID
}

// CalendarRepository is the persistence collaborator for one clinic's
// agenda. The scheduling core decides which ids are targeted; the
// repository owns atomicity and the final serialized conflict check.
type CalendarRepository interface {
	ListOccupied(ctx context.Context, practitionerID string, windowStart, windowEnd time.Time) ([]domain.OccupiedSlot, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	GetBlock(ctx context.Context, id uuid.UUID) (domain.Block, error)
	ListSeriesAppointments(ctx context.Context, practitionerID string, seriesID uuid.UUID) ([]domain.Appointment, error)
	ListSeriesBlocks(ctx context.Context, practitionerID string, seriesID uuid.UUID) ([]domain.Block, error)

	CommitBatch(ctx context.Context, batch CommitBatch) (CommitResult, error)

	UpdateAppointments(ctx context.Context, practitionerID string, appts []domain.Appointment) error
	UpdateBlocks(ctx context.Context, practitionerID string, blocks []domain.Block) error
	DeleteAppointments(ctx context.Context, practitionerID string, ids []uuid.UUID) error
	DeleteBlocks(ctx context.Context, practitionerID string, ids []uuid.UUID) error
}
