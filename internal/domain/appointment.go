package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
)

// Appointment is one session on a practitioner's agenda. Session values are
// stored in cents. Appointments are never physically deleted by the
// scheduling core except through an explicit series delete.
type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID             uuid.UUID         `bun:"id,pk,type:uuid"`
	PractitionerID string            `bun:"practitioner_id,notnull"`
	PatientID      string            `bun:"patient_id,notnull"`
	StartTime      time.Time         `bun:"start_time,notnull"`
	EndTime        time.Time         `bun:"end_time,notnull"`
	SeriesID       *uuid.UUID        `bun:"series_id,type:uuid"`
	Status         AppointmentStatus `bun:"status,notnull"`
	ValueCents     int64             `bun:"value_cents,notnull"`
	CreatedAt      time.Time         `bun:"created_at,notnull"`
	UpdatedAt      time.Time         `bun:"updated_at,notnull"`
}

func (a *Appointment) Interval() TimeInterval {
	return TimeInterval{Start: a.StartTime, End: a.EndTime}
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// Block marks a practitioner as unavailable for an interval. Active
// appointments must not overlap an active block for the same practitioner
// unless the caller explicitly kept the conflict at creation time.
type Block struct {
	bun.BaseModel `bun:"table:blocks"`

	ID             uuid.UUID  `bun:"id,pk,type:uuid"`
	PractitionerID string     `bun:"practitioner_id,notnull"`
	StartTime      time.Time  `bun:"start_time,notnull"`
	EndTime        time.Time  `bun:"end_time,notnull"`
	Reason         string     `bun:"reason"`
	SeriesID       *uuid.UUID `bun:"series_id,type:uuid"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

func (b *Block) Interval() TimeInterval {
	return TimeInterval{Start: b.StartTime, End: b.EndTime}
}

func (b *Block) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}

type Kind string

const (
	KindAppointment Kind = "appointment"
	KindBlock       Kind = "block"
)

// OccupiedSlot is the collaborator's view of one busy interval on a
// practitioner's timeline, appointment or block alike.
type OccupiedSlot struct {
	ID        uuid.UUID
	Kind      Kind
	StartTime time.Time
	EndTime   time.Time
	SeriesID  *uuid.UUID
}

func (s OccupiedSlot) Interval() TimeInterval {
	return TimeInterval{Start: s.StartTime, End: s.EndTime}
}
