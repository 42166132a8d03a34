package scheduling

import (
	"strings"
	"time"

	"agenda/backend/internal/domain"
)

// Draft is a typed creation request. Raw form payloads are decoded into a
// Draft once at the boundary; nothing downstream reads loose key-value
// input again.
type Draft struct {
	Kind           domain.Kind
	PractitionerID string
	PatientID      string
	StartTime      time.Time
	EndTime        time.Time
	Pattern        domain.RecurrencePattern
	Count          int
	ValueCents     int64
	Reason         string
}

// normalize trims identifiers, converts times to UTC, defaults the kind and
// pattern, and clamps the repeat count into range. Clamping happens here,
// silently, so everything after the gateway sees an in-range count.
func (d *Draft) normalize() {
	d.PractitionerID = strings.TrimSpace(d.PractitionerID)
	d.PatientID = strings.TrimSpace(d.PatientID)
	d.Reason = strings.TrimSpace(d.Reason)
	d.StartTime = d.StartTime.UTC()
	d.EndTime = d.EndTime.UTC()

	if d.Kind == "" {
		d.Kind = domain.KindAppointment
	}
	if d.Pattern == "" {
		d.Pattern = domain.RecurrenceNone
	}
	if d.Pattern == domain.RecurrenceNone {
		d.Count = 1
	} else {
		d.Count = domain.ClampCount(d.Count)
	}
}

func validateDraft(d Draft) FieldErrors {
	errs := FieldErrors{}

	switch d.Kind {
	case domain.KindAppointment, domain.KindBlock:
	default:
		errs["kind"] = "must be appointment or block"
	}

	if d.PractitionerID == "" {
		errs["practitioner_id"] = "is required"
	}
	if d.Kind == domain.KindAppointment && d.PatientID == "" {
		errs["patient_id"] = "is required"
	}

	if d.StartTime.IsZero() {
		errs["start_time"] = "is required"
	}
	if d.EndTime.IsZero() {
		errs["end_time"] = "is required"
	} else if !d.EndTime.After(d.StartTime) {
		errs["end_time"] = "must be after start_time"
	}

	if d.Kind == domain.KindAppointment && d.ValueCents < 0 {
		errs["value_cents"] = "must not be negative"
	}

	switch d.Pattern {
	case domain.RecurrenceNone, domain.RecurrenceWeekly, domain.RecurrenceBiweekly:
	default:
		errs["pattern"] = "must be none, weekly or biweekly"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
