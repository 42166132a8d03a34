package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/service/scheduling"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type draftPayload struct {
	Kind           string    `json:"kind"`
	PractitionerID string    `json:"practitioner_id"`
	PatientID      string    `json:"patient_id,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Pattern        string    `json:"pattern,omitempty"`
	Count          int       `json:"count,omitempty"`
	ValueCents     int64     `json:"value_cents,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

func (p draftPayload) toDraft() scheduling.Draft {
	return scheduling.Draft{
		Kind:           domain.Kind(p.Kind),
		PractitionerID: p.PractitionerID,
		PatientID:      p.PatientID,
		StartTime:      p.StartTime,
		EndTime:        p.EndTime,
		Pattern:        domain.RecurrencePattern(p.Pattern),
		Count:          p.Count,
		ValueCents:     p.ValueCents,
		Reason:         p.Reason,
	}
}

func toDraftPayload(d scheduling.Draft) draftPayload {
	return draftPayload{
		Kind:           string(d.Kind),
		PractitionerID: d.PractitionerID,
		PatientID:      d.PatientID,
		StartTime:      d.StartTime,
		EndTime:        d.EndTime,
		Pattern:        string(d.Pattern),
		Count:          d.Count,
		ValueCents:     d.ValueCents,
		Reason:         d.Reason,
	}
}

type intervalPayload struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type conflictPayload struct {
	AppointmentIDs []string `json:"conflicting_appointment_ids"`
	BlockIDs       []string `json:"conflicting_block_ids"`
	TotalCount     int      `json:"total_count"`
}

type proposalPayload struct {
	Draft     draftPayload      `json:"draft"`
	SeriesID  *string           `json:"series_id,omitempty"`
	Instances []intervalPayload `json:"instances"`
	Conflicts conflictPayload   `json:"conflicts"`
	State     string            `json:"state"`
}

func toProposalPayload(p scheduling.Proposal) proposalPayload {
	instances := make([]intervalPayload, 0, len(p.Instances))
	for _, iv := range p.Instances {
		instances = append(instances, intervalPayload{StartTime: iv.Start, EndTime: iv.End})
	}

	var seriesID *string
	if p.SeriesID != nil {
		s := p.SeriesID.String()
		seriesID = &s
	}

	return proposalPayload{
		Draft:     toDraftPayload(p.Draft),
		SeriesID:  seriesID,
		Instances: instances,
		Conflicts: conflictPayload{
			AppointmentIDs: idStrings(p.Conflicts.AppointmentIDs),
			BlockIDs:       idStrings(p.Conflicts.BlockIDs),
			TotalCount:     p.Conflicts.Total(),
		},
		State: string(p.State()),
	}
}

func (p proposalPayload) toProposal() (scheduling.Proposal, error) {
	instances := make([]domain.TimeInterval, 0, len(p.Instances))
	for _, iv := range p.Instances {
		instances = append(instances, domain.TimeInterval{Start: iv.StartTime, End: iv.EndTime})
	}

	var seriesID *uuid.UUID
	if p.SeriesID != nil {
		id, err := uuid.Parse(*p.SeriesID)
		if err != nil {
			return scheduling.Proposal{}, fmt.Errorf("series_id must be a UUID")
		}
		seriesID = &id
	}

	appointmentIDs, err := parseIDs(p.Conflicts.AppointmentIDs, "conflicting_appointment_ids")
	if err != nil {
		return scheduling.Proposal{}, err
	}
	blockIDs, err := parseIDs(p.Conflicts.BlockIDs, "conflicting_block_ids")
	if err != nil {
		return scheduling.Proposal{}, err
	}

	return scheduling.Proposal{
		Draft:     p.Draft.toDraft(),
		SeriesID:  seriesID,
		Instances: instances,
		Conflicts: domain.ConflictReport{
			AppointmentIDs: appointmentIDs,
			BlockIDs:       blockIDs,
		},
	}, nil
}

func parseIDs(raw []string, field string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%s must contain UUIDs", field)
		}
		out = append(out, id)
	}
	return out, nil
}

type commitRequest struct {
	Proposal proposalPayload `json:"proposal"`
	Strategy string          `json:"strategy"`
}

type commitResponse struct {
	State        string   `json:"state"`
	CreatedIDs   []string `json:"created_ids"`
	CancelledIDs []string `json:"cancelled_ids"`
}

type patchPayload struct {
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	PatientID  *string    `json:"patient_id,omitempty"`
	ValueCents *int64     `json:"value_cents,omitempty"`
	Status     *string    `json:"status,omitempty"`
	Reason     *string    `json:"reason,omitempty"`
}

func (p patchPayload) toPatch() scheduling.SeriesPatch {
	patch := scheduling.SeriesPatch{
		StartTime:  p.StartTime,
		EndTime:    p.EndTime,
		PatientID:  p.PatientID,
		ValueCents: p.ValueCents,
		Reason:     p.Reason,
	}
	if p.Status != nil {
		status := domain.AppointmentStatus(*p.Status)
		patch.Status = &status
	}
	return patch
}

type editRequest struct {
	Kind     string       `json:"kind"`
	TargetID string       `json:"target_id"`
	Scope    string       `json:"scope"`
	Patch    patchPayload `json:"patch"`
}

type deleteRequest struct {
	Kind     string `json:"kind"`
	TargetID string `json:"target_id"`
	Scope    string `json:"scope"`
}

type affectedResponse struct {
	AffectedIDs []string `json:"affected_ids"`
}

type slotPayload struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	SeriesID  *string   `json:"series_id,omitempty"`
}

type agendaResponse struct {
	Slots []slotPayload `json:"slots"`
}

func toSlotPayloads(slots []domain.OccupiedSlot) []slotPayload {
	out := make([]slotPayload, 0, len(slots))
	for _, s := range slots {
		var seriesID *string
		if s.SeriesID != nil {
			v := s.SeriesID.String()
			seriesID = &v
		}
		out = append(out, slotPayload{
			ID:        s.ID.String(),
			Kind:      string(s.Kind),
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			SeriesID:  seriesID,
		})
	}
	return out
}
