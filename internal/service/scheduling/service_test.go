package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

// fakeRepo implements store.CalendarRepository with overridable functions so
// each test wires only the calls it expects. Unwired calls fail the test.
type fakeRepo struct {
	t *testing.T

	listOccupied           func(ctx context.Context, practitionerID string, windowStart, windowEnd time.Time) ([]domain.OccupiedSlot, error)
	getAppointment         func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	getBlock               func(ctx context.Context, id uuid.UUID) (domain.Block, error)
	listSeriesAppointments func(ctx context.Context, practitionerID string, seriesID uuid.UUID) ([]domain.Appointment, error)
	listSeriesBlocks       func(ctx context.Context, practitionerID string, seriesID uuid.UUID) ([]domain.Block, error)
	commitBatch            func(ctx context.Context, batch store.CommitBatch) (store.CommitResult, error)
	updateAppointments     func(ctx context.Context, practitionerID string, appts []domain.Appointment) error
	updateBlocks           func(ctx context.Context, practitionerID string, blocks []domain.Block) error
	deleteAppointments     func(ctx context.Context, practitionerID string, ids []uuid.UUID) error
	deleteBlocks           func(ctx context.Context, practitionerID string, ids []uuid.UUID) error
}

func (f *fakeRepo) ListOccupied(ctx context.Context, practitionerID string, windowStart, windowEnd time.Time) ([]domain.OccupiedSlot, error) {
	if f.listOccupied == nil {
		f.t.Fatal("unexpected ListOccupied call")
	}
	return f.listOccupied(ctx, practitionerID, windowStart, windowEnd)
}

func (f *fakeRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getAppointment == nil {
		f.t.Fatal("unexpected GetAppointment call")
	}
	return f.getAppointment(ctx, id)
}

func (f *fakeRepo) GetBlock(ctx context.Context, id uuid.UUID) (domain.Block, error) {
	if f.getBlock == nil {
		f.t.Fatal("unexpected GetBlock call")
	}
	return f.getBlock(ctx, id)
}

func (f *fakeRepo) ListSeriesAppointments(ctx context.Context, practitionerID string, seriesID uuid.UUID) ([]domain.Appointment, error) {
	if f.listSeriesAppointments == nil {
		f.t.Fatal("unexpected ListSeriesAppointments call")
	}
	return f.listSeriesAppointments(ctx, practitionerID, seriesID)
}

func (f *fakeRepo) ListSeriesBlocks(ctx context.Context, practitionerID string, seriesID uuid.UUID) ([]domain.Block, error) {
	if f.listSeriesBlocks == nil {
		f.t.Fatal("unexpected ListSeriesBlocks call")
	}
	return f.listSeriesBlocks(ctx, practitionerID, seriesID)
}

func (f *fakeRepo) CommitBatch(ctx context.Context, batch store.CommitBatch) (store.CommitResult, error) {
	if f.commitBatch == nil {
		f.t.Fatal("unexpected CommitBatch call")
	}
	return f.commitBatch(ctx, batch)
}

func (f *fakeRepo) UpdateAppointments(ctx context.Context, practitionerID string, appts []domain.Appointment) error {
	if f.updateAppointments == nil {
		f.t.Fatal("unexpected UpdateAppointments call")
	}
	return f.updateAppointments(ctx, practitionerID, appts)
}

func (f *fakeRepo) UpdateBlocks(ctx context.Context, practitionerID string, blocks []domain.Block) error {
	if f.updateBlocks == nil {
		f.t.Fatal("unexpected UpdateBlocks call")
	}
	return f.updateBlocks(ctx, practitionerID, blocks)
}

func (f *fakeRepo) DeleteAppointments(ctx context.Context, practitionerID string, ids []uuid.UUID) error {
	if f.deleteAppointments == nil {
		f.t.Fatal("unexpected DeleteAppointments call")
	}
	return f.deleteAppointments(ctx, practitionerID, ids)
}

func (f *fakeRepo) DeleteBlocks(ctx context.Context, practitionerID string, ids []uuid.UUID) error {
	if f.deleteBlocks == nil {
		f.t.Fatal("unexpected DeleteBlocks call")
	}
	return f.deleteBlocks(ctx, practitionerID, ids)
}

func emptyAgenda(ctx context.Context, practitionerID string, windowStart, windowEnd time.Time) ([]domain.OccupiedSlot, error) {
	return nil, nil
}

func validDraft() Draft {
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	return Draft{
		Kind:           domain.KindAppointment,
		PractitionerID: "prac-1",
		PatientID:      "pat-1",
		StartTime:      start,
		EndTime:        start.Add(50 * time.Minute),
		Pattern:        domain.RecurrenceWeekly,
		Count:          5,
		ValueCents:     15000,
	}
}

func TestExpandAndCheck_WeeklyCleanProposal(t *testing.T) {
	repo := &fakeRepo{t: t, listOccupied: emptyAgenda}
	svc := NewService(repo)

	p, err := svc.ExpandAndCheck(context.Background(), validDraft())
	if err != nil {
		t.Fatalf("ExpandAndCheck: %v", err)
	}

	if len(p.Instances) != 5 {
		t.Fatalf("got %d instances, want 5", len(p.Instances))
	}
	if p.SeriesID == nil {
		t.Fatal("expected a series id")
	}
	if p.State() != StateClean {
		t.Fatalf("state = %s, want %s", p.State(), StateClean)
	}
	for i := 1; i < len(p.Instances); i++ {
		if got := p.Instances[i].Start.Sub(p.Instances[i-1].Start); got != 7*24*time.Hour {
			t.Fatalf("instances %d and %d are %v apart, want 168h", i-1, i, got)
		}
	}
}

func TestExpandAndCheck_ValidationErrors(t *testing.T) {
	svc := NewService(&fakeRepo{t: t})

	draft := validDraft()
	draft.PractitionerID = "  "
	draft.PatientID = ""
	draft.EndTime = draft.StartTime

	_, err := svc.ExpandAndCheck(context.Background(), draft)
	var fieldErrs FieldErrors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("err = %v, want FieldErrors", err)
	}
	for _, field := range []string{"practitioner_id", "patient_id", "end_time"} {
		if _, ok := fieldErrs[field]; !ok {
			t.Fatalf("missing field error for %q in %v", field, fieldErrs)
		}
	}
}

func TestExpandAndCheck_BlockNeedsNoPatient(t *testing.T) {
	repo := &fakeRepo{t: t, listOccupied: emptyAgenda}
	svc := NewService(repo)

	draft := validDraft()
	draft.Kind = domain.KindBlock
	draft.PatientID = ""
	draft.Reason = "vacation"

	p, err := svc.ExpandAndCheck(context.Background(), draft)
	if err != nil {
		t.Fatalf("ExpandAndCheck: %v", err)
	}
	if p.State() != StateClean {
		t.Fatalf("state = %s, want %s", p.State(), StateClean)
	}
}

func TestExpandAndCheck_ReportsConflictOnce(t *testing.T) {
	draft := validDraft()
	// Sits on top of the third weekly instance.
	busy := domain.OccupiedSlot{
		ID:        uuid.New(),
		Kind:      domain.KindAppointment,
		StartTime: draft.StartTime.AddDate(0, 0, 14),
		EndTime:   draft.StartTime.AddDate(0, 0, 14).Add(30 * time.Minute),
	}

	calls := 0
	repo := &fakeRepo{t: t, listOccupied: func(ctx context.Context, practitionerID string, windowStart, windowEnd time.Time) ([]domain.OccupiedSlot, error) {
		calls++
		return []domain.OccupiedSlot{busy}, nil
	}}
	svc := NewService(repo)

	p, err := svc.ExpandAndCheck(context.Background(), draft)
	if err != nil {
		t.Fatalf("ExpandAndCheck: %v", err)
	}

	if calls != 1 {
		t.Fatalf("ListOccupied called %d times, want 1", calls)
	}
	if p.State() != StateConflicted {
		t.Fatalf("state = %s, want %s", p.State(), StateConflicted)
	}
	if p.Conflicts.Total() != 1 {
		t.Fatalf("conflict total = %d, want 1", p.Conflicts.Total())
	}
	if len(p.Conflicts.AppointmentIDs) != 1 || p.Conflicts.AppointmentIDs[0] != busy.ID {
		t.Fatalf("conflicting appointment ids = %v, want [%s]", p.Conflicts.AppointmentIDs, busy.ID)
	}
}

func TestExpandAndCheck_UnsupportedPattern(t *testing.T) {
	svc := NewService(&fakeRepo{t: t})

	draft := validDraft()
	draft.Pattern = domain.RecurrencePattern("monthly")

	_, err := svc.ExpandAndCheck(context.Background(), draft)
	var fieldErrs FieldErrors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("err = %v, want FieldErrors", err)
	}
	if _, ok := fieldErrs["pattern"]; !ok {
		t.Fatalf("missing field error for pattern in %v", fieldErrs)
	}
}

func cleanProposal(t *testing.T, repo *fakeRepo) Proposal {
	t.Helper()
	repo.listOccupied = emptyAgenda
	p, err := NewService(repo).ExpandAndCheck(context.Background(), validDraft())
	if err != nil {
		t.Fatalf("ExpandAndCheck: %v", err)
	}
	return p
}

func TestResolveAndCommit_Clean(t *testing.T) {
	repo := &fakeRepo{t: t}
	p := cleanProposal(t, repo)

	var got store.CommitBatch
	repo.commitBatch = func(ctx context.Context, batch store.CommitBatch) (store.CommitResult, error) {
		got = batch
		ids := make([]uuid.UUID, len(batch.Appointments))
		for i := range ids {
			ids[i] = uuid.New()
		}
		return store.CommitResult{CreatedIDs: ids}, nil
	}

	out, err := NewService(repo).ResolveAndCommit(context.Background(), p, StrategyUnspecified)
	if err != nil {
		t.Fatalf("ResolveAndCommit: %v", err)
	}

	if out.State != StateClean {
		t.Fatalf("state = %s, want %s", out.State, StateClean)
	}
	if len(out.CreatedIDs) != 5 {
		t.Fatalf("created %d, want 5", len(out.CreatedIDs))
	}
	if got.PractitionerID != "prac-1" {
		t.Fatalf("batch practitioner = %q", got.PractitionerID)
	}
	if len(got.Appointments) != 5 || len(got.Blocks) != 0 {
		t.Fatalf("batch has %d appointments and %d blocks, want 5 and 0", len(got.Appointments), len(got.Blocks))
	}
	if got.AllowOverlap {
		t.Fatal("clean commit must not allow overlap")
	}
	for i, a := range got.Appointments {
		if a.Status != domain.AppointmentScheduled {
			t.Fatalf("appointment %d status = %s", i, a.Status)
		}
		if a.SeriesID == nil || *a.SeriesID != *p.SeriesID {
			t.Fatalf("appointment %d does not carry the series id", i)
		}
		if a.ValueCents != 15000 {
			t.Fatalf("appointment %d value = %d", i, a.ValueCents)
		}
	}
}

func TestResolveAndCommit_PendingWithoutStrategy(t *testing.T) {
	p := Proposal{
		Draft:     validDraft(),
		Instances: []domain.TimeInterval{{Start: time.Now(), End: time.Now().Add(time.Hour)}},
		Conflicts: domain.ConflictReport{AppointmentIDs: []uuid.UUID{uuid.New()}},
	}

	_, err := NewService(&fakeRepo{t: t}).ResolveAndCommit(context.Background(), p, StrategyUnspecified)
	if !errors.Is(err, ErrConflictPending) {
		t.Fatalf("err = %v, want ErrConflictPending", err)
	}
}

func TestResolveAndCommit_Abort(t *testing.T) {
	p := Proposal{
		Draft:     validDraft(),
		Instances: []domain.TimeInterval{{Start: time.Now(), End: time.Now().Add(time.Hour)}},
		Conflicts: domain.ConflictReport{BlockIDs: []uuid.UUID{uuid.New()}},
	}

	out, err := NewService(&fakeRepo{t: t}).ResolveAndCommit(context.Background(), p, StrategyAbort)
	if err != nil {
		t.Fatalf("ResolveAndCommit: %v", err)
	}
	if out.State != StateAborted {
		t.Fatalf("state = %s, want %s", out.State, StateAborted)
	}
	if len(out.CreatedIDs) != 0 || len(out.CancelledIDs) != 0 {
		t.Fatal("an aborted operation must write nothing")
	}
}

func TestResolveAndCommit_KeepExisting(t *testing.T) {
	p := Proposal{
		Draft:     validDraft(),
		Instances: []domain.TimeInterval{{Start: time.Now(), End: time.Now().Add(time.Hour)}},
		Conflicts: domain.ConflictReport{AppointmentIDs: []uuid.UUID{uuid.New()}},
	}

	repo := &fakeRepo{t: t}
	var got store.CommitBatch
	repo.commitBatch = func(ctx context.Context, batch store.CommitBatch) (store.CommitResult, error) {
		got = batch
		return store.CommitResult{CreatedIDs: []uuid.UUID{uuid.New()}}, nil
	}

	out, err := NewService(repo).ResolveAndCommit(context.Background(), p, StrategyKeepExisting)
	if err != nil {
		t.Fatalf("ResolveAndCommit: %v", err)
	}

	if out.State != StateResolved {
		t.Fatalf("state = %s, want %s", out.State, StateResolved)
	}
	if !got.AllowOverlap {
		t.Fatal("keep_existing must allow the overlap at commit time")
	}
	if len(got.CancelAppointmentIDs) != 0 {
		t.Fatalf("keep_existing must cancel nothing, got %v", got.CancelAppointmentIDs)
	}
}

func TestResolveAndCommit_CancelExisting(t *testing.T) {
	conflicting := uuid.New()
	draft := validDraft()
	repo := &fakeRepo{t: t}
	busy := domain.OccupiedSlot{
		ID:        conflicting,
		Kind:      domain.KindAppointment,
		StartTime: draft.StartTime.AddDate(0, 0, 7),
		EndTime:   draft.StartTime.AddDate(0, 0, 7).Add(50 * time.Minute),
	}
	repo.listOccupied = func(ctx context.Context, practitionerID string, windowStart, windowEnd time.Time) ([]domain.OccupiedSlot, error) {
		return []domain.OccupiedSlot{busy}, nil
	}
	svc := NewService(repo)

	p, err := svc.ExpandAndCheck(context.Background(), draft)
	if err != nil {
		t.Fatalf("ExpandAndCheck: %v", err)
	}
	if p.Conflicts.Total() != 1 {
		t.Fatalf("conflict total = %d, want 1", p.Conflicts.Total())
	}

	var got store.CommitBatch
	repo.commitBatch = func(ctx context.Context, batch store.CommitBatch) (store.CommitResult, error) {
		got = batch
		ids := make([]uuid.UUID, len(batch.Appointments))
		for i := range ids {
			ids[i] = uuid.New()
		}
		return store.CommitResult{CreatedIDs: ids, CancelledIDs: batch.CancelAppointmentIDs}, nil
	}

	out, err := svc.ResolveAndCommit(context.Background(), p, StrategyCancelExisting)
	if err != nil {
		t.Fatalf("ResolveAndCommit: %v", err)
	}

	if out.State != StateResolved {
		t.Fatalf("state = %s, want %s", out.State, StateResolved)
	}
	if len(out.CreatedIDs) != 5 {
		t.Fatalf("created %d, want 5", len(out.CreatedIDs))
	}
	if len(out.CancelledIDs) != 1 || out.CancelledIDs[0] != conflicting {
		t.Fatalf("cancelled = %v, want [%s]", out.CancelledIDs, conflicting)
	}
	if got.AllowOverlap {
		t.Fatal("no blocks conflicted, so the commit recheck must stay on")
	}
}

func TestResolveAndCommit_UnknownStrategy(t *testing.T) {
	p := Proposal{
		Draft:     validDraft(),
		Instances: []domain.TimeInterval{{Start: time.Now(), End: time.Now().Add(time.Hour)}},
		Conflicts: domain.ConflictReport{AppointmentIDs: []uuid.UUID{uuid.New()}},
	}

	_, err := NewService(&fakeRepo{t: t}).ResolveAndCommit(context.Background(), p, ResolutionStrategy("shuffle"))
	var fieldErrs FieldErrors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("err = %v, want FieldErrors", err)
	}
	if _, ok := fieldErrs["strategy"]; !ok {
		t.Fatalf("missing field error for strategy in %v", fieldErrs)
	}
}

func TestResolveAndCommit_NoInstances(t *testing.T) {
	_, err := NewService(&fakeRepo{t: t}).ResolveAndCommit(context.Background(), Proposal{Draft: validDraft()}, StrategyAbort)
	var fieldErrs FieldErrors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("err = %v, want FieldErrors", err)
	}
}

func TestResolveAndCommit_BlockDraft(t *testing.T) {
	draft := validDraft()
	draft.Kind = domain.KindBlock
	draft.PatientID = ""
	draft.Reason = "conference"

	repo := &fakeRepo{t: t, listOccupied: emptyAgenda}
	svc := NewService(repo)

	p, err := svc.ExpandAndCheck(context.Background(), draft)
	if err != nil {
		t.Fatalf("ExpandAndCheck: %v", err)
	}

	var got store.CommitBatch
	repo.commitBatch = func(ctx context.Context, batch store.CommitBatch) (store.CommitResult, error) {
		got = batch
		ids := make([]uuid.UUID, len(batch.Blocks))
		for i := range ids {
			ids[i] = uuid.New()
		}
		return store.CommitResult{CreatedIDs: ids}, nil
	}

	if _, err := svc.ResolveAndCommit(context.Background(), p, StrategyUnspecified); err != nil {
		t.Fatalf("ResolveAndCommit: %v", err)
	}

	if len(got.Blocks) != 5 || len(got.Appointments) != 0 {
		t.Fatalf("batch has %d blocks and %d appointments, want 5 and 0", len(got.Blocks), len(got.Appointments))
	}
	for i, b := range got.Blocks {
		if b.Reason != "conference" {
			t.Fatalf("block %d reason = %q", i, b.Reason)
		}
	}
}

func TestListAgenda(t *testing.T) {
	slot := domain.OccupiedSlot{ID: uuid.New(), Kind: domain.KindAppointment}
	repo := &fakeRepo{t: t, listOccupied: func(ctx context.Context, practitionerID string, windowStart, windowEnd time.Time) ([]domain.OccupiedSlot, error) {
		if practitionerID != "prac-1" {
			t.Fatalf("practitioner = %q", practitionerID)
		}
		return []domain.OccupiedSlot{slot}, nil
	}}
	svc := NewService(repo)

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	slots, err := svc.ListAgenda(context.Background(), "prac-1", start, start.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("ListAgenda: %v", err)
	}
	if len(slots) != 1 || slots[0].ID != slot.ID {
		t.Fatalf("slots = %v", slots)
	}

	if _, err := svc.ListAgenda(context.Background(), "", start, start.AddDate(0, 0, 7)); err == nil {
		t.Fatal("expected an error for a missing practitioner id")
	}
	if _, err := svc.ListAgenda(context.Background(), "prac-1", start, start); err == nil {
		t.Fatal("expected an error for an empty window")
	}
}

func TestIsRecoverable(t *testing.T) {
	recoverable := []error{
		ErrConflictPending,
		ErrNotRecurring,
		domain.ErrInvalidInterval,
		domain.ErrUnsupportedPattern,
		FieldErrors{"kind": "must be appointment or block"},
	}
	for _, err := range recoverable {
		if !IsRecoverable(err) {
			t.Fatalf("IsRecoverable(%v) = false, want true", err)
		}
	}
	if IsRecoverable(errors.New("connection reset")) {
		t.Fatal("infrastructure errors are not recoverable")
	}
}
