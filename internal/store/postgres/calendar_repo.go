package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

// CalendarRepo implements store.CalendarRepository on Postgres. Every write
// runs inside a per-practitioner advisory-lock transaction so concurrent
// operations on one agenda serialize, and CommitBatch re-checks overlaps
// under that lock as the final conflict authority.
type CalendarRepo struct {
	db *bun.DB
}

func NewCalendarRepo(db *bun.DB) *CalendarRepo {
	return &CalendarRepo{db: db}
}

func (r *CalendarRepo) InPractitionerTransaction(ctx context.Context, practitionerID string, fn func(ctx context.Context, tx bun.Tx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockPractitionerAgenda(ctx, tx, practitionerID); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

func lockPractitionerAgenda(ctx context.Context, tx bun.Tx, practitionerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", practitionerID).Exec(ctx)
	return err
}

func (r *CalendarRepo) ListOccupied(ctx context.Context, practitionerID string, windowStart, windowEnd time.Time) ([]domain.OccupiedSlot, error) {
	return listOccupied(ctx, r.db, practitionerID, windowStart, windowEnd)
}

func listOccupied(ctx context.Context, db bun.IDB, practitionerID string, windowStart, windowEnd time.Time) ([]domain.OccupiedSlot, error) {
	var appts []domain.Appointment
	err := db.NewSelect().
		Model(&appts).
		Where("practitioner_id = ?", practitionerID).
		Where("status != ?", domain.AppointmentCancelled).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	var blocks []domain.Block
	err = db.NewSelect().
		Model(&blocks).
		Where("practitioner_id = ?", practitionerID).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return mergeOccupied(appts, blocks), nil
}

// mergeOccupied flattens appointments and blocks into one busy timeline
// sorted by start time.
func mergeOccupied(appts []domain.Appointment, blocks []domain.Block) []domain.OccupiedSlot {
	out := make([]domain.OccupiedSlot, 0, len(appts)+len(blocks))
	for _, a := range appts {
		out = append(out, domain.OccupiedSlot{
			ID:        a.ID,
			Kind:      domain.KindAppointment,
			StartTime: a.StartTime,
			EndTime:   a.EndTime,
			SeriesID:  a.SeriesID,
		})
	}
	for _, b := range blocks {
		out = append(out, domain.OccupiedSlot{
			ID:        b.ID,
			Kind:      domain.KindBlock,
			StartTime: b.StartTime,
			EndTime:   b.EndTime,
			SeriesID:  b.SeriesID,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

func (r *CalendarRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.db.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return a, nil
}

func (r *CalendarRepo) GetBlock(ctx context.Context, id uuid.UUID) (domain.Block, error) {
	var b domain.Block
	err := r.db.NewSelect().
		Model(&b).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Block{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Block{}, err
	}
	return b, nil
}

func (r *CalendarRepo) ListSeriesAppointments(ctx context.Context, practitionerID string, seriesID uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("practitioner_id = ?", practitionerID).
		Where("series_id = ?", seriesID).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CalendarRepo) ListSeriesBlocks(ctx context.Context, practitionerID string, seriesID uuid.UUID) ([]domain.Block, error) {
	var rows []domain.Block
	err := r.db.NewSelect().
		Model(&rows).
		Where("practitioner_id = ?", practitionerID).
		Where("series_id = ?", seriesID).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CommitBatch applies cancellations and creations as one transaction.
// Cancellations run first so the overlap recheck sees the agenda as it will
// be after the batch; the recheck is skipped when the caller explicitly
// allowed the overlap.
func (r *CalendarRepo) CommitBatch(ctx context.Context, batch store.CommitBatch) (store.CommitResult, error) {
	var out store.CommitResult
	err := r.InPractitionerTransaction(ctx, batch.PractitionerID, func(ctx context.Context, tx bun.Tx) error {
		if len(batch.CancelAppointmentIDs) > 0 {
			res, err := tx.NewUpdate().
				Model((*domain.Appointment)(nil)).
				Set("status = ?", domain.AppointmentCancelled).
				Set("updated_at = ?", time.Now().UTC()).
				Where("practitioner_id = ?", batch.PractitionerID).
				Where("id IN (?)", bun.In(batch.CancelAppointmentIDs)).
				Exec(ctx)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected != int64(len(batch.CancelAppointmentIDs)) {
				return store.ErrNotFound
			}
			out.CancelledIDs = batch.CancelAppointmentIDs
		}

		if intervals := batchIntervals(batch); !batch.AllowOverlap && len(intervals) > 0 {
			windowStart, windowEnd := intervalSpan(intervals)
			occupied, err := listOccupied(ctx, tx, batch.PractitionerID, windowStart, windowEnd)
			if err != nil {
				return err
			}
			if err := ensureBatchFits(occupied, intervals); err != nil {
				return err
			}
		}

		for i := range batch.Appointments {
			a := batch.Appointments[i]
			if _, err := tx.NewInsert().Model(&a).Exec(ctx); err != nil {
				return err
			}
			out.CreatedIDs = append(out.CreatedIDs, a.ID)
		}
		for i := range batch.Blocks {
			b := batch.Blocks[i]
			if _, err := tx.NewInsert().Model(&b).Exec(ctx); err != nil {
				return err
			}
			out.CreatedIDs = append(out.CreatedIDs, b.ID)
		}
		return nil
	})
	if err != nil {
		return store.CommitResult{}, err
	}
	return out, nil
}

func batchIntervals(batch store.CommitBatch) []domain.TimeInterval {
	intervals := make([]domain.TimeInterval, 0, len(batch.Appointments)+len(batch.Blocks))
	for i := range batch.Appointments {
		intervals = append(intervals, batch.Appointments[i].Interval())
	}
	for i := range batch.Blocks {
		intervals = append(intervals, batch.Blocks[i].Interval())
	}
	return intervals
}

func intervalSpan(intervals []domain.TimeInterval) (time.Time, time.Time) {
	windowStart := intervals[0].Start
	windowEnd := intervals[0].End
	for _, iv := range intervals[1:] {
		if iv.Start.Before(windowStart) {
			windowStart = iv.Start
		}
		if iv.End.After(windowEnd) {
			windowEnd = iv.End
		}
	}
	return windowStart, windowEnd
}

// ensureBatchFits is the collaborator's commit-time final check: under the
// advisory lock, with the batch's cancellations already applied, none of the
// new intervals may overlap what is still active or each other. Catches
// writes that raced in after the pre-commit conflict check.
func ensureBatchFits(occupied []domain.OccupiedSlot, intervals []domain.TimeInterval) error {
	for i := 1; i < len(intervals); i++ {
		if intervals[i-1].End.After(intervals[i].Start) {
			return store.ErrConflict
		}
	}
	for _, iv := range intervals {
		if domain.FindOverlaps(occupied, iv, nil).Total() > 0 {
			return store.ErrConflict
		}
	}
	return nil
}

func (r *CalendarRepo) UpdateAppointments(ctx context.Context, practitionerID string, appts []domain.Appointment) error {
	if len(appts) == 0 {
		return nil
	}
	return r.InPractitionerTransaction(ctx, practitionerID, func(ctx context.Context, tx bun.Tx) error {
		for i := range appts {
			a := appts[i]
			res, err := tx.NewUpdate().
				Model(&a).
				Column("patient_id", "start_time", "end_time", "status", "value_cents", "updated_at").
				WherePK().
				Where("practitioner_id = ?", practitionerID).
				Exec(ctx)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return store.ErrNotFound
			}
		}
		return nil
	})
}

func (r *CalendarRepo) UpdateBlocks(ctx context.Context, practitionerID string, blocks []domain.Block) error {
	if len(blocks) == 0 {
		return nil
	}
	return r.InPractitionerTransaction(ctx, practitionerID, func(ctx context.Context, tx bun.Tx) error {
		for i := range blocks {
			b := blocks[i]
			res, err := tx.NewUpdate().
				Model(&b).
				Column("start_time", "end_time", "reason", "updated_at").
				WherePK().
				Where("practitioner_id = ?", practitionerID).
				Exec(ctx)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return store.ErrNotFound
			}
		}
		return nil
	})
}

func (r *CalendarRepo) DeleteAppointments(ctx context.Context, practitionerID string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.InPractitionerTransaction(ctx, practitionerID, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*domain.Appointment)(nil)).
			Where("practitioner_id = ?", practitionerID).
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected != int64(len(ids)) {
			return store.ErrNotFound
		}
		return nil
	})
}

func (r *CalendarRepo) DeleteBlocks(ctx context.Context, practitionerID string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.InPractitionerTransaction(ctx, practitionerID, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*domain.Block)(nil)).
			Where("practitioner_id = ?", practitionerID).
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected != int64(len(ids)) {
			return store.ErrNotFound
		}
		return nil
	})
}
