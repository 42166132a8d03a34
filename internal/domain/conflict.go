package domain

import "github.com/google/uuid"

// ConflictReport lists the existing items whose intervals overlap a
// candidate. Id lists hold distinct ids.
type ConflictReport struct {
	AppointmentIDs []uuid.UUID
	BlockIDs       []uuid.UUID
}

func (r ConflictReport) Total() int {
	return len(r.AppointmentIDs) + len(r.BlockIDs)
}

// FindOverlaps filters occupied slots down to those overlapping the
// candidate interval, skipping any id in exclude. Exclusion is how an item
// avoids conflicting with itself (or its own series) during an edit.
func FindOverlaps(occupied []OccupiedSlot, candidate TimeInterval, exclude map[uuid.UUID]struct{}) ConflictReport {
	var report ConflictReport
	for _, slot := range occupied {
		if _, skip := exclude[slot.ID]; skip {
			continue
		}
		if !candidate.Overlaps(slot.Interval()) {
			continue
		}
		switch slot.Kind {
		case KindBlock:
			report.BlockIDs = append(report.BlockIDs, slot.ID)
		default:
			report.AppointmentIDs = append(report.AppointmentIDs, slot.ID)
		}
	}
	return report
}

// MergeConflictReports folds per-instance reports into one aggregate for a
// whole expansion, deduplicating ids so the caller is asked to resolve each
// existing item exactly once per operation.
func MergeConflictReports(reports ...ConflictReport) ConflictReport {
	var out ConflictReport
	seen := make(map[uuid.UUID]struct{})
	for _, r := range reports {
		for _, id := range r.AppointmentIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out.AppointmentIDs = append(out.AppointmentIDs, id)
		}
		for _, id := range r.BlockIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out.BlockIDs = append(out.BlockIDs, id)
		}
	}
	return out
}
