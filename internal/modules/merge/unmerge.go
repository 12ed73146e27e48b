package merge

import (
	"context"
	"log"

	"tripmerge/internal/apperr"
	"tripmerge/internal/modules/booking"
	"tripmerge/internal/types"
)

// Unmerge detaches a child from its trip. When it was the last child the
// trip is dissolved in the same transaction.
func (s *Service) Unmerge(ctx context.Context, id types.ID) (res *UnmergeResult, err error) {
	const op = "merge.Unmerge"
	defer func() { track("unmerge", err) }()

	if id == "" {
		return nil, apperr.Validation(op, "booking id is required")
	}

	res = &UnmergeResult{}
	err = s.store.InTx(ctx, func(tx booking.Tx) error {
		child, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !child.IsMerged || child.ParentID == nil {
			return apperr.Conflict(op, id, "booking is not merged into a trip")
		}
		parentID := *child.ParentID
		parent, err := tx.GetForUpdate(ctx, parentID)
		if err != nil {
			return err
		}

		now := s.now()
		tripID := ""
		if child.TripID != nil {
			tripID = *child.TripID
		}
		child.Status = restoredStatus(child)
		child.IsMerged = false
		child.ParentID = nil
		child.TripID = nil
		child.PreMergeStatus = nil
		child.ClearRouteFields()
		child.AppendNote(now, "unmerged from trip %s (parent %s)", tripID, parentID)
		if err := tx.Update(ctx, child); err != nil {
			return err
		}

		siblings, err := tx.ListByParent(ctx, parentID)
		if err != nil {
			return err
		}
		remaining := siblings[:0]
		for _, b := range siblings {
			if b.ID != id {
				remaining = append(remaining, b)
			}
		}

		if len(remaining) == 0 {
			parent.HasMergedTrips = false
			parent.MergedChildren = nil
			parent.TripID = nil
			parent.ClearRouteFields()
			parent.AppendNote(now, "trip %s dissolved after %s was unmerged", tripID, id)
			res.TripDissolved = true
		} else {
			// The stored route no longer covers every member.
			parent.MergedChildren = idsOf(remaining)
			parent.OptimizedRoute = nil
			members := append([]*booking.Booking{parent}, remaining...)
			seqs := fallbackSequences(members)
			applySequences(parent, seqs)
			for _, b := range remaining {
				applySequences(b, seqs)
				if err := tx.Update(ctx, b); err != nil {
					return err
				}
			}
			parent.AppendNote(now, "%s unmerged from trip %s, route needs re-optimization", id, tripID)
		}
		if err := tx.Update(ctx, parent); err != nil {
			return err
		}

		res.Booking = child
		res.Parent = parent
		res.RemainingChildren = idsOf(remaining)
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	log.Printf("merge: unmerged %s (dissolved=%t)", id, res.TripDissolved)
	return res, nil
}

func restoredStatus(b *booking.Booking) booking.Status {
	switch b.Status {
	case booking.StatusMerged:
		if b.PreMergeStatus != nil && b.PreMergeStatus.Mergeable() {
			return *b.PreMergeStatus
		}
		return booking.StatusApproved
	case booking.StatusAssigned:
		return booking.StatusApproved
	default:
		return b.Status
	}
}
