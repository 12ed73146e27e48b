// README: Merge commands and results.
package merge

import (
	"fmt"
	"time"

	"tripmerge/internal/modules/booking"
	"tripmerge/internal/modules/eligibility"
	"tripmerge/internal/modules/routing"
	"tripmerge/internal/types"
)

// StrategyFallback marks sequences assigned without any route: pickups in
// member order, dropoffs in reverse.
const StrategyFallback = "fallback"

type MergeCommand struct {
	ParentID types.ID   `json:"parent_id" validate:"required"`
	ChildIDs []types.ID `json:"child_ids" validate:"required,min=1,unique,dive,required"`
}

type Summary struct {
	TripID    string                         `json:"trip_id"`
	Strategy  string                         `json:"strategy"`
	Sequences map[types.ID]routing.Sequences `json:"sequences"`
	Route     *booking.Route                 `json:"route,omitempty"`
}

type MergeResult struct {
	Parent   *booking.Booking   `json:"parent"`
	Children []*booking.Booking `json:"children"`
	Summary  Summary            `json:"summary"`
}

type UnmergeResult struct {
	Booking           *booking.Booking `json:"booking"`
	Parent            *booking.Booking `json:"parent"`
	TripDissolved     bool             `json:"trip_dissolved"`
	RemainingChildren []types.ID       `json:"remaining_children"`
}

type CandidatesResult struct {
	Base           *booking.Booking        `json:"base"`
	Eligible       []*booking.Booking      `json:"eligible"`
	Ineligible     []eligibility.Rejection `json:"ineligible"`
	FailureSummary map[string]int          `json:"failure_summary"`
}

// plan is the outcome of sequencing a member list outside the transaction.
type plan struct {
	strategy  string
	sequences map[types.ID]routing.Sequences
	route     *booking.Route
}

// fallbackSequences numbers member i as pickup i and dropoff 2N-i-1.
func fallbackSequences(members []*booking.Booking) map[types.ID]routing.Sequences {
	n := len(members)
	out := make(map[types.ID]routing.Sequences, n)
	for i, m := range members {
		out[m.ID] = routing.Sequences{Pickup: i, Dropoff: 2*n - i - 1}
	}
	return out
}

func newTripID(now time.Time) string {
	return fmt.Sprintf("TRIP-%s-%09d", now.UTC().Format("20060102"), now.Nanosecond())
}

func intPtr(v int) *int { return &v }

func idsOf(bs []*booking.Booking) []types.ID {
	out := make([]types.ID, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}

func sameIDs(a, b []types.ID) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[types.ID]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}
