// README: Route optimizer contract and sequencing results.
package routing

import (
	"context"
	"errors"
	"time"

	"tripmerge/internal/modules/booking"
	"tripmerge/internal/types"
)

var ErrNoWaypoints = errors.New("routing: no waypoints to sequence")

// Optimizer reorders the intermediate stops of a route. Origin and
// destination are fixed.
type Optimizer interface {
	Optimize(ctx context.Context, origin types.Point, intermediates []types.Point, destination types.Point) (*OptimizeResult, error)
}

// OptimizeResult is what an optimizer returns for one call.
// Order[i] is the index into intermediates visited i-th.
type OptimizeResult struct {
	Order        []int
	LegMeters    []int
	LegDurations []time.Duration
	Polyline     string
}

type Strategy string

const (
	StrategyOptimizer Strategy = "optimizer"
	StrategyHeuristic Strategy = "heuristic"
)

// Sequences are a booking's positions in the visiting order.
type Sequences struct {
	Pickup  int `json:"pickup_sequence"`
	Dropoff int `json:"dropoff_sequence"`
}

type Result struct {
	Waypoints        []booking.Waypoint     `json:"waypoints"`
	Sequences        map[types.ID]Sequences `json:"sequences"`
	TotalDistanceKm  float64                `json:"total_distance_km"`
	TotalDurationMin float64                `json:"total_duration_min"`
	Polyline         string                 `json:"polyline"`
	Strategy         Strategy               `json:"strategy"`
}

// Route converts the result into the payload persisted on a trip parent.
func (r *Result) Route() *booking.Route {
	return &booking.Route{
		Waypoints:        append([]booking.Waypoint(nil), r.Waypoints...),
		TotalDistanceKm:  r.TotalDistanceKm,
		TotalDurationMin: r.TotalDurationMin,
		Polyline:         r.Polyline,
		Strategy:         string(r.Strategy),
	}
}

func newResult(ordered []booking.Waypoint, strategy Strategy) *Result {
	res := &Result{
		Waypoints: make([]booking.Waypoint, len(ordered)),
		Sequences: make(map[types.ID]Sequences),
		Strategy:  strategy,
	}
	for i, wp := range ordered {
		wp.Sequence = i
		res.Waypoints[i] = wp
		s := res.Sequences[wp.BookingID]
		switch wp.Kind {
		case booking.StopPickup:
			s.Pickup = i
		case booking.StopDropoff:
			s.Dropoff = i
		}
		res.Sequences[wp.BookingID] = s
	}
	return res
}

// precedenceHolds reports whether every booking's pickup comes before its dropoff.
func precedenceHolds(ordered []booking.Waypoint) bool {
	pickedUp := make(map[types.ID]bool)
	hasPickup := make(map[types.ID]bool)
	for _, wp := range ordered {
		if wp.Kind == booking.StopPickup {
			hasPickup[wp.BookingID] = true
		}
	}
	for _, wp := range ordered {
		switch wp.Kind {
		case booking.StopPickup:
			pickedUp[wp.BookingID] = true
		case booking.StopDropoff:
			if hasPickup[wp.BookingID] && !pickedUp[wp.BookingID] {
				return false
			}
		}
	}
	return true
}
