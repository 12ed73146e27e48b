// README: Orders trip stops through the external optimizer, repairing or replacing
// orders that break pickup-before-dropoff.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tripmerge/internal/apperr"
	"tripmerge/internal/geo"
	"tripmerge/internal/metrics"
	"tripmerge/internal/modules/booking"
	"tripmerge/internal/types"
)

const DefaultOptimizerTimeout = 10 * time.Second

type Sequencer struct {
	optimizer Optimizer
	timeout   time.Duration
}

// NewSequencer returns a sequencer. A nil optimizer makes every Sequence call
// fail with an external service error so callers fall back.
func NewSequencer(optimizer Optimizer, timeout time.Duration) *Sequencer {
	if timeout <= 0 {
		timeout = DefaultOptimizerTimeout
	}
	return &Sequencer{optimizer: optimizer, timeout: timeout}
}

// Sequence asks the optimizer for a visiting order. The first waypoint's
// predecessor is start; the last waypoint is the fixed destination.
func (s *Sequencer) Sequence(ctx context.Context, waypoints []booking.Waypoint, start types.Point) (*Result, error) {
	const op = "routing.Sequence"
	if len(waypoints) == 0 {
		return nil, ErrNoWaypoints
	}
	if s.optimizer == nil {
		return nil, apperr.External(op, errors.New("no route optimizer configured"))
	}

	last := waypoints[len(waypoints)-1]
	intermediates := waypoints[:len(waypoints)-1]
	points := make([]types.Point, len(intermediates))
	for i, wp := range intermediates {
		points[i] = wp.Point
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	began := time.Now()
	out, err := s.optimizer.Optimize(callCtx, start, points, last.Point)
	if err == nil {
		err = validateOrder(out, len(intermediates))
	}
	metrics.TrackOptimizer(err, time.Since(began))
	if err != nil {
		return nil, apperr.External(op, err)
	}

	ordered := make([]booking.Waypoint, 0, len(waypoints))
	for _, idx := range out.Order {
		ordered = append(ordered, intermediates[idx])
	}
	ordered = append(ordered, last)

	if !precedenceHolds(ordered) {
		log.Printf("routing: optimizer order violates pickup/dropoff precedence, using heuristic")
		metrics.SequencesTotal.WithLabelValues(string(StrategyHeuristic)).Inc()
		return Heuristic(waypoints, start), nil
	}

	res := newResult(ordered, StrategyOptimizer)
	meters := 0
	for _, m := range out.LegMeters {
		meters += m
	}
	var dur time.Duration
	for _, d := range out.LegDurations {
		dur += d
	}
	res.TotalDistanceKm = float64(meters) / 1000
	res.TotalDurationMin = dur.Seconds() / 60
	res.Polyline = out.Polyline
	metrics.SequencesTotal.WithLabelValues(string(StrategyOptimizer)).Inc()
	return res, nil
}

// Heuristic orders pickups by distance from start, then visits dropoffs in the
// same booking order. Distance and duration are straight-line estimates.
func Heuristic(waypoints []booking.Waypoint, start types.Point) *Result {
	var pickups, dropoffs []booking.Waypoint
	for _, wp := range waypoints {
		switch wp.Kind {
		case booking.StopPickup:
			pickups = append(pickups, wp)
		case booking.StopDropoff:
			dropoffs = append(dropoffs, wp)
		}
	}
	geo.SortByDistance(pickups, func(wp booking.Waypoint) float64 {
		return geo.DistanceKm(start, wp.Point)
	})

	byBooking := make(map[types.ID]booking.Waypoint, len(dropoffs))
	for _, wp := range dropoffs {
		byBooking[wp.BookingID] = wp
	}
	ordered := make([]booking.Waypoint, 0, len(waypoints))
	ordered = append(ordered, pickups...)
	for _, p := range pickups {
		if d, ok := byBooking[p.BookingID]; ok {
			ordered = append(ordered, d)
			delete(byBooking, p.BookingID)
		}
	}
	// Dropoffs without a matching pickup keep their input order.
	for _, d := range dropoffs {
		if _, ok := byBooking[d.BookingID]; ok {
			ordered = append(ordered, d)
		}
	}

	res := newResult(ordered, StrategyHeuristic)
	points := make([]types.Point, len(ordered))
	for i, wp := range ordered {
		points[i] = wp.Point
	}
	res.TotalDistanceKm = geo.PathKm(start, points)
	res.TotalDurationMin = geo.EstimateMinutes(res.TotalDistanceKm)
	return res
}

func validateOrder(out *OptimizeResult, n int) error {
	if out == nil {
		return errors.New("optimizer returned no result")
	}
	if len(out.Order) != n {
		return fmt.Errorf("optimizer returned %d positions for %d stops", len(out.Order), n)
	}
	seen := make([]bool, n)
	for _, idx := range out.Order {
		if idx < 0 || idx >= n || seen[idx] {
			return fmt.Errorf("optimizer returned invalid order %v", out.Order)
		}
		seen[idx] = true
	}
	return nil
}
