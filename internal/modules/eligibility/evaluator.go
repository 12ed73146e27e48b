// README: Ordered, short-circuiting compatibility checks between a base booking and a candidate.
package eligibility

import (
	"fmt"
	"time"

	"tripmerge/internal/geo"
	"tripmerge/internal/modules/booking"
	"tripmerge/internal/modules/settings"
)

// Evaluate runs the strict checkpoint chain. All state is local to the call.
func Evaluate(base, candidate *booking.Booking, cfg settings.EligibilityConfig) Result {
	if candidate.ID == base.ID {
		return Result{}
	}
	if r, ok := checkMerged(candidate); !ok {
		return r
	}
	if r, ok := checkPickup(base, candidate, cfg); !ok {
		return r
	}
	if r, ok := checkDropoff(base, candidate, cfg); !ok {
		return r
	}
	if r, ok := checkType(base, candidate, cfg); !ok {
		return r
	}
	if cfg.SamePriorityRequired && base.Priority != candidate.Priority {
		return fail(CheckpointPriority, "priority %q differs from %q", candidate.Priority, base.Priority)
	}
	if r, ok := checkTime(base, candidate, cfg); !ok {
		return r
	}
	if r, ok := checkVehicle(base, candidate, cfg); !ok {
		return r
	}
	return Result{Eligible: true}
}

// EvaluateManual is the relaxed chain for operator-driven merges: priority and
// time are not checked, capacity always is.
func EvaluateManual(base, candidate *booking.Booking, cfg settings.EligibilityConfig) Result {
	if candidate.ID == base.ID {
		return Result{}
	}
	if r, ok := checkMerged(candidate); !ok {
		return r
	}
	if r, ok := checkPickup(base, candidate, cfg); !ok {
		return r
	}
	if r, ok := checkDropoff(base, candidate, cfg); !ok {
		return r
	}
	if r, ok := checkType(base, candidate, cfg); !ok {
		return r
	}

	capacity := DefaultManualCapacity
	if v := knownVehicle(base, candidate); v != nil && v.Capacity > 0 {
		capacity = v.Capacity
	}
	if seats := seats(base) + seats(candidate); seats > capacity {
		return fail(CheckpointCapacity, "%d passengers exceed capacity %d", seats, capacity)
	}
	return Result{Eligible: true}
}

// BatchEvaluate evaluates every candidate in order. The base booking itself is skipped.
func BatchEvaluate(base *booking.Booking, candidates []*booking.Booking, cfg settings.EligibilityConfig) BatchResult {
	res := BatchResult{
		Eligible:   []*booking.Booking{},
		Ineligible: []Rejection{},
	}
	for _, c := range candidates {
		if c.ID == base.ID {
			continue
		}
		r := Evaluate(base, c, cfg)
		if r.Eligible {
			res.Eligible = append(res.Eligible, c)
			continue
		}
		res.Ineligible = append(res.Ineligible, Rejection{ID: c.ID, Checkpoint: r.FailedAt, Reason: r.Reason})
	}
	return res
}

func checkMerged(candidate *booking.Booking) (Result, bool) {
	if candidate.IsMerged {
		return fail(CheckpointAlreadyMerged, "booking is already merged into a trip"), false
	}
	return Result{}, true
}

func checkPickup(base, candidate *booking.Booking, cfg settings.EligibilityConfig) (Result, bool) {
	d := geo.DistanceKm(base.Pickup.Point, candidate.Pickup.Point)
	if d > cfg.MaxPickupDistanceKm {
		return fail(CheckpointPickup, "pickup points are %.2f km apart (max %.2f km)", d, cfg.MaxPickupDistanceKm), false
	}
	if cfg.SameZoneRequired && base.Pickup.Zone != candidate.Pickup.Zone {
		return fail(CheckpointPickup, "pickup zone %q differs from %q", candidate.Pickup.Zone, base.Pickup.Zone), false
	}
	return Result{}, true
}

// checkDropoff compares endpoints only; trajectories are not compared.
func checkDropoff(base, candidate *booking.Booking, cfg settings.EligibilityConfig) (Result, bool) {
	d := geo.DistanceKm(base.Dropoff.Point, candidate.Dropoff.Point)
	if d > cfg.MaxDropoffDistanceKm {
		return fail(CheckpointDropoff, "dropoff points are %.2f km apart (max %.2f km)", d, cfg.MaxDropoffDistanceKm), false
	}
	if cfg.SameZoneRequired && base.Dropoff.Zone != candidate.Dropoff.Zone {
		return fail(CheckpointDropoff, "dropoff zone %q differs from %q", candidate.Dropoff.Zone, base.Dropoff.Zone), false
	}
	return Result{}, true
}

func checkType(base, candidate *booking.Booking, cfg settings.EligibilityConfig) (Result, bool) {
	if cfg.SameTypeRequired && base.RequestType != candidate.RequestType {
		return fail(CheckpointType, "request type %q differs from %q", candidate.RequestType, base.RequestType), false
	}
	return Result{}, true
}

func checkTime(base, candidate *booking.Booking, cfg settings.EligibilityConfig) (Result, bool) {
	if gap := absDuration(base.PickupTime.Sub(candidate.PickupTime)); gap > cfg.PickupWindow {
		return fail(CheckpointTime, "pickup times are %s apart (window %s)", gap, cfg.PickupWindow), false
	}
	gap := absDuration(base.DropoffTimeOrDefault().Sub(candidate.DropoffTimeOrDefault()))
	if gap > cfg.DropoffWindow {
		return fail(CheckpointTime, "dropoff times are %s apart (window %s)", gap, cfg.DropoffWindow), false
	}
	return Result{}, true
}

func checkVehicle(base, candidate *booking.Booking, cfg settings.EligibilityConfig) (Result, bool) {
	v := knownVehicle(base, candidate)
	if v == nil {
		return Result{}, true
	}
	if cfg.SameVehicleTypeRequired && v.Type != "" {
		for _, b := range []*booking.Booking{base, candidate} {
			if b.VehicleType != "" && b.VehicleType != v.Type {
				return fail(CheckpointVehicle, "booking %s requires %q but vehicle is %q", b.ID, b.VehicleType, v.Type), false
			}
		}
	}
	if v.Capacity > 0 {
		if n := seats(base) + seats(candidate); n > v.Capacity {
			return fail(CheckpointVehicle, "%d passengers exceed vehicle capacity %d", n, v.Capacity), false
		}
	}
	return Result{}, true
}

func knownVehicle(base, candidate *booking.Booking) *booking.Vehicle {
	if base.Vehicle != nil {
		return base.Vehicle
	}
	return candidate.Vehicle
}

func seats(b *booking.Booking) int {
	if b.PassengerCount < 1 {
		return 1
	}
	return b.PassengerCount
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func fail(cp Checkpoint, format string, args ...any) Result {
	return Result{FailedAt: cp, Reason: fmt.Sprintf(format, args...)}
}
