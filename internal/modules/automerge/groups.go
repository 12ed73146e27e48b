package automerge

import (
	"math"

	"github.com/mmcloughlin/geohash"

	"tripmerge/internal/geo"
	"tripmerge/internal/modules/booking"
	"tripmerge/internal/modules/eligibility"
	"tripmerge/internal/modules/routing"
	"tripmerge/internal/modules/settings"
)

const kmPerDegree = 111.2

// cellPrecision picks the finest geohash precision whose cell, at latitude
// lat, is at least twice maxKm on its shorter side so that a cell plus its
// neighbours covers maxKm in every direction. Cell width shrinks with
// cos(lat). It returns 0 when no precision is coarse enough.
func cellPrecision(maxKm, lat float64) uint {
	cos := math.Cos(math.Abs(lat) * math.Pi / 180)
	for p := uint(6); p > 0; p-- {
		bits := 5 * p
		lngBits, latBits := (bits+1)/2, bits/2
		heightKm := 180 / float64(uint(1)<<latBits) * kmPerDegree
		widthKm := 360 / float64(uint(1)<<lngBits) * kmPerDegree * cos
		if math.Min(heightKm, widthKm) >= 2*maxKm {
			return p
		}
	}
	return 0
}

// pickupIndex buckets bookings by the geohash of their pickup point. A zero
// precision disables bucketing.
type pickupIndex struct {
	precision uint
	cells     map[string]map[*booking.Booking]bool
}

func newPickupIndex(bookings []*booking.Booking, maxKm float64) *pickupIndex {
	maxLat := 0.0
	for _, b := range bookings {
		maxLat = math.Max(maxLat, math.Abs(b.Pickup.Point.Lat))
	}
	idx := &pickupIndex{precision: cellPrecision(maxKm, maxLat), cells: make(map[string]map[*booking.Booking]bool)}
	if idx.precision == 0 {
		return idx
	}
	for _, b := range bookings {
		cell := idx.cell(b)
		if idx.cells[cell] == nil {
			idx.cells[cell] = make(map[*booking.Booking]bool)
		}
		idx.cells[cell][b] = true
	}
	return idx
}

func (idx *pickupIndex) cell(b *booking.Booking) string {
	return geohash.EncodeWithPrecision(b.Pickup.Point.Lat, b.Pickup.Point.Lng, idx.precision)
}

// near reports whether b's pickup lies in seed's cell or one of its neighbours.
func (idx *pickupIndex) near(seed, b *booking.Booking) bool {
	if idx.precision == 0 {
		return true
	}
	cell := idx.cell(seed)
	for _, c := range append([]string{cell}, geohash.Neighbors(cell)...) {
		if idx.cells[c][b] {
			return true
		}
	}
	return false
}

// discoverGroups greedily builds merge groups from bookings ordered by pickup
// time. Every member of a group is eligible against every other member.
func discoverGroups(bookings []*booking.Booking, cfg settings.EligibilityConfig) [][]*booking.Booking {
	if cfg.MaxGroupSize < 2 {
		return nil
	}
	idx := newPickupIndex(bookings, cfg.MaxPickupDistanceKm)
	used := make(map[*booking.Booking]bool, len(bookings))

	var groups [][]*booking.Booking
	for i, seed := range bookings {
		if used[seed] {
			continue
		}
		group := []*booking.Booking{seed}
		for _, cand := range bookings[i+1:] {
			if len(group) >= cfg.MaxGroupSize {
				break
			}
			if cand.PickupTime.Sub(seed.PickupTime) > cfg.MaxPickupGap {
				break
			}
			if used[cand] || !idx.near(seed, cand) {
				continue
			}
			trial := append(append([]*booking.Booking(nil), group...), cand)
			if !pairwiseEligible(group, cand, cfg) || !withinTripLimits(trial, cfg) {
				continue
			}
			group = trial
		}
		if len(group) < 2 {
			continue
		}
		for _, m := range group {
			used[m] = true
		}
		groups = append(groups, group)
	}
	return groups
}

func pairwiseEligible(group []*booking.Booking, cand *booking.Booking, cfg settings.EligibilityConfig) bool {
	for _, m := range group {
		if !eligibility.Evaluate(m, cand, cfg).Eligible || !eligibility.Evaluate(cand, m, cfg).Eligible {
			return false
		}
	}
	return true
}

// withinTripLimits checks seats, route deviation and trip duration for the
// straight-line heuristic route of the whole group.
func withinTripLimits(group []*booking.Booking, cfg settings.EligibilityConfig) bool {
	capacity := eligibility.DefaultManualCapacity
	if v := group[0].Vehicle; v != nil && v.Capacity > 0 {
		capacity = v.Capacity
	}
	seats, direct := 0, 0.0
	for _, b := range group {
		seats += max(b.PassengerCount, 1)
		direct += geo.DistanceKm(b.Pickup.Point, b.Dropoff.Point)
	}
	if seats > capacity {
		return false
	}

	route := routing.Heuristic(booking.WaypointsFor(group), group[0].Pickup.Point)
	if route.TotalDistanceKm > direct*(1+cfg.RouteDeviationTolerancePct/100) {
		return false
	}
	if cfg.MaxTripDuration > 0 && route.TotalDurationMin > cfg.MaxTripDuration.Minutes() {
		return false
	}
	return true
}
