// README: Stop kinds, waypoints and the optimized route payload stored on trip parents.
package booking

import (
	"fmt"

	"tripmerge/internal/types"
)

// StopKind is the closed set of stop types on a trip.
type StopKind uint8

const (
	StopPickup StopKind = iota + 1
	StopDropoff
)

func (k StopKind) String() string {
	switch k {
	case StopPickup:
		return "pickup"
	case StopDropoff:
		return "dropoff"
	default:
		return fmt.Sprintf("StopKind(%d)", uint8(k))
	}
}

func (k StopKind) MarshalText() ([]byte, error) {
	switch k {
	case StopPickup, StopDropoff:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("invalid stop kind %d", uint8(k))
	}
}

func (k *StopKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pickup":
		*k = StopPickup
	case "dropoff":
		*k = StopDropoff
	default:
		return fmt.Errorf("invalid stop kind %q", string(b))
	}
	return nil
}

type Waypoint struct {
	BookingID types.ID    `json:"booking_id"`
	Kind      StopKind    `json:"kind"`
	Point     types.Point `json:"point"`
	Address   string      `json:"address,omitempty"`
	Sequence  int         `json:"sequence"`
}

// Route is the sequenced trip persisted on the parent booking.
type Route struct {
	Waypoints        []Waypoint `json:"waypoints"`
	TotalDistanceKm  float64    `json:"total_distance_km"`
	TotalDurationMin float64    `json:"total_duration_min"`
	Polyline         string     `json:"polyline"`
	Strategy         string     `json:"strategy"`
}

func (r *Route) Clone() *Route {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Waypoints = append([]Waypoint(nil), r.Waypoints...)
	return &cp
}

// WaypointsFor builds the stable baseline stop list: every member's pickup in
// member order, followed by every member's dropoff in the same order.
func WaypointsFor(members []*Booking) []Waypoint {
	out := make([]Waypoint, 0, 2*len(members))
	for _, m := range members {
		out = append(out, Waypoint{BookingID: m.ID, Kind: StopPickup, Point: m.Pickup.Point, Address: m.Pickup.Address})
	}
	for _, m := range members {
		out = append(out, Waypoint{BookingID: m.ID, Kind: StopDropoff, Point: m.Dropoff.Point, Address: m.Dropoff.Address})
	}
	for i := range out {
		out[i].Sequence = i
	}
	return out
}
