// README: Shared identifier and coordinate value objects used across modules.
package types

type ID string

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the point was never set. (0,0) is treated as missing
// coordinates; no booking is expected in the Gulf of Guinea.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}
