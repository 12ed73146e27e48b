// README: Closed set of tunable merge settings and their value kinds.
package settings

import (
	"fmt"
	"strconv"
)

type Key int

const (
	KeyMaxPickupDistanceKm Key = iota
	KeyMaxDropoffDistanceKm
	KeySameZoneRequired
	KeyPickupWindowMinutes
	KeyDropoffWindowMinutes
	KeySameTypeRequired
	KeySamePriorityRequired
	KeySameVehicleTypeRequired
	KeyRouteDeviationTolerancePct
	KeyMaxPickupGapMinutes
	KeyMaxTripDurationMinutes
	KeyAutoMergeEnabled
	KeyAutoMergeIntervalMinutes
	KeyMaxGroupSize

	keyCount
)

// Keys lists every setting in declaration order.
func Keys() []Key {
	out := make([]Key, 0, keyCount)
	for k := Key(0); k < keyCount; k++ {
		out = append(out, k)
	}
	return out
}

func (k Key) String() string {
	switch k {
	case KeyMaxPickupDistanceKm:
		return "max_pickup_distance_km"
	case KeyMaxDropoffDistanceKm:
		return "max_dropoff_distance_km"
	case KeySameZoneRequired:
		return "same_zone_required"
	case KeyPickupWindowMinutes:
		return "pickup_window_minutes"
	case KeyDropoffWindowMinutes:
		return "dropoff_window_minutes"
	case KeySameTypeRequired:
		return "same_type_required"
	case KeySamePriorityRequired:
		return "same_priority_required"
	case KeySameVehicleTypeRequired:
		return "same_vehicle_type_required"
	case KeyRouteDeviationTolerancePct:
		return "route_deviation_tolerance_pct"
	case KeyMaxPickupGapMinutes:
		return "max_pickup_gap_minutes"
	case KeyMaxTripDurationMinutes:
		return "max_trip_duration_minutes"
	case KeyAutoMergeEnabled:
		return "auto_merge_enabled"
	case KeyAutoMergeIntervalMinutes:
		return "auto_merge_interval_minutes"
	case KeyMaxGroupSize:
		return "max_group_size"
	default:
		return fmt.Sprintf("Key(%d)", int(k))
	}
}

func ParseKey(s string) (Key, error) {
	for _, k := range Keys() {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown setting %q", s)
}

type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

func (k Key) Kind() Kind {
	switch k {
	case KeyMaxPickupDistanceKm, KeyMaxDropoffDistanceKm, KeyRouteDeviationTolerancePct:
		return KindFloat
	case KeyPickupWindowMinutes, KeyDropoffWindowMinutes, KeyMaxPickupGapMinutes,
		KeyMaxTripDurationMinutes, KeyAutoMergeIntervalMinutes, KeyMaxGroupSize:
		return KindInt
	case KeySameZoneRequired, KeySameTypeRequired, KeySamePriorityRequired,
		KeySameVehicleTypeRequired, KeyAutoMergeEnabled:
		return KindBool
	default:
		panic(fmt.Sprintf("settings: no kind for %v", k))
	}
}

func (k Key) Default() string {
	switch k {
	case KeyMaxPickupDistanceKm:
		return "7"
	case KeyMaxDropoffDistanceKm:
		return "7"
	case KeySameZoneRequired:
		return "false"
	case KeyPickupWindowMinutes:
		return "30"
	case KeyDropoffWindowMinutes:
		return "45"
	case KeySameTypeRequired:
		return "true"
	case KeySamePriorityRequired:
		return "false"
	case KeySameVehicleTypeRequired:
		return "true"
	case KeyRouteDeviationTolerancePct:
		return "25"
	case KeyMaxPickupGapMinutes:
		return "30"
	case KeyMaxTripDurationMinutes:
		return "120"
	case KeyAutoMergeEnabled:
		return "false"
	case KeyAutoMergeIntervalMinutes:
		return "5"
	case KeyMaxGroupSize:
		return "4"
	default:
		panic(fmt.Sprintf("settings: no default for %v", k))
	}
}

// Value is a raw stored setting interpreted through its key's kind.
type Value struct {
	Key Key    `json:"-"`
	Raw string `json:"value"`
}

func (v Value) Float() float64 {
	f, _ := strconv.ParseFloat(v.Raw, 64)
	return f
}

func (v Value) Int() int {
	n, _ := strconv.Atoi(v.Raw)
	return n
}

func (v Value) Bool() bool {
	b, _ := strconv.ParseBool(v.Raw)
	return b
}

// validate checks raw against the key's kind and range.
func validate(k Key, raw string) error {
	switch k.Kind() {
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number", k)
		}
		if f < 0 {
			return fmt.Errorf("%s must not be negative", k)
		}
	case KindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s must be an integer", k)
		}
		if n < 0 {
			return fmt.Errorf("%s must not be negative", k)
		}
		if (k == KeyAutoMergeIntervalMinutes || k == KeyMaxGroupSize) && n < 1 {
			return fmt.Errorf("%s must be at least 1", k)
		}
	case KindBool:
		if _, err := strconv.ParseBool(raw); err != nil {
			return fmt.Errorf("%s must be true or false", k)
		}
	}
	return nil
}
