// README: Typed eligibility configuration assembled from stored settings.
package settings

import (
	"fmt"
	"time"
)

type EligibilityConfig struct {
	MaxPickupDistanceKm        float64       `json:"max_pickup_distance_km"`
	MaxDropoffDistanceKm       float64       `json:"max_dropoff_distance_km"`
	SameZoneRequired           bool          `json:"same_zone_required"`
	PickupWindow               time.Duration `json:"pickup_window"`
	DropoffWindow              time.Duration `json:"dropoff_window"`
	SameTypeRequired           bool          `json:"same_type_required"`
	SamePriorityRequired       bool          `json:"same_priority_required"`
	SameVehicleTypeRequired    bool          `json:"same_vehicle_type_required"`
	RouteDeviationTolerancePct float64       `json:"route_deviation_tolerance_pct"`
	MaxPickupGap               time.Duration `json:"max_pickup_gap"`
	MaxTripDuration            time.Duration `json:"max_trip_duration"`
	AutoMergeEnabled           bool          `json:"auto_merge_enabled"`
	AutoMergeInterval          time.Duration `json:"auto_merge_interval"`
	MaxGroupSize               int           `json:"max_group_size"`
}

func DefaultEligibilityConfig() EligibilityConfig {
	var cfg EligibilityConfig
	for _, k := range Keys() {
		if err := cfg.apply(Value{Key: k, Raw: k.Default()}); err != nil {
			panic(err)
		}
	}
	return cfg
}

func (c *EligibilityConfig) apply(v Value) error {
	if err := validate(v.Key, v.Raw); err != nil {
		return err
	}
	switch v.Key {
	case KeyMaxPickupDistanceKm:
		c.MaxPickupDistanceKm = v.Float()
	case KeyMaxDropoffDistanceKm:
		c.MaxDropoffDistanceKm = v.Float()
	case KeySameZoneRequired:
		c.SameZoneRequired = v.Bool()
	case KeyPickupWindowMinutes:
		c.PickupWindow = minutes(v.Int())
	case KeyDropoffWindowMinutes:
		c.DropoffWindow = minutes(v.Int())
	case KeySameTypeRequired:
		c.SameTypeRequired = v.Bool()
	case KeySamePriorityRequired:
		c.SamePriorityRequired = v.Bool()
	case KeySameVehicleTypeRequired:
		c.SameVehicleTypeRequired = v.Bool()
	case KeyRouteDeviationTolerancePct:
		c.RouteDeviationTolerancePct = v.Float()
	case KeyMaxPickupGapMinutes:
		c.MaxPickupGap = minutes(v.Int())
	case KeyMaxTripDurationMinutes:
		c.MaxTripDuration = minutes(v.Int())
	case KeyAutoMergeEnabled:
		c.AutoMergeEnabled = v.Bool()
	case KeyAutoMergeIntervalMinutes:
		c.AutoMergeInterval = minutes(v.Int())
	case KeyMaxGroupSize:
		c.MaxGroupSize = v.Int()
	default:
		return fmt.Errorf("unhandled setting %v", v.Key)
	}
	return nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
