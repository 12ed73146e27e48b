package maps

import (
	"context"
	"fmt"
	"strconv"

	"googlemaps.github.io/maps"

	"tripmerge/internal/modules/routing"
	"tripmerge/internal/types"
)

// directionsAPI is the slice of *maps.Client the route service needs.
type directionsAPI interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// RouteService orders trip stops with the Google Directions API.
type RouteService struct {
	client directionsAPI
}

var _ routing.Optimizer = (*RouteService)(nil)

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Optimize requests a driving route with optimize:true waypoints and returns
// the reordering chosen by the API along with per-leg distance and duration.
func (s *RouteService) Optimize(ctx context.Context, origin types.Point, intermediates []types.Point, destination types.Point) (*routing.OptimizeResult, error) {
	r := &maps.DirectionsRequest{
		Origin:      formatPoint(origin),
		Destination: formatPoint(destination),
		Mode:        maps.TravelModeDriving,
		Optimize:    len(intermediates) > 1,
	}
	for _, p := range intermediates {
		r.Waypoints = append(r.Waypoints, formatPoint(p))
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, fmt.Errorf("no route found")
	}
	route := routes[0]

	out := &routing.OptimizeResult{
		Order:    route.WaypointOrder,
		Polyline: route.OverviewPolyline.Points,
	}
	if len(out.Order) == 0 {
		// Not optimized: the API keeps request order.
		out.Order = make([]int, len(intermediates))
		for i := range out.Order {
			out.Order[i] = i
		}
	}
	for _, leg := range route.Legs {
		out.LegMeters = append(out.LegMeters, leg.Distance.Meters)
		out.LegDurations = append(out.LegDurations, leg.Duration)
	}
	return out, nil
}

func formatPoint(p types.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}
