// README: Advisory ranking of active trips an approved booking could join. Never writes.
package recommend

import (
	"context"
	"math"
	"sort"

	"tripmerge/internal/apperr"
	"tripmerge/internal/geo"
	"tripmerge/internal/modules/booking"
	"tripmerge/internal/modules/settings"
	"tripmerge/internal/types"
)

const (
	MinScore = 50

	pickupWeight  = 0.4
	dropoffWeight = 0.4
	typeWeight    = 0.2
)

type Recommendation struct {
	TripID             string   `json:"trip_id"`
	ParentID           types.ID `json:"parent_id"`
	Score              int      `json:"score"`
	PickupScore        float64  `json:"pickup_score"`
	DropoffScore       float64  `json:"dropoff_score"`
	TypeScore          float64  `json:"type_score"`
	PickupDistanceKm   float64  `json:"pickup_distance_km"`
	DropoffDistanceKm  float64  `json:"dropoff_distance_km"`
	EstimatedSavingsKm float64  `json:"estimated_savings_km"`
	Members            int      `json:"members"`
}

type Settings interface {
	EligibilityConfig(ctx context.Context) (settings.EligibilityConfig, error)
}

type Service struct {
	store    booking.Store
	settings Settings
}

func NewService(store booking.Store, settings Settings) *Service {
	return &Service{store: store, settings: settings}
}

// Recommend scores every active trip against an approved booking and returns
// those scoring at least MinScore, best first.
func (s *Service) Recommend(ctx context.Context, id types.ID) ([]Recommendation, error) {
	const op = "recommend.Recommend"
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	if b.Status != booking.StatusApproved {
		return nil, apperr.Conflict(op, id, "only approved bookings can be recommended a trip")
	}
	cfg, err := s.settings.EligibilityConfig(ctx)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	parents, err := s.store.ListActiveParents(ctx)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}

	out := []Recommendation{}
	for _, p := range parents {
		if p.ID == b.ID || p.TripID == nil {
			continue
		}
		r, ok := Score(b, p, cfg)
		if ok && r.Score >= MinScore {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TripID < out[j].TripID
	})
	return out, nil
}

// Score rates how well b fits the trip led by parent. ok is false when the
// trip fails a hard filter.
func Score(b, parent *booking.Booking, cfg settings.EligibilityConfig) (Recommendation, bool) {
	pickupKm := geo.DistanceKm(b.Pickup.Point, parent.Pickup.Point)
	dropoffKm := geo.DistanceKm(b.Dropoff.Point, parent.Dropoff.Point)
	if pickupKm > cfg.MaxPickupDistanceKm || dropoffKm > cfg.MaxDropoffDistanceKm {
		return Recommendation{}, false
	}
	if cfg.SameTypeRequired && b.RequestType != parent.RequestType {
		return Recommendation{}, false
	}

	r := Recommendation{
		ParentID:          parent.ID,
		PickupScore:       proximity(pickupKm, cfg.MaxPickupDistanceKm),
		DropoffScore:      proximity(dropoffKm, cfg.MaxDropoffDistanceKm),
		PickupDistanceKm:  round1(pickupKm),
		DropoffDistanceKm: round1(dropoffKm),
		Members:           len(parent.MergedChildren) + 1,
	}
	if parent.TripID != nil {
		r.TripID = *parent.TripID
	}
	if b.RequestType == parent.RequestType {
		r.TypeScore = 100
	}
	r.Score = int(math.Round(pickupWeight*r.PickupScore + dropoffWeight*r.DropoffScore + typeWeight*r.TypeScore))

	direct := geo.DistanceKm(b.Pickup.Point, b.Dropoff.Point)
	r.EstimatedSavingsKm = round1(math.Max(0, direct-(pickupKm+dropoffKm)))
	return r, true
}

func proximity(d, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return math.Max(0, 100-d/max*100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
