package recommend

import (
	"context"
	"errors"
	"testing"
	"time"

	"tripmerge/internal/apperr"
	"tripmerge/internal/modules/booking"
	"tripmerge/internal/modules/settings"
	"tripmerge/internal/types"
)

type staticSettings struct{ cfg settings.EligibilityConfig }

func (s staticSettings) EligibilityConfig(context.Context) (settings.EligibilityConfig, error) {
	return s.cfg, nil
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func at(id string, lat, lng float64) *booking.Booking {
	return &booking.Booking{
		ID:          types.ID(id),
		Status:      booking.StatusApproved,
		Pickup:      booking.Location{Point: types.Point{Lat: lat, Lng: lng}},
		Dropoff:     booking.Location{Point: types.Point{Lat: lat + 0.2, Lng: lng - 0.1}},
		PickupTime:  t0,
		RequestType: "standard",
	}
}

func trip(id, tripID string, lat, lng float64) *booking.Booking {
	p := at(id, lat, lng)
	p.Status = booking.StatusConfirmed
	p.HasMergedTrips = true
	p.TripID = &tripID
	p.MergedChildren = []types.ID{types.ID(id + "-child")}
	return p
}

func TestScore_ComponentsAndComposite(t *testing.T) {
	cfg := settings.DefaultEligibilityConfig()
	b := at("B", 25.10, 55.20)
	same := trip("P", "TRIP-1", 25.10, 55.20)

	r, ok := Score(b, same, cfg)
	if !ok {
		t.Fatal("identical endpoints must pass filters")
	}
	if r.PickupScore != 100 || r.DropoffScore != 100 || r.TypeScore != 100 || r.Score != 100 {
		t.Fatalf("score = %+v", r)
	}
	if r.Members != 2 || r.TripID != "TRIP-1" {
		t.Fatalf("trip info = %+v", r)
	}
	// Direct distance is about 24 km and the detour is zero.
	if r.EstimatedSavingsKm < 20 {
		t.Fatalf("savings = %v", r.EstimatedSavingsKm)
	}

	cfg.SameTypeRequired = false
	other := trip("Q", "TRIP-2", 25.10, 55.20)
	other.RequestType = "cargo"
	r, ok = Score(b, other, cfg)
	if !ok || r.TypeScore != 0 || r.Score != 80 {
		t.Fatalf("type mismatch score = %+v ok=%v", r, ok)
	}

	cfg.SameTypeRequired = true
	if _, ok := Score(b, other, cfg); ok {
		t.Fatal("type mismatch must be filtered when same type is required")
	}
}

func TestScore_DistanceFilter(t *testing.T) {
	cfg := settings.DefaultEligibilityConfig()
	b := at("B", 25.10, 55.20)
	if _, ok := Score(b, trip("P", "T", 25.30, 55.20), cfg); ok {
		t.Fatal("22 km away must be filtered")
	}
}

func TestRecommend_RanksAndThresholds(t *testing.T) {
	b := at("B", 25.10, 55.20)
	store := booking.NewMemoryStore(
		b,
		trip("P1", "TRIP-B", 25.10, 55.20),
		trip("P2", "TRIP-A", 25.10, 55.20),
		trip("P3", "TRIP-C", 25.13, 55.20),  // ~3.3 km: lower but above threshold
		trip("P4", "TRIP-D", 25.155, 55.20), // ~6.1 km: below threshold
	)
	svc := NewService(store, staticSettings{cfg: settings.DefaultEligibilityConfig()})

	recs, err := svc.Recommend(context.Background(), "B")
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	want := []string{"TRIP-A", "TRIP-B", "TRIP-C"}
	if len(recs) != len(want) {
		t.Fatalf("got %d recommendations: %+v", len(recs), recs)
	}
	for i, id := range want {
		if recs[i].TripID != id {
			t.Fatalf("recs[%d] = %s, want %s", i, recs[i].TripID, id)
		}
		if recs[i].Score < MinScore {
			t.Fatalf("score below threshold kept: %+v", recs[i])
		}
	}
}

func TestRecommend_RequiresApproved(t *testing.T) {
	b := at("B", 25.10, 55.20)
	b.Status = booking.StatusPending
	svc := NewService(booking.NewMemoryStore(b), staticSettings{cfg: settings.DefaultEligibilityConfig()})
	if _, err := svc.Recommend(context.Background(), "B"); !errors.Is(err, apperr.ErrStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if _, err := svc.Recommend(context.Background(), "ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
