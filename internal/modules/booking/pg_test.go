package booking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tripmerge/internal/apperr"
	"tripmerge/internal/infra"
	"tripmerge/internal/types"
	"tripmerge/migrations"
)

// newPGStore connects to TRIPMERGE_TEST_DSN, applies migrations and returns
// a store plus a unique id prefix for this run.
func newPGStore(t *testing.T) (*PGStore, string) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("TRIPMERGE_TEST_DSN"))
	if dsn == "" {
		t.Skip("TRIPMERGE_TEST_DSN not set")
	}
	if err := infra.Migrate(migrations.FS, dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	prefix := fmt.Sprintf("t%d-", time.Now().UnixNano())
	t.Cleanup(func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		_, _ = pool.Exec(cctx, `UPDATE bookings SET parent_id = NULL WHERE id LIKE $1`, prefix+"%")
		_, _ = pool.Exec(cctx, `DELETE FROM bookings WHERE id LIKE $1`, prefix+"%")
		pool.Close()
	})
	return NewPGStore(pool), prefix
}

func TestPGStore_RoundTripAndTx(t *testing.T) {
	store, prefix := newPGStore(t)
	ctx := context.Background()
	pickup := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)

	parent := newBooking(prefix+"P", pickup)
	pos := types.Point{Lat: 25.0, Lng: 55.0}
	parent.Vehicle = &Vehicle{ID: "V1", Type: "van", Capacity: 6, LastPosition: &pos}
	child := newBooking(prefix+"C", pickup)
	for _, b := range []*Booking{parent, child} {
		if err := store.Create(ctx, b); err != nil {
			t.Fatalf("Create(%s): %v", b.ID, err)
		}
	}

	got, err := store.Get(ctx, parent.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Vehicle == nil || got.Vehicle.LastPosition == nil || got.Vehicle.Capacity != 6 {
		t.Fatalf("vehicle not round-tripped: %+v", got.Vehicle)
	}
	if !got.PickupTime.Equal(pickup) {
		t.Fatalf("pickup time = %v, want %v", got.PickupTime, pickup)
	}

	// A failing transaction leaves no trace.
	boom := errors.New("boom")
	err = store.InTx(ctx, func(tx Tx) error {
		p, err := tx.GetForUpdate(ctx, parent.ID)
		if err != nil {
			return err
		}
		p.HasMergedTrips = true
		if err := tx.Update(ctx, p); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if p, _ := store.Get(ctx, parent.ID); p.HasMergedTrips {
		t.Fatal("rolled back update is visible")
	}

	tripID := "TRIP-TEST"
	err = store.InTx(ctx, func(tx Tx) error {
		p, err := tx.GetForUpdate(ctx, parent.ID)
		if err != nil {
			return err
		}
		c, err := tx.GetForUpdate(ctx, child.ID)
		if err != nil {
			return err
		}
		p.HasMergedTrips = true
		p.TripID = &tripID
		p.MergedChildren = []types.ID{c.ID}
		p.OptimizedRoute = &Route{Waypoints: WaypointsFor([]*Booking{p, c}), Strategy: "heuristic"}
		c.IsMerged = true
		c.ParentID = &p.ID
		c.TripID = &tripID
		c.Status = StatusMerged
		prior := StatusApproved
		c.PreMergeStatus = &prior
		zero, three := 0, 3
		p.PickupSequence, p.DropoffSequence = &zero, &three
		if err := tx.Update(ctx, p); err != nil {
			return err
		}
		return tx.Update(ctx, c)
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	kids, err := store.ListByParent(ctx, parent.ID)
	if err != nil || len(kids) != 1 || kids[0].ID != child.ID {
		t.Fatalf("ListByParent = %v, %v", kids, err)
	}
	p, _ := store.Get(ctx, parent.ID)
	if p.OptimizedRoute == nil || len(p.OptimizedRoute.Waypoints) != 4 || p.OptimizedRoute.Waypoints[2].Kind != StopDropoff {
		t.Fatalf("route = %+v", p.OptimizedRoute)
	}
	if kids[0].PreMergeStatus == nil || *kids[0].PreMergeStatus != StatusApproved {
		t.Fatalf("pre-merge status = %v", kids[0].PreMergeStatus)
	}
}

func TestPGStore_NotFound(t *testing.T) {
	store, prefix := newPGStore(t)
	if _, err := store.Get(context.Background(), types.ID(prefix+"missing")); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
