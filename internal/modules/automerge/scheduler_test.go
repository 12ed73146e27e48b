package automerge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tripmerge/internal/modules/booking"
	"tripmerge/internal/modules/merge"
	"tripmerge/internal/modules/routing"
	"tripmerge/internal/modules/settings"
	"tripmerge/internal/types"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type staticSettings struct{ cfg settings.EligibilityConfig }

func (s staticSettings) EligibilityConfig(context.Context) (settings.EligibilityConfig, error) {
	return s.cfg, nil
}

func enabledCfg() settings.EligibilityConfig {
	cfg := settings.DefaultEligibilityConfig()
	cfg.AutoMergeEnabled = true
	return cfg
}

// memMarkers records markers in memory.
type memMarkers struct {
	mu      sync.Mutex
	marked  map[types.ID][]types.ID
	cleared []types.ID
}

func newMemMarkers() *memMarkers {
	return &memMarkers{marked: make(map[types.ID][]types.ID)}
}

func (m *memMarkers) Mark(_ context.Context, id types.ID, matches []types.ID, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked[id] = matches
	return nil
}

func (m *memMarkers) Clear(_ context.Context, ids ...types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.marked, id)
		m.cleared = append(m.cleared, id)
	}
	return nil
}

type failingMerger struct {
	failParents map[types.ID]bool
	inner       Merger
	calls       []merge.MergeCommand
}

func (f *failingMerger) Merge(ctx context.Context, cmd merge.MergeCommand) (*merge.MergeResult, error) {
	f.calls = append(f.calls, cmd)
	if f.inner == nil || f.failParents[cmd.ParentID] {
		return nil, errors.New("merge rejected")
	}
	return f.inner.Merge(ctx, cmd)
}

func pending(id string, dLat float64, pickupIn time.Duration) *booking.Booking {
	approved := now.Add(-10 * time.Minute)
	return &booking.Booking{
		ID:             types.ID(id),
		Status:         booking.StatusApproved,
		Pickup:         booking.Location{Point: types.Point{Lat: 25.10 + dLat, Lng: 55.20}},
		Dropoff:        booking.Location{Point: types.Point{Lat: 25.30 + dLat, Lng: 55.10}},
		PickupTime:     now.Add(pickupIn),
		RequestType:    "standard",
		Priority:       "normal",
		PassengerCount: 1,
		ApprovedAt:     &approved,
	}
}

func mergeService(store booking.Store) *merge.Service {
	return merge.NewService(store, routing.NewSequencer(nil, time.Second), staticSettings{cfg: enabledCfg()}).
		WithClock(func() time.Time { return now })
}

func TestTick_DisabledDoesNothing(t *testing.T) {
	store := booking.NewMemoryStore(pending("A", 0, time.Hour), pending("B", 0.001, time.Hour))
	merger := &failingMerger{}
	markers := newMemMarkers()
	s := NewScheduler(store, merger, staticSettings{cfg: settings.DefaultEligibilityConfig()}, markers, time.Hour).
		WithClock(func() time.Time { return now })

	rep := s.Tick(context.Background())
	if rep.Enabled || len(merger.calls) != 0 || len(markers.marked) != 0 {
		t.Fatalf("disabled tick did work: %+v calls=%d", rep, len(merger.calls))
	}
}

func TestTick_MergesCompatibleGroup(t *testing.T) {
	store := booking.NewMemoryStore(
		pending("A", 0, time.Hour),
		pending("B", 0.002, time.Hour+5*time.Minute),
		pending("C", 0.004, time.Hour+10*time.Minute),
		pending("FAR", 0.5, time.Hour),
	)
	markers := newMemMarkers()
	s := NewScheduler(store, mergeService(store), staticSettings{cfg: enabledCfg()}, markers, time.Hour).
		WithClock(func() time.Time { return now })

	rep := s.Tick(context.Background())
	if rep.Groups != 1 || rep.Merged != 1 || rep.FailedGroups != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Marked != 3 {
		t.Fatalf("marked = %d, want 3", rep.Marked)
	}

	parent, _ := store.Get(context.Background(), "A")
	if !parent.HasMergedTrips || len(parent.MergedChildren) != 2 {
		t.Fatalf("parent = %+v", parent)
	}
	far, _ := store.Get(context.Background(), "FAR")
	if !far.Standalone() {
		t.Fatal("far booking must stay standalone")
	}
	if len(markers.marked) != 0 || len(markers.cleared) != 3 {
		t.Fatalf("markers of merged bookings must be cleared: marked=%v cleared=%v", markers.marked, markers.cleared)
	}

	// Next tick has nothing left to merge.
	if rep := s.Tick(context.Background()); rep.Groups != 0 {
		t.Fatalf("second tick found groups: %+v", rep)
	}
}

func TestTick_GroupLimits(t *testing.T) {
	t.Run("max group size", func(t *testing.T) {
		cfg := enabledCfg()
		cfg.MaxGroupSize = 2
		bs := []*booking.Booking{
			pending("A", 0, time.Hour), pending("B", 0.001, time.Hour),
			pending("C", 0.002, time.Hour), pending("D", 0.003, time.Hour),
			pending("E", 0.004, time.Hour),
		}
		store := booking.NewMemoryStore(bs...)
		pool, _ := store.ListMergeable(context.Background(), now)
		groups := discoverGroups(pool, cfg)
		if len(groups) != 2 || len(groups[0]) != 2 || len(groups[1]) != 2 {
			t.Fatalf("groups = %v", groupIDs(groups))
		}
	})

	t.Run("pickup gap", func(t *testing.T) {
		cfg := enabledCfg()
		cfg.PickupWindow = time.Hour
		cfg.MaxPickupGap = 30 * time.Minute
		store := booking.NewMemoryStore(pending("A", 0, time.Hour), pending("B", 0.001, time.Hour+40*time.Minute))
		pool, _ := store.ListMergeable(context.Background(), now)
		if groups := discoverGroups(pool, cfg); len(groups) != 0 {
			t.Fatalf("groups = %v", groupIDs(groups))
		}
	})

	t.Run("trip duration", func(t *testing.T) {
		cfg := enabledCfg()
		cfg.MaxTripDuration = 10 * time.Minute
		store := booking.NewMemoryStore(pending("A", 0, time.Hour), pending("B", 0.001, time.Hour))
		pool, _ := store.ListMergeable(context.Background(), now)
		if groups := discoverGroups(pool, cfg); len(groups) != 0 {
			t.Fatalf("groups = %v", groupIDs(groups))
		}
	})

	t.Run("capacity", func(t *testing.T) {
		a := pending("A", 0, time.Hour)
		a.PassengerCount = 3
		b := pending("B", 0.001, time.Hour)
		b.PassengerCount = 2
		store := booking.NewMemoryStore(a, b)
		pool, _ := store.ListMergeable(context.Background(), now)
		if groups := discoverGroups(pool, enabledCfg()); len(groups) != 0 {
			t.Fatalf("groups = %v", groupIDs(groups))
		}
	})
}

func TestTick_GroupFailuresAreIsolated(t *testing.T) {
	cfg := enabledCfg()
	cfg.MaxGroupSize = 2
	store := booking.NewMemoryStore(
		pending("A", 0, time.Hour), pending("B", 0.001, time.Hour),
		pending("C", 0.002, time.Hour), pending("D", 0.003, time.Hour),
	)
	merger := &failingMerger{failParents: map[types.ID]bool{"A": true}, inner: mergeService(store)}
	markers := newMemMarkers()
	s := NewScheduler(store, merger, staticSettings{cfg: cfg}, markers, time.Hour).
		WithClock(func() time.Time { return now })

	rep := s.Tick(context.Background())
	if rep.Groups != 2 || rep.Merged != 1 || rep.FailedGroups != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if _, ok := markers.marked["A"]; !ok {
		t.Fatal("marker of failed group member must remain")
	}
	c, _ := store.Get(context.Background(), "C")
	if !c.HasMergedTrips {
		t.Fatal("second group should still merge")
	}
}

func TestTick_OnlyRecentApprovalsAreMarked(t *testing.T) {
	old := pending("OLD", 0.001, time.Hour)
	longAgo := now.Add(-3 * time.Hour)
	old.ApprovedAt = &longAgo
	store := booking.NewMemoryStore(pending("A", 0, time.Hour), old)
	markers := newMemMarkers()
	s := NewScheduler(store, &failingMerger{}, staticSettings{cfg: enabledCfg()}, markers, time.Hour).
		WithClock(func() time.Time { return now })

	rep := s.Tick(context.Background())
	if rep.Marked != 1 {
		t.Fatalf("marked = %d", rep.Marked)
	}
	if got := markers.marked["A"]; len(got) != 1 || got[0] != "OLD" {
		t.Fatalf("A matches = %v", got)
	}
}

// slowMerger always fails after a delay and tracks concurrent calls.
type slowMerger struct {
	inFlight, maxInFlight, calls atomic.Int32
}

func (m *slowMerger) Merge(context.Context, merge.MergeCommand) (*merge.MergeResult, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	m.calls.Add(1)
	time.Sleep(5 * time.Millisecond)
	return nil, errors.New("busy")
}

func TestRun_TicksWithoutOverlap(t *testing.T) {
	cfg := enabledCfg()
	cfg.AutoMergeInterval = time.Millisecond
	store := booking.NewMemoryStore(pending("A", 0, time.Hour), pending("B", 0.001, time.Hour))
	merger := &slowMerger{}
	s := NewScheduler(store, merger, staticSettings{cfg: cfg}, newMemMarkers(), time.Hour).
		WithClock(func() time.Time { return now })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(60 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if merger.calls.Load() < 2 {
		t.Fatalf("expected repeated ticks, got %d", merger.calls.Load())
	}
	if merger.maxInFlight.Load() != 1 {
		t.Fatalf("ticks overlapped: max in flight %d", merger.maxInFlight.Load())
	}
}

func TestCellPrecision(t *testing.T) {
	cases := []struct {
		km, lat float64
		want    uint
	}{
		{0.2, 0, 6},
		{2, 0, 5},
		{7, 0, 4},
		{50, 0, 3},
		{10000, 0, 0},
		{2, 25, 5},
		{2.4, 25, 4},
		{2.4, 65, 4},
		{1, 89.99, 0},
	}
	for _, c := range cases {
		if got := cellPrecision(c.km, c.lat); got != c.want {
			t.Fatalf("cellPrecision(%v, %v) = %d, want %d", c.km, c.lat, got, c.want)
		}
	}
}

func TestDiscoverGroups_HighLatitudeCellBoundary(t *testing.T) {
	cfg := enabledCfg()
	cfg.MaxPickupDistanceKm = 2.4
	cfg.MaxDropoffDistanceKm = 2.4

	at := func(id string, lng float64) *booking.Booking {
		b := pending(id, 0, time.Hour)
		b.Pickup.Point = types.Point{Lat: 65, Lng: lng}
		b.Dropoff.Point = types.Point{Lat: 65.1, Lng: lng}
		return b
	}
	// About 2.35 km apart, in different finest-fit cells.
	a, b := at("A", 25.0048), at("B", 25.0548)
	if !pairwiseEligible([]*booking.Booking{a}, b, cfg) {
		t.Fatal("fixture bookings must be eligible")
	}

	groups := discoverGroups([]*booking.Booking{a, b}, cfg)
	if len(groups) != 1 || len(groups[0]) != 2 {
		t.Fatalf("groups = %v", groupIDs(groups))
	}
}

func TestDiscoverGroups_NoBucketingNearPole(t *testing.T) {
	cfg := enabledCfg()
	idx := newPickupIndex([]*booking.Booking{pending("A", 64.8, time.Hour)}, cfg.MaxPickupDistanceKm)
	if idx.precision != 0 || !idx.near(pending("X", 0, time.Hour), pending("Y", 1, time.Hour)) {
		t.Fatalf("expected bucketing disabled, precision = %d", idx.precision)
	}
}

// flakyMarkers fails Mark for the listed bookings.
type flakyMarkers struct {
	*memMarkers
	fail map[types.ID]bool
}

func (f *flakyMarkers) Mark(ctx context.Context, id types.ID, matches []types.ID, at time.Time) error {
	if f.fail[id] {
		return errors.New("redis unavailable")
	}
	return f.memMarkers.Mark(ctx, id, matches, at)
}

func TestTick_MarkFailuresAreIsolated(t *testing.T) {
	store := booking.NewMemoryStore(pending("A", 0, time.Hour), pending("B", 0.001, time.Hour))
	markers := &flakyMarkers{memMarkers: newMemMarkers(), fail: map[types.ID]bool{"A": true}}
	merger := &failingMerger{}
	s := NewScheduler(store, merger, staticSettings{cfg: enabledCfg()}, markers, time.Hour).
		WithClock(func() time.Time { return now })

	rep := s.Tick(context.Background())
	if rep.Marked != 1 {
		t.Fatalf("marked = %d, want 1", rep.Marked)
	}
	if _, ok := markers.marked["A"]; ok {
		t.Fatal("failed mark must not be recorded")
	}
	if got := markers.marked["B"]; len(got) != 1 || got[0] != "A" {
		t.Fatalf("B matches = %v", got)
	}
	if rep.Groups != 1 || len(merger.calls) != 1 {
		t.Fatalf("tick must continue to group discovery: %+v calls=%d", rep, len(merger.calls))
	}
}

func TestTick_WithoutMarkers(t *testing.T) {
	store := booking.NewMemoryStore(pending("A", 0, time.Hour), pending("B", 0.001, time.Hour))
	s := NewScheduler(store, mergeService(store), staticSettings{cfg: enabledCfg()}, nil, time.Hour).
		WithClock(func() time.Time { return now })

	rep := s.Tick(context.Background())
	if rep.Marked != 0 || rep.Merged != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func groupIDs(groups [][]*booking.Booking) [][]types.ID {
	out := make([][]types.ID, len(groups))
	for i, g := range groups {
		for _, b := range g {
			out[i] = append(out[i], b.ID)
		}
	}
	return out
}
