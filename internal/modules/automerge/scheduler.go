// README: Background auto-merge loop: marks recently approved bookings that have
// merge partners and merges discovered groups.
package automerge

import (
	"context"
	"log"
	"time"

	"tripmerge/internal/metrics"
	"tripmerge/internal/modules/booking"
	"tripmerge/internal/modules/eligibility"
	"tripmerge/internal/modules/merge"
	"tripmerge/internal/modules/settings"
	"tripmerge/internal/types"
)

const (
	DefaultInterval = 5 * time.Minute
	DefaultLookback = time.Hour
)

type Merger interface {
	Merge(ctx context.Context, cmd merge.MergeCommand) (*merge.MergeResult, error)
}

type Settings interface {
	EligibilityConfig(ctx context.Context) (settings.EligibilityConfig, error)
}

type Markers interface {
	Mark(ctx context.Context, id types.ID, matches []types.ID, at time.Time) error
	Clear(ctx context.Context, ids ...types.ID) error
}

type Scheduler struct {
	store    booking.Store
	merger   Merger
	settings Settings
	markers  Markers
	lookback time.Duration
	now      func() time.Time
}

// NewScheduler builds a scheduler. markers may be nil, in which case no
// merge-eligible markers are written.
func NewScheduler(store booking.Store, merger Merger, settings Settings, markers Markers, lookback time.Duration) *Scheduler {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Scheduler{
		store:    store,
		merger:   merger,
		settings: settings,
		markers:  markers,
		lookback: lookback,
		now:      time.Now,
	}
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// TickReport summarises one scheduler pass.
type TickReport struct {
	Enabled      bool
	Marked       int
	Groups       int
	Merged       int
	FailedGroups int
}

// Run ticks until ctx is cancelled. The timer is re-armed only after a tick
// returns, so ticks never overlap; the interval is re-read every time.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(s.interval(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.Tick(ctx)
			timer.Reset(s.interval(ctx))
		}
	}
}

func (s *Scheduler) interval(ctx context.Context) time.Duration {
	cfg, err := s.settings.EligibilityConfig(ctx)
	if err != nil || cfg.AutoMergeInterval <= 0 {
		return DefaultInterval
	}
	return cfg.AutoMergeInterval
}

// Tick runs one pass. Failures of individual bookings or groups are logged
// and do not stop the pass.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	var rep TickReport
	cfg, err := s.settings.EligibilityConfig(ctx)
	if err != nil {
		log.Printf("automerge: load settings: %v", err)
		metrics.SchedulerTicks.WithLabelValues("error").Inc()
		return rep
	}
	if !cfg.AutoMergeEnabled {
		metrics.SchedulerTicks.WithLabelValues("disabled").Inc()
		return rep
	}
	rep.Enabled = true

	now := s.now()
	pool, err := s.store.ListMergeable(ctx, now)
	if err != nil {
		log.Printf("automerge: list mergeable bookings: %v", err)
		metrics.SchedulerTicks.WithLabelValues("error").Inc()
		return rep
	}

	if s.markers != nil {
		rep.Marked = s.markRecent(ctx, now, pool, cfg)
	}

	for _, group := range discoverGroups(pool, cfg) {
		rep.Groups++
		cmd := merge.MergeCommand{ParentID: group[0].ID}
		for _, c := range group[1:] {
			cmd.ChildIDs = append(cmd.ChildIDs, c.ID)
		}
		res, err := s.merger.Merge(ctx, cmd)
		if err != nil {
			rep.FailedGroups++
			metrics.SchedulerGroups.WithLabelValues("failed").Inc()
			log.Printf("automerge: merge group parent=%s children=%v: %v", cmd.ParentID, cmd.ChildIDs, err)
			continue
		}
		rep.Merged++
		metrics.SchedulerGroups.WithLabelValues("merged").Inc()
		if s.markers == nil {
			continue
		}
		if err := s.markers.Clear(ctx, append([]types.ID{cmd.ParentID}, cmd.ChildIDs...)...); err != nil {
			log.Printf("automerge: clear markers for trip %s: %v", res.Summary.TripID, err)
		}
	}
	metrics.SchedulerTicks.WithLabelValues("ran").Inc()
	return rep
}

// markRecent flags bookings approved within the lookback window that have at
// least one eligible partner in pool.
func (s *Scheduler) markRecent(ctx context.Context, now time.Time, pool []*booking.Booking, cfg settings.EligibilityConfig) int {
	recent, err := s.store.ListApprovedSince(ctx, now.Add(-s.lookback))
	if err != nil {
		log.Printf("automerge: list recently approved bookings: %v", err)
		return 0
	}
	marked := 0
	for _, b := range recent {
		batch := eligibility.BatchEvaluate(b, pool, cfg)
		if len(batch.Eligible) == 0 {
			continue
		}
		matches := make([]types.ID, len(batch.Eligible))
		for i, m := range batch.Eligible {
			matches[i] = m.ID
		}
		if err := s.markers.Mark(ctx, b.ID, matches, now); err != nil {
			log.Printf("automerge: mark %s: %v", b.ID, err)
			continue
		}
		marked++
		metrics.SchedulerMarkers.Inc()
	}
	return marked
}
