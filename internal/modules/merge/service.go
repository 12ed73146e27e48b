// README: Merge orchestration. Members are read and sequenced outside the
// transaction; the transaction re-reads them FOR UPDATE and re-validates before writing.
package merge

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"

	"tripmerge/internal/apperr"
	"tripmerge/internal/metrics"
	"tripmerge/internal/modules/booking"
	"tripmerge/internal/modules/eligibility"
	"tripmerge/internal/modules/routing"
	"tripmerge/internal/modules/settings"
	"tripmerge/internal/types"
)

type Sequencer interface {
	Sequence(ctx context.Context, waypoints []booking.Waypoint, start types.Point) (*routing.Result, error)
}

type Settings interface {
	EligibilityConfig(ctx context.Context) (settings.EligibilityConfig, error)
}

type Service struct {
	store     booking.Store
	sequencer Sequencer
	settings  Settings
	validate  *validator.Validate
	now       func() time.Time
}

func NewService(store booking.Store, sequencer Sequencer, settings Settings) *Service {
	return &Service{
		store:     store,
		sequencer: sequencer,
		settings:  settings,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// WithClock replaces the time source used for trip ids and audit notes.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Merge attaches ChildIDs to ParentID's trip, creating the trip when the
// parent is standalone.
func (s *Service) Merge(ctx context.Context, cmd MergeCommand) (res *MergeResult, err error) {
	const op = "merge.Merge"
	defer func() { track("merge", err) }()

	if err := s.validate.Struct(cmd); err != nil {
		return nil, apperr.Validation(op, err.Error())
	}
	for _, id := range cmd.ChildIDs {
		if id == cmd.ParentID {
			return nil, apperr.Validation(op, fmt.Sprintf("parent %s cannot be merged into itself", id))
		}
	}

	parent, err := s.store.Get(ctx, cmd.ParentID)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	if err := checkParent(op, parent); err != nil {
		return nil, err
	}
	var existing []*booking.Booking
	if parent.IsTripParent() {
		if existing, err = s.store.ListByParent(ctx, parent.ID); err != nil {
			return nil, apperr.Persistence(op, err)
		}
	}
	children := make([]*booking.Booking, 0, len(cmd.ChildIDs))
	for _, id := range cmd.ChildIDs {
		c, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, apperr.Persistence(op, err)
		}
		if err := checkChild(op, c); err != nil {
			return nil, err
		}
		children = append(children, c)
	}

	members := append(append([]*booking.Booking{parent}, existing...), children...)
	p := s.sequence(ctx, members, tripStart(parent))

	existingIDs := idsOf(existing)
	var tripID string
	err = s.store.InTx(ctx, func(tx booking.Tx) error {
		parent, err := tx.GetForUpdate(ctx, cmd.ParentID)
		if err != nil {
			return err
		}
		if err := checkParent(op, parent); err != nil {
			return err
		}
		current, err := tx.ListByParent(ctx, parent.ID)
		if err != nil {
			return err
		}
		if !sameIDs(idsOf(current), existingIDs) {
			return apperr.Conflict(op, parent.ID, "trip membership changed during merge")
		}
		fresh := make([]*booking.Booking, 0, len(cmd.ChildIDs))
		for _, id := range cmd.ChildIDs {
			c, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := checkChild(op, c); err != nil {
				return err
			}
			fresh = append(fresh, c)
		}

		now := s.now()
		tripID = newTripID(now)
		if parent.IsTripParent() && parent.TripID != nil {
			tripID = *parent.TripID
		}

		parent.HasMergedTrips = true
		parent.MergedChildren = append(append([]types.ID(nil), existingIDs...), cmd.ChildIDs...)
		parent.Status = booking.StatusConfirmed
		parent.TripID = &tripID
		parent.OptimizedRoute = p.route
		applySequences(parent, p.sequences)
		parent.AppendNote(now, "merged %d booking(s) into trip %s (%s sequencing)", len(fresh), tripID, p.strategy)
		if err := tx.Update(ctx, parent); err != nil {
			return err
		}

		for _, c := range current {
			c.TripID = &tripID
			applySequences(c, p.sequences)
			if err := tx.Update(ctx, c); err != nil {
				return err
			}
		}
		for _, c := range fresh {
			prior := c.Status
			c.PreMergeStatus = &prior
			c.ParentID = &parent.ID
			c.IsMerged = true
			c.Status = booking.StatusMerged
			c.TripID = &tripID
			c.ClearRouteFields()
			applySequences(c, p.sequences)
			c.AppendNote(now, "merged into trip %s under parent %s", tripID, parent.ID)
			if err := tx.Update(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	log.Printf("merge: trip %s parent=%s children=%v strategy=%s", tripID, cmd.ParentID, cmd.ChildIDs, p.strategy)
	return s.result(ctx, op, cmd.ParentID, p)
}

// ReoptimizeTrip re-sequences an existing trip and persists the new order.
func (s *Service) ReoptimizeTrip(ctx context.Context, parentID types.ID) (res *MergeResult, err error) {
	const op = "merge.ReoptimizeTrip"
	defer func() { track("reoptimize", err) }()

	parent, err := s.store.Get(ctx, parentID)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	if !parent.IsTripParent() {
		return nil, apperr.Conflict(op, parentID, "booking is not a trip parent")
	}
	children, err := s.store.ListByParent(ctx, parentID)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	members := append([]*booking.Booking{parent}, children...)
	p := s.sequence(ctx, members, tripStart(parent))

	err = s.store.InTx(ctx, func(tx booking.Tx) error {
		parent, err := tx.GetForUpdate(ctx, parentID)
		if err != nil {
			return err
		}
		if !parent.IsTripParent() {
			return apperr.Conflict(op, parentID, "trip was dissolved during re-optimization")
		}
		current, err := tx.ListByParent(ctx, parentID)
		if err != nil {
			return err
		}
		if !sameIDs(idsOf(current), idsOf(children)) {
			return apperr.Conflict(op, parentID, "trip membership changed during re-optimization")
		}
		parent.OptimizedRoute = p.route
		applySequences(parent, p.sequences)
		parent.AppendNote(s.now(), "route re-optimized (%s sequencing)", p.strategy)
		if err := tx.Update(ctx, parent); err != nil {
			return err
		}
		for _, c := range current {
			applySequences(c, p.sequences)
			if err := tx.Update(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	return s.result(ctx, op, parentID, p)
}

// OptimizeSequence previews a visiting order for the given bookings without
// writing anything. Optimizer failures degrade to the heuristic order.
func (s *Service) OptimizeSequence(ctx context.Context, ids []types.ID) (*routing.Result, error) {
	const op = "merge.OptimizeSequence"
	if err := s.validate.Var(ids, "required,min=1,unique,dive,required"); err != nil {
		return nil, apperr.Validation(op, err.Error())
	}
	members := make([]*booking.Booking, 0, len(ids))
	for _, id := range ids {
		b, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, apperr.Persistence(op, err)
		}
		members = append(members, b)
	}
	wps := booking.WaypointsFor(members)
	start := tripStart(members[0])
	res, err := s.sequencer.Sequence(ctx, wps, start)
	if err != nil {
		log.Printf("merge: preview sequencing failed, using heuristic: %v", err)
		return routing.Heuristic(wps, start), nil
	}
	return res, nil
}

// CheckEligibility evaluates one candidate against a base booking.
func (s *Service) CheckEligibility(ctx context.Context, baseID, candidateID types.ID, manual bool) (eligibility.Result, error) {
	const op = "merge.CheckEligibility"
	if baseID == "" || candidateID == "" {
		return eligibility.Result{}, apperr.Validation(op, "base_id and candidate_id are required")
	}
	base, err := s.store.Get(ctx, baseID)
	if err != nil {
		return eligibility.Result{}, apperr.Persistence(op, err)
	}
	candidate, err := s.store.Get(ctx, candidateID)
	if err != nil {
		return eligibility.Result{}, apperr.Persistence(op, err)
	}
	cfg, err := s.settings.EligibilityConfig(ctx)
	if err != nil {
		return eligibility.Result{}, apperr.Persistence(op, err)
	}
	if manual {
		return eligibility.EvaluateManual(base, candidate, cfg), nil
	}
	return eligibility.Evaluate(base, candidate, cfg), nil
}

// Candidates lists mergeable bookings and evaluates each against id.
func (s *Service) Candidates(ctx context.Context, id types.ID) (*CandidatesResult, error) {
	const op = "merge.Candidates"
	base, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	cfg, err := s.settings.EligibilityConfig(ctx)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	pool, err := s.store.ListMergeable(ctx, base.PickupTime.Add(-cfg.PickupWindow))
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	batch := eligibility.BatchEvaluate(base, pool, cfg)
	summary := make(map[string]int)
	for cp, n := range batch.FailureCounts() {
		summary[cp.String()] = n
		metrics.EligibilityRejections.WithLabelValues(cp.String()).Add(float64(n))
	}
	return &CandidatesResult{
		Base:           base,
		Eligible:       batch.Eligible,
		Ineligible:     batch.Ineligible,
		FailureSummary: summary,
	}, nil
}

// sequence orders members, falling back to fixed numbering without a route
// when the sequencer reports no result.
func (s *Service) sequence(ctx context.Context, members []*booking.Booking, start types.Point) plan {
	res, err := s.sequencer.Sequence(ctx, booking.WaypointsFor(members), start)
	if err != nil {
		log.Printf("merge: sequencing %d members failed, using fallback numbering: %v", len(members), err)
		return plan{strategy: StrategyFallback, sequences: fallbackSequences(members)}
	}
	return plan{strategy: string(res.Strategy), sequences: res.Sequences, route: res.Route()}
}

func (s *Service) result(ctx context.Context, op string, parentID types.ID, p plan) (*MergeResult, error) {
	parent, err := s.store.Get(ctx, parentID)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	children, err := s.store.ListByParent(ctx, parentID)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	tripID := ""
	if parent.TripID != nil {
		tripID = *parent.TripID
	}
	return &MergeResult{
		Parent:   parent,
		Children: children,
		Summary: Summary{
			TripID:    tripID,
			Strategy:  p.strategy,
			Sequences: p.sequences,
			Route:     parent.OptimizedRoute,
		},
	}, nil
}

func checkParent(op string, b *booking.Booking) error {
	switch {
	case b.IsMerged || b.ParentID != nil:
		return apperr.Conflict(op, b.ID, "parent is itself merged into another trip")
	case b.Status.Terminal():
		return apperr.Conflict(op, b.ID, fmt.Sprintf("parent is %s", b.Status))
	}
	return nil
}

func checkChild(op string, b *booking.Booking) error {
	switch {
	case b.IsMerged || b.ParentID != nil:
		return apperr.Conflict(op, b.ID, "booking is already merged into a trip")
	case b.IsTripParent():
		return apperr.Conflict(op, b.ID, "booking is the parent of another trip")
	case b.Status.Terminal():
		return apperr.Conflict(op, b.ID, fmt.Sprintf("booking is %s", b.Status))
	}
	return nil
}

// tripStart is the parent's vehicle position when known, else its pickup.
func tripStart(parent *booking.Booking) types.Point {
	if parent.Vehicle != nil && parent.Vehicle.LastPosition != nil {
		return *parent.Vehicle.LastPosition
	}
	return parent.Pickup.Point
}

func applySequences(b *booking.Booking, seqs map[types.ID]routing.Sequences) {
	s, ok := seqs[b.ID]
	if !ok {
		return
	}
	b.PickupSequence = intPtr(s.Pickup)
	b.DropoffSequence = intPtr(s.Dropoff)
}

func track(operation string, err error) {
	result := "ok"
	if err != nil {
		result = apperr.KindName(err)
	}
	metrics.TrackOperation(operation, result)
}
