// README: In-memory Store used for local runs without Postgres and by package tests.
package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"tripmerge/internal/apperr"
	"tripmerge/internal/types"
)

// MemoryStore keeps bookings in a map. Transactions are serialised and work on
// a private copy; only the rows they updated are written back when fn succeeds.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data map[types.ID]*Booking
}

func NewMemoryStore(seed ...*Booking) *MemoryStore {
	s := &MemoryStore{data: make(map[types.ID]*Booking)}
	for _, b := range seed {
		s.data[b.ID] = b.Clone()
	}
	return s
}

// Put inserts or replaces a booking outside any transaction.
func (s *MemoryStore) Put(b *Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[b.ID] = b.Clone()
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[id]
	if !ok {
		return nil, apperr.NotFound("booking.Get", id, "booking not found")
	}
	return b.Clone(), nil
}

func (s *MemoryStore) ListByParent(_ context.Context, parentID types.ID) ([]*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterSorted(s.data, byID, func(b *Booking) bool {
		return b.ParentID != nil && *b.ParentID == parentID
	}), nil
}

func (s *MemoryStore) ListMergeable(_ context.Context, after time.Time) ([]*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterSorted(s.data, byPickupTime, func(b *Booking) bool {
		return b.Status.Mergeable() && !b.IsMerged && !b.HasMergedTrips && !b.PickupTime.Before(after)
	}), nil
}

func (s *MemoryStore) ListActiveParents(_ context.Context) ([]*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterSorted(s.data, byPickupTime, func(b *Booking) bool {
		return b.HasMergedTrips && !b.Status.Terminal()
	}), nil
}

func (s *MemoryStore) ListApprovedSince(_ context.Context, since time.Time) ([]*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterSorted(s.data, byPickupTime, func(b *Booking) bool {
		return b.Status == StatusApproved && !b.IsMerged && b.ApprovedAt != nil && !b.ApprovedAt.Before(since)
	}), nil
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := make(map[types.ID]*Booking, len(s.data))
	for id, b := range s.data {
		work[id] = b.Clone()
	}
	s.mu.RUnlock()

	tx := &memTx{data: work, dirty: make(map[types.ID]bool)}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	for id := range tx.dirty {
		s.data[id] = work[id]
	}
	s.mu.Unlock()
	return nil
}

type memTx struct {
	data  map[types.ID]*Booking
	dirty map[types.ID]bool
}

func (t *memTx) GetForUpdate(_ context.Context, id types.ID) (*Booking, error) {
	b, ok := t.data[id]
	if !ok {
		return nil, apperr.NotFound("booking.Get", id, "booking not found")
	}
	return b.Clone(), nil
}

func (t *memTx) ListByParent(_ context.Context, parentID types.ID) ([]*Booking, error) {
	return filterSorted(t.data, byID, func(b *Booking) bool {
		return b.ParentID != nil && *b.ParentID == parentID
	}), nil
}

func (t *memTx) Update(_ context.Context, b *Booking) error {
	if _, ok := t.data[b.ID]; !ok {
		return apperr.NotFound("booking.Update", b.ID, "booking not found")
	}
	b.UpdatedAt = time.Now()
	t.data[b.ID] = b.Clone()
	t.dirty[b.ID] = true
	return nil
}

func byID(a, b *Booking) bool { return a.ID < b.ID }

func byPickupTime(a, b *Booking) bool {
	if a.PickupTime.Equal(b.PickupTime) {
		return a.ID < b.ID
	}
	return a.PickupTime.Before(b.PickupTime)
}

func filterSorted(data map[types.ID]*Booking, less func(a, b *Booking) bool, keep func(*Booking) bool) []*Booking {
	var out []*Booking
	for _, b := range data {
		if keep(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
