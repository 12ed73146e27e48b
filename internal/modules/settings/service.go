// README: Settings service: typed get/set over the closed key set with an optional TTL cache.
package settings

import (
	"context"
	"strings"
	"sync"
	"time"

	"tripmerge/internal/apperr"
)

// Service reads and writes merge settings. When ttl > 0 the loaded snapshot is
// reused until it is older than ttl or Set is called; ttl == 0 reads through.
type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	snapshot map[Key]string
	loadedAt time.Time
}

func NewService(store Store, ttl time.Duration) *Service {
	return &Service{store: store, ttl: ttl, now: time.Now}
}

// WithClock replaces the clock used for cache expiry.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Get(ctx context.Context, key Key) (Value, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return Value{}, err
	}
	return resolve(snap, key), nil
}

func (s *Service) Set(ctx context.Context, key Key, raw string) error {
	raw = strings.TrimSpace(raw)
	if err := validate(key, raw); err != nil {
		return apperr.Validation("settings.Set", err.Error())
	}
	if err := s.store.Save(ctx, key, raw); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// All returns every key with its effective value, in declaration order.
func (s *Service) All(ctx context.Context) ([]Value, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Value, 0, keyCount)
	for _, k := range Keys() {
		out = append(out, resolve(snap, k))
	}
	return out, nil
}

func (s *Service) EligibilityConfig(ctx context.Context) (EligibilityConfig, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return EligibilityConfig{}, err
	}
	cfg := DefaultEligibilityConfig()
	for _, k := range Keys() {
		raw, ok := snap[k]
		if !ok {
			continue
		}
		// A malformed stored value keeps the default rather than breaking merges.
		_ = cfg.apply(Value{Key: k, Raw: raw})
	}
	return cfg, nil
}

func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
}

func (s *Service) load(ctx context.Context) (map[Key]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttl > 0 && s.snapshot != nil && s.now().Sub(s.loadedAt) < s.ttl {
		return s.snapshot, nil
	}
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if s.ttl > 0 {
		s.snapshot = snap
		s.loadedAt = s.now()
	}
	return snap, nil
}

func resolve(snap map[Key]string, k Key) Value {
	if raw, ok := snap[k]; ok && validate(k, raw) == nil {
		return Value{Key: k, Raw: raw}
	}
	return Value{Key: k, Raw: k.Default()}
}
