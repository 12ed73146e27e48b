// README: Merge-eligible markers backed by Redis strings and sets.
package automerge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tripmerge/internal/types"
)

const (
	markerKeyFormat  = "tripmerge:booking:%s:merge_eligible"
	matchesKeyFormat = "tripmerge:booking:%s:merge_matches"
	// DefaultMarkerTTL bounds how long a marker outlives the tick that set it.
	DefaultMarkerTTL = 24 * time.Hour
)

type Marker struct {
	MarkedAt time.Time  `json:"marked_at"`
	Matches  []types.ID `json:"matches"`
}

type MarkerStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewMarkerStore(rdb *redis.Client, ttl time.Duration) *MarkerStore {
	if ttl <= 0 {
		ttl = DefaultMarkerTTL
	}
	return &MarkerStore{redis: rdb, ttl: ttl}
}

// Mark flags id as merge eligible together with the bookings it matched.
func (s *MarkerStore) Mark(ctx context.Context, id types.ID, matches []types.ID, at time.Time) error {
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, markerKey(id), at.UTC().Format(time.RFC3339), s.ttl)
	pipe.Del(ctx, matchesKey(id))
	if len(matches) > 0 {
		members := make([]interface{}, len(matches))
		for i, m := range matches {
			members[i] = string(m)
		}
		pipe.SAdd(ctx, matchesKey(id), members...)
		pipe.Expire(ctx, matchesKey(id), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Get returns the marker for id and whether one exists.
func (s *MarkerStore) Get(ctx context.Context, id types.ID) (Marker, bool, error) {
	val, err := s.redis.Get(ctx, markerKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Marker{}, false, nil
	}
	if err != nil {
		return Marker{}, false, err
	}
	at, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return Marker{}, false, err
	}
	members, err := s.redis.SMembers(ctx, matchesKey(id)).Result()
	if err != nil {
		return Marker{}, false, err
	}
	m := Marker{MarkedAt: at, Matches: make([]types.ID, len(members))}
	for i, v := range members {
		m.Matches[i] = types.ID(v)
	}
	return m, true, nil
}

// Clear drops the marker once the booking has been merged.
func (s *MarkerStore) Clear(ctx context.Context, ids ...types.ID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, 2*len(ids))
	for _, id := range ids {
		keys = append(keys, markerKey(id), matchesKey(id))
	}
	return s.redis.Del(ctx, keys...).Err()
}

func markerKey(id types.ID) string {
	return fmt.Sprintf(markerKeyFormat, string(id))
}

func matchesKey(id types.ID) string {
	return fmt.Sprintf(matchesKeyFormat, string(id))
}
