// README: Settings persistence (PostgreSQL table merge_settings, plus an in-memory variant).
package settings

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"tripmerge/internal/apperr"
)

type Store interface {
	// Load returns every stored override; missing keys fall back to defaults.
	Load(ctx context.Context) (map[Key]string, error)
	Save(ctx context.Context, key Key, raw string) error
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Load(ctx context.Context) (map[Key]string, error) {
	rows, err := s.db.Query(ctx, `SELECT key, value FROM merge_settings`)
	if err != nil {
		return nil, apperr.Persistence("settings.Load", err)
	}
	defer rows.Close()

	out := make(map[Key]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, apperr.Persistence("settings.Load", err)
		}
		k, err := ParseKey(name)
		if err != nil {
			// Rows for retired keys are ignored.
			continue
		}
		out[k] = value
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("settings.Load", err)
	}
	return out, nil
}

func (s *PGStore) Save(ctx context.Context, key Key, raw string) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO merge_settings (key, value, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key.String(), raw,
	)
	return apperr.Persistence("settings.Save", err)
}

type MemoryStore struct {
	mu     sync.Mutex
	values map[Key]string
	loads  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[Key]string)}
}

func (s *MemoryStore) Load(_ context.Context) (map[Key]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	out := make(map[Key]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, key Key, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = raw
	return nil
}

// Loads reports how many times Load has been called.
func (s *MemoryStore) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}
