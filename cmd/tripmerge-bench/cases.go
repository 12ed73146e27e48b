// README: Bench cases: environment checks, seeded merge round trip over HTTP, and a concurrent eligibility load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"tripmerge/internal/infra"
	"tripmerge/internal/modules/booking"
	"tripmerge/internal/types"
	"tripmerge/migrations"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg    Config
	httpc  *http.Client
	db     *pgxpool.Pool
	redis  *redis.Client
	prefix string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: 10 * time.Second},
		prefix: fmt.Sprintf("bench%d-", time.Now().UnixNano()),
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := infra.NewDB(ctx, r.cfg.DSN); err == nil {
			r.db = db
		} else {
			fmt.Printf("db: %v\n", err)
		}
	}
	if r.cfg.RedisAddr != "" {
		if rdb, err := infra.NewRedis(ctx, r.cfg.RedisAddr, "", 0); err == nil {
			r.redis = rdb
		} else {
			fmt.Printf("redis: %v\n", err)
		}
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency.Round(time.Millisecond))
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	r.cleanup()
	return results
}

func (r *Runner) cleanup() {
	if r.db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = r.db.Exec(ctx, `UPDATE bookings SET parent_id = NULL WHERE id LIKE $1`, r.prefix+"%")
		_, _ = r.db.Exec(ctx, `DELETE FROM bookings WHERE id LIKE $1`, r.prefix+"%")
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
}

func (r *Runner) id(name string) string {
	return r.prefix + name
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusFail, Note: "db not configured"}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: statusFail, Note: "redis not configured"}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: statusSkip, Note: "apply-migration=false"}
				}
				if err := infra.Migrate(migrations.FS, r.cfg.DSN); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Seed: bookings",
			Run:  seedBookings,
		},
		{
			Name: "HTTP: health",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodGet, "/health", nil, http.StatusOK)
			},
		},
		{
			Name: "HTTP: list settings",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodGet, "/api/merge/settings", nil, http.StatusOK)
			},
		},
		{
			Name: "HTTP: check eligibility",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPost, "/api/merge/check-eligibility", map[string]any{
					"base_id": r.id("A"), "candidate_id": r.id("B"),
				}, http.StatusOK)
			},
		},
		{
			Name: "HTTP: candidates",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodGet, "/api/merge/candidates/"+r.id("A"), nil, http.StatusOK)
			},
		},
		{
			Name: "HTTP: merge",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPost, "/api/merge", map[string]any{
					"parent_id": r.id("A"), "child_ids": []string{r.id("B")},
				}, http.StatusOK)
			},
		},
		{
			Name: "HTTP: merge twice conflicts",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPost, "/api/merge", map[string]any{
					"parent_id": r.id("A"), "child_ids": []string{r.id("B")},
				}, http.StatusConflict)
			},
		},
		{
			Name: "HTTP: re-optimize trip",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPost, "/api/merge/trips/"+r.id("A")+"/optimize-route", nil, http.StatusOK)
			},
		},
		{
			Name: "HTTP: unmerge",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPost, "/api/merge/unmerge/"+r.id("B"), nil, http.StatusOK)
			},
		},
		{
			Name: "Perf: check eligibility",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, "/api/merge/check-eligibility", map[string]any{
					"base_id": r.id("A"), "candidate_id": r.id("B"),
				})
			},
		},
	}
}

func seedBookings(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	store := booking.NewPGStore(r.db)
	pickupAt := time.Now().Add(2 * time.Hour).Truncate(time.Minute)
	for i, name := range []string{"A", "B"} {
		off := float64(i) * 0.005
		b := &booking.Booking{
			ID:             types.ID(r.id(name)),
			Status:         booking.StatusApproved,
			Pickup:         booking.Location{Address: "bench pickup " + name, Point: types.Point{Lat: 25.20 + off, Lng: 55.27 + off}},
			Dropoff:        booking.Location{Address: "bench dropoff " + name, Point: types.Point{Lat: 25.08 + off, Lng: 55.14 + off}},
			PickupTime:     pickupAt,
			RequestType:    "standard",
			Priority:       "normal",
			PassengerCount: 1,
		}
		if err := store.Create(ctx, b); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	return Result{Status: statusPass, Note: "prefix=" + r.prefix}
}

func (r *Runner) do(ctx context.Context, method, path string, payload any) (*http.Response, time.Duration, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := r.httpc.Do(req)
	return resp, time.Since(start), err
}

func (r *Runner) expect(ctx context.Context, method, path string, payload any, want int) Result {
	resp, latency, err := r.do(ctx, method, path, payload)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d body=%s", resp.StatusCode, b)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return Result{Status: statusPass, Latency: latency}
}

func perfLoad(ctx context.Context, r *Runner, path string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		mu        sync.Mutex
		latencies []time.Duration
		errCount  int
		wg        sync.WaitGroup
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				resp, latency, err := r.do(ctx, http.MethodPost, path, payload)
				if err != nil {
					mu.Lock()
					errCount++
					mu.Unlock()
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				mu.Lock()
				if resp.StatusCode != http.StatusOK {
					errCount++
				} else {
					latencies = append(latencies, latency)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(latencies) == 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("no successful requests, errors=%d", errCount)}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	p95 := latencies[len(latencies)*95/100]
	rps := float64(len(latencies)) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f p95=%s errors=%d", rps, p95.Round(time.Millisecond), errCount)}
}
