// README: Entry point; loads config, wires services, starts HTTP server and the auto-merge scheduler.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"tripmerge/internal/config"
	httptransport "tripmerge/internal/http"
	"tripmerge/internal/http/handlers"
	"tripmerge/internal/infra"
	"tripmerge/internal/maps"
	"tripmerge/internal/modules/automerge"
	"tripmerge/internal/modules/booking"
	"tripmerge/internal/modules/merge"
	"tripmerge/internal/modules/recommend"
	"tripmerge/internal/modules/routing"
	"tripmerge/internal/modules/settings"
	"tripmerge/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		bookingStore  booking.Store
		settingsStore settings.Store
	)
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		log.Printf("storage: using in-memory stores; bookings start empty, for local runs only")
		bookingStore = booking.NewMemoryStore()
		settingsStore = settings.NewMemoryStore()
	default:
		if cfg.DB.Migrate {
			if err := infra.Migrate(migrations.FS, cfg.DB.DSN); err != nil {
				log.Fatalf("migrate: %v", err)
			}
		}
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatal(err)
		}
		defer dbPool.Close()
		bookingStore = booking.NewPGStore(dbPool)
		settingsStore = settings.NewPGStore(dbPool)
	}

	var (
		schedulerMarkers automerge.Markers
		markerReader     handlers.MarkerReader
	)
	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	switch {
	case err == nil:
		defer redisClient.Close()
		markers := automerge.NewMarkerStore(redisClient, cfg.AutoMerge.MarkerTTL)
		schedulerMarkers, markerReader = markers, markers
	case cfg.Storage.Driver == config.StorageMemory:
		log.Printf("redis: %v; merge-eligible markers disabled", err)
	default:
		log.Fatal(err)
	}

	var optimizer routing.Optimizer
	if cfg.Maps.APIKey != "" {
		rs, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatal(err)
		}
		optimizer = rs
	} else {
		log.Printf("routing: no maps api key, sequencing falls back to the distance heuristic")
	}
	sequencer := routing.NewSequencer(optimizer, cfg.Routing.OptimizerTimeout)

	settingsSvc := settings.NewService(settingsStore, cfg.Settings.CacheTTL)
	mergeSvc := merge.NewService(bookingStore, sequencer, settingsSvc)
	recommendSvc := recommend.NewService(bookingStore, settingsSvc)
	scheduler := automerge.NewScheduler(bookingStore, mergeSvc, settingsSvc, schedulerMarkers, cfg.AutoMerge.Lookback)

	gin.SetMode(gin.ReleaseMode)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Merge:     mergeSvc,
		Recommend: recommendSvc,
		Settings:  settingsSvc,
		Markers:   markerReader,

		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	go scheduler.Run(ctx)

	if err := httptransport.NewServer(cfg.HTTP.Addr, router).Run(ctx); err != nil {
		log.Fatal(err)
	}
}
