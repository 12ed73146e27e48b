// README: HTTP router registration.
package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tripmerge/internal/http/handlers"
	"tripmerge/internal/http/middleware"
)

type RouterDeps struct {
	Merge     handlers.MergeService
	Recommend handlers.Recommender
	Settings  handlers.SettingsService
	Markers   handlers.MarkerReader

	// AllowedOrigins restricts CORS; empty allows any origin.
	AllowedOrigins []string
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logging(), middleware.Recovery(), middleware.Prometheus())
	r.Use(cors.New(corsConfig(deps.AllowedOrigins)))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	mergeHandler := handlers.NewMergeHandler(deps.Merge, deps.Recommend, deps.Markers)
	settingsHandler := handlers.NewSettingsHandler(deps.Settings)

	api := r.Group("/api/merge")
	api.POST("/check-eligibility", mergeHandler.CheckEligibility)
	api.POST("", mergeHandler.Merge)
	api.POST("/optimize-sequence", mergeHandler.OptimizeSequence)
	api.GET("/candidates/:id", mergeHandler.Candidates)
	api.GET("/recommendations/:id", mergeHandler.Recommendations)
	api.POST("/trips/:id/optimize-route", mergeHandler.OptimizeRoute)
	api.POST("/unmerge/:id", mergeHandler.Unmerge)
	api.GET("/settings", settingsHandler.List)
	api.PUT("/settings/:key", settingsHandler.Update)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
