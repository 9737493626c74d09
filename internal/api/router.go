package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"skytrace-backend/config"
	"skytrace-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router. Aircraft reads are served
// from responseCache, which the caller flushes whenever the dataset changes.
func NewRouter(h *Handler, cfg config.ServerConfig, responseCache *cache.Cache) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.RequestIPHeader != "" {
		r.TrustedPlatform = cfg.RequestIPHeader
	}

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	caching := mw.Cache(responseCache, cfg.CacheTTL)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		aircraft := api.Group("/aircraft")
		aircraft.GET("", caching, h.ListAircraft)
		aircraft.GET("/geojson", caching, h.GetAircraftGeoJSON)
		aircraft.GET("/archive", h.ListArchive)
		aircraft.GET("/:id", caching, h.GetAircraft)
		aircraft.POST("/bulk", mw.Invalidate(responseCache), h.BulkIngest)

		sched := api.Group("/scheduler")
		sched.GET("/status", h.SchedulerStatus)
		sched.GET("/jobs", h.ListJobs)
		sched.POST("/jobs", h.CreateJob)
		sched.GET("/jobs/:id", h.GetJob)
		sched.PATCH("/jobs/:id", h.PatchJob)
		sched.DELETE("/jobs/:id", h.DeleteJob)
		sched.POST("/jobs/:id/run", h.RunJob)
		sched.POST("/jobs/:id/enable", h.EnableJob)
		sched.POST("/jobs/:id/disable", h.DisableJob)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
