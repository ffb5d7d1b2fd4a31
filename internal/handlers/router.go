package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"voeventdb/internal/metrics"
	"voeventdb/internal/middleware"
	"voeventdb/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const APIPrefix = "/apiv1"

type RouterConfig struct {
	Version     string
	Debug       bool
	FrontendURL string
	// HTTPIngest exposes POST /apiv1/packet.
	HTTPIngest bool
	// RateLimitRPS of zero disables per-IP limiting.
	RateLimitRPS   int
	RateLimitBurst int
}

// Deps carries everything the router serves. Metrics and System may be nil.
type Deps struct {
	Query   service.QueryService
	Ingest  service.IngestService
	Export  service.ExportService
	System  *SystemHandler
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func NewRouter(cfg RouterConfig, deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.UseRawPath = true
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(logger))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}

	origins := []string{"http://localhost:3000"}
	if cfg.FrontendURL != "" && cfg.FrontendURL != origins[0] {
		origins = append(origins, cfg.FrontendURL)
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if !cfg.Debug && cfg.RateLimitRPS > 0 {
		limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
		r.Use(middleware.IPRateLimitMiddleware(limiter, logger))
		logger.Info("rate limiting enabled", "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{
			"code":        http.StatusNotFound,
			"description": "Not found",
			"message":     "No endpoint at " + c.Request.URL.Path + ". See " + APIPrefix + "/ for a listing.",
		}})
	})

	queries := NewQueryHandler(deps.Query, logger)
	api := r.Group(APIPrefix)

	var endpoints []string
	get := func(path string, h gin.HandlerFunc) {
		api.GET(path, h)
		endpoints = append(endpoints, APIPrefix+path)
	}

	get("/count", queries.Count)
	for _, kind := range service.ListKinds {
		get("/list/"+string(kind), queries.List(kind))
	}
	for _, kind := range service.MapKinds {
		get("/map/"+string(kind), queries.Map(kind))
	}
	get("/packet/synopsis/*ivorn", queries.Synopsis)
	get("/packet/xml/*ivorn", queries.PacketXML)

	if deps.Export != nil {
		get("/export/summary.xlsx", NewExportHandler(deps.Export, logger).SummaryXLSX)
	}
	if deps.Ingest != nil {
		ingest := NewIngestHandler(deps.Ingest, logger)
		get("/ingest/runs", ingest.RecentRuns)
		if cfg.HTTPIngest {
			api.POST("/packet", ingest.PostPacket)
			endpoints = append(endpoints, "POST "+APIPrefix+"/packet")
		}
	}

	api.GET("/", func(c *gin.Context) {
		respond(c, gin.H{
			"message":   "Welcome to the voeventdb REST API, interface version " + cfg.Version,
			"version":   cfg.Version,
			"endpoints": endpoints,
		})
	})

	if deps.System != nil {
		r.GET("/health", deps.System.Health)
		r.GET("/stats", deps.System.Stats)
	}
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	return r
}
