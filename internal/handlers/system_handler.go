package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"voeventdb/internal/service"

	"github.com/gin-gonic/gin"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// StatsSource contributes a named section to /stats.
type StatsSource func(ctx context.Context) (interface{}, error)

type SystemHandler struct {
	queries service.QueryService
	checks  map[string]HealthCheck
	sources map[string]StatsSource
	logger  *slog.Logger
}

func NewSystemHandler(queries service.QueryService, logger *slog.Logger) *SystemHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemHandler{
		queries: queries,
		checks:  make(map[string]HealthCheck),
		sources: make(map[string]StatsSource),
		logger:  logger,
	}
}

func (h *SystemHandler) AddCheck(name string, check HealthCheck) *SystemHandler {
	h.checks[name] = check
	return h
}

func (h *SystemHandler) AddStats(name string, source StatsSource) *SystemHandler {
	h.sources[name] = source
	return h
}

// Health reports 503 when any dependency check fails.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	services := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("health check failed", "service", name, "error", err)
			services[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		services[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  services,
	})
}

func (h *SystemHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := h.queries.Stats(ctx)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := gin.H{"database": counts}
	for name, source := range h.sources {
		section, err := source(ctx)
		if err != nil {
			h.logger.Warn("stats source failed", "source", name, "error", err)
			out[name] = gin.H{"error": err.Error()}
			continue
		}
		out[name] = section
	}
	c.JSON(http.StatusOK, out)
}
