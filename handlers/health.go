package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	serviceName string
	database    Pinger
	cache       Pinger
}

// NewHealthHandler builds the /health handler. cache may be nil when caching
// is disabled.
func NewHealthHandler(serviceName string, database, cache Pinger) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, database: database, cache: cache}
}

// HealthCheck answers 503 only when the database is down. A failing cache
// degrades the service but does not make it unhealthy.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	database := "up"
	if err := h.database.Ping(ctx); err != nil {
		database = "down"
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	cache := "disabled"
	if h.cache != nil {
		cache = "up"
		if err := h.cache.Ping(ctx); err != nil {
			cache = "down"
			if code == http.StatusOK {
				status = "degraded"
			}
		}
	}

	c.JSON(code, gin.H{
		"service":  h.serviceName,
		"status":   status,
		"database": database,
		"cache":    cache,
	})
}
