package control

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/bm-repricer/internal/version"
)

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Version    string         `json:"version"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Version:    version.String(),
		Components: make(map[string]any),
	}

	if h.svc.Database != nil {
		if err := h.svc.Database.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}
	}

	if h.svc.Jobs != nil {
		health.Components["scheduler"] = map[string]int{"jobs": h.svc.Jobs.Len()}
	}

	if h.svc.Limiter != nil {
		buckets := make(map[string]int)
		for _, b := range h.svc.Limiter.Snapshot() {
			buckets[b.Name] = b.CurrentTokens
		}
		health.Components["rate_limits"] = buckets
	}

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}
