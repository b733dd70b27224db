package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Counter reports resource usage for the health endpoint. The local
// orchestrator implements it; a remote-backed deployment reports its
// fallback's counters.
type Counter interface {
	Counts(ctx context.Context) (sessions, clients int)
}

// DegradedChecker is implemented by the redis-backed store.
type DegradedChecker interface {
	Degraded() bool
}

type HealthHandler struct {
	Counter     Counter
	Store       DegradedChecker // nil for the in-memory store
	MaxSessions int
	StartedAt   time.Time
}

func (h *HealthHandler) Health(c *gin.Context) {
	sessions, clients := h.Counter.Counts(c.Request.Context())

	status := "ok"
	if h.MaxSessions > 0 && sessions >= h.MaxSessions {
		status = "degraded"
	}
	if h.Store != nil && h.Store.Degraded() {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"sessions":       sessions,
		"clients":        clients,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
