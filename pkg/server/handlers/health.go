package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// pinger is the minimal connectivity check every dependency HealthHandler
// probes exposes: a cheap round trip that returns an error only on a real
// connectivity failure.
type pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness/readiness probes, following the reference
// codebase's health-handler shape but narrowed to AShareInsight's two
// dependencies worth probing directly: the concept store and the
// market-data store.
type HealthHandler struct {
	store  pinger
	market pinger
}

// NewHealthHandler builds a HealthHandler. market may be nil when market
// filtering is not configured.
func NewHealthHandler(store pinger, market pinger) *HealthHandler {
	return &HealthHandler{store: store, market: market}
}

// Live handles GET /live: process is up, nothing more.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"service":   "ashareinsight",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready: every configured dependency must answer.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			checks["concept_store"] = gin.H{"status": "unhealthy", "error": err.Error()}
			healthy = false
		} else {
			checks["concept_store"] = gin.H{"status": "healthy"}
		}
	}
	if h.market != nil {
		if err := h.market.Ping(ctx); err != nil {
			checks["market_store"] = gin.H{"status": "unhealthy", "error": err.Error()}
			healthy = false
		} else {
			checks["market_store"] = gin.H{"status": "healthy"}
		}
	}

	status := "ready"
	code := http.StatusOK
	if !healthy {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"service":   "ashareinsight",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}
