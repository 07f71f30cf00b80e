package handler

import (
	"context"
	"net/http"
	"time"

	"mintwatch/internal/cache"
	"mintwatch/internal/db"

	"github.com/gin-gonic/gin"
)

// Ping indirection so tests can force component failures without a live
// backend.
var (
	pingPostgres = func(ctx context.Context) error {
		return db.Pool.Ping(ctx)
	}
	pingRedis = func(ctx context.Context) error {
		return cache.Client.Ping(ctx).Err()
	}
)

// Healthz godoc
// @Summary      Liveness and component status
// @Description  Reports process liveness plus the state of Postgres, Redis and the provider breakers
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "disabled"
	if db.Pool != nil {
		dbStatus = "ok"
		if err := pingPostgres(ctx); err != nil {
			dbStatus = "error: " + err.Error()
		}
	}

	redisStatus := "disabled"
	if cache.Client != nil {
		redisStatus = "ok"
		if err := pingRedis(ctx); err != nil {
			redisStatus = "error: " + err.Error()
		}
	}

	statuses := h.resolver.Providers()
	open := 0
	for _, s := range statuses {
		if s.BreakerState == "open" {
			open++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"db":             dbStatus,
		"redis":          redisStatus,
		"providers":      len(statuses),
		"open_breakers":  open,
		"open_positions": h.tracker.OpenCount(),
	})
}
