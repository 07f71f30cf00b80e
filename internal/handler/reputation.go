package handler

import (
	"net/http"
	"sort"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/outcome"

	"github.com/gin-gonic/gin"
)

// GetReputation godoc
// @Summary      Reputation record for a source
// @Description  Returns the composite reliability metrics for one signal source; unknown sources are 404
// @Tags         reputation
// @Produce      json
// @Param        source  path  string  true  "Source id, e.g. tg:alpha-calls"
// @Success      200  {object}  domain.ReputationRecord
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/reputation/{source} [get]
func (h *Handler) GetReputation(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-reputation")
	defer span.End()

	source := c.Param("source")

	if h.reputation != nil {
		rec, ok, err := h.reputation.Record(ctx, source)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if ok {
			c.JSON(http.StatusOK, rec)
			return
		}
		// Persisted records lag a cron cycle behind; fall through to a live
		// fold over the in-memory signals.
	}

	signals := h.tracker.Signals(source, 0)
	if len(signals) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": outcome.ErrUnknownSource.Error()})
		return
	}
	c.JSON(http.StatusOK, outcome.ComputeReputation(source, signals, h.weights, time.Now().UTC()))
}

// GetLeaderboard godoc
// @Summary      Source reputation leaderboard
// @Description  Returns sources ranked by composite reputation score
// @Tags         reputation
// @Produce      json
// @Param        limit  query  int  false  "Max rows (default 20)"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /api/leaderboard [get]
func (h *Handler) GetLeaderboard(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-leaderboard")
	defer span.End()

	limit := limitQuery(c, 20, 100)

	if h.reputation != nil {
		records, err := h.reputation.Leaderboard(ctx, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(records) > 0 {
			c.JSON(http.StatusOK, gin.H{"count": len(records), "leaderboard": records})
			return
		}
	}

	now := time.Now().UTC()
	sources := h.tracker.Sources()
	records := make([]domain.ReputationRecord, 0, len(sources))
	for _, source := range sources {
		records = append(records, outcome.ComputeReputation(source, h.tracker.Signals(source, 0), h.weights, now))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Composite > records[j].Composite })
	if len(records) > limit {
		records = records[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"count": len(records), "leaderboard": records})
}
