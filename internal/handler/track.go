package handler

import (
	"net/http"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/provider"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type trackRequest struct {
	Address    string    `json:"address"`
	Chain      string    `json:"chain"`
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
}

// PostTrack godoc
// @Summary      Track a token observation
// @Description  Records one observation; the first sighting of an address opens a tracked position
// @Tags         positions
// @Accept       json
// @Produce      json
// @Param        observation  body  trackRequest  true  "Observation"
// @Success      200  {object}  map[string]interface{}
// @Success      201  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/track [post]
func (h *Handler) PostTrack(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.post-track")
	defer span.End()

	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	chain := domain.Chain(req.Chain)
	if !chain.IsSupported() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":            "unsupported chain: " + req.Chain,
			"supported_chains": domain.SupportedChains,
		})
		return
	}
	addr, err := provider.NormalizeAddress(chain, req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}
	if req.ObservedAt.IsZero() {
		req.ObservedAt = time.Now().UTC()
	}
	span.SetAttributes(attribute.String("chain", string(chain)), attribute.String("address", addr))

	pos, opened, err := h.tracker.Track(ctx, domain.Observation{
		Address:    addr,
		Chain:      chain,
		Source:     req.Source,
		ObservedAt: req.ObservedAt,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if opened {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"opened": opened, "position": pos})
}

// GetPositions godoc
// @Summary      List tracked positions
// @Description  Returns tracked positions newest first, optionally filtered by status
// @Tags         positions
// @Produce      json
// @Param        status  query  string  false  "Filter: open, complete or dead"
// @Param        limit   query  int     false  "Max rows (default 100)"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/positions [get]
func (h *Handler) GetPositions(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-positions")
	defer span.End()

	status := domain.PositionStatus(c.Query("status"))
	switch status {
	case "", domain.PositionOpen, domain.PositionComplete, domain.PositionDead:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + string(status)})
		return
	}

	positions := h.tracker.Positions(status, limitQuery(c, 100, 500))
	c.JSON(http.StatusOK, gin.H{"count": len(positions), "positions": positions})
}

// GetPosition godoc
// @Summary      One tracked position
// @Description  Returns the longitudinal record for a token: entry, ATH, checkpoint ROIs and status
// @Tags         positions
// @Produce      json
// @Param        chain    path  string  true  "Chain"
// @Param        address  path  string  true  "Token address"
// @Success      200  {object}  domain.TrackedPosition
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/positions/{chain}/{address} [get]
func (h *Handler) GetPosition(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-position")
	defer span.End()

	chain, addr, ok := tokenParams(c)
	if !ok {
		return
	}
	pos, ok := h.tracker.Position(chain, addr)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "position not tracked"})
		return
	}
	c.JSON(http.StatusOK, pos)
}

// GetSignals godoc
// @Summary      List resolved signals
// @Description  Returns resolved signals newest first, optionally for one source
// @Tags         signals
// @Produce      json
// @Param        source  query  string  false  "Source id"
// @Param        limit   query  int     false  "Max rows (default 100)"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/signals [get]
func (h *Handler) GetSignals(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-signals")
	defer span.End()

	signals := h.tracker.Signals(c.Query("source"), limitQuery(c, 100, 500))
	c.JSON(http.StatusOK, gin.H{"count": len(signals), "signals": signals})
}
