package handler

import (
	"errors"
	"net/http"

	"mintwatch/internal/resolver"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetPrice godoc
// @Summary      Resolve the current price of a token
// @Description  Returns the merged market-data snapshot for a token address, served from cache unless fresh=1
// @Tags         prices
// @Produce      json
// @Param        chain    path   string  true   "Chain (ethereum, bsc, base, solana)"
// @Param        address  path   string  true   "Token address (0x... or base58 mint)"
// @Param        fresh    query  int     false  "Set to 1 to bypass the TTL cache"
// @Success      200  {object}  domain.PriceSnapshot
// @Failure      400  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/price/{chain}/{address} [get]
func (h *Handler) GetPrice(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-price")
	defer span.End()

	chain, addr, ok := tokenParams(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("chain", string(chain)), attribute.String("address", addr))

	fetch := h.resolver.Resolve
	if c.Query("fresh") == "1" {
		fetch = h.resolver.ResolveFresh
	}

	snap, err := fetch(ctx, chain, addr)
	if err != nil {
		if errors.Is(err, resolver.ErrUnavailable) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// GetProviders godoc
// @Summary      Provider health snapshot
// @Description  Returns breaker state, failure counts and rate limits for every configured provider
// @Tags         providers
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/providers [get]
func (h *Handler) GetProviders(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-providers")
	defer span.End()

	statuses := h.resolver.Providers()
	c.JSON(http.StatusOK, gin.H{
		"count":     len(statuses),
		"providers": statuses,
	})
}
