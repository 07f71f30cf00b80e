package handler

import (
	"net/http"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/ml/common"

	"github.com/gin-gonic/gin"
)

// GetPredictions godoc
// @Summary      Win probability predictions for a token
// @Description  Returns the latest advisory prediction per model for a tracked token
// @Tags         ml
// @Produce      json
// @Param        chain    path  string  true  "Chain"
// @Param        address  path  string  true  "Token address"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/ml/predictions/{chain}/{address} [get]
func (h *Handler) GetPredictions(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-predictions")
	defer span.End()

	if h.preds == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "predictions unavailable: no database"})
		return
	}
	chain, addr, ok := tokenParams(c)
	if !ok {
		return
	}

	preds, err := h.preds.LatestForToken(ctx, chain, addr)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(preds), "predictions": preds})
}

// GetModelInfo godoc
// @Summary      Win probability model status
// @Description  Returns version history per model family plus resolved-prediction accuracy
// @Tags         ml
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Router       /api/ml/model [get]
func (h *Handler) GetModelInfo(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-model-info")
	defer span.End()

	if h.models == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model registry unavailable: no database"})
		return
	}

	models := make(map[string][]domain.MLModelVersion, 2)
	for _, key := range []string{common.ModelKeyLogReg, common.ModelKeyXGBoost} {
		history, err := h.models.History(ctx, key, 5)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		models[key] = history
	}

	resp := gin.H{"feature_spec_version": common.FeatureSpecVersion, "models": models}
	if h.preds != nil {
		if accuracy, err := h.preds.AccuracyByModel(ctx); err == nil {
			resp["accuracy"] = accuracy
		}
	}
	c.JSON(http.StatusOK, resp)
}

// TriggerTraining godoc
// @Summary      Trigger model training manually
// @Description  Runs an immediate training cycle and returns per-model outcomes
// @Tags         ml
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/ml/train [post]
func (h *Handler) TriggerTraining(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-training")
	defer span.End()

	if h.trainer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "training unavailable: ml disabled"})
		return
	}

	results, err := h.trainer.TrainAll(ctx, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "trained": len(results), "results": results})
}
