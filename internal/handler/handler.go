package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/ml/predictions"
	"mintwatch/internal/ml/training"
	"mintwatch/internal/observability"
	"mintwatch/internal/outcome"
	"mintwatch/internal/provider"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// PriceResolver answers current-price questions and reports per-provider
// admission state.
type PriceResolver interface {
	Resolve(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error)
	ResolveFresh(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error)
	Providers() []domain.ProviderStatus
}

// PositionTracker is the read/write surface of the position tracker the API
// exposes.
type PositionTracker interface {
	Track(ctx context.Context, obs domain.Observation) (*domain.TrackedPosition, bool, error)
	Position(chain domain.Chain, address string) (domain.TrackedPosition, bool)
	Positions(status domain.PositionStatus, limit int) []domain.TrackedPosition
	Signals(source string, limit int) []domain.Signal
	Sources() []string
	OpenCount() int
}

// ReputationReader serves persisted reputation records. Optional: without it
// the handler recomputes records from in-memory signals on demand.
type ReputationReader interface {
	Record(ctx context.Context, source string) (domain.ReputationRecord, bool, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.ReputationRecord, error)
}

// PredictionReader serves stored win-probability predictions.
type PredictionReader interface {
	LatestForToken(ctx context.Context, chain domain.Chain, address string) ([]domain.WinPrediction, error)
	AccuracyByModel(ctx context.Context) ([]predictions.ModelAccuracy, error)
}

// ModelRegistry serves trained model version history.
type ModelRegistry interface {
	History(ctx context.Context, modelKey string, limit int) ([]domain.MLModelVersion, error)
}

// TrainingRunner runs one on-demand training cycle.
type TrainingRunner interface {
	TrainAll(ctx context.Context, now time.Time) ([]training.ModelTrainResult, error)
}

type Handler struct {
	tracer   trace.Tracer
	resolver PriceResolver
	tracker  PositionTracker
	weights  outcome.Weights

	apiKey     string
	reputation ReputationReader
	preds      PredictionReader
	models     ModelRegistry
	trainer    TrainingRunner
}

func New(tracer trace.Tracer, resolver PriceResolver, tracker PositionTracker, weights outcome.Weights) *Handler {
	return &Handler{
		tracer:   tracer,
		resolver: resolver,
		tracker:  tracker,
		weights:  weights,
	}
}

// SetAPIKey guards mutating routes with X-API-Key. Empty disables auth.
func (h *Handler) SetAPIKey(key string) { h.apiKey = key }

// SetReputationReader attaches the persisted reputation store.
func (h *Handler) SetReputationReader(r ReputationReader) { h.reputation = r }

// SetPredictionReader attaches the stored win-prediction reader.
func (h *Handler) SetPredictionReader(p PredictionReader) { h.preds = p }

// SetModelRegistry attaches the model version history reader.
func (h *Handler) SetModelRegistry(m ModelRegistry) { h.models = m }

// SetTrainingRunner enables the manual training trigger endpoint.
func (h *Handler) SetTrainingRunner(t TrainingRunner) { h.trainer = t }

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(observability.Handler()))
	r.GET("/api/price/:chain/:address", h.GetPrice)
	r.GET("/api/providers", h.GetProviders)
	r.POST("/api/track", APIKeyAuth(h.apiKey), h.PostTrack)
	r.GET("/api/positions", h.GetPositions)
	r.GET("/api/positions/:chain/:address", h.GetPosition)
	r.GET("/api/signals", h.GetSignals)
	r.GET("/api/reputation/:source", h.GetReputation)
	r.GET("/api/leaderboard", h.GetLeaderboard)
	r.GET("/api/ml/predictions/:chain/:address", h.GetPredictions)
	r.GET("/api/ml/model", h.GetModelInfo)
	r.POST("/api/ml/train", APIKeyAuth(h.apiKey), h.TriggerTraining)
}

// tokenParams validates the :chain/:address pair shared by the token routes.
// On failure it writes the 400 response and reports !ok.
func tokenParams(c *gin.Context) (domain.Chain, string, bool) {
	chain := domain.Chain(strings.ToLower(c.Param("chain")))
	if !chain.IsSupported() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":            "unsupported chain: " + c.Param("chain"),
			"supported_chains": domain.SupportedChains,
		})
		return "", "", false
	}
	addr, err := provider.NormalizeAddress(chain, c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}
	return chain, addr, true
}

// limitQuery parses ?limit= with a default, rejecting zero, negatives and
// anything above max.
func limitQuery(c *gin.Context, def, max int) int {
	limit := def
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= max {
			limit = n
		}
	}
	return limit
}
