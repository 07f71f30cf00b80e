// Package mcpserver exposes the watchlist to MCP clients as four read-only
// tools: resolve_price, token_performance, source_reputation and
// provider_health. The server speaks stdio by default and streamable HTTP
// when configured.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"mintwatch/internal/cache"
	"mintwatch/internal/domain"
	"mintwatch/internal/outcome"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const serverVersion = "1.0.0"

// PriceSource resolves current token prices, cached or fresh.
type PriceSource interface {
	Resolve(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error)
	ResolveFresh(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error)
}

// PositionSource serves tracked positions and signal history.
type PositionSource interface {
	Position(chain domain.Chain, address string) (domain.TrackedPosition, bool)
	Signals(source string, limit int) []domain.Signal
	Sources() []string
	OpenCount() int
}

// ReputationSource serves persisted reputation records. Optional; when nil
// reputation is folded live from the signal history.
type ReputationSource interface {
	Record(ctx context.Context, source string) (domain.ReputationRecord, bool, error)
}

// ProviderSource reports breaker and rate-limit state per provider.
type ProviderSource interface {
	Providers() []domain.ProviderStatus
}

// CacheStatsSource exposes hit and flush counters for one result cache.
type CacheStatsSource interface {
	Stats() cache.Stats
}

// Config tunes per-request behavior of the MCP surface.
type Config struct {
	RequestTimeout  time.Duration
	RateLimitPerMin int
}

// Server wires the watchlist services into an MCP server instance.
type Server struct {
	tracer     trace.Tracer
	prices     PriceSource
	positions  PositionSource
	reputation ReputationSource
	providers  ProviderSource
	caches     []CacheStatsSource
	weights    outcome.Weights
	timeout    time.Duration

	mcp *mcp.Server
}

func New(tracer trace.Tracer, prices PriceSource, positions PositionSource, reputation ReputationSource,
	providers ProviderSource, caches []CacheStatsSource, weights outcome.Weights, cfg Config) *Server {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	s := &Server{
		tracer:     tracer,
		prices:     prices,
		positions:  positions,
		reputation: reputation,
		providers:  providers,
		caches:     caches,
		weights:    weights,
		timeout:    timeout,
	}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "mintwatch",
		Title:   "Mintwatch token watchlist",
		Version: serverVersion,
	}, &mcp.ServerOptions{
		Instructions: "Query live token prices, tracked position performance, " +
			"source reputation and provider health from the mintwatch watchlist.",
	})

	if cfg.RateLimitPerMin > 0 {
		srv.AddReceivingMiddleware(toolCallRateLimiter(cfg.RateLimitPerMin))
	}

	mcp.AddTool(srv, &mcp.Tool{
		Name: "resolve_price",
		Description: "Resolve the current price, market cap, liquidity and 24h volume " +
			"of a token by chain and address. Set fresh to bypass the result cache.",
	}, s.resolvePrice)
	mcp.AddTool(srv, &mcp.Tool{
		Name: "token_performance",
		Description: "Report the tracked performance of a token: entry price, " +
			"all-time-high since first mention, checkpoint ROI and current ROI.",
	}, s.tokenPerformance)
	mcp.AddTool(srv, &mcp.Tool{
		Name: "source_reputation",
		Description: "Report the reputation of a mention source: win rate, mean ROI " +
			"and the composite 0-100 score folded from its signal history.",
	}, s.sourceReputation)
	mcp.AddTool(srv, &mcp.Tool{
		Name: "provider_health",
		Description: "Report circuit breaker state and rate limits per market-data " +
			"provider, plus result cache statistics.",
	}, s.providerHealth)

	s.mcp = srv
	return s
}

// RunStdio serves one MCP session over stdin/stdout until the client
// disconnects or ctx is canceled.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler returns the streamable HTTP handler, wrapped with bearer-token
// auth when a token is configured.
func (s *Server) HTTPHandler(authToken string) http.Handler {
	h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	if authToken == "" {
		return h
	}
	return bearerAuth(authToken, h)
}

func bearerAuth(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if provided == "" || provided != token {
			w.Header().Set("WWW-Authenticate", `Bearer realm="mintwatch"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// toolCallRateLimiter caps tools/call invocations per session. Handshake and
// listing methods stay unmetered so clients can always discover the surface.
func toolCallRateLimiter(perMin int) mcp.Middleware {
	var (
		mu       sync.Mutex
		limiters = make(map[mcp.Session]*rate.Limiter)
	)
	limit := rate.Every(time.Minute / time.Duration(perMin))
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if method != "tools/call" {
				return next(ctx, method, req)
			}
			session := req.GetSession()
			mu.Lock()
			lim, ok := limiters[session]
			if !ok {
				lim = rate.NewLimiter(limit, perMin)
				limiters[session] = lim
			}
			mu.Unlock()
			if !lim.Allow() {
				return nil, fmt.Errorf("rate limit exceeded: %d tool calls per minute", perMin)
			}
			return next(ctx, method, req)
		}
	}
}
