package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"mintwatch/internal/breaker"
	"mintwatch/internal/cache"
	"mintwatch/internal/config"
	"mintwatch/internal/db"
	"mintwatch/internal/history"
	"mintwatch/internal/mcpserver"
	"mintwatch/internal/outcome"
	"mintwatch/internal/provider"
	"mintwatch/internal/quality"
	"mintwatch/internal/ratelimit"
	"mintwatch/internal/repository"
	"mintwatch/internal/resolver"
	"mintwatch/internal/tracker"
	"mintwatch/pkg/tracing"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
)

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initPostgresFunc = db.InitPostgres
	initRedisFunc    = cache.InitRedis
	initTracerFunc   = tracing.InitTracer

	runStdioFunc = func(s *mcpserver.Server, ctx context.Context) error { return s.RunStdio(ctx) }

	setupSignalNotify      = ossignal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// On the stdio transport stdout belongs to the protocol; the standard logger
// writes to stderr, so logging stays safe on both transports.
func main() {
	loadEnvFunc()
	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Same Postgres and caches as the API server.
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	initPostgresFunc(ctx)
	if cfg.CacheBackend == "redis" {
		os.Setenv("REDIS_URL", cfg.RedisURL)
		initRedisFunc(ctx)
	}

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Store names match the server's so a file backend shares its snapshots.
	var backend cache.Backend
	if cfg.CacheBackend == "redis" {
		backend = cache.NewRedisBackend(cache.Client)
	} else {
		backend = cache.NewFileBackend(cfg.CacheDir)
	}
	liveStore := cache.NewStore("snapshots", time.Duration(cfg.CacheTTLSecs)*time.Second, cfg.CacheFlushWrites, backend, nil)
	histStore := cache.NewStore("history", 0, cfg.CacheFlushWrites, backend, nil)

	limits := ratelimit.NewRegistry(nil)
	breakers := breaker.NewRegistry(cfg.BreakerFailureThreshold, time.Duration(cfg.BreakerCooldownSecs)*time.Second, nil)
	retry := breaker.NewPolicy(cfg.RetryMaxAttempts, time.Duration(cfg.RetryBaseDelayMs)*time.Millisecond, cfg.RetryJitterFraction)

	sources, candleSources, symbolSources := buildProviders(tracer, limits, cfg)
	if len(sources) == 0 {
		log.Fatalf("no usable providers in PROVIDER_ORDER %v", cfg.ProviderOrder)
	}

	gate := quality.NewGate(cfg.QualityGateEnabled, cfg.QualityThreshold, 0, nil)
	priceResolver := resolver.New(tracer, sources, breakers, limits, retry, liveStore, gate, nil, cfg.ResolverFanout)
	histCoord := history.NewCoordinator(tracer, candleSources, symbolSources, breakers, retry, histStore, nil, nil)

	// Read-only repositories; migrations belong to the API server and the
	// migrate binary.
	var (
		trackerStore   tracker.Store
		reputationRepo *repository.ReputationRepository
	)
	if db.Pool != nil {
		positionRepo := repository.NewPositionRepository(db.Pool, tracer)
		signalRepo := repository.NewSignalRepository(db.Pool, tracer)
		reputationRepo = repository.NewReputationRepository(db.Pool, tracer)
		trackerStore = repository.NewTrackerStore(positionRepo, signalRepo)
	}

	trk := tracker.New(tracer, histCoord, priceResolver, trackerStore, nil, tracker.Config{
		Horizons:          cfg.CheckpointHorizons,
		DecisionHorizon:   cfg.DecisionHorizon,
		WinnerThreshold:   cfg.WinnerROIThreshold,
		DeadLiquidityUSD:  cfg.DeadLiquidityUSD,
		DeadPriceFraction: cfg.DeadPriceFraction,
	}, nil)
	if err := trk.Load(ctx); err != nil {
		log.Fatalf("failed to load tracked positions: %v", err)
	}

	weights := outcome.Weights{
		WinRate: cfg.ReputationWeights.WinRate,
		MeanROI: cfg.ReputationWeights.MeanROI,
		Sharpe:  cfg.ReputationWeights.Sharpe,
		Speed:   cfg.ReputationWeights.Speed,
	}

	srv := mcpserver.New(tracer, priceResolver, trk, reputationSource(reputationRepo), priceResolver,
		[]mcpserver.CacheStatsSource{liveStore, histStore}, weights, mcpserver.Config{
			RequestTimeout:  time.Duration(cfg.MCPRequestTimeoutSecs) * time.Second,
			RateLimitPerMin: cfg.MCPRateLimitPerMin,
		})

	switch cfg.MCPTransport {
	case "http":
		addr := fmt.Sprintf("%s:%d", cfg.MCPHTTPBind, cfg.MCPHTTPPort)
		httpSrv := &http.Server{
			Addr:    addr,
			Handler: srv.HTTPHandler(cfg.MCPAuthToken),
		}

		go func() {
			log.Printf("MCP server listening on %s", addr)
			if err := startHTTPServerFunc(httpSrv); err != nil && err != http.ErrServerClosed {
				log.Fatalf("listen: %s\n", err)
			}
		}()

		quit := make(chan os.Signal, 1)
		setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
		waitForSignalFunc(quit)
		log.Println("Shutting down MCP server...")

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownHTTPServerFunc(httpSrv, shutdownCtx); err != nil {
			log.Printf("MCP server shutdown error: %v", err)
		}

	default: // stdio
		go func() {
			quit := make(chan os.Signal, 1)
			setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
			waitForSignalFunc(quit)
			cancel()
		}()

		log.Println("MCP server on stdio")
		if err := runStdioFunc(srv, ctx); err != nil && ctx.Err() == nil {
			log.Printf("MCP stdio session ended: %v", err)
		}
	}

	// Prices resolved for tool calls may still sit in the write buffer
	for _, store := range []*cache.Store{liveStore, histStore} {
		if err := store.Flush(); err != nil {
			log.Printf("final cache flush failed: %v", err)
		}
	}

	log.Println("MCP server exited")
}

// buildProviders instantiates the configured clients and splits them by
// capability, mirroring the API server's wiring.
func buildProviders(tracer trace.Tracer, limits *ratelimit.Registry, cfg *config.Config) ([]resolver.Source, []history.CandleSource, []history.SymbolSource) {
	var (
		sources []resolver.Source
		candles []history.CandleSource
		symbols []history.SymbolSource
	)
	for _, name := range cfg.ProviderOrder {
		var client any
		switch name {
		case "dexscreener":
			client = provider.NewDexScreenerProvider(tracer, limits.For(name))
		case "geckoterminal":
			client = provider.NewGeckoTerminalProvider(tracer, limits.For(name))
		case "birdeye":
			if cfg.BirdeyeAPIKey == "" {
				continue
			}
			client = provider.NewBirdeyeProvider(tracer, limits.For(name), cfg.BirdeyeAPIKey)
		case "coingecko":
			client = provider.NewCoinGeckoProvider(tracer, limits.For(name))
		case "onchain":
			client = provider.NewBlockscoutProvider(tracer, limits.For(name), nil)
		default:
			log.Printf("Warning: unknown provider %q in PROVIDER_ORDER, skipping", name)
			continue
		}
		if s, ok := client.(resolver.Source); ok {
			sources = append(sources, s)
		}
		if c, ok := client.(history.CandleSource); ok {
			candles = append(candles, c)
		}
		if s, ok := client.(history.SymbolSource); ok {
			symbols = append(symbols, s)
		}
	}
	return sources, candles, symbols
}

// reputationSource keeps a nil repository out of the interface so reputation
// is folded live from the signal history.
func reputationSource(r *repository.ReputationRepository) mcpserver.ReputationSource {
	if r == nil {
		return nil
	}
	return r
}
