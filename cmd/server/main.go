package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mintwatch/internal/bot"
	"mintwatch/internal/breaker"
	"mintwatch/internal/cache"
	"mintwatch/internal/config"
	"mintwatch/internal/db"
	"mintwatch/internal/handler"
	"mintwatch/internal/history"
	"mintwatch/internal/job"
	"mintwatch/internal/mentions"
	"mintwatch/internal/ml/features"
	"mintwatch/internal/ml/inference"
	"mintwatch/internal/ml/predictions"
	"mintwatch/internal/ml/registry"
	"mintwatch/internal/ml/training"
	"mintwatch/internal/observability"
	"mintwatch/internal/outcome"
	"mintwatch/internal/provider"
	"mintwatch/internal/quality"
	"mintwatch/internal/ratelimit"
	"mintwatch/internal/repository"
	"mintwatch/internal/resolver"
	"mintwatch/internal/tracker"
	"mintwatch/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "mintwatch/docs"
)

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initPostgresFunc = db.InitPostgres
	initRedisFunc    = cache.InitRedis
	initTracerFunc   = tracing.InitTracer
	newMetricsFunc   = observability.NewMetrics

	startPollerFunc = func(p *job.Poller, ctx context.Context) { go p.Start(ctx) }
	startSchedFunc  = func(s *job.Scheduler, ctx context.Context) { go s.Start(ctx) }
	startInferFunc  = func(j *job.InferenceJob, ctx context.Context) { go j.Start(ctx) }

	startTelegramBotFunc   = bot.StartTelegramBot
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Mintwatch API
// @version         1.0
// @description     Token mention tracking: multi-provider price resolution, ATH/ROI performance and source reputation.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey ApiKeyAuth
// @in   header
// @name X-API-Key
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres (optional) and Redis (only as a cache backend)
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

	metrics := newMetricsFunc("mintwatch")

	// Result caches: TTL for live snapshots, immutable for historical facts.
	// Both flush on write pressure and once more on shutdown.
	var backend cache.Backend
	if cfg.CacheBackend == "redis" {
		backend = cache.NewRedisBackend(cache.Client)
	} else {
		backend = cache.NewFileBackend(cfg.CacheDir)
	}
	liveStore := cache.NewStore("snapshots", time.Duration(cfg.CacheTTLSecs)*time.Second, cfg.CacheFlushWrites, backend, nil)
	histStore := cache.NewStore("history", 0, cfg.CacheFlushWrites, backend, nil)

	// Admission control shared by every provider call
	limits := ratelimit.NewRegistry(nil)
	breakers := breaker.NewRegistry(cfg.BreakerFailureThreshold, time.Duration(cfg.BreakerCooldownSecs)*time.Second, nil)
	retry := breaker.NewPolicy(cfg.RetryMaxAttempts, time.Duration(cfg.RetryBaseDelayMs)*time.Millisecond, cfg.RetryJitterFraction)

	// Provider clients in configured priority order
	sources, candleSources, symbolSources := buildProviders(tracer, limits, cfg)
	if len(sources) == 0 {
		log.Fatalf("no usable providers in PROVIDER_ORDER %v", cfg.ProviderOrder)
	}

	gate := quality.NewGate(cfg.QualityGateEnabled, cfg.QualityThreshold, 0, metrics)
	priceResolver := resolver.New(tracer, sources, breakers, limits, retry, liveStore, gate, metrics, cfg.ResolverFanout)
	histCoord := history.NewCoordinator(tracer, candleSources, symbolSources, breakers, retry, histStore, metrics, nil)

	// Repositories and migrations (skipped without a database)
	var (
		trackerStore   tracker.Store
		positionRepo   *repository.PositionRepository
		signalRepo     *repository.SignalRepository
		reputationRepo *repository.ReputationRepository
	)
	if db.Pool != nil {
		positionRepo = repository.NewPositionRepository(db.Pool, tracer)
		signalRepo = repository.NewSignalRepository(db.Pool, tracer)
		reputationRepo = repository.NewReputationRepository(db.Pool, tracer)
		if err := positionRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run position migrations: %v", err)
		}
		if err := signalRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run signal migrations: %v", err)
		}
		if err := reputationRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run reputation migrations: %v", err)
		}
		trackerStore = repository.NewTrackerStore(positionRepo, signalRepo)
	}

	// Position tracker, reloaded from the store on boot
	trk := tracker.New(tracer, histCoord, priceResolver, trackerStore, metrics, tracker.Config{
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

	// Mention feed scanner (optional)
	var scanner job.MentionScanner
	if len(cfg.RedditSubs)+len(cfg.RSSFeeds) > 0 {
		var llm mentions.BatchLLMScorer
		if cfg.OpenAIAPIKey != "" {
			llm = mentions.NewOpenAIScorer(cfg.OpenAIAPIKey, cfg.OpenAIModel)
			log.Println("OpenAI sentiment scoring enabled for mention feeds")
		}
		scanner = mentions.NewScanner(tracer,
			provider.NewRedditProvider(tracer, limits.For("reddit")),
			provider.NewRSSProvider(tracer, limits.For("rss")),
			mentions.NewScorer(llm, 0),
			trk,
			mentions.ScanConfig{RedditSubs: cfg.RedditSubs, RSSFeeds: cfg.RSSFeeds})
	}

	// Win probability subsystem (optional, advisory)
	var (
		trainSvc *training.Service
		inferSvc *inference.Service
		regRepo  *registry.Repository
		predRepo *predictions.Repository
	)
	if cfg.MLEnabled && db.Pool != nil {
		regRepo = registry.NewRepository(db.Pool, tracer)
		predRepo = predictions.NewRepository(db.Pool, tracer)
		if err := regRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run model registry migrations: %v", err)
		}
		if err := predRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run prediction migrations: %v", err)
		}
		engine := features.NewEngine(0)
		trainSvc = training.NewService(tracer, engine, trk, histCoord, regRepo, training.Config{
			TrainWindowDays: cfg.MLTrainWindowDays,
			MinTrainSamples: cfg.MLMinTrainSamples,
		})
		inferSvc = inference.NewService(tracer, engine, trk, trk, histCoord, regRepo, predRepo, inference.Config{
			PriorWeights: weights,
		})
		log.Println("Win probability models enabled")
	} else if cfg.MLEnabled {
		log.Println("ML_ENABLED set but no database; win probability models disabled")
	}

	// Background loops: sweeps, flush safety net, feed scans
	poller := job.NewPoller(tracer, trk, []job.FlushableStore{liveStore, histStore}, scanner, metrics,
		cfg.SweepIntervalSecs, cfg.FlushIntervalSecs, cfg.MentionScanSecs)
	startPollerFunc(poller, ctx)

	if inferSvc != nil {
		inferJob := job.NewInferenceJob(tracer, inferSvc, time.Duration(cfg.MLInferPollSecs)*time.Second)
		startInferFunc(inferJob, ctx)
	}

	// Calendar work: reputation recompute, training, retention
	var trainer job.ModelTrainer
	if trainSvc != nil {
		trainer = trainSvc
	}
	sched := job.NewScheduler(tracer, trk, reputationStore(reputationRepo), trainer,
		positionPruner(positionRepo), signalPruner(signalRepo), predictionPruner(predRepo),
		job.SchedulerConfig{
			ReputationSpec: cfg.ReputationCronSpec,
			RetentionSpec:  cfg.RetentionCronSpec,
			TrainHourUTC:   cfg.MLTrainHourUTC,
			RetainDays:     cfg.PositionRetainDays,
			Weights:        weights,
		})
	startSchedFunc(sched, ctx)

	// Telegram ingestion
	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	startTelegramBotFunc(priceResolver, trk, weights)

	// HTTP API
	h := handler.New(tracer, priceResolver, trk, weights)
	h.SetAPIKey(cfg.APIKey)
	if reputationRepo != nil {
		h.SetReputationReader(reputationRepo)
	}
	if predRepo != nil {
		h.SetPredictionReader(predRepo)
	}
	if regRepo != nil {
		h.SetModelRegistry(regRepo)
	}
	if trainSvc != nil {
		h.SetTrainingRunner(trainSvc)
	}

	r := newRouterFunc()
	r.Use(otelgin.Middleware("mintwatch"))

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	// Buffered cache writes must reach disk before exit
	for _, store := range []*cache.Store{liveStore, histStore} {
		if err := store.Flush(); err != nil {
			log.Printf("final cache flush failed: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

// buildProviders instantiates the configured clients and splits them by
// capability: every provider resolves prices, a subset serves candles, a
// subset resolves symbols. All three lists keep the configured priority.
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

// Typed nil guards: a nil *Repository must reach the scheduler as a nil
// interface, not a non-nil interface wrapping nil.

func reputationStore(r *repository.ReputationRepository) job.ReputationStore {
	if r == nil {
		return nil
	}
	return r
}

func positionPruner(r *repository.PositionRepository) job.PositionPruner {
	if r == nil {
		return nil
	}
	return r
}

func signalPruner(r *repository.SignalRepository) job.SignalPruner {
	if r == nil {
		return nil
	}
	return r
}

func predictionPruner(r *predictions.Repository) job.PredictionPruner {
	if r == nil {
		return nil
	}
	return r
}
