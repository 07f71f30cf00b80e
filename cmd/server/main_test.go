package main

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"mintwatch/internal/bot"
	"mintwatch/internal/config"
	"mintwatch/internal/job"
	"mintwatch/internal/observability"
	"mintwatch/internal/outcome"
	"mintwatch/internal/ratelimit"

	"github.com/gin-gonic/gin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMainBootstrap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	restore := stubServerDeps(t.TempDir())
	defer restore()

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
}

func stubServerDeps(cacheDir string) func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitPostgres := initPostgresFunc
	origInitRedis := initRedisFunc
	origInitTracer := initTracerFunc
	origNewMetrics := newMetricsFunc
	origStartPoller := startPollerFunc
	origStartSched := startSchedFunc
	origStartInfer := startInferFunc
	origStartTelegram := startTelegramBotFunc
	origNewRouter := newRouterFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc
	origStartHTTP := startHTTPServerFunc
	origShutdownHTTP := shutdownHTTPServerFunc

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		return &config.Config{
			CacheBackend:  "file",
			CacheDir:      cacheDir,
			ProviderOrder: []string{"dexscreener", "geckoterminal"},
			HTTPPort:      8080,
		}
	}
	initPostgresFunc = func(context.Context) {}
	initRedisFunc = func(context.Context) {}
	initTracerFunc = func(ctx context.Context) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	newMetricsFunc = func(string) *observability.Metrics { return nil }
	startPollerFunc = func(*job.Poller, context.Context) {}
	startSchedFunc = func(*job.Scheduler, context.Context) {}
	startInferFunc = func(*job.InferenceJob, context.Context) {}
	startTelegramBotFunc = func(bot.PriceSource, bot.TrackSink, outcome.Weights) {}
	newRouterFunc = func(...gin.OptionFunc) *gin.Engine { return gin.New() }
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}
	startHTTPServerFunc = func(*http.Server) error { return http.ErrServerClosed }
	shutdownHTTPServerFunc = func(*http.Server, context.Context) error { return nil }

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initPostgresFunc = origInitPostgres
		initRedisFunc = origInitRedis
		initTracerFunc = origInitTracer
		newMetricsFunc = origNewMetrics
		startPollerFunc = origStartPoller
		startSchedFunc = origStartSched
		startInferFunc = origStartInfer
		startTelegramBotFunc = origStartTelegram
		newRouterFunc = origNewRouter
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
		startHTTPServerFunc = origStartHTTP
		shutdownHTTPServerFunc = origShutdownHTTP
	}
}

func TestBuildProvidersFiltersAndOrders(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	tracer := tp.Tracer("test")

	cfg := &config.Config{
		ProviderOrder: []string{"dexscreener", "geckoterminal", "birdeye", "coingecko", "onchain", "bogus"},
	}
	limits := ratelimit.NewRegistry(nil)

	sources, candles, symbols := buildProviders(tracer, limits, cfg)

	// birdeye drops out without an API key, bogus is unknown
	wantSources := []string{"dexscreener", "geckoterminal", "coingecko", "onchain"}
	if len(sources) != len(wantSources) {
		t.Fatalf("expected %d sources, got %d", len(wantSources), len(sources))
	}
	for i, want := range wantSources {
		if got := sources[i].Name(); got != want {
			t.Errorf("source %d: expected %s, got %s", i, want, got)
		}
	}

	wantCandles := []string{"geckoterminal", "coingecko"}
	if len(candles) != len(wantCandles) {
		t.Fatalf("expected %d candle sources, got %d", len(wantCandles), len(candles))
	}
	for i, want := range wantCandles {
		if got := candles[i].Name(); got != want {
			t.Errorf("candle source %d: expected %s, got %s", i, want, got)
		}
	}

	if len(symbols) == 0 {
		t.Fatal("expected symbol sources")
	}
	if got := symbols[0].Name(); got != "dexscreener" {
		t.Errorf("expected dexscreener as first symbol source, got %s", got)
	}

	cfg.BirdeyeAPIKey = "key"
	sources, candles, _ = buildProviders(tracer, limits, cfg)
	if len(sources) != 5 {
		t.Fatalf("expected 5 sources with birdeye key, got %d", len(sources))
	}
	if len(candles) != 3 {
		t.Fatalf("expected 3 candle sources with birdeye key, got %d", len(candles))
	}
}

func TestNilRepositoryGuards(t *testing.T) {
	if reputationStore(nil) != nil {
		t.Error("expected nil ReputationStore interface")
	}
	if positionPruner(nil) != nil {
		t.Error("expected nil PositionPruner interface")
	}
	if signalPruner(nil) != nil {
		t.Error("expected nil SignalPruner interface")
	}
	if predictionPruner(nil) != nil {
		t.Error("expected nil PredictionPruner interface")
	}
}
