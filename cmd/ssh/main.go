package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"mintwatch/internal/breaker"
	"mintwatch/internal/cache"
	"mintwatch/internal/config"
	"mintwatch/internal/db"
	"mintwatch/internal/history"
	"mintwatch/internal/outcome"
	"mintwatch/internal/provider"
	"mintwatch/internal/quality"
	"mintwatch/internal/ratelimit"
	"mintwatch/internal/repository"
	"mintwatch/internal/resolver"
	"mintwatch/internal/tracker"
	"mintwatch/internal/tui"
	"mintwatch/pkg/tracing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	gossh "golang.org/x/crypto/ssh"
)

// ctxKey is a typed context key to avoid collisions.
type ctxKey string

const sshUserKey ctxKey = "ssh_user"

// reloadInterval is how often the in-memory read model is re-pulled from the
// store so long-lived sessions see sweeps made by the API server.
const reloadInterval = time.Minute

var (
	loadEnvFunc       = godotenv.Load
	loadConfigFunc    = config.Load
	initPostgresFunc  = db.InitPostgres
	initRedisFunc     = cache.InitRedis
	initTracerFunc    = tracing.InitTracer
	newWishServerFunc = wish.NewServer
	setupSignalNotify = ossignal.Notify
	waitForSignalFunc = func(quit <-chan os.Signal) { <-quit }
)

func main() {
	loadEnvFunc()
	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The dashboard reads the same Postgres and caches as the API server.
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

	// Read-only repositories. Migrations belong to the API server and the
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
	if trackerStore != nil {
		go reloadLoop(ctx, trk)
	}

	weights := outcome.Weights{
		WinRate: cfg.ReputationWeights.WinRate,
		MeanROI: cfg.ReputationWeights.MeanROI,
		Sharpe:  cfg.ReputationWeights.Sharpe,
		Speed:   cfg.ReputationWeights.Speed,
	}

	if cfg.SSHAuthorizedKeys == "" {
		log.Fatal("SSH_AUTHORIZED_KEYS not set; the dashboard would accept no one")
	}
	authorized, err := loadAuthorizedKeys(cfg.SSHAuthorizedKeys)
	if err != nil {
		log.Fatalf("failed to read authorized keys %q: %v", cfg.SSHAuthorizedKeys, err)
	}
	log.Printf("SSH allowlist: %d keys", len(authorized))

	// Build Wish SSH server
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.SSHPort)

	srv, err := newWishServerFunc(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithPublicKeyAuth(func(ctx ssh.Context, key ssh.PublicKey) bool {
			name, ok := authorizedName(authorized, key)
			if !ok {
				log.Printf("SSH auth denied: fingerprint=%s", gossh.FingerprintSHA256(key))
				return false
			}
			if name == "" {
				name = ctx.User()
			}
			ctx.SetValue(sshUserKey, name)
			log.Printf("SSH auth accepted: user=%s", name)
			return true
		}),
		wish.WithMiddleware(
			bubbletea.Middleware(func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
				username, _ := s.Context().Value(sshUserKey).(string)
				if username == "" {
					username = s.User()
				}

				svc := tui.Services{
					Positions:  trk,
					Prices:     priceResolver,
					Providers:  priceResolver,
					Reputation: reputationSource(reputationRepo),
					Caches:     []tui.CacheStatsSource{liveStore, histStore},
					Weights:    weights,
					Username:   username,
				}

				model := tui.NewAppModel(svc)
				pty, _, _ := s.Pty()
				model.SetSize(pty.Window.Width, pty.Window.Height)

				return model, []tea.ProgramOption{tea.WithAltScreen()}
			}),
			activeterm.Middleware(),
			logging.Middleware(),
		),
	)
	if err != nil {
		log.Fatalf("failed to create SSH server: %v", err)
	}

	if srv != nil {
		go func() {
			log.Printf("SSH server listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil {
				log.Printf("SSH server stopped: %v", err)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down SSH server...")

	cancel()

	// Prices resolved during sessions may still sit in the write buffer
	for _, store := range []*cache.Store{liveStore, histStore} {
		if err := store.Flush(); err != nil {
			log.Printf("final cache flush failed: %v", err)
		}
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("SSH server shutdown error: %v", err)
		}
	}

	log.Println("SSH server exited")
}

// reloadLoop periodically re-pulls positions and signals from the store.
func reloadLoop(ctx context.Context, trk *tracker.Tracker) {
	ticker := time.NewTicker(reloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := trk.Load(ctx); err != nil {
				log.Printf("tracker reload failed: %v", err)
			}
		}
	}
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

// loadAuthorizedKeys parses an OpenSSH authorized_keys file into a map of
// SHA256 fingerprint to key comment. The comment doubles as the display name.
func loadAuthorizedKeys(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]string)
	rest := data
	for len(bytes.TrimSpace(rest)) > 0 {
		key, comment, _, next, err := gossh.ParseAuthorizedKey(rest)
		if err != nil {
			// Nothing parseable left; unparseable middle lines were
			// already skipped by the parser.
			break
		}
		keys[gossh.FingerprintSHA256(key)] = comment
		rest = next
	}
	return keys, nil
}

// authorizedName maps a presented key to its allowlist comment.
func authorizedName(authorized map[string]string, key ssh.PublicKey) (string, bool) {
	name, ok := authorized[gossh.FingerprintSHA256(key)]
	return name, ok
}

// reputationSource keeps a nil repository out of the interface so the TUI
// falls back to folding the leaderboard live.
func reputationSource(r *repository.ReputationRepository) tui.ReputationSource {
	if r == nil {
		return nil
	}
	return r
}
