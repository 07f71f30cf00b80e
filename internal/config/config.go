package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReputationWeights are the fixed composite weights, normalized at load time.
type ReputationWeights struct {
	WinRate float64 `yaml:"win_rate"`
	MeanROI float64 `yaml:"mean_roi"`
	Sharpe  float64 `yaml:"sharpe"`
	Speed   float64 `yaml:"speed"`
}

type Config struct {
	TelegramBotToken string `yaml:"telegram_bot_token"`
	DatabaseURL      string `yaml:"database_url"`
	RedisURL         string `yaml:"redis_url"`
	HTTPPort         int    `yaml:"http_port"`
	APIKey           string `yaml:"api_key"`
	CacheDir         string `yaml:"cache_dir"`
	CacheBackend     string `yaml:"cache_backend"`

	CacheTTLSecs            int     `yaml:"cache_ttl_seconds"`
	CacheFlushWrites        int     `yaml:"cache_flush_writes"`
	BreakerFailureThreshold int     `yaml:"breaker_failure_threshold"`
	BreakerCooldownSecs     int     `yaml:"breaker_cooldown_seconds"`
	RetryMaxAttempts        int     `yaml:"retry_max_attempts"`
	RetryBaseDelayMs        int     `yaml:"retry_base_delay_ms"`
	RetryJitterFraction     float64 `yaml:"retry_jitter_fraction"`

	ProviderOrder  []string `yaml:"provider_order"`
	ResolverFanout int      `yaml:"resolver_fanout"`
	BirdeyeAPIKey  string   `yaml:"birdeye_api_key"`

	CheckpointHorizons []string          `yaml:"checkpoint_horizons"`
	DecisionHorizon    string            `yaml:"decision_horizon"`
	WinnerROIThreshold float64           `yaml:"winner_roi_threshold"`
	DeadLiquidityUSD   float64           `yaml:"dead_liquidity_usd"`
	DeadPriceFraction  float64           `yaml:"dead_price_fraction"`
	ReputationWeights  ReputationWeights `yaml:"reputation_weights"`

	SweepIntervalSecs  int     `yaml:"sweep_interval_seconds"`
	FlushIntervalSecs  int     `yaml:"flush_interval_seconds"`
	MentionScanSecs    int     `yaml:"mention_scan_seconds"`
	ReputationCronSpec string  `yaml:"reputation_cron"`
	RetentionCronSpec  string  `yaml:"retention_cron"`
	PositionRetainDays int     `yaml:"position_retain_days"`
	QualityGateEnabled bool    `yaml:"quality_gate_enabled"`
	QualityThreshold   float64 `yaml:"quality_threshold"`

	RSSFeeds   []string `yaml:"rss_feeds"`
	RedditSubs []string `yaml:"reddit_subs"`

	SSHPort           int    `yaml:"ssh_port"`
	SSHHostKeyPath    string `yaml:"ssh_host_key_path"`
	SSHAuthorizedKeys string `yaml:"ssh_authorized_keys"`

	MCPTransport          string `yaml:"mcp_transport"`
	MCPHTTPBind           string `yaml:"mcp_http_bind"`
	MCPHTTPPort           int    `yaml:"mcp_http_port"`
	MCPAuthToken          string `yaml:"mcp_auth_token"`
	MCPRequestTimeoutSecs int    `yaml:"mcp_request_timeout_seconds"`
	MCPRateLimitPerMin    int    `yaml:"mcp_rate_limit_per_min"`

	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`

	MLEnabled         bool `yaml:"ml_enabled"`
	MLTrainHourUTC    int  `yaml:"ml_train_hour_utc"`
	MLTrainWindowDays int  `yaml:"ml_train_window_days"`
	MLMinTrainSamples int  `yaml:"ml_min_train_samples"`
	MLInferPollSecs   int  `yaml:"ml_infer_poll_seconds"`
}

func defaults() *Config {
	return &Config{
		HTTPPort:     8080,
		CacheDir:     "data",
		CacheBackend: "file",

		CacheTTLSecs:            300,
		CacheFlushWrites:        10,
		BreakerFailureThreshold: 5,
		BreakerCooldownSecs:     60,
		RetryMaxAttempts:        3,
		RetryBaseDelayMs:        1000,
		RetryJitterFraction:     0.20,

		ProviderOrder:  []string{"dexscreener", "geckoterminal", "birdeye", "coingecko", "onchain"},
		ResolverFanout: 1,

		CheckpointHorizons: []string{"1h", "24h", "7d", "30d"},
		DecisionHorizon:    "24h",
		WinnerROIThreshold: 1.5,
		DeadLiquidityUSD:   1000,
		DeadPriceFraction:  0.01,
		ReputationWeights:  ReputationWeights{WinRate: 0.35, MeanROI: 0.30, Sharpe: 0.15, Speed: 0.20},

		SweepIntervalSecs:  300,
		FlushIntervalSecs:  60,
		MentionScanSecs:    900,
		ReputationCronSpec: "@every 1h",
		RetentionCronSpec:  "30 2 * * *",
		PositionRetainDays: 180,
		QualityThreshold:   0.65,

		SSHPort:        2222,
		SSHHostKeyPath: ".ssh/mintwatch_ed25519",

		MCPTransport:          "stdio",
		MCPHTTPBind:           "127.0.0.1",
		MCPHTTPPort:           8090,
		MCPRequestTimeoutSecs: 5,
		MCPRateLimitPerMin:    60,

		OpenAIModel: "gpt-4o-mini",

		MLTrainHourUTC:    2,
		MLTrainWindowDays: 90,
		MLMinTrainSamples: 200,
		MLInferPollSecs:   3600,
	}
}

// Load builds the runtime configuration: defaults, then an optional YAML file
// (CONFIG_FILE), then environment variables. Env always wins.
func Load() *Config {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			log.Printf("Warning: could not apply CONFIG_FILE %s: %v", path, err)
		}
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.TelegramBotToken = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("BIRDEYE_API_KEY"); v != "" {
		cfg.BirdeyeAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("MCP_AUTH_TOKEN"); v != "" {
		cfg.MCPAuthToken = v
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set, Telegram ingestion disabled")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set, positions held in memory only")
	}
	if cfg.RedisURL == "" && strings.EqualFold(cfg.CacheBackend, "redis") {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.BirdeyeAPIKey == "" {
		log.Println("Warning: BIRDEYE_API_KEY not set, birdeye provider disabled")
	}

	if v := os.Getenv("HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CACHE_DIR")); v != "" {
		cfg.CacheDir = v
	}
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(firstNonEmpty(os.Getenv("CACHE_BACKEND"), cfg.CacheBackend)))
	if cfg.CacheBackend != "file" && cfg.CacheBackend != "redis" {
		log.Printf("Warning: unsupported CACHE_BACKEND=%q, defaulting to file", cfg.CacheBackend)
		cfg.CacheBackend = "file"
	}

	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheTTLSecs = n
		}
	}
	if v := os.Getenv("CACHE_FLUSH_WRITES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheFlushWrites = n
		}
	}
	if v := os.Getenv("BREAKER_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BreakerFailureThreshold = n
		}
	}
	if v := os.Getenv("BREAKER_COOLDOWN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BreakerCooldownSecs = n
		}
	}
	if v := os.Getenv("RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RetryMaxAttempts = n
		}
	}
	if v := os.Getenv("RETRY_BASE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RetryBaseDelayMs = n
		}
	}
	if v := os.Getenv("RETRY_JITTER_FRACTION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.RetryJitterFraction = f
		}
	}

	if v := strings.TrimSpace(os.Getenv("PROVIDER_ORDER")); v != "" {
		cfg.ProviderOrder = splitList(v)
	}
	if v := os.Getenv("RESOLVER_FANOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			cfg.ResolverFanout = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("CHECKPOINT_HORIZONS")); v != "" {
		cfg.CheckpointHorizons = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("DECISION_HORIZON")); v != "" {
		cfg.DecisionHorizon = v
	}
	if v := os.Getenv("WINNER_ROI_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.WinnerROIThreshold = f
		}
	}
	if v := os.Getenv("DEAD_LIQUIDITY_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.DeadLiquidityUSD = f
		}
	}
	if v := os.Getenv("DEAD_PRICE_FRACTION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f < 1 {
			cfg.DeadPriceFraction = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("REPUTATION_WEIGHTS")); v != "" {
		if w, ok := parseWeights(v); ok {
			cfg.ReputationWeights = w
		} else {
			log.Printf("Warning: invalid REPUTATION_WEIGHTS=%q, keeping %v", v, cfg.ReputationWeights)
		}
	}
	cfg.ReputationWeights = normalizeWeights(cfg.ReputationWeights)

	if v := os.Getenv("SWEEP_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SweepIntervalSecs = n
		}
	}
	if v := os.Getenv("FLUSH_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FlushIntervalSecs = n
		}
	}
	if v := os.Getenv("MENTION_SCAN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MentionScanSecs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("REPUTATION_CRON")); v != "" {
		cfg.ReputationCronSpec = v
	}
	if v := strings.TrimSpace(os.Getenv("RETENTION_CRON")); v != "" {
		cfg.RetentionCronSpec = v
	}
	if v := os.Getenv("POSITION_RETAIN_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PositionRetainDays = n
		}
	}
	if v := os.Getenv("QUALITY_GATE_ENABLED"); v != "" {
		cfg.QualityGateEnabled = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	if v := os.Getenv("QUALITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f < 1 {
			cfg.QualityThreshold = f
		}
	}

	if v := strings.TrimSpace(os.Getenv("RSS_FEEDS")); v != "" {
		cfg.RSSFeeds = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("REDDIT_SUBS")); v != "" {
		cfg.RedditSubs = splitList(v)
	}

	if v := os.Getenv("SSH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SSHPort = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SSH_HOST_KEY_PATH")); v != "" {
		cfg.SSHHostKeyPath = v
	}
	if v := strings.TrimSpace(os.Getenv("SSH_AUTHORIZED_KEYS")); v != "" {
		cfg.SSHAuthorizedKeys = v
	}

	cfg.MCPTransport = strings.ToLower(strings.TrimSpace(firstNonEmpty(os.Getenv("MCP_TRANSPORT"), cfg.MCPTransport)))
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		log.Printf("Warning: unsupported MCP_TRANSPORT=%q, defaulting to stdio", cfg.MCPTransport)
		cfg.MCPTransport = "stdio"
	}
	if v := strings.TrimSpace(os.Getenv("MCP_HTTP_BIND")); v != "" {
		cfg.MCPHTTPBind = v
	}
	if v := strings.TrimSpace(os.Getenv("MCP_HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MCPHTTPPort = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MCP_REQUEST_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MCPRequestTimeoutSecs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MCP_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MCPRateLimitPerMin = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("OPENAI_MODEL")); v != "" {
		cfg.OpenAIModel = v
	}

	if v := os.Getenv("ML_ENABLED"); v != "" {
		cfg.MLEnabled = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	if v := strings.TrimSpace(os.Getenv("ML_TRAIN_HOUR_UTC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 23 {
			cfg.MLTrainHourUTC = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ML_TRAIN_WINDOW_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MLTrainWindowDays = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ML_MIN_TRAIN_SAMPLES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MLMinTrainSamples = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ML_INFER_POLL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MLInferPollSecs = n
		}
	}

	if !containsHorizon(cfg.CheckpointHorizons, cfg.DecisionHorizon) {
		log.Printf("Warning: DECISION_HORIZON %q not among checkpoint horizons %v, appending it",
			cfg.DecisionHorizon, cfg.CheckpointHorizons)
		cfg.CheckpointHorizons = append(cfg.CheckpointHorizons, cfg.DecisionHorizon)
	}

	return cfg
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseWeights accepts "win,roi,sharpe,speed" as four non-negative floats.
func parseWeights(v string) (ReputationWeights, bool) {
	parts := splitList(v)
	if len(parts) != 4 {
		return ReputationWeights{}, false
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil || f < 0 {
			return ReputationWeights{}, false
		}
		vals[i] = f
	}
	return ReputationWeights{WinRate: vals[0], MeanROI: vals[1], Sharpe: vals[2], Speed: vals[3]}, true
}

func normalizeWeights(w ReputationWeights) ReputationWeights {
	sum := w.WinRate + w.MeanROI + w.Sharpe + w.Speed
	if sum <= 0 {
		return ReputationWeights{WinRate: 0.35, MeanROI: 0.30, Sharpe: 0.15, Speed: 0.20}
	}
	return ReputationWeights{
		WinRate: w.WinRate / sum,
		MeanROI: w.MeanROI / sum,
		Sharpe:  w.Sharpe / sum,
		Speed:   w.Speed / sum,
	}
}

func containsHorizon(horizons []string, h string) bool {
	for _, v := range horizons {
		if v == h {
			return true
		}
	}
	return false
}
