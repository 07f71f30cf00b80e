package mcpserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"mintwatch/internal/cache"
	"mintwatch/internal/domain"
	"mintwatch/internal/outcome"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/trace"
)

const uniAddr = "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984"

type fakePrices struct {
	snap       *domain.PriceSnapshot
	err        error
	calls      int
	freshCalls int
}

func (f *fakePrices) Resolve(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error) {
	f.calls++
	return f.snap, f.err
}

func (f *fakePrices) ResolveFresh(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error) {
	f.freshCalls++
	return f.snap, f.err
}

type fakePositions struct {
	positions map[string]domain.TrackedPosition
	signals   []domain.Signal
}

func (f *fakePositions) Position(chain domain.Chain, address string) (domain.TrackedPosition, bool) {
	pos, ok := f.positions[string(chain)+"/"+address]
	return pos, ok
}

func (f *fakePositions) Signals(source string, limit int) []domain.Signal {
	var out []domain.Signal
	for _, sig := range f.signals {
		if source == "" || sig.Source == source {
			out = append(out, sig)
		}
	}
	return out
}

func (f *fakePositions) Sources() []string { return nil }

func (f *fakePositions) OpenCount() int { return len(f.positions) }

type fakeProviders struct {
	statuses []domain.ProviderStatus
}

func (f *fakeProviders) Providers() []domain.ProviderStatus { return f.statuses }

type fakeCacheStats struct {
	stats cache.Stats
}

func (f *fakeCacheStats) Stats() cache.Stats { return f.stats }

func testServices() (*fakePrices, *fakePositions, *fakeProviders) {
	prices := &fakePrices{snap: &domain.PriceSnapshot{
		Address:  uniAddr,
		Chain:    domain.ChainEthereum,
		PriceUSD: 12.5,
		Source:   "dexscreener",
	}}
	positions := &fakePositions{
		positions: map[string]domain.TrackedPosition{
			"ethereum/" + uniAddr: {
				Address:    uniAddr,
				Chain:      domain.ChainEthereum,
				Source:     "tg:alpha",
				StartPrice: 5.0,
				ATHPrice:   15.0,
				Status:     domain.PositionOpen,
				Checkpoints: []domain.CheckpointROI{
					{Horizon: "24h", ROI: 2.1},
				},
			},
		},
		signals: []domain.Signal{
			{Source: "tg:alpha", Address: uniAddr, Chain: domain.ChainEthereum, ROI: 2.5, HoursToATH: 4, Outcome: domain.OutcomeWinner},
			{Source: "tg:alpha", Address: uniAddr, Chain: domain.ChainEthereum, ROI: 0.6, Outcome: domain.OutcomeLoser},
		},
	}
	providers := &fakeProviders{statuses: []domain.ProviderStatus{
		{Provider: "dexscreener", BreakerState: "closed", RatePerSec: 4.5, Burst: 5},
		{Provider: "birdeye", BreakerState: "open", Failures: 6},
	}}
	return prices, positions, providers
}

// connect wires a client session to the server over in-memory pipes.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.mcp.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "mintwatch-test", Version: "0.0.1"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}

	t.Cleanup(func() {
		clientSession.Close()
		serverSession.Close()
	})
	return clientSession
}

func newTestServer(cfg Config) (*Server, *fakePrices) {
	prices, positions, providers := testServices()
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	s := New(tracer, prices, positions, nil, providers,
		[]CacheStatsSource{&fakeCacheStats{stats: cache.Stats{Name: "prices", Entries: 9, Hits: 40, Misses: 10}}},
		outcome.DefaultWeights, cfg)
	return s, prices
}

func callText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return text.Text
}

func TestListToolsExposesWatchlistSurface(t *testing.T) {
	s, _ := newTestServer(Config{})
	session := connect(t, s)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}

	want := map[string]bool{
		"resolve_price":     false,
		"token_performance": false,
		"source_reputation": false,
		"provider_health":   false,
	}
	for _, tool := range res.Tools {
		if _, ok := want[tool.Name]; ok {
			want[tool.Name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %q not listed", name)
		}
	}
}

func TestResolvePriceTool(t *testing.T) {
	s, prices := newTestServer(Config{})
	session := connect(t, s)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "resolve_price",
		Arguments: map[string]any{"chain": "ethereum", "address": uniAddr},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", callText(t, res))
	}
	text := callText(t, res)
	if !strings.Contains(text, "dexscreener") || !strings.Contains(text, "12.5") {
		t.Fatalf("got text %q", text)
	}
	if prices.calls != 1 || prices.freshCalls != 0 {
		t.Fatalf("got calls=%d freshCalls=%d, want 1/0", prices.calls, prices.freshCalls)
	}
}

func TestResolvePriceFreshBypassesCache(t *testing.T) {
	s, prices := newTestServer(Config{})
	session := connect(t, s)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "resolve_price",
		Arguments: map[string]any{"chain": "ethereum", "address": uniAddr, "fresh": true},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", callText(t, res))
	}
	if prices.freshCalls != 1 || prices.calls != 0 {
		t.Fatalf("got calls=%d freshCalls=%d, want 0/1", prices.calls, prices.freshCalls)
	}
}

func TestResolvePriceRejectsUnknownChain(t *testing.T) {
	s, _ := newTestServer(Config{})
	session := connect(t, s)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "resolve_price",
		Arguments: map[string]any{"chain": "tron", "address": uniAddr},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !res.IsError {
		t.Fatal("unknown chain did not produce a tool error")
	}
	if text := callText(t, res); !strings.Contains(text, "unsupported chain") {
		t.Fatalf("got error text %q", text)
	}
}

func TestTokenPerformanceTool(t *testing.T) {
	s, _ := newTestServer(Config{})
	session := connect(t, s)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "token_performance",
		Arguments: map[string]any{"chain": "ethereum", "address": uniAddr},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", callText(t, res))
	}
	text := callText(t, res)
	if !strings.Contains(text, "3.00x") {
		t.Fatalf("text %q missing the ATH multiple", text)
	}
	if !strings.Contains(text, "24h 2.10x") {
		t.Fatalf("text %q missing the checkpoint", text)
	}
}

func TestTokenPerformanceUntracked(t *testing.T) {
	s, _ := newTestServer(Config{})
	session := connect(t, s)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "token_performance",
		Arguments: map[string]any{"chain": "bsc", "address": "0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82"},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !res.IsError {
		t.Fatal("untracked token did not produce a tool error")
	}
	if text := callText(t, res); !strings.Contains(text, "not tracked") {
		t.Fatalf("got error text %q", text)
	}
}

func TestSourceReputationFoldsSignals(t *testing.T) {
	s, _ := newTestServer(Config{})
	session := connect(t, s)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "source_reputation",
		Arguments: map[string]any{"source": "tg:alpha"},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", callText(t, res))
	}
	text := callText(t, res)
	if !strings.Contains(text, "2 signals (1 wins, 1 losses, 0 dead)") {
		t.Fatalf("got text %q", text)
	}
}

func TestSourceReputationUnknown(t *testing.T) {
	s, _ := newTestServer(Config{})
	session := connect(t, s)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "source_reputation",
		Arguments: map[string]any{"source": "tg:ghost"},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !res.IsError {
		t.Fatal("unknown source did not produce a tool error")
	}
}

func TestProviderHealthTool(t *testing.T) {
	s, _ := newTestServer(Config{})
	session := connect(t, s)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "provider_health",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", callText(t, res))
	}
	text := callText(t, res)
	if !strings.Contains(text, "dexscreener=closed") || !strings.Contains(text, "birdeye=open") {
		t.Fatalf("got text %q", text)
	}
}

func TestToolCallRateLimit(t *testing.T) {
	s, _ := newTestServer(Config{RateLimitPerMin: 2, RequestTimeout: time.Second})
	session := connect(t, s)

	args := map[string]any{"chain": "ethereum", "address": uniAddr}
	for i := 0; i < 2; i++ {
		if _, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name: "resolve_price", Arguments: args,
		}); err != nil {
			t.Fatalf("call %d rejected: %v", i+1, err)
		}
	}

	_, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "resolve_price", Arguments: args,
	})
	if err == nil {
		t.Fatal("third call within the window was not limited")
	}
	if !strings.Contains(err.Error(), "rate limit") {
		t.Fatalf("got error %v, want a rate limit error", err)
	}
}
