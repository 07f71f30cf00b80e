package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mintwatch/internal/cache"
	"mintwatch/internal/domain"
	"mintwatch/internal/outcome"
	"mintwatch/internal/provider"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type resolvePriceArgs struct {
	Chain   string `json:"chain" jsonschema:"chain the token lives on: ethereum, bsc, base or solana"`
	Address string `json:"address" jsonschema:"token contract address (0x...) or solana mint"`
	Fresh   bool   `json:"fresh,omitempty" jsonschema:"bypass the result cache and hit providers directly"`
}

type tokenPerformanceArgs struct {
	Chain   string `json:"chain" jsonschema:"chain the token lives on: ethereum, bsc, base or solana"`
	Address string `json:"address" jsonschema:"token contract address (0x...) or solana mint"`
}

type sourceReputationArgs struct {
	Source string `json:"source" jsonschema:"mention source identifier, e.g. tg:alphacalls or reddit:CryptoMoonShots"`
}

type providerHealthArgs struct{}

type tokenPerformanceResult struct {
	Position     domain.TrackedPosition `json:"position"`
	CurrentPrice *float64               `json:"current_price,omitempty"`
	CurrentROI   *float64               `json:"current_roi,omitempty"`
}

type providerHealthResult struct {
	Providers     []domain.ProviderStatus `json:"providers"`
	Caches        []cache.Stats           `json:"caches,omitempty"`
	OpenPositions int                     `json:"open_positions"`
}

func (s *Server) resolvePrice(ctx context.Context, req *mcp.CallToolRequest, args resolvePriceArgs) (*mcp.CallToolResult, *domain.PriceSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.resolve-price")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	chain, addr, err := tokenArgs(args.Chain, args.Address)
	if err != nil {
		return nil, nil, err
	}

	fetch := s.prices.Resolve
	if args.Fresh {
		fetch = s.prices.ResolveFresh
	}
	snap, err := fetch(ctx, chain, addr)
	if err != nil {
		return nil, nil, err
	}

	return textResult(formatSnapshot(snap)), snap, nil
}

func (s *Server) tokenPerformance(ctx context.Context, req *mcp.CallToolRequest, args tokenPerformanceArgs) (*mcp.CallToolResult, *tokenPerformanceResult, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.token-performance")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	chain, addr, err := tokenArgs(args.Chain, args.Address)
	if err != nil {
		return nil, nil, err
	}

	pos, ok := s.positions.Position(chain, addr)
	if !ok {
		return nil, nil, fmt.Errorf("token %s/%s is not tracked", chain, addr)
	}

	out := &tokenPerformanceResult{Position: pos}
	if snap, err := s.prices.Resolve(ctx, chain, addr); err == nil && snap != nil {
		price := snap.PriceUSD
		roi := pos.CurrentROI(price)
		out.CurrentPrice = &price
		out.CurrentROI = &roi
	}

	return textResult(formatPerformance(out)), out, nil
}

func (s *Server) sourceReputation(ctx context.Context, req *mcp.CallToolRequest, args sourceReputationArgs) (*mcp.CallToolResult, *domain.ReputationRecord, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.source-reputation")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	source := strings.TrimSpace(args.Source)
	if source == "" {
		return nil, nil, fmt.Errorf("source is required")
	}

	if s.reputation != nil {
		if rec, ok, err := s.reputation.Record(ctx, source); err == nil && ok {
			return textResult(formatReputation(&rec)), &rec, nil
		}
	}

	signals := s.positions.Signals(source, 0)
	if len(signals) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", source, outcome.ErrUnknownSource)
	}
	rec := outcome.ComputeReputation(source, signals, s.weights, time.Now().UTC())
	return textResult(formatReputation(&rec)), &rec, nil
}

func (s *Server) providerHealth(ctx context.Context, req *mcp.CallToolRequest, args providerHealthArgs) (*mcp.CallToolResult, *providerHealthResult, error) {
	_, span := s.tracer.Start(ctx, "mcp.provider-health")
	defer span.End()

	out := &providerHealthResult{
		Providers:     s.providers.Providers(),
		OpenPositions: s.positions.OpenCount(),
	}
	for _, src := range s.caches {
		if src != nil {
			out.Caches = append(out.Caches, src.Stats())
		}
	}

	return textResult(formatHealth(out)), out, nil
}

func tokenArgs(rawChain, rawAddr string) (domain.Chain, string, error) {
	chain := domain.Chain(strings.ToLower(strings.TrimSpace(rawChain)))
	if !chain.IsSupported() {
		names := make([]string, len(domain.SupportedChains))
		for i, c := range domain.SupportedChains {
			names[i] = string(c)
		}
		return "", "", fmt.Errorf("unsupported chain %q: want one of %s", rawChain, strings.Join(names, ", "))
	}
	addr, err := provider.NormalizeAddress(chain, rawAddr)
	if err != nil {
		return "", "", err
	}
	return chain, addr, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func formatSnapshot(snap *domain.PriceSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s: $%.8g (source %s)", snap.Address, snap.Chain, snap.PriceUSD, snap.Source)
	if snap.MarketCapUSD != nil {
		fmt.Fprintf(&b, ", mcap $%.4g", *snap.MarketCapUSD)
	}
	if snap.LiquidityUSD != nil {
		fmt.Fprintf(&b, ", liq $%.4g", *snap.LiquidityUSD)
	}
	if snap.Volume24hUSD != nil {
		fmt.Fprintf(&b, ", 24h vol $%.4g", *snap.Volume24hUSD)
	}
	if snap.Suspect {
		b.WriteString(" [suspect: flagged as outlier]")
	}
	return b.String()
}

func formatPerformance(res *tokenPerformanceResult) string {
	pos := res.Position
	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s (%s, source %s): entry $%.8g", pos.Address, pos.Chain, pos.Status, pos.Source, pos.StartPrice)
	if pos.StartPrice > 0 && pos.ATHPrice > 0 {
		fmt.Fprintf(&b, ", ATH $%.8g (%.2fx)", pos.ATHPrice, pos.ATHPrice/pos.StartPrice)
	}
	if res.CurrentROI != nil {
		fmt.Fprintf(&b, ", now %.2fx", *res.CurrentROI)
	}
	for _, cp := range pos.Checkpoints {
		fmt.Fprintf(&b, ", %s %.2fx", cp.Horizon, cp.ROI)
	}
	return b.String()
}

func formatReputation(rec *domain.ReputationRecord) string {
	return fmt.Sprintf("%s: score %.1f/100, %d signals (%d wins, %d losses, %d dead), win rate %.0f%%, mean ROI %.2fx",
		rec.Source, rec.Composite, rec.TotalSignals, rec.Wins, rec.Losses, rec.DeadCount, rec.WinRate*100, rec.MeanROI)
}

func formatHealth(res *providerHealthResult) string {
	parts := make([]string, 0, len(res.Providers))
	for _, p := range res.Providers {
		parts = append(parts, fmt.Sprintf("%s=%s", p.Provider, p.BreakerState))
	}
	return fmt.Sprintf("%d open positions; breakers: %s", res.OpenPositions, strings.Join(parts, " "))
}
