package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/ratelimit"

	"go.opentelemetry.io/otel/trace"
)

const dexScreenerBaseURL = "https://api.dexscreener.com"

// dexScreenerChains maps chains to DexScreener chainId values.
var dexScreenerChains = map[domain.Chain]string{
	domain.ChainEthereum: "ethereum",
	domain.ChainBSC:      "bsc",
	domain.ChainBase:     "base",
	domain.ChainSolana:   "solana",
}

// DexScreenerProvider reads the token-pairs endpoint. No API key, generous
// limits, covers every supported chain, so it sits first in the failover
// order. Pair-level data only: the snapshot is taken from the most liquid
// pair for the token.
type DexScreenerProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *ratelimit.Limiter
}

func NewDexScreenerProvider(tracer trace.Tracer, limiter *ratelimit.Limiter) *DexScreenerProvider {
	return &DexScreenerProvider{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: dexScreenerBaseURL,
		tracer:  tracer,
		limiter: limiter,
	}
}

func (p *DexScreenerProvider) Name() string { return "dexscreener" }

func (p *DexScreenerProvider) Supports(chain domain.Chain) bool {
	_, ok := dexScreenerChains[chain]
	return ok
}

type dexScreenerPair struct {
	ChainID   string `json:"chainId"`
	DexID     string `json:"dexId"`
	BaseToken struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD string `json:"priceUsd"`
	Volume   struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	FDV           float64 `json:"fdv"`
	MarketCap     float64 `json:"marketCap"`
	PairCreatedAt int64   `json:"pairCreatedAt"`
}

// TokenPrice returns the snapshot from the most liquid pair whose base token
// is the requested address.
func (p *DexScreenerProvider) TokenPrice(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error) {
	ctx, span := p.tracer.Start(ctx, "dexscreener.token-price")
	defer span.End()

	chainID, ok := dexScreenerChains[chain]
	if !ok {
		return nil, unsupportedError(p.Name(), "token-price", string(chain))
	}

	url := fmt.Sprintf("%s/latest/dex/tokens/%s", p.baseURL, address)
	body, err := doGET(ctx, p.client, p.limiter, p.Name(), "token-price", url, 1, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Pairs []dexScreenerPair `json:"pairs"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, schemaError(p.Name(), "token-price", err)
	}

	best := pickBestPair(payload.Pairs, chainID, address)
	if best == nil {
		return nil, notFoundError(p.Name(), "token-price", "no pairs for token")
	}

	price := parseFloatString(best.PriceUSD)
	if price <= 0 {
		return nil, schemaError(p.Name(), "token-price", fmt.Errorf("pair has no usable priceUsd %q", best.PriceUSD))
	}

	snap := &domain.PriceSnapshot{
		Address:   address,
		Chain:     chain,
		Symbol:    best.BaseToken.Symbol,
		PriceUSD:  price,
		Source:    p.Name(),
		FetchedAt: time.Now().UTC(),
	}
	if best.MarketCap > 0 {
		snap.MarketCapUSD = floatPtr(best.MarketCap)
	} else if best.FDV > 0 {
		snap.MarketCapUSD = floatPtr(best.FDV)
	}
	if best.Liquidity.USD > 0 {
		snap.LiquidityUSD = floatPtr(best.Liquidity.USD)
	}
	if best.Volume.H24 > 0 {
		snap.Volume24hUSD = floatPtr(best.Volume.H24)
	}
	snap.PriceChange24h = floatPtr(best.PriceChange.H24)
	if best.PairCreatedAt > 0 {
		created := time.UnixMilli(best.PairCreatedAt).UTC()
		snap.PairCreatedAt = &created
	}
	return snap, nil
}

// TokenInfo resolves the token symbol from pair metadata, serving as the
// primary symbol resolver for chains DexScreener indexes.
func (p *DexScreenerProvider) TokenInfo(ctx context.Context, chain domain.Chain, address string) (*TokenInfo, error) {
	snap, err := p.TokenPrice(ctx, chain, address)
	if err != nil {
		return nil, err
	}
	if snap.Symbol == "" {
		return nil, notFoundError(p.Name(), "token-info", "pair carries no symbol")
	}
	return &TokenInfo{Address: address, Chain: chain, Symbol: snap.Symbol}, nil
}

// pickBestPair filters pairs to the requested chain and base token and keeps
// the one with the deepest liquidity.
func pickBestPair(pairs []dexScreenerPair, chainID, address string) *dexScreenerPair {
	var best *dexScreenerPair
	for i := range pairs {
		pair := &pairs[i]
		if pair.ChainID != chainID {
			continue
		}
		if !strings.EqualFold(pair.BaseToken.Address, address) {
			continue
		}
		if best == nil || pair.Liquidity.USD > best.Liquidity.USD {
			best = pair
		}
	}
	return best
}
