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

// defaultBlockscoutInstances lists the public explorers with a v2 token API.
// BSC has no canonical instance and must be configured explicitly.
var defaultBlockscoutInstances = map[domain.Chain]string{
	domain.ChainEthereum: "https://eth.blockscout.com",
	domain.ChainBase:     "https://base.blockscout.com",
}

// BlockscoutProvider reads token data straight from a chain explorer. Its
// exchange rate lags the DEX aggregators, so it is the last resort in the
// failover order, and it only serves EVM chains.
type BlockscoutProvider struct {
	client    *http.Client
	tracer    trace.Tracer
	limiter   *ratelimit.Limiter
	instances map[domain.Chain]string
}

// NewBlockscoutProvider merges overrides (chain to base URL) over the default
// public instances. An empty override URL removes the chain.
func NewBlockscoutProvider(tracer trace.Tracer, limiter *ratelimit.Limiter, overrides map[domain.Chain]string) *BlockscoutProvider {
	instances := make(map[domain.Chain]string, len(defaultBlockscoutInstances))
	for chain, baseURL := range defaultBlockscoutInstances {
		instances[chain] = baseURL
	}
	for chain, baseURL := range overrides {
		baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if baseURL == "" {
			delete(instances, chain)
			continue
		}
		instances[chain] = baseURL
	}
	return &BlockscoutProvider{
		client:    &http.Client{Timeout: 20 * time.Second},
		tracer:    tracer,
		limiter:   limiter,
		instances: instances,
	}
}

func (p *BlockscoutProvider) Name() string { return "onchain" }

func (p *BlockscoutProvider) Supports(chain domain.Chain) bool {
	_, ok := p.instances[chain]
	return ok && chain.IsEVM()
}

type blockscoutToken struct {
	Address              string `json:"address"`
	Name                 string `json:"name"`
	Symbol               string `json:"symbol"`
	ExchangeRate         string `json:"exchange_rate"`
	CirculatingMarketCap string `json:"circulating_market_cap"`
	Volume24h            string `json:"volume_24h"`
	Type                 string `json:"type"`
}

func (p *BlockscoutProvider) fetchToken(ctx context.Context, op string, chain domain.Chain, address string) (*blockscoutToken, error) {
	baseURL, ok := p.instances[chain]
	if !ok || !chain.IsEVM() {
		return nil, unsupportedError(p.Name(), op, string(chain))
	}

	url := fmt.Sprintf("%s/api/v2/tokens/%s", baseURL, address)
	body, err := doGET(ctx, p.client, p.limiter, p.Name(), op, url, 1, nil)
	if err != nil {
		return nil, err
	}

	var payload blockscoutToken
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, schemaError(p.Name(), op, err)
	}
	return &payload, nil
}

func (p *BlockscoutProvider) TokenPrice(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error) {
	ctx, span := p.tracer.Start(ctx, "onchain.token-price")
	defer span.End()

	token, err := p.fetchToken(ctx, "token-price", chain, address)
	if err != nil {
		return nil, err
	}

	price := parseFloatString(token.ExchangeRate)
	if price <= 0 {
		return nil, notFoundError(p.Name(), "token-price", "explorer has no exchange rate")
	}

	snap := &domain.PriceSnapshot{
		Address:   address,
		Chain:     chain,
		Symbol:    token.Symbol,
		PriceUSD:  price,
		Source:    p.Name(),
		FetchedAt: time.Now().UTC(),
	}
	if mcap := parseFloatString(token.CirculatingMarketCap); mcap > 0 {
		snap.MarketCapUSD = floatPtr(mcap)
	}
	if vol := parseFloatString(token.Volume24h); vol > 0 {
		snap.Volume24hUSD = floatPtr(vol)
	}
	return snap, nil
}

// TokenInfo serves as the tertiary symbol resolver for EVM chains.
func (p *BlockscoutProvider) TokenInfo(ctx context.Context, chain domain.Chain, address string) (*TokenInfo, error) {
	ctx, span := p.tracer.Start(ctx, "onchain.token-info")
	defer span.End()

	token, err := p.fetchToken(ctx, "token-info", chain, address)
	if err != nil {
		return nil, err
	}
	if token.Symbol == "" {
		return nil, notFoundError(p.Name(), "token-info", "explorer has no symbol")
	}
	return &TokenInfo{Address: address, Chain: chain, Symbol: token.Symbol, Name: token.Name}, nil
}
