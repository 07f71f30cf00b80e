package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/ratelimit"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"
)

const birdeyeBaseURL = "https://public-api.birdeye.so"

var birdeyeChains = map[domain.Chain]string{
	domain.ChainEthereum: "ethereum",
	domain.ChainBSC:      "bsc",
	domain.ChainBase:     "base",
	domain.ChainSolana:   "solana",
}

// BirdeyeProvider covers tokens the aggregator APIs miss, Solana launches in
// particular. Requires an API key; payload shapes vary by plan and endpoint
// version, so fields are picked with gjson instead of rigid structs.
type BirdeyeProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	tracer  trace.Tracer
	limiter *ratelimit.Limiter
}

func NewBirdeyeProvider(tracer trace.Tracer, limiter *ratelimit.Limiter, apiKey string) *BirdeyeProvider {
	return &BirdeyeProvider{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: birdeyeBaseURL,
		apiKey:  apiKey,
		tracer:  tracer,
		limiter: limiter,
	}
}

func (p *BirdeyeProvider) Name() string { return "birdeye" }

func (p *BirdeyeProvider) Supports(chain domain.Chain) bool {
	_, ok := birdeyeChains[chain]
	return ok && p.apiKey != ""
}

func (p *BirdeyeProvider) headers(chain string) map[string]string {
	return map[string]string{
		"X-API-KEY": p.apiKey,
		"x-chain":   chain,
	}
}

func (p *BirdeyeProvider) TokenPrice(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error) {
	ctx, span := p.tracer.Start(ctx, "birdeye.token-price")
	defer span.End()

	chainID, ok := birdeyeChains[chain]
	if !ok {
		return nil, unsupportedError(p.Name(), "token-price", string(chain))
	}

	url := fmt.Sprintf("%s/defi/price?address=%s&include_liquidity=true", p.baseURL, address)
	body, err := doGET(ctx, p.client, p.limiter, p.Name(), "token-price", url, 1, p.headers(chainID))
	if err != nil {
		return nil, err
	}

	if !gjson.GetBytes(body, "success").Bool() {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = "token unknown"
		}
		return nil, notFoundError(p.Name(), "token-price", msg)
	}

	price := gjson.GetBytes(body, "data.value").Float()
	if price <= 0 {
		return nil, schemaError(p.Name(), "token-price", fmt.Errorf("no usable data.value"))
	}

	snap := &domain.PriceSnapshot{
		Address:   address,
		Chain:     chain,
		PriceUSD:  price,
		Source:    p.Name(),
		FetchedAt: time.Now().UTC(),
	}
	if liq := gjson.GetBytes(body, "data.liquidity"); liq.Exists() && liq.Float() > 0 {
		snap.LiquidityUSD = floatPtr(liq.Float())
	}
	if chg := gjson.GetBytes(body, "data.priceChange24h"); chg.Exists() {
		snap.PriceChange24h = floatPtr(chg.Float())
	}
	return snap, nil
}

// Candles returns hourly OHLCV for [from, to], oldest first.
func (p *BirdeyeProvider) Candles(ctx context.Context, chain domain.Chain, address string, from, to time.Time) ([]domain.Candle, error) {
	ctx, span := p.tracer.Start(ctx, "birdeye.candles")
	defer span.End()

	chainID, ok := birdeyeChains[chain]
	if !ok {
		return nil, unsupportedError(p.Name(), "candles", string(chain))
	}

	url := fmt.Sprintf("%s/defi/ohlcv?address=%s&type=1H&time_from=%d&time_to=%d",
		p.baseURL, address, from.Unix(), to.Unix())
	body, err := doGET(ctx, p.client, p.limiter, p.Name(), "candles", url, 2, p.headers(chainID))
	if err != nil {
		return nil, err
	}

	if !gjson.GetBytes(body, "success").Bool() {
		return nil, notFoundError(p.Name(), "candles", "no history for token")
	}

	items := gjson.GetBytes(body, "data.items").Array()
	if len(items) == 0 {
		return nil, notFoundError(p.Name(), "candles", "no candles in window")
	}

	candles := make([]domain.Candle, 0, len(items))
	for _, item := range items {
		open := time.Unix(item.Get("unixTime").Int(), 0).UTC()
		if open.Before(from) || open.After(to) {
			continue
		}
		candles = append(candles, domain.Candle{
			OpenTime:  open,
			CloseTime: open.Add(time.Hour),
			Open:      item.Get("o").Float(),
			High:      item.Get("h").Float(),
			Low:       item.Get("l").Float(),
			Close:     item.Get("c").Float(),
			VolumeUSD: item.Get("v").Float(),
		})
	}
	if len(candles) == 0 {
		return nil, notFoundError(p.Name(), "candles", "no candles in window")
	}
	return candles, nil
}
