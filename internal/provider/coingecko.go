package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/ratelimit"

	"go.opentelemetry.io/otel/trace"
)

const coingeckoBaseURL = "https://api.coingecko.com/api/v3"

// coingeckoPlatforms maps chains to CoinGecko asset platform ids.
var coingeckoPlatforms = map[domain.Chain]string{
	domain.ChainEthereum: "ethereum",
	domain.ChainBSC:      "binance-smart-chain",
	domain.ChainBase:     "base",
	domain.ChainSolana:   "solana",
}

// CoinGeckoProvider serves established tokens only: anything indexed by
// CoinGecko has a contract-to-coin mapping, which also makes it the secondary
// symbol resolver. The free tier is tightly limited, so it sits late in the
// failover order. Resolved coin ids are memoized for market_chart queries.
type CoinGeckoProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *ratelimit.Limiter

	mu      sync.Mutex
	coinIDs map[string]string
}

func NewCoinGeckoProvider(tracer trace.Tracer, limiter *ratelimit.Limiter) *CoinGeckoProvider {
	return &CoinGeckoProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: coingeckoBaseURL,
		tracer:  tracer,
		limiter: limiter,
		coinIDs: make(map[string]string),
	}
}

func (p *CoinGeckoProvider) Name() string { return "coingecko" }

func (p *CoinGeckoProvider) Supports(chain domain.Chain) bool {
	_, ok := coingeckoPlatforms[chain]
	return ok
}

// TokenPrice fetches current price and market data through the token_price
// endpoint. The response is keyed by lowercased contract address.
func (p *CoinGeckoProvider) TokenPrice(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.token-price")
	defer span.End()

	platform, ok := coingeckoPlatforms[chain]
	if !ok {
		return nil, unsupportedError(p.Name(), "token-price", string(chain))
	}

	url := fmt.Sprintf("%s/simple/token_price/%s?contract_addresses=%s&vs_currencies=usd&include_market_cap=true&include_24hr_vol=true&include_24hr_change=true",
		p.baseURL, platform, address)
	body, err := doGET(ctx, p.client, p.limiter, p.Name(), "token-price", url, 1, nil)
	if err != nil {
		return nil, err
	}

	var raw map[string]map[string]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, schemaError(p.Name(), "token-price", err)
	}

	data, ok := raw[strings.ToLower(address)]
	if !ok {
		// Solana mints keep their case in the response.
		data, ok = raw[address]
	}
	if !ok || data["usd"] <= 0 {
		return nil, notFoundError(p.Name(), "token-price", "token not indexed")
	}

	snap := &domain.PriceSnapshot{
		Address:   address,
		Chain:     chain,
		PriceUSD:  data["usd"],
		Source:    p.Name(),
		FetchedAt: time.Now().UTC(),
	}
	if mcap := data["usd_market_cap"]; mcap > 0 {
		snap.MarketCapUSD = floatPtr(mcap)
	}
	if vol := data["usd_24h_vol"]; vol > 0 {
		snap.Volume24hUSD = floatPtr(vol)
	}
	if chg, ok := data["usd_24h_change"]; ok {
		snap.PriceChange24h = floatPtr(chg)
	}
	return snap, nil
}

// TokenInfo resolves a contract address to a coin id, symbol and name.
func (p *CoinGeckoProvider) TokenInfo(ctx context.Context, chain domain.Chain, address string) (*TokenInfo, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.token-info")
	defer span.End()

	platform, ok := coingeckoPlatforms[chain]
	if !ok {
		return nil, unsupportedError(p.Name(), "token-info", string(chain))
	}

	url := fmt.Sprintf("%s/coins/%s/contract/%s", p.baseURL, platform, address)
	body, err := doGET(ctx, p.client, p.limiter, p.Name(), "token-info", url, 1, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, schemaError(p.Name(), "token-info", err)
	}
	if payload.ID == "" {
		return nil, notFoundError(p.Name(), "token-info", "contract not indexed")
	}

	p.mu.Lock()
	p.coinIDs[coinKey(chain, address)] = payload.ID
	p.mu.Unlock()

	return &TokenInfo{
		Address: address,
		Chain:   chain,
		Symbol:  strings.ToUpper(payload.Symbol),
		Name:    payload.Name,
	}, nil
}

// Candles fetches market_chart data for [from, to] and buckets the price
// points into hourly candles. Ranges past 90 days come back daily-granular
// from the API; the buckets then simply stay sparse.
func (p *CoinGeckoProvider) Candles(ctx context.Context, chain domain.Chain, address string, from, to time.Time) ([]domain.Candle, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.candles")
	defer span.End()

	coinID, err := p.coinID(ctx, chain, address)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/coins/%s/market_chart/range?vs_currency=usd&from=%d&to=%d",
		p.baseURL, coinID, from.Unix(), to.Unix())
	body, err := doGET(ctx, p.client, p.limiter, p.Name(), "candles", url, 2, nil)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Prices       [][]float64 `json:"prices"`
		TotalVolumes [][]float64 `json:"total_volumes"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, schemaError(p.Name(), "candles", err)
	}

	candles := buildCandlesFromMarketChart(time.Hour, raw.Prices, raw.TotalVolumes)
	if len(candles) == 0 {
		return nil, notFoundError(p.Name(), "candles", "no candles in window")
	}
	return candles, nil
}

func (p *CoinGeckoProvider) coinID(ctx context.Context, chain domain.Chain, address string) (string, error) {
	p.mu.Lock()
	id, ok := p.coinIDs[coinKey(chain, address)]
	p.mu.Unlock()
	if ok {
		return id, nil
	}

	if _, err := p.TokenInfo(ctx, chain, address); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.coinIDs[coinKey(chain, address)], nil
}

func coinKey(chain domain.Chain, address string) string {
	return string(chain) + ":" + strings.ToLower(address)
}

type volumePoint struct {
	ts  int64
	vol float64
}

// buildCandlesFromMarketChart constructs candles of the given interval from
// raw market_chart price/volume arrays.
func buildCandlesFromMarketChart(interval time.Duration, prices, volumes [][]float64) []domain.Candle {
	if len(prices) == 0 || interval <= 0 {
		return nil
	}

	// Build volume lookup by timestamp for closest-match volume assignment
	volPoints := make([]volumePoint, 0, len(volumes))
	for _, v := range volumes {
		if len(v) >= 2 {
			volPoints = append(volPoints, volumePoint{ts: int64(v[0]), vol: v[1]})
		}
	}

	sort.Slice(prices, func(i, j int) bool {
		return prices[i][0] < prices[j][0]
	})

	// Bucket prices into candle windows
	type bucket struct {
		open  float64
		high  float64
		low   float64
		close float64
	}

	buckets := make(map[int64]*bucket)

	for _, pt := range prices {
		if len(pt) < 2 {
			continue
		}
		tsMs := int64(pt[0])
		price := pt[1]
		t := time.UnixMilli(tsMs)

		// Floor to interval boundary
		bucketTS := t.Truncate(interval).UnixMilli()

		b, exists := buckets[bucketTS]
		if !exists {
			buckets[bucketTS] = &bucket{open: price, high: price, low: price, close: price}
		} else {
			b.high = math.Max(b.high, price)
			b.low = math.Min(b.low, price)
			b.close = price // last price in the bucket becomes the close
		}
	}

	sortedKeys := make([]int64, 0, len(buckets))
	for k := range buckets {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Slice(sortedKeys, func(i, j int) bool { return sortedKeys[i] < sortedKeys[j] })

	// Assign volume: find the closest volume point for each bucket
	candles := make([]domain.Candle, 0, len(sortedKeys))
	for _, k := range sortedKeys {
		b := buckets[k]
		vol := findClosestVolume(volPoints, k+int64(interval/time.Millisecond))
		openTime := time.UnixMilli(k).UTC()
		candles = append(candles, domain.Candle{
			OpenTime:  openTime,
			CloseTime: openTime.Add(interval),
			Open:      b.open,
			High:      b.high,
			Low:       b.low,
			Close:     b.close,
			VolumeUSD: vol,
		})
	}

	return candles
}

func findClosestVolume(volumes []volumePoint, targetMs int64) float64 {
	if len(volumes) == 0 {
		return 0
	}
	closest := volumes[0]
	minDiff := int64(math.MaxInt64)
	for _, v := range volumes {
		diff := v.ts - targetMs
		if diff < 0 {
			diff = -diff
		}
		if diff < minDiff {
			minDiff = diff
			closest = v
		}
	}
	return closest.vol
}
