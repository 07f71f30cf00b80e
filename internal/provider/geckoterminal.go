package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/ratelimit"

	"go.opentelemetry.io/otel/trace"
)

const (
	geckoTerminalBaseURL = "https://api.geckoterminal.com/api/v2"

	// ohlcvPageLimit is the API's maximum candles per request.
	ohlcvPageLimit = 1000
	ohlcvMaxPages  = 5
)

var geckoTerminalNetworks = map[domain.Chain]string{
	domain.ChainEthereum: "eth",
	domain.ChainBSC:      "bsc",
	domain.ChainBase:     "base",
	domain.ChainSolana:   "solana",
}

// GeckoTerminalProvider reads the networks API for current data and the pool
// OHLCV endpoint for hourly candles. Candle queries go through the token's
// top pool, which the token endpoint reports; resolved pools are memoized so
// repeat windows cost one request each.
type GeckoTerminalProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *ratelimit.Limiter

	mu    sync.Mutex
	pools map[string]string
}

func NewGeckoTerminalProvider(tracer trace.Tracer, limiter *ratelimit.Limiter) *GeckoTerminalProvider {
	return &GeckoTerminalProvider{
		client:  &http.Client{Timeout: 20 * time.Second},
		baseURL: geckoTerminalBaseURL,
		tracer:  tracer,
		limiter: limiter,
		pools:   make(map[string]string),
	}
}

func (p *GeckoTerminalProvider) Name() string { return "geckoterminal" }

func (p *GeckoTerminalProvider) Supports(chain domain.Chain) bool {
	_, ok := geckoTerminalNetworks[chain]
	return ok
}

type geckoTokenResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Address           string `json:"address"`
			Name              string `json:"name"`
			Symbol            string `json:"symbol"`
			PriceUSD          string `json:"price_usd"`
			FDVUSD            string `json:"fdv_usd"`
			MarketCapUSD      string `json:"market_cap_usd"`
			TotalReserveInUSD string `json:"total_reserve_in_usd"`
			VolumeUSD         struct {
				H24 string `json:"h24"`
			} `json:"volume_usd"`
		} `json:"attributes"`
		Relationships struct {
			TopPools struct {
				Data []struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"top_pools"`
		} `json:"relationships"`
	} `json:"data"`
}

func (p *GeckoTerminalProvider) fetchToken(ctx context.Context, op string, chain domain.Chain, address string) (*geckoTokenResponse, error) {
	network, ok := geckoTerminalNetworks[chain]
	if !ok {
		return nil, unsupportedError(p.Name(), op, string(chain))
	}

	url := fmt.Sprintf("%s/networks/%s/tokens/%s?include=top_pools", p.baseURL, network, address)
	body, err := doGET(ctx, p.client, p.limiter, p.Name(), op, url, 1, nil)
	if err != nil {
		return nil, err
	}

	var payload geckoTokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, schemaError(p.Name(), op, err)
	}
	if payload.Data.ID == "" {
		return nil, notFoundError(p.Name(), op, "token not indexed")
	}

	if pools := payload.Data.Relationships.TopPools.Data; len(pools) > 0 {
		// Pool ids are "<network>_<pool address>".
		poolAddr := strings.TrimPrefix(pools[0].ID, network+"_")
		p.mu.Lock()
		p.pools[poolKey(chain, address)] = poolAddr
		p.mu.Unlock()
	}
	return &payload, nil
}

func (p *GeckoTerminalProvider) TokenPrice(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error) {
	ctx, span := p.tracer.Start(ctx, "geckoterminal.token-price")
	defer span.End()

	payload, err := p.fetchToken(ctx, "token-price", chain, address)
	if err != nil {
		return nil, err
	}

	attrs := payload.Data.Attributes
	price := parseFloatString(attrs.PriceUSD)
	if price <= 0 {
		return nil, schemaError(p.Name(), "token-price", fmt.Errorf("no usable price_usd %q", attrs.PriceUSD))
	}

	snap := &domain.PriceSnapshot{
		Address:   address,
		Chain:     chain,
		Symbol:    attrs.Symbol,
		PriceUSD:  price,
		Source:    p.Name(),
		FetchedAt: time.Now().UTC(),
	}
	if mcap := parseFloatString(attrs.MarketCapUSD); mcap > 0 {
		snap.MarketCapUSD = floatPtr(mcap)
	} else if fdv := parseFloatString(attrs.FDVUSD); fdv > 0 {
		snap.MarketCapUSD = floatPtr(fdv)
	}
	if reserve := parseFloatString(attrs.TotalReserveInUSD); reserve > 0 {
		snap.LiquidityUSD = floatPtr(reserve)
	}
	if vol := parseFloatString(attrs.VolumeUSD.H24); vol > 0 {
		snap.Volume24hUSD = floatPtr(vol)
	}
	return snap, nil
}

// TokenInfo resolves symbol and top pool in one call.
func (p *GeckoTerminalProvider) TokenInfo(ctx context.Context, chain domain.Chain, address string) (*TokenInfo, error) {
	ctx, span := p.tracer.Start(ctx, "geckoterminal.token-info")
	defer span.End()

	payload, err := p.fetchToken(ctx, "token-info", chain, address)
	if err != nil {
		return nil, err
	}
	attrs := payload.Data.Attributes
	if attrs.Symbol == "" {
		return nil, notFoundError(p.Name(), "token-info", "token carries no symbol")
	}
	return &TokenInfo{Address: address, Chain: chain, Symbol: attrs.Symbol, Name: attrs.Name}, nil
}

type geckoOHLCVResponse struct {
	Data struct {
		Attributes struct {
			OHLCVList [][]float64 `json:"ohlcv_list"`
		} `json:"attributes"`
	} `json:"data"`
}

// Candles returns hourly candles covering [from, to], oldest first. The API
// pages backwards from before_timestamp, newest first, so pages are walked
// until the window start is reached.
func (p *GeckoTerminalProvider) Candles(ctx context.Context, chain domain.Chain, address string, from, to time.Time) ([]domain.Candle, error) {
	ctx, span := p.tracer.Start(ctx, "geckoterminal.candles")
	defer span.End()

	network, ok := geckoTerminalNetworks[chain]
	if !ok {
		return nil, unsupportedError(p.Name(), "candles", string(chain))
	}

	pool, err := p.topPool(ctx, chain, address)
	if err != nil {
		return nil, err
	}

	var candles []domain.Candle
	before := to.Add(time.Hour).Unix()
	for page := 0; page < ohlcvMaxPages; page++ {
		url := fmt.Sprintf("%s/networks/%s/pools/%s/ohlcv/hour?aggregate=1&before_timestamp=%d&limit=%d&currency=usd&token=base",
			p.baseURL, network, pool, before, ohlcvPageLimit)
		body, err := doGET(ctx, p.client, p.limiter, p.Name(), "candles", url, 2, nil)
		if err != nil {
			return nil, err
		}

		var payload geckoOHLCVResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, schemaError(p.Name(), "candles", err)
		}

		rows := payload.Data.Attributes.OHLCVList
		if len(rows) == 0 {
			break
		}
		oldest := before
		for _, row := range rows {
			if len(row) < 6 {
				continue
			}
			open := time.Unix(int64(row[0]), 0).UTC()
			if open.Unix() < oldest {
				oldest = open.Unix()
			}
			if open.Before(from) || open.After(to) {
				continue
			}
			candles = append(candles, domain.Candle{
				OpenTime:  open,
				CloseTime: open.Add(time.Hour),
				Open:      row[1],
				High:      row[2],
				Low:       row[3],
				Close:     row[4],
				VolumeUSD: row[5],
			})
		}
		if oldest <= from.Unix() || int64(len(rows)) < ohlcvPageLimit {
			break
		}
		before = oldest
	}

	if len(candles) == 0 {
		return nil, notFoundError(p.Name(), "candles", "no candles in window")
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	return candles, nil
}

func (p *GeckoTerminalProvider) topPool(ctx context.Context, chain domain.Chain, address string) (string, error) {
	p.mu.Lock()
	pool, ok := p.pools[poolKey(chain, address)]
	p.mu.Unlock()
	if ok {
		return pool, nil
	}

	if _, err := p.fetchToken(ctx, "top-pool", chain, address); err != nil {
		return "", err
	}

	p.mu.Lock()
	pool, ok = p.pools[poolKey(chain, address)]
	p.mu.Unlock()
	if !ok {
		return "", notFoundError(p.Name(), "top-pool", "token has no pools")
	}
	return pool, nil
}

func poolKey(chain domain.Chain, address string) string {
	return string(chain) + ":" + address
}
