package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/ratelimit"

	"go.opentelemetry.io/otel/trace"
)

func TestBuildCandlesFromMarketChart(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prices := [][]float64{
		{float64(base.UnixMilli()), 10},
		{float64(base.Add(10 * time.Minute).UnixMilli()), 12},
		{float64(base.Add(70 * time.Minute).UnixMilli()), 8},
		{float64(base.Add(80 * time.Minute).UnixMilli()), 9},
	}
	volumes := [][]float64{
		{float64(base.Add(time.Hour).UnixMilli()), 100},
		{float64(base.Add(2 * time.Hour).UnixMilli()), 200},
	}

	candles := buildCandlesFromMarketChart(time.Hour, prices, volumes)
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}

	first := candles[0]
	if first.Open != 10 || first.High != 12 || first.Low != 10 || first.Close != 12 {
		t.Fatalf("unexpected first candle: %+v", first)
	}
	if first.VolumeUSD != 100 {
		t.Fatalf("expected volume 100, got %f", first.VolumeUSD)
	}
	if !first.CloseTime.Equal(base.Add(time.Hour)) {
		t.Fatalf("unexpected close time: %v", first.CloseTime)
	}

	second := candles[1]
	if !second.OpenTime.Equal(base.Add(time.Hour)) {
		t.Fatalf("unexpected open time: %v", second.OpenTime)
	}
	if second.Open != 8 || second.Close != 9 {
		t.Fatalf("unexpected second candle: %+v", second)
	}
}

func TestFindClosestVolume(t *testing.T) {
	volumes := []volumePoint{
		{ts: 1000, vol: 1},
		{ts: 1500, vol: 5},
		{ts: 2000, vol: 10},
	}
	vol := findClosestVolume(volumes, 1600)
	if vol != 5 {
		t.Fatalf("expected volume 5, got %f", vol)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(t *testing.T, status int, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     make(http.Header),
	}
}

func testLimiter() *ratelimit.Limiter {
	return ratelimit.New("test", 1000, 1000)
}

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

func TestCoinGeckoTokenPrice(t *testing.T) {
	t.Parallel()

	p := NewCoinGeckoProvider(testTracer, testLimiter())
	p.baseURL = "http://example"
	p.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if !strings.Contains(req.URL.Path, "/simple/token_price/ethereum") {
				t.Fatalf("unexpected path: %s", req.URL.Path)
			}
			return jsonResponse(t, http.StatusOK, map[string]map[string]float64{
				"0xabc0000000000000000000000000000000000abc": {
					"usd":            1.5,
					"usd_market_cap": 2000000,
					"usd_24h_vol":    50000,
					"usd_24h_change": -3.2,
				},
			}), nil
		}),
	}

	snap, err := p.TokenPrice(context.Background(), domain.ChainEthereum, "0xABC0000000000000000000000000000000000abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.PriceUSD != 1.5 || snap.Source != "coingecko" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.MarketCapUSD == nil || *snap.MarketCapUSD != 2000000 {
		t.Fatalf("expected market cap, got %+v", snap.MarketCapUSD)
	}
	if snap.PriceChange24h == nil || *snap.PriceChange24h != -3.2 {
		t.Fatalf("expected change, got %+v", snap.PriceChange24h)
	}
}

func TestCoinGeckoTokenPriceNotIndexed(t *testing.T) {
	t.Parallel()

	p := NewCoinGeckoProvider(testTracer, testLimiter())
	p.baseURL = "http://example"
	p.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(t, http.StatusOK, map[string]map[string]float64{}), nil
		}),
	}

	_, err := p.TokenPrice(context.Background(), domain.ChainEthereum, "0xabc0000000000000000000000000000000000abc")
	if !IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestCoinGeckoTokenInfoMemoizesCoinID(t *testing.T) {
	t.Parallel()

	var contractCalls, chartCalls int
	p := NewCoinGeckoProvider(testTracer, testLimiter())
	p.baseURL = "http://example"
	p.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			switch {
			case strings.Contains(req.URL.Path, "/contract/"):
				contractCalls++
				return jsonResponse(t, http.StatusOK, map[string]string{
					"id": "chainlink", "symbol": "link", "name": "Chainlink",
				}), nil
			case strings.Contains(req.URL.Path, "/coins/chainlink/market_chart/range"):
				chartCalls++
				return jsonResponse(t, http.StatusOK, map[string]any{
					"prices":        [][]float64{{float64(time.Now().Add(-30 * time.Minute).UnixMilli()), 10}},
					"total_volumes": [][]float64{{float64(time.Now().UnixMilli()), 100}},
				}), nil
			default:
				t.Fatalf("unexpected path: %s", req.URL.Path)
				return nil, nil
			}
		}),
	}

	info, err := p.TokenInfo(context.Background(), domain.ChainEthereum, "0x514910771af9ca656af840dff83e8264ecf986ca")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Symbol != "LINK" {
		t.Fatalf("expected uppercased symbol, got %q", info.Symbol)
	}

	now := time.Now()
	if _, err := p.Candles(context.Background(), domain.ChainEthereum, "0x514910771af9ca656af840dff83e8264ecf986ca", now.Add(-time.Hour), now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contractCalls != 1 {
		t.Fatalf("expected memoized coin id, got %d contract lookups", contractCalls)
	}
	if chartCalls != 1 {
		t.Fatalf("expected 1 chart call, got %d", chartCalls)
	}
}

func TestCoinGeckoUnsupportedChain(t *testing.T) {
	t.Parallel()

	p := NewCoinGeckoProvider(testTracer, testLimiter())
	_, err := p.TokenPrice(context.Background(), domain.Chain("tron"), "whatever")
	if !IsUnsupported(err) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}
