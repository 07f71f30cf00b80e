package provider

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"mintwatch/internal/domain"
)

func dexPair(chainID, address, symbol, priceUSD string, liquidity float64) map[string]any {
	return map[string]any{
		"chainId": chainID,
		"dexId":   "uniswap",
		"baseToken": map[string]string{
			"address": address,
			"symbol":  symbol,
		},
		"priceUsd":      priceUSD,
		"volume":        map[string]float64{"h24": 12345},
		"priceChange":   map[string]float64{"h24": -4.2},
		"liquidity":     map[string]float64{"usd": liquidity},
		"marketCap":     900000.0,
		"pairCreatedAt": 1767225600000,
	}
}

func TestDexScreenerPicksMostLiquidPair(t *testing.T) {
	t.Parallel()

	addr := "0xabc0000000000000000000000000000000000abc"
	p := NewDexScreenerProvider(testTracer, testLimiter())
	p.baseURL = "http://example"
	p.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if !strings.Contains(req.URL.Path, "/latest/dex/tokens/"+addr) {
				t.Fatalf("unexpected path: %s", req.URL.Path)
			}
			return jsonResponse(t, http.StatusOK, map[string]any{
				"pairs": []map[string]any{
					dexPair("ethereum", addr, "PEPE", "0.5", 1000),
					dexPair("ethereum", addr, "PEPE", "0.6", 90000),
					dexPair("bsc", addr, "PEPE", "0.9", 999999),
					dexPair("ethereum", "0xother", "OTHER", "7", 999999),
				},
			}), nil
		}),
	}

	snap, err := p.TokenPrice(context.Background(), domain.ChainEthereum, addr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.PriceUSD != 0.6 {
		t.Fatalf("expected deepest same-chain pair to win, got price %f", snap.PriceUSD)
	}
	if snap.Symbol != "PEPE" || snap.Source != "dexscreener" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.LiquidityUSD == nil || *snap.LiquidityUSD != 90000 {
		t.Fatalf("unexpected liquidity: %+v", snap.LiquidityUSD)
	}
	if snap.PairCreatedAt == nil || snap.PairCreatedAt.Year() != 2026 {
		t.Fatalf("unexpected pair creation: %+v", snap.PairCreatedAt)
	}
}

func TestDexScreenerNoPairsIsNotFound(t *testing.T) {
	t.Parallel()

	p := NewDexScreenerProvider(testTracer, testLimiter())
	p.baseURL = "http://example"
	p.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(t, http.StatusOK, map[string]any{"pairs": nil}), nil
		}),
	}

	_, err := p.TokenPrice(context.Background(), domain.ChainEthereum, "0xabc0000000000000000000000000000000000abc")
	if !IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestDexScreenerUnparseablePriceIsSchemaError(t *testing.T) {
	t.Parallel()

	addr := "0xabc0000000000000000000000000000000000abc"
	p := NewDexScreenerProvider(testTracer, testLimiter())
	p.baseURL = "http://example"
	p.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(t, http.StatusOK, map[string]any{
				"pairs": []map[string]any{dexPair("ethereum", addr, "X", "not-a-number", 5)},
			}), nil
		}),
	}

	_, err := p.TokenPrice(context.Background(), domain.ChainEthereum, addr)
	if !IsSchema(err) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestDexScreenerRateLimitClassified(t *testing.T) {
	t.Parallel()

	p := NewDexScreenerProvider(testTracer, testLimiter())
	p.baseURL = "http://example"
	p.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(t, http.StatusTooManyRequests, map[string]string{"error": "slow down"}), nil
		}),
	}

	_, err := p.TokenPrice(context.Background(), domain.ChainEthereum, "0xabc0000000000000000000000000000000000abc")
	if !IsRateLimited(err) {
		t.Fatalf("expected rate-limited, got %v", err)
	}
}
