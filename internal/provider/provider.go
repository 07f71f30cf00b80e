// Package provider holds one HTTP client per upstream market data source. All
// clients normalize into domain types, classify failures through *Error, and
// admit every request through an injected rate limiter.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mintwatch/internal/domain"
	"mintwatch/internal/ratelimit"
)

// TokenInfo is the provider-agnostic identity of a token, produced by symbol
// resolution and cached immutably by the historical coordinator.
type TokenInfo struct {
	Address string       `json:"address"`
	Chain   domain.Chain `json:"chain"`
	Symbol  string       `json:"symbol"`
	Name    string       `json:"name,omitempty"`
}

// doGET performs a limiter-admitted GET and classifies every failure. Spot
// reads cost 1 token; heavier range queries pass a larger cost.
func doGET(ctx context.Context, client *http.Client, limiter *ratelimit.Limiter, providerName, op, url string, cost int, headers map[string]string) ([]byte, error) {
	if limiter != nil {
		if err := limiter.Acquire(ctx, cost); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, newError(providerName, op, KindTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(providerName, op, KindTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(providerName, op, resp.StatusCode, body)
	}
	return body, nil
}

// parseFloatString tolerates the string-encoded numbers several providers
// emit. Empty or malformed input parses to 0.
func parseFloatString(v string) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return n
}

func floatPtr(v float64) *float64 { return &v }
