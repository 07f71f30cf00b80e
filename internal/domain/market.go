package domain

import "time"

// Chain identifies the network a token address lives on.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainBSC      Chain = "bsc"
	ChainBase     Chain = "base"
	ChainSolana   Chain = "solana"
)

// SupportedChains lists all chains the resolver accepts.
var SupportedChains = []Chain{ChainEthereum, ChainBSC, ChainBase, ChainSolana}

// IsSupported reports whether the chain is one the resolver accepts.
func (c Chain) IsSupported() bool {
	for _, s := range SupportedChains {
		if c == s {
			return true
		}
	}
	return false
}

// IsEVM reports whether addresses on this chain are hex contract addresses.
func (c Chain) IsEVM() bool {
	return c == ChainEthereum || c == ChainBSC || c == ChainBase
}

// PriceSnapshot is a point-in-time market-data record for one (address, chain).
// Optional fields are pointers: nil means the resolving provider did not supply
// the field, which is distinct from a reported zero.
type PriceSnapshot struct {
	Address        string     `json:"address"`
	Chain          Chain      `json:"chain"`
	Symbol         string     `json:"symbol,omitempty"`
	PriceUSD       float64    `json:"price_usd"`
	MarketCapUSD   *float64   `json:"market_cap_usd,omitempty"`
	Volume24hUSD   *float64   `json:"volume_24h_usd,omitempty"`
	LiquidityUSD   *float64   `json:"liquidity_usd,omitempty"`
	PriceChange24h *float64   `json:"price_change_24h_pct,omitempty"`
	PairCreatedAt  *time.Time `json:"pair_created_at,omitempty"`
	Source         string     `json:"source"`
	MergedSources  []string   `json:"merged_sources,omitempty"`
	Suspect        bool       `json:"suspect,omitempty"`
	FetchedAt      time.Time  `json:"fetched_at"`
}

// Candle is a single OHLCV candle. Volume is quoted in USD.
type Candle struct {
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	VolumeUSD float64   `json:"volume_usd"`
}

// Contains reports whether ts falls inside [OpenTime, CloseTime).
func (c Candle) Contains(ts time.Time) bool {
	return !ts.Before(c.OpenTime) && ts.Before(c.CloseTime)
}
