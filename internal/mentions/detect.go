// Package mentions turns raw feed text into tracked-token observations:
// contract address extraction plus a sentiment score for the surrounding
// text.
package mentions

import (
	"regexp"
	"strings"

	"mintwatch/internal/domain"
	"mintwatch/internal/provider"
)

var (
	evmAddressRE = regexp.MustCompile(`\b0x[0-9a-fA-F]{40}\b`)
	// Base58 runs in the solana address length band. Most matches are noise;
	// the decode check below keeps only real 32-byte keys.
	base58CandidateRE = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{32,44}\b`)
)

// Mention is one contract address found in a piece of feed text.
type Mention struct {
	Address string       `json:"address"`
	Chain   domain.Chain `json:"chain"`
}

// ExtractMentions scans text for contract addresses, deduplicated in order
// of first appearance. EVM matches take the hinted chain when the hint is an
// EVM chain and ethereum otherwise; base58 matches resolve to solana.
func ExtractMentions(text string, hint domain.Chain) []Mention {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	evmChain := domain.ChainEthereum
	if hint.IsEVM() {
		evmChain = hint
	}

	seen := make(map[string]bool)
	var out []Mention

	appendMention := func(chain domain.Chain, raw string) {
		addr, err := provider.NormalizeAddress(chain, raw)
		if err != nil {
			return
		}
		key := string(chain) + ":" + addr
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Mention{Address: addr, Chain: chain})
	}

	for _, raw := range evmAddressRE.FindAllString(text, -1) {
		appendMention(evmChain, raw)
	}
	for _, raw := range base58CandidateRE.FindAllString(text, -1) {
		appendMention(domain.ChainSolana, raw)
	}

	return out
}
