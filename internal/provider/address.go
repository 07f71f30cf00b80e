package provider

import (
	"fmt"
	"strings"

	"mintwatch/internal/domain"

	"github.com/mr-tron/base58"
)

// NormalizeAddress validates address for the given chain and returns its
// canonical form: lowercased for EVM chains, unchanged for Solana (base58 is
// case sensitive).
func NormalizeAddress(chain domain.Chain, address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("empty address")
	}
	if !chain.IsSupported() {
		return "", fmt.Errorf("unsupported chain %q", chain)
	}

	if chain.IsEVM() {
		if !isEVMAddress(address) {
			return "", fmt.Errorf("invalid %s address %q: want 0x plus 40 hex chars", chain, address)
		}
		return strings.ToLower(address), nil
	}

	decoded, err := base58.Decode(address)
	if err != nil {
		return "", fmt.Errorf("invalid solana address %q: %w", address, err)
	}
	if len(decoded) != 32 {
		return "", fmt.Errorf("invalid solana address %q: decodes to %d bytes, want 32", address, len(decoded))
	}
	return address, nil
}

func isEVMAddress(address string) bool {
	if len(address) != 42 || !strings.HasPrefix(address, "0x") {
		return false
	}
	for _, r := range address[2:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
