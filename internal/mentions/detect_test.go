package mentions

import (
	"testing"

	"mintwatch/internal/domain"
)

const (
	uniAddr  = "0x1f9840a85d5AF5bf1D1762F925BDADdC4201F984"
	solMint  = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestExtractMentionsFindsEVMAddress(t *testing.T) {
	t.Parallel()

	got := ExtractMentions("stealth launch, CA: "+uniAddr+" LFG", "")
	if len(got) != 1 {
		t.Fatalf("got %d mentions, want 1", len(got))
	}
	if got[0].Chain != domain.ChainEthereum {
		t.Fatalf("got chain %q, want ethereum", got[0].Chain)
	}
	if got[0].Address != "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984" {
		t.Fatalf("address not normalized: %q", got[0].Address)
	}
}

func TestExtractMentionsUsesEVMChainHint(t *testing.T) {
	t.Parallel()

	got := ExtractMentions(uniAddr, domain.ChainBSC)
	if len(got) != 1 || got[0].Chain != domain.ChainBSC {
		t.Fatalf("got %+v, want the bsc hint applied", got)
	}

	// A non-EVM hint cannot claim an EVM address.
	got = ExtractMentions(uniAddr, domain.ChainSolana)
	if len(got) != 1 || got[0].Chain != domain.ChainEthereum {
		t.Fatalf("got %+v, want ethereum fallback", got)
	}
}

func TestExtractMentionsDeduplicates(t *testing.T) {
	t.Parallel()

	text := uniAddr + " again " + "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984"
	got := ExtractMentions(text, "")
	if len(got) != 1 {
		t.Fatalf("got %d mentions, want case-insensitive dedupe to 1", len(got))
	}
}

func TestExtractMentionsIgnoresTxHashes(t *testing.T) {
	t.Parallel()

	hash := "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
	if got := ExtractMentions("tx "+hash, ""); len(got) != 0 {
		t.Fatalf("matched inside a tx hash: %+v", got)
	}
}

func TestExtractMentionsFindsSolanaMints(t *testing.T) {
	t.Parallel()

	got := ExtractMentions("swap "+solMint+" for "+usdcMint, "")
	if len(got) != 2 {
		t.Fatalf("got %d mentions, want 2", len(got))
	}
	for _, m := range got {
		if m.Chain != domain.ChainSolana {
			t.Fatalf("got chain %q, want solana", m.Chain)
		}
	}
	if got[0].Address != solMint || got[1].Address != usdcMint {
		t.Fatalf("unexpected addresses %+v", got)
	}
}

func TestExtractMentionsRejectsBase58Noise(t *testing.T) {
	t.Parallel()

	// Valid base58 alphabet, wrong decoded length.
	if got := ExtractMentions("abcdefghjkmnpqrstuvwxyz123456789ABC", ""); len(got) != 0 {
		t.Fatalf("accepted a non-key base58 run: %+v", got)
	}
}

func TestExtractMentionsMixedChains(t *testing.T) {
	t.Parallel()

	got := ExtractMentions(uniAddr+" and "+solMint, "")
	if len(got) != 2 {
		t.Fatalf("got %d mentions, want 2", len(got))
	}
	if got[0].Chain != domain.ChainEthereum || got[1].Chain != domain.ChainSolana {
		t.Fatalf("unexpected chain order %+v", got)
	}
}

func TestExtractMentionsEmptyText(t *testing.T) {
	t.Parallel()

	if got := ExtractMentions("   ", ""); got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
}
