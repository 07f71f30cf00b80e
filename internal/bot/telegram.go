// Package bot runs the Telegram ingestion front end: tracked-token commands
// plus passive scanning of every plain message for contract addresses.
package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/mentions"
	"mintwatch/internal/outcome"

	tele "gopkg.in/telebot.v3"
)

// PriceSource answers current-price questions.
type PriceSource interface {
	Resolve(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error)
}

// TrackSink receives observations and serves the signal history behind the
// /rep and /top commands.
type TrackSink interface {
	Track(ctx context.Context, obs domain.Observation) (*domain.TrackedPosition, bool, error)
	Signals(source string, limit int) []domain.Signal
	Sources() []string
}

func StartTelegramBot(prices PriceSource, tracker TrackSink, weights outcome.Weights) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/price", func(c tele.Context) error {
		chain, addr, err := parseTokenArgs(c.Args())
		if err != nil {
			return c.Send("Usage: /price <address> [chain]\nChains: " + chainList())
		}
		snap, err := prices.Resolve(context.Background(), chain, addr)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching price for %s: %v", addr, err))
		}
		return c.Send(formatSnapshot(snap))
	})

	b.Handle("/track", func(c tele.Context) error {
		chain, addr, err := parseTokenArgs(c.Args())
		if err != nil {
			return c.Send("Usage: /track <address> [chain]\nChains: " + chainList())
		}
		obs := domain.Observation{
			Address:    addr,
			Chain:      chain,
			Source:     sourceID(c),
			ObservedAt: time.Now().UTC(),
			Excerpt:    strings.TrimSpace(c.Text()),
		}
		pos, opened, err := tracker.Track(context.Background(), obs)
		if err != nil {
			return c.Send(fmt.Sprintf("Error tracking %s: %v", addr, err))
		}
		if opened {
			return c.Send(fmt.Sprintf("Tracking %s on %s\nEntry: $%.8g", pos.Address, pos.Chain, pos.StartPrice))
		}
		return c.Send(formatPosition(pos))
	})

	b.Handle("/rep", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /rep <source>")
		}
		source := args[0]
		signals := tracker.Signals(source, 0)
		if len(signals) == 0 {
			return c.Send(fmt.Sprintf("No signals recorded for %s", source))
		}
		rec := outcome.ComputeReputation(source, signals, weights, time.Now().UTC())
		return c.Send(formatReputation(rec))
	})

	b.Handle("/top", func(c tele.Context) error {
		sources := tracker.Sources()
		if len(sources) == 0 {
			return c.Send("No signal sources yet")
		}
		now := time.Now().UTC()
		records := make([]domain.ReputationRecord, 0, len(sources))
		for _, source := range sources {
			records = append(records, outcome.ComputeReputation(source, tracker.Signals(source, 0), weights, now))
		}
		sort.Slice(records, func(i, j int) bool { return records[i].Composite > records[j].Composite })
		if len(records) > 10 {
			records = records[:10]
		}
		var sb strings.Builder
		sb.WriteString("Source leaderboard\n")
		for i, rec := range records {
			fmt.Fprintf(&sb, "%d. %s  score %.1f  win %.0f%%  signals %d\n",
				i+1, rec.Source, rec.Composite, rec.WinRate*100, rec.TotalSignals)
		}
		return c.Send(sb.String())
	})

	// Any plain message doubles as an observation feed: every contract
	// address in it is tracked and answered with a snapshot.
	b.Handle(tele.OnText, func(c tele.Context) error {
		found := mentions.ExtractMentions(c.Text(), "")
		if len(found) == 0 {
			return nil
		}
		if len(found) > 3 {
			found = found[:3]
		}
		source := sourceID(c)
		now := time.Now().UTC()
		for _, m := range found {
			obs := domain.Observation{
				Address:    m.Address,
				Chain:      m.Chain,
				Source:     source,
				ObservedAt: now,
				Excerpt:    excerpt(c.Text()),
			}
			if _, _, err := tracker.Track(context.Background(), obs); err != nil {
				log.Printf("telegram: track %s/%s failed: %v", m.Chain, m.Address, err)
				continue
			}
			snap, err := prices.Resolve(context.Background(), m.Chain, m.Address)
			if err != nil {
				if sendErr := c.Send(fmt.Sprintf("Tracking %s, price currently unavailable", m.Address)); sendErr != nil {
					return sendErr
				}
				continue
			}
			if err := c.Send(formatSnapshot(snap)); err != nil {
				return err
			}
		}
		return nil
	})

	log.Println("Telegram bot started")
	go b.Start()
}

// chainList renders the supported chains for command usage strings.
func chainList() string {
	names := make([]string, len(domain.SupportedChains))
	for i, c := range domain.SupportedChains {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// parseTokenArgs reads "<address> [chain]". Without an explicit chain, hex
// addresses default to ethereum and base58 ones to solana.
func parseTokenArgs(args []string) (domain.Chain, string, error) {
	if len(args) == 0 {
		return "", "", fmt.Errorf("missing address")
	}
	addr := strings.TrimSpace(args[0])
	var chain domain.Chain
	if len(args) > 1 {
		chain = domain.Chain(strings.ToLower(args[1]))
	} else if strings.HasPrefix(addr, "0x") {
		chain = domain.ChainEthereum
	} else {
		chain = domain.ChainSolana
	}
	if !chain.IsSupported() {
		return "", "", fmt.Errorf("unsupported chain %q", chain)
	}
	return chain, addr, nil
}

// sourceID derives the reputation source for a chat: its title for groups
// and channels, the username or numeric id for direct messages.
func sourceID(c tele.Context) string {
	chat := c.Chat()
	if chat == nil {
		return "tg:unknown"
	}
	if chat.Title != "" {
		return "tg:" + chat.Title
	}
	if chat.Username != "" {
		return "tg:" + chat.Username
	}
	return "tg:" + strconv.FormatInt(chat.ID, 10)
}

func formatSnapshot(snap *domain.PriceSnapshot) string {
	var sb strings.Builder
	name := snap.Symbol
	if name == "" {
		name = snap.Address
	}
	fmt.Fprintf(&sb, "%s (%s)\nPrice: $%.8g\n", name, snap.Chain, snap.PriceUSD)
	if snap.MarketCapUSD != nil {
		fmt.Fprintf(&sb, "Market Cap: $%.0f\n", *snap.MarketCapUSD)
	}
	if snap.LiquidityUSD != nil {
		fmt.Fprintf(&sb, "Liquidity: $%.0f\n", *snap.LiquidityUSD)
	}
	if snap.Volume24hUSD != nil {
		fmt.Fprintf(&sb, "24h Volume: $%.0f\n", *snap.Volume24hUSD)
	}
	if snap.PriceChange24h != nil {
		fmt.Fprintf(&sb, "24h Change: %.2f%%\n", *snap.PriceChange24h)
	}
	fmt.Fprintf(&sb, "Source: %s", snap.Source)
	return sb.String()
}

func formatPosition(pos *domain.TrackedPosition) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s on %s (%s)\n", pos.Address, pos.Chain, pos.Status)
	fmt.Fprintf(&sb, "Entry: $%.8g at %s\n", pos.StartPrice, pos.FirstSeen.Format("2006-01-02 15:04"))
	fmt.Fprintf(&sb, "ATH: $%.8g (%.2fx)\n", pos.ATHPrice, pos.CurrentROI(pos.ATHPrice))
	fmt.Fprintf(&sb, "Mentions: %d", pos.Mentions)
	return sb.String()
}

func formatReputation(rec domain.ReputationRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\nScore: %.1f/100\n", rec.Source, rec.Composite)
	fmt.Fprintf(&sb, "Signals: %d (%d won, %d lost, %d dead)\n", rec.TotalSignals, rec.Wins, rec.Losses, rec.DeadCount)
	fmt.Fprintf(&sb, "Win rate: %.0f%%\nMean ROI: %.2fx\n", rec.WinRate*100, rec.MeanROI)
	fmt.Fprintf(&sb, "Sharpe: %.2f\nSpeed: %.0f", rec.SharpeLike, rec.SpeedScore)
	return sb.String()
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > 140 {
		text = text[:140]
	}
	return text
}
