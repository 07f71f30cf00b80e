package mentions

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/provider"

	"go.opentelemetry.io/otel/trace"
)

type RedditFeed interface {
	FetchNew(ctx context.Context, subreddit string, limit int) ([]provider.FeedItem, error)
}

type RSSFeed interface {
	FetchFeed(ctx context.Context, feedURL string, maxItems int) ([]provider.FeedItem, error)
}

// TrackSink receives one observation per detected contract address.
type TrackSink interface {
	Track(ctx context.Context, obs domain.Observation) (*domain.TrackedPosition, bool, error)
}

type ScanConfig struct {
	RedditSubs []string
	RSSFeeds   []string
	ItemLimit  int // items fetched per feed, default 40
	MaxSeen    int // dedup memory bound, default 10000
}

// ScanResult summarizes one scan cycle.
type ScanResult struct {
	ItemsFetched int      `json:"items_fetched"`
	NewItems     int      `json:"new_items"`
	Mentions     int      `json:"mentions"`
	Opened       int      `json:"opened"`
	Errors       []string `json:"errors,omitempty"`
}

// Scanner pulls feed items, extracts contract addresses from their text and
// routes each one to the tracker as an observation. Items already processed
// in an earlier cycle are skipped by (source, source id).
type Scanner struct {
	tracer trace.Tracer
	reddit RedditFeed
	rss    RSSFeed
	scorer *Scorer
	sink   TrackSink
	cfg    ScanConfig

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewScanner(tracer trace.Tracer, reddit RedditFeed, rss RSSFeed, scorer *Scorer, sink TrackSink, cfg ScanConfig) *Scanner {
	if cfg.ItemLimit <= 0 {
		cfg.ItemLimit = 40
	}
	if cfg.MaxSeen <= 0 {
		cfg.MaxSeen = 10000
	}
	if scorer == nil {
		scorer = NewScorer(nil, 0)
	}
	return &Scanner{
		tracer: tracer,
		reddit: reddit,
		rss:    rss,
		scorer: scorer,
		sink:   sink,
		cfg:    cfg,
	}
}

// Scan runs one cycle: fetch every configured feed, keep unseen items, score
// their sentiment and track each detected address. Feed failures are
// collected per feed and never abort the cycle.
func (s *Scanner) Scan(ctx context.Context, now time.Time) (ScanResult, error) {
	ctx, span := s.tracer.Start(ctx, "mention-scanner.scan")
	defer span.End()

	if s.sink == nil {
		return ScanResult{}, fmt.Errorf("mention scanner has no track sink")
	}
	now = now.UTC()

	result := ScanResult{}
	items := make([]provider.FeedItem, 0, 64)

	if s.reddit != nil {
		for _, sub := range s.cfg.RedditSubs {
			batch, err := s.reddit.FetchNew(ctx, sub, s.cfg.ItemLimit)
			if err != nil {
				result.Errors = append(result.Errors, "reddit:"+sub+": "+err.Error())
				continue
			}
			items = append(items, batch...)
		}
	}
	if s.rss != nil {
		for _, feed := range s.cfg.RSSFeeds {
			batch, err := s.rss.FetchFeed(ctx, feed, s.cfg.ItemLimit)
			if err != nil {
				result.Errors = append(result.Errors, "rss:"+feed+": "+err.Error())
				continue
			}
			items = append(items, batch...)
		}
	}
	result.ItemsFetched = len(items)

	fresh := s.keepUnseen(items)
	result.NewItems = len(fresh)
	if len(fresh) == 0 {
		return result, nil
	}

	scores, err := s.scorer.Score(ctx, fresh)
	if err != nil {
		result.Errors = append(result.Errors, "sentiment: "+err.Error())
	}

	for i, item := range fresh {
		found := ExtractMentions(item.Title+"\n"+item.Body, "")
		if len(found) == 0 {
			continue
		}
		var sentiment *float64
		if i < len(scores) {
			v := scores[i].Score
			sentiment = &v
		}
		observedAt := item.PublishedAt
		if observedAt.IsZero() {
			observedAt = now
		}
		for _, m := range found {
			result.Mentions++
			obs := domain.Observation{
				Address:    m.Address,
				Chain:      m.Chain,
				Source:     item.Source,
				ObservedAt: observedAt,
				Sentiment:  sentiment,
				Excerpt:    excerpt(item.Title),
			}
			_, opened, err := s.sink.Track(ctx, obs)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("track %s/%s: %v", m.Chain, m.Address, err))
				continue
			}
			if opened {
				result.Opened++
			}
		}
	}
	return result, nil
}

// keepUnseen filters out items processed in earlier cycles and marks the
// remainder seen. When the seen set outgrows its bound it is reset whole;
// re-tracking an old item only bumps mention counters.
func (s *Scanner) keepUnseen(items []provider.FeedItem) []provider.FeedItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen == nil || len(s.seen) > s.cfg.MaxSeen {
		s.seen = make(map[string]struct{}, len(items))
	}
	out := make([]provider.FeedItem, 0, len(items))
	for _, item := range items {
		key := item.Source + "|" + item.SourceID
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func excerpt(title string) string {
	title = strings.TrimSpace(title)
	if len(title) > 140 {
		title = title[:140]
	}
	return title
}
