package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mintwatch/internal/ratelimit"

	"go.opentelemetry.io/otel/trace"
)

const (
	redditBaseURL     = "https://www.reddit.com"
	defaultRedditUA   = "mintwatch/1.0 (token mention scanner)"
	defaultRedditSize = 40
)

// RedditProvider pulls the newest posts from a subreddit. Mention detection
// wants posts as close to publication as possible, so it reads the new
// listing rather than hot.
type RedditProvider struct {
	client    *http.Client
	baseURL   string
	userAgent string
	tracer    trace.Tracer
	limiter   *ratelimit.Limiter
}

func NewRedditProvider(tracer trace.Tracer, limiter *ratelimit.Limiter) *RedditProvider {
	return &RedditProvider{
		client:    &http.Client{Timeout: 20 * time.Second},
		baseURL:   redditBaseURL,
		userAgent: defaultRedditUA,
		tracer:    tracer,
		limiter:   limiter,
	}
}

func (p *RedditProvider) FetchNew(ctx context.Context, subreddit string, limit int) ([]FeedItem, error) {
	ctx, span := p.tracer.Start(ctx, "reddit.fetch-new")
	defer span.End()

	subreddit = strings.TrimSpace(subreddit)
	if subreddit == "" {
		return nil, fmt.Errorf("subreddit is required")
	}
	if limit <= 0 {
		limit = defaultRedditSize
	}
	if limit > 100 {
		limit = 100
	}

	base := strings.TrimRight(p.baseURL, "/")
	u := fmt.Sprintf("%s/r/%s/new.json?limit=%d", base, url.PathEscape(subreddit), limit)
	body, err := doGET(ctx, p.client, p.limiter, "reddit", "fetch-new", u, 1, map[string]string{
		"User-Agent": p.userAgent,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data struct {
			Children []struct {
				Data struct {
					ID          string  `json:"id"`
					Subreddit   string  `json:"subreddit"`
					Title       string  `json:"title"`
					SelfText    string  `json:"selftext"`
					Author      string  `json:"author"`
					CreatedUTC  float64 `json:"created_utc"`
					Permalink   string  `json:"permalink"`
					URL         string  `json:"url"`
					Score       float64 `json:"score"`
					NumComments float64 `json:"num_comments"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, schemaError("reddit", "fetch-new", err)
	}

	items := make([]FeedItem, 0, len(payload.Data.Children))
	for _, row := range payload.Data.Children {
		data := row.Data
		if strings.TrimSpace(data.ID) == "" || strings.TrimSpace(data.Title) == "" {
			continue
		}
		itemURL := strings.TrimSpace(data.URL)
		if permalink := strings.TrimSpace(data.Permalink); permalink != "" {
			itemURL = base + permalink
		}
		items = append(items, FeedItem{
			Source:      "reddit:" + strings.TrimSpace(data.Subreddit),
			SourceID:    data.ID,
			Title:       sanitizeText(data.Title, 300),
			Body:        sanitizeText(data.SelfText, 2000),
			Author:      sanitizeText(data.Author, 120),
			URL:         itemURL,
			PublishedAt: time.Unix(int64(data.CreatedUTC), 0).UTC(),
			Score:       data.Score,
			Comments:    int(data.NumComments),
		})
	}

	return items, nil
}

func sanitizeText(in string, maxLen int) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return ""
	}
	in = strings.ReplaceAll(in, "\n", " ")
	in = strings.ReplaceAll(in, "\r", " ")
	in = strings.Join(strings.Fields(in), " ")
	if maxLen > 0 && len(in) > maxLen {
		in = in[:maxLen]
	}
	return in
}
