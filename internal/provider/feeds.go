package provider

import "time"

// FeedItem is one post or article pulled from a mention feed. SourceID is
// unique within the feed and drives dedup across scan cycles.
type FeedItem struct {
	Source      string    `json:"source"`
	SourceID    string    `json:"source_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body,omitempty"`
	Author      string    `json:"author,omitempty"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Score       float64   `json:"score,omitempty"`
	Comments    int       `json:"comments,omitempty"`
}
