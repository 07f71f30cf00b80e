package mentions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"mintwatch/internal/provider"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// SentimentScore is the scored sentiment for one feed item. Index refers to
// the item's position in the scored slice.
type SentimentScore struct {
	Index      int
	Score      float64
	Confidence float64
	Label      string
	Model      string
	Reason     string
}

type BatchLLMScorer interface {
	ScoreBatch(ctx context.Context, items []provider.FeedItem) ([]SentimentScore, error)
}

// Scorer always produces a heuristic score and lets an optional LLM override
// it. A failing LLM batch keeps the heuristic result.
type Scorer struct {
	llm       BatchLLMScorer
	batchSize int
}

func NewScorer(llm BatchLLMScorer, batchSize int) *Scorer {
	if batchSize <= 0 {
		batchSize = 24
	}
	return &Scorer{llm: llm, batchSize: batchSize}
}

func (s *Scorer) Score(ctx context.Context, items []provider.FeedItem) ([]SentimentScore, error) {
	if len(items) == 0 {
		return nil, nil
	}

	out := make([]SentimentScore, len(items))
	for i, item := range items {
		score, confidence, label, reason := HeuristicSentiment(item.Title, item.Body)
		out[i] = SentimentScore{
			Index:      i,
			Score:      score,
			Confidence: confidence,
			Label:      label,
			Reason:     reason,
			Model:      "heuristic:v1",
		}
	}

	if s.llm != nil {
		for start := 0; start < len(items); start += s.batchSize {
			end := min(start+s.batchSize, len(items))
			scored, err := s.llm.ScoreBatch(ctx, items[start:end])
			if err != nil {
				continue
			}
			for _, row := range scored {
				i := start + row.Index
				if i < start || i >= end {
					continue
				}
				out[i].Score = clamp(row.Score, -1, 1)
				out[i].Confidence = clamp(row.Confidence, 0, 1)
				out[i].Label = normalizeLabel(row.Label)
				out[i].Reason = strings.TrimSpace(row.Reason)
				if out[i].Reason == "" {
					out[i].Reason = "llm"
				}
				if row.Model != "" {
					out[i].Model = row.Model
				}
			}
		}
	}

	return out, nil
}

// HeuristicSentiment scores token-call text by keyword balance. Confidence
// stays low; this is the fallback when no LLM is configured.
func HeuristicSentiment(title, body string) (float64, float64, string, string) {
	text := strings.ToLower(strings.TrimSpace(title + " " + body))
	if text == "" {
		return 0, 0.25, "neutral", "empty-text"
	}

	bullish := []string{"moon", "pump", "gem", "100x", "ape", "bullish", "send", "launch", "breakout", "lfg"}
	bearish := []string{"rug", "scam", "dump", "honeypot", "jeet", "exit", "drain", "bearish", "rekt", "avoid"}

	bullCount := countMatches(text, bullish)
	bearCount := countMatches(text, bearish)

	raw := float64(bullCount-bearCount) / float64(bullCount+bearCount+1)
	score := clamp(raw, -1, 1)
	confidence := clamp(0.35+(0.1*float64(absInt(bullCount-bearCount))), 0.25, 0.70)

	label := "neutral"
	if score > 0.2 {
		label = "bullish"
	} else if score < -0.2 {
		label = "bearish"
	}
	reason := fmt.Sprintf("heuristic keywords bull=%d bear=%d", bullCount, bearCount)
	return score, confidence, label, reason
}

func countMatches(text string, tokens []string) int {
	count := 0
	for _, token := range tokens {
		if strings.Contains(text, token) {
			count++
		}
	}
	return count
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	switch label {
	case "bull", "bullish", "positive":
		return "bullish"
	case "bear", "bearish", "negative":
		return "bearish"
	default:
		return "neutral"
	}
}

type openAIChatClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

type OpenAIScorer struct {
	client openAIChatClient
	model  string
}

// NewOpenAIScorer returns nil when no API key is configured; the Scorer then
// runs heuristics only.
func NewOpenAIScorer(apiKey string, model string) *OpenAIScorer {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIScorer{
		client: &openAIClient{client: client},
		model:  model,
	}
}

func (s *OpenAIScorer) ScoreBatch(ctx context.Context, items []provider.FeedItem) ([]SentimentScore, error) {
	if s == nil || s.client == nil || len(items) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i, item := range items {
		sb.WriteString(fmt.Sprintf("id=%d\n", i))
		sb.WriteString(fmt.Sprintf("title=%s\n", strings.TrimSpace(item.Title)))
		sb.WriteString(fmt.Sprintf("body=%s\n\n", strings.TrimSpace(item.Body)))
	}

	systemPrompt := "You score sentiment of crypto token calls. Return ONLY a JSON array. Each object requires: id (int), score (-1..1), confidence (0..1), label (bullish|neutral|bearish), reason (short text). No markdown."
	userPrompt := "Items:\n" + sb.String()

	completion, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("empty scorer completion")
	}

	raw := strings.TrimSpace(completion.Choices[0].Message.Content)
	raw = trimCodeFence(raw)

	var parsed []struct {
		ID         int     `json:"id"`
		Score      float64 `json:"score"`
		Confidence float64 `json:"confidence"`
		Label      string  `json:"label"`
		Reason     string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse scorer json: %w", err)
	}

	out := make([]SentimentScore, 0, len(parsed))
	for _, row := range parsed {
		if row.ID < 0 || row.ID >= len(items) {
			continue
		}
		out = append(out, SentimentScore{
			Index:      row.ID,
			Score:      clamp(row.Score, -1, 1),
			Confidence: clamp(row.Confidence, 0, 1),
			Label:      normalizeLabel(row.Label),
			Reason:     strings.TrimSpace(row.Reason),
			Model:      "llm:" + s.model,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func trimCodeFence(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "```") {
		v = strings.TrimPrefix(v, "```")
		v = strings.TrimSpace(v)
		if strings.HasPrefix(strings.ToLower(v), "json") {
			v = strings.TrimSpace(v[4:])
		}
		v = strings.TrimSuffix(v, "```")
		v = strings.TrimSpace(v)
	}
	return v
}

type openAIClient struct {
	client openai.Client
}

func (c *openAIClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
