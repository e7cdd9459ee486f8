// Package inference wraps the chat-completion collaborator used to derive
// preference profiles and article summaries. Responses are free text that is
// expected to contain exactly one JSON object; the first {...} block is
// extracted and parsed.
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/briefly/tracker/internal/profile"
	"github.com/briefly/tracker/internal/signallog"
)

// DefaultModel is used when the config does not name one.
const DefaultModel = "gpt-4o-mini"

// ParseError reports that the collaborator's output did not contain a valid
// JSON object. It is fatal for the single call that produced it.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("inference output parse failure: %s", e.Reason)
}

// Analysis is the validated preference analysis. Malformed individual fields
// are coerced to safe defaults during decoding rather than failing the call.
type Analysis struct {
	BoostedKeywords      []string
	SuppressedKeywords   []string
	PreferredSources     []string
	CategoryDistribution map[string]float64
	SerendipityRatio     float64
}

// Summary is the structured article summary shape.
type Summary struct {
	Headline        string   `json:"headline"`
	KeyPoints       []string `json:"key_points"`
	DetailedSummary string   `json:"detailed_summary"`
	WhyItMatters    string   `json:"why_it_matters"`
}

// Client calls the chat-completion API.
type Client struct {
	api    *openai.Client
	model  string
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBaseURL points the client at an alternate API endpoint (used by tests).
func WithBaseURL(apiKey, baseURL string) Option {
	return func(c *Client) {
		cfg := openai.DefaultConfig(apiKey)
		cfg.BaseURL = baseURL
		c.api = openai.NewClientWithConfig(cfg)
	}
}

// NewClient creates a client for the given API key and model.
func NewClient(apiKey, model string, opts ...Option) *Client {
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		api:    openai.NewClient(apiKey),
		model:  model,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// clickSummary is the condensed click shape embedded in the analysis prompt.
type clickSummary struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Source   string `json:"source"`
	Date     string `json:"date"`
}

// AnalyzePreferences derives a preference analysis from the full signal
// history and the current profile. A response without a parseable JSON object
// is a *ParseError; malformed fields inside a parseable object are coerced.
func (c *Client) AnalyzePreferences(ctx context.Context, clicks []signallog.Signal, current *profile.Profile) (*Analysis, error) {
	summaries := make([]clickSummary, 0, len(clicks))
	for _, s := range clicks {
		typ := s.Type
		if typ == "" {
			typ = signallog.TypePositive
		}
		date := s.Timestamp
		if len(date) > 10 {
			date = date[:10]
		}
		summaries = append(summaries, clickSummary{
			Type:     typ,
			Title:    s.Title,
			Category: s.Category,
			Source:   s.Source,
			Date:     date,
		})
	}

	prompt, err := buildAnalysisPrompt(summaries, current)
	if err != nil {
		return nil, err
	}
	text, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return decodeAnalysis(text)
}

// Summarize produces a structured summary of an article. articleText may be
// empty when the fetch failed; the prompt then asks for a title-only summary.
func (c *Client) Summarize(ctx context.Context, title, articleText string) (*Summary, error) {
	text, err := c.complete(ctx, buildSummaryPrompt(title, articleText))
	if err != nil {
		return nil, err
	}
	return decodeSummary(text)
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	c.logger.Debug("inference response received",
		zap.String("model", c.model),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
	)
	return resp.Choices[0].Message.Content, nil
}

// extractJSON returns the first '{' through the last '}' of s, matching the
// collaborator contract of exactly one JSON object per response.
func extractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

// analysisPayload holds the raw fields so each one can be decoded tolerantly.
type analysisPayload struct {
	BoostedKeywords      json.RawMessage `json:"boosted_keywords"`
	SuppressedKeywords   json.RawMessage `json:"suppressed_keywords"`
	PreferredSources     json.RawMessage `json:"preferred_sources"`
	CategoryDistribution json.RawMessage `json:"category_distribution"`
	SerendipityRatio     json.RawMessage `json:"serendipity_ratio"`
}

func decodeAnalysis(text string) (*Analysis, error) {
	raw, ok := extractJSON(text)
	if !ok {
		return nil, &ParseError{Reason: "no JSON object in response"}
	}
	var payload analysisPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	return &Analysis{
		BoostedKeywords:      stringsOrEmpty(payload.BoostedKeywords),
		SuppressedKeywords:   stringsOrEmpty(payload.SuppressedKeywords),
		PreferredSources:     stringsOrEmpty(payload.PreferredSources),
		CategoryDistribution: distributionOrEmpty(payload.CategoryDistribution),
		SerendipityRatio:     numberOrZero(payload.SerendipityRatio),
	}, nil
}

func decodeSummary(text string) (*Summary, error) {
	raw, ok := extractJSON(text)
	if !ok {
		return nil, &ParseError{Reason: "no JSON object in response"}
	}
	var s Summary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	return &s, nil
}

// stringsOrEmpty decodes a JSON string array, coercing anything else
// (missing, null, wrong type) to an empty list.
func stringsOrEmpty(raw json.RawMessage) []string {
	var out []string
	if raw == nil || json.Unmarshal(raw, &out) != nil || out == nil {
		return []string{}
	}
	return out
}

// distributionOrEmpty decodes a category→fraction object, coercing anything
// else to an empty map.
func distributionOrEmpty(raw json.RawMessage) map[string]float64 {
	var out map[string]float64
	if raw == nil || json.Unmarshal(raw, &out) != nil || out == nil {
		return map[string]float64{}
	}
	return out
}

// numberOrZero decodes a JSON number, coercing anything else to 0.
func numberOrZero(raw json.RawMessage) float64 {
	var out float64
	if raw == nil || json.Unmarshal(raw, &out) != nil {
		return 0
	}
	return out
}
