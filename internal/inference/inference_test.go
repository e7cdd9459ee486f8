package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/briefly/tracker/internal/profile"
	"github.com/briefly/tracker/internal/signallog"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"fenced in prose", "Here you go:\n```json\n{\"a\":1}\n```\nEnjoy.", `{"a":1}`, true},
		{"nested braces", `result {"a":{"b":2}} end`, `{"a":{"b":2}}`, true},
		{"no object", "sorry, I cannot do that", "", false},
		{"only open brace", "{ broken", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSON(tt.input)
			if ok != tt.ok {
				t.Fatalf("ok: got %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeAnalysisCoercesMalformedFields(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"keywords not an array", `{"boosted_keywords": "ai", "suppressed_keywords": 42}`},
		{"distribution not an object", `{"category_distribution": ["ai"]}`},
		{"ratio not a number", `{"serendipity_ratio": "high"}`},
		{"null fields", `{"boosted_keywords": null, "category_distribution": null, "serendipity_ratio": null}`},
		{"missing fields", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := decodeAnalysis(tt.text)
			if err != nil {
				t.Fatalf("decodeAnalysis: %v", err)
			}
			if a.BoostedKeywords == nil || len(a.BoostedKeywords) != 0 {
				t.Errorf("boosted: got %v, want empty", a.BoostedKeywords)
			}
			if a.SuppressedKeywords == nil || len(a.SuppressedKeywords) != 0 {
				t.Errorf("suppressed: got %v, want empty", a.SuppressedKeywords)
			}
			if a.CategoryDistribution == nil || len(a.CategoryDistribution) != 0 {
				t.Errorf("distribution: got %v, want empty", a.CategoryDistribution)
			}
			if a.SerendipityRatio != 0 {
				t.Errorf("ratio: got %f, want 0", a.SerendipityRatio)
			}
		})
	}
}

func TestDecodeAnalysisValidFields(t *testing.T) {
	a, err := decodeAnalysis(`Sure:
{"boosted_keywords":["llm","robotics"],"suppressed_keywords":["crypto"],
"preferred_sources":["Reuters"],"category_distribution":{"ai":0.6,"other":0.4},
"serendipity_ratio":0.15}`)
	if err != nil {
		t.Fatalf("decodeAnalysis: %v", err)
	}
	if len(a.BoostedKeywords) != 2 || a.BoostedKeywords[0] != "llm" {
		t.Errorf("boosted: got %v", a.BoostedKeywords)
	}
	if len(a.SuppressedKeywords) != 1 || a.SuppressedKeywords[0] != "crypto" {
		t.Errorf("suppressed: got %v", a.SuppressedKeywords)
	}
	if a.CategoryDistribution["ai"] != 0.6 {
		t.Errorf("distribution: got %v", a.CategoryDistribution)
	}
	if a.SerendipityRatio != 0.15 {
		t.Errorf("ratio: got %f", a.SerendipityRatio)
	}
}

func TestDecodeAnalysisTotalParseFailure(t *testing.T) {
	for _, text := range []string{"no json here", `{"unterminated": `} {
		_, err := decodeAnalysis(text)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("decodeAnalysis(%q): got %v, want *ParseError", text, err)
		}
	}
}

func TestDecodeSummary(t *testing.T) {
	s, err := decodeSummary(`{"headline":"h","key_points":["a","b"],"detailed_summary":"d","why_it_matters":"w"}`)
	if err != nil {
		t.Fatalf("decodeSummary: %v", err)
	}
	if s.Headline != "h" || len(s.KeyPoints) != 2 || s.WhyItMatters != "w" {
		t.Errorf("summary: got %+v", s)
	}
}

// fakeCompletionServer serves a fixed chat-completion response and records
// the prompt it received.
func fakeCompletionServer(t *testing.T, content string) (*httptest.Server, *string) {
	t.Helper()
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Messages) > 0 {
			prompt = req.Messages[len(req.Messages)-1].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &prompt
}

func TestAnalyzePreferencesEndToEnd(t *testing.T) {
	srv, prompt := fakeCompletionServer(t, `{"boosted_keywords":["ai"],"serendipity_ratio":0.1}`)
	client := NewClient("key", "test-model", WithBaseURL("key", srv.URL+"/v1"))

	clicks := []signallog.Signal{
		{Type: signallog.TypePositive, Title: "New LLM released", Category: "ai", Source: "Example", Timestamp: "2026-01-15T08:00:00Z"},
		{Type: "", Title: "Untyped click", Category: "other", Source: "Example", Timestamp: "2026-01-14T08:00:00Z"},
	}
	a, err := client.AnalyzePreferences(context.Background(), clicks, profile.Default())
	if err != nil {
		t.Fatalf("AnalyzePreferences: %v", err)
	}
	if len(a.BoostedKeywords) != 1 || a.BoostedKeywords[0] != "ai" {
		t.Errorf("boosted: got %v", a.BoostedKeywords)
	}
	if !strings.Contains(*prompt, "New LLM released") {
		t.Error("prompt should embed click titles")
	}
	if !strings.Contains(*prompt, `"type": "positive"`) {
		t.Error("prompt should default untyped clicks to positive")
	}
	if !strings.Contains(*prompt, `"date": "2026-01-15"`) {
		t.Error("prompt should carry the date part of the timestamp")
	}
}

func TestSummarizeWithEmptyBody(t *testing.T) {
	srv, prompt := fakeCompletionServer(t, `{"headline":"h","key_points":[],"detailed_summary":"d","why_it_matters":"w"}`)
	client := NewClient("key", "test-model", WithBaseURL("key", srv.URL+"/v1"))

	s, err := client.Summarize(context.Background(), "Some title", "")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Headline != "h" {
		t.Errorf("headline: got %q", s.Headline)
	}
	if !strings.Contains(*prompt, "infer the summary from the title") {
		t.Error("prompt should fall back to title-only instructions when the body is empty")
	}
}

func TestSummarizeParseFailureIsHardError(t *testing.T) {
	srv, _ := fakeCompletionServer(t, "I could not summarize this article.")
	client := NewClient("key", "test-model", WithBaseURL("key", srv.URL+"/v1"))

	_, err := client.Summarize(context.Background(), "Some title", "body")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want *ParseError", err)
	}
}
