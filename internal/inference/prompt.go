package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/briefly/tracker/internal/profile"
)

// learnedConfig is the subset of the profile echoed back to the model as
// "current settings" so adjustments stay gradual.
type learnedConfig struct {
	BoostedKeywords      []string           `json:"boosted_keywords"`
	SuppressedKeywords   []string           `json:"suppressed_keywords"`
	PreferredSources     []string           `json:"preferred_sources"`
	CategoryDistribution map[string]float64 `json:"category_distribution"`
	SerendipityRatio     float64            `json:"serendipity_ratio"`
}

func buildAnalysisPrompt(clicks []clickSummary, current *profile.Profile) (string, error) {
	clickJSON, err := json.MarshalIndent(clicks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode click summary: %w", err)
	}
	cfg := learnedConfig{}
	if current != nil {
		cfg = learnedConfig{
			BoostedKeywords:      current.BoostedKeywords,
			SuppressedKeywords:   current.SuppressedKeywords,
			PreferredSources:     current.PreferredSources,
			CategoryDistribution: current.CategoryDistribution,
			SerendipityRatio:     current.SerendipityRatio,
		}
	}
	cfgJSON, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode current config: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a news personalization expert. Analyze the user's click history and produce a preference profile for news candidate generation.\n\n")
	b.WriteString("## Click history\n")
	b.Write(clickJSON)
	b.WriteString("\n\n## Current preference settings\n")
	b.Write(cfgJSON)
	b.WriteString("\n\n## Guidance\n")
	b.WriteString("- \"positive\" signals are articles the user clicked with interest.\n")
	b.WriteString("- \"negative\" signals are articles the user explicitly dismissed; they indicate low interest in that topic or source.\n")
	b.WriteString("- Extract interest patterns from the clicked titles, categories and sources.\n")
	b.WriteString("- Start from the current settings and adjust gradually; avoid abrupt changes.\n\n")
	b.WriteString("## Output format\n")
	b.WriteString("Respond with exactly one JSON object and nothing else:\n")
	b.WriteString(`{
  "boosted_keywords": ["keywords the user cares about (5-15 items)"],
  "suppressed_keywords": ["keywords the user avoids (0-10 items)"],
  "preferred_sources": ["trusted news sources (0-5 items)"],
  "category_distribution": {"ai": 0.0, "finance": 0.0, "politics": 0.0, "other": 0.0},
  "serendipity_ratio": 0.0
}`)
	b.WriteString("\n\n## Constraints\n")
	b.WriteString("- category_distribution values must sum to 1.0.\n")
	b.WriteString("- serendipity_ratio must be between 0.0 and 0.2.\n")
	return b.String(), nil
}

func buildSummaryPrompt(title, articleText string) string {
	body := articleText
	if body == "" {
		body = "(article body unavailable; infer the summary from the title)"
	}
	var b strings.Builder
	b.WriteString("You are a news summarization expert. Summarize the following article.\n\n")
	b.WriteString("## Title\n")
	b.WriteString(title)
	b.WriteString("\n\n## Body\n")
	b.WriteString(body)
	b.WriteString("\n\n## Output format\n")
	b.WriteString("Respond with exactly one JSON object and nothing else:\n")
	b.WriteString(`{
  "headline": "one-line headline (at most 30 words)",
  "key_points": ["point 1", "point 2", "point 3"],
  "detailed_summary": "200-300 word summary covering background, key facts and implications",
  "why_it_matters": "one or two sentences on why this news matters"
}`)
	return b.String()
}
