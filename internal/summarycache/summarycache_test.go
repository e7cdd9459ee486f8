package summarycache

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/briefly/tracker/internal/inference"
	"github.com/briefly/tracker/internal/store"
	"github.com/briefly/tracker/internal/store/storetest"
)

func newTestCache(t *testing.T) (*Cache, *storetest.Server) {
	t.Helper()
	fake := storetest.NewServer()
	t.Cleanup(fake.Close)
	client := store.NewClient("owner", "repo", "token", store.WithBaseURL(fake.URL()))
	return NewCache(client), fake
}

func entry(text string) *Entry {
	return &Entry{
		ArticleText: text,
		AISummary: inference.Summary{
			Headline:        "headline",
			KeyPoints:       []string{"p1", "p2"},
			DetailedSummary: "details",
			WhyItMatters:    "it matters",
		},
	}
}

func TestGetMissOnAbsentEntry(t *testing.T) {
	cache, _ := newTestCache(t)
	got, err := cache.Get(context.Background(), "2026-01-15", 3)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil miss", got)
	}
}

func TestPutIfAbsentThenGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if err := cache.PutIfAbsent(ctx, "2026-01-15", 3, entry("body text")); err != nil {
		t.Fatalf("PutIfAbsent: %v", err)
	}
	got, err := cache.Get(ctx, "2026-01-15", 3)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected a cache hit")
	}
	if got.ArticleText != "body text" || got.AISummary.Headline != "headline" {
		t.Errorf("entry: got %+v", got)
	}
}

func TestPutIfAbsentFirstWriterWins(t *testing.T) {
	cache, fake := newTestCache(t)
	ctx := context.Background()

	if err := cache.PutIfAbsent(ctx, "2026-01-15", 3, entry("first")); err != nil {
		t.Fatalf("first put: %v", err)
	}
	// The losing producer's write must be reported as success.
	if err := cache.PutIfAbsent(ctx, "2026-01-15", 3, entry("second")); err != nil {
		t.Fatalf("second put should be success-as-cache-hit: %v", err)
	}

	var stored Entry
	if err := json.Unmarshal(fake.Content("data/summaries/2026-01-15_3.json"), &stored); err != nil {
		t.Fatalf("parse stored entry: %v", err)
	}
	if stored.ArticleText != "first" {
		t.Errorf("stored text: got %q, want the first writer's body", stored.ArticleText)
	}
}

func TestGetTreatsReadFailureAsMiss(t *testing.T) {
	cache, fake := newTestCache(t)
	fake.Seed("data/summaries/2026-01-15_3.json", []byte("not json"))

	got, err := cache.Get(context.Background(), "2026-01-15", 3)
	if err != nil {
		t.Fatalf("Get on malformed entry should not error: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want miss", got)
	}
}

func TestPutIfAbsentSurfacesTransportError(t *testing.T) {
	cache, fake := newTestCache(t)
	fake.FailNextPuts(1, http.StatusBadGateway)

	err := cache.PutIfAbsent(context.Background(), "2026-01-15", 3, entry("body"))
	if err == nil {
		t.Fatal("transport failure should be surfaced to the caller")
	}
}

func TestKeyFormat(t *testing.T) {
	if got := Key("2026-01-15", 7); got != "2026-01-15_7" {
		t.Errorf("Key: got %q", got)
	}
}

func TestEntriesKeyedByDateAndArticle(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if err := cache.PutIfAbsent(ctx, "2026-01-15", 1, entry("a")); err != nil {
		t.Fatal(err)
	}
	if err := cache.PutIfAbsent(ctx, "2026-01-16", 1, entry("b")); err != nil {
		t.Fatal(err)
	}

	got, err := cache.Get(ctx, "2026-01-16", 1)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ArticleText != "b" {
		t.Errorf("entry for second date: got %+v", got)
	}
}
