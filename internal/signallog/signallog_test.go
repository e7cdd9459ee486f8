package signallog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/briefly/tracker/internal/store"
	"github.com/briefly/tracker/internal/store/storetest"
)

func newTestLog(t *testing.T) (*Log, *storetest.Server) {
	t.Helper()
	fake := storetest.NewServer()
	t.Cleanup(fake.Close)
	client := store.NewClient("owner", "repo", "token", store.WithBaseURL(fake.URL()))
	log := NewLog(client, WithClock(func() time.Time {
		return time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	}))
	return log, fake
}

func sig(id int, typ string) Signal {
	return Signal{
		Type:      typ,
		ArticleID: id,
		Title:     "article",
		URL:       "https://example.com/a",
		Category:  "ai",
		Source:    "Example",
		Timestamp: "2026-01-15T08:59:00Z",
	}
}

func remoteCount(t *testing.T, fake *storetest.Server) int {
	t.Helper()
	raw := fake.Content(DefaultPath)
	if raw == nil {
		return 0
	}
	var doc struct {
		Clicks []Signal `json:"clicks"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("parse remote log: %v", err)
	}
	return len(doc.Clicks)
}

func TestAppendBatchCreatesLogLazily(t *testing.T) {
	log, fake := newTestLog(t)

	total, err := log.AppendBatch(context.Background(), []Signal{sig(1, TypePositive), sig(2, TypeNegative)})
	if err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if total != 2 {
		t.Errorf("total: got %d, want 2", total)
	}

	var doc struct {
		Clicks    []Signal `json:"clicks"`
		CreatedAt string   `json:"created_at"`
	}
	if err := json.Unmarshal(fake.Content(DefaultPath), &doc); err != nil {
		t.Fatalf("parse remote log: %v", err)
	}
	if doc.CreatedAt == "" {
		t.Error("created_at should be set on lazy creation")
	}
	if len(doc.Clicks) != 2 || doc.Clicks[0].ArticleID != 1 || doc.Clicks[1].ArticleID != 2 {
		t.Errorf("clicks: got %+v", doc.Clicks)
	}
}

func TestAppendBatchPreservesOrderAtTail(t *testing.T) {
	log, fake := newTestLog(t)
	ctx := context.Background()

	if _, err := log.AppendBatch(ctx, []Signal{sig(1, TypePositive)}); err != nil {
		t.Fatal(err)
	}
	if _, err := log.AppendBatch(ctx, []Signal{sig(2, TypeNegative), sig(3, TypePositive)}); err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Clicks []Signal `json:"clicks"`
	}
	if err := json.Unmarshal(fake.Content(DefaultPath), &doc); err != nil {
		t.Fatal(err)
	}
	ids := []int{doc.Clicks[0].ArticleID, doc.Clicks[1].ArticleID, doc.Clicks[2].ArticleID}
	if ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("order: got %v, want [1 2 3]", ids)
	}
}

func TestAppendBatchDefaultsTypeToPositive(t *testing.T) {
	log, fake := newTestLog(t)

	s := sig(1, "")
	if _, err := log.AppendBatch(context.Background(), []Signal{s}); err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Clicks []Signal `json:"clicks"`
	}
	if err := json.Unmarshal(fake.Content(DefaultPath), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Clicks[0].Type != TypePositive {
		t.Errorf("type: got %q, want positive", doc.Clicks[0].Type)
	}
}

func TestAppendBatchAllOrNothingOnConflict(t *testing.T) {
	log, fake := newTestLog(t)
	ctx := context.Background()

	if _, err := log.AppendBatch(ctx, []Signal{sig(1, TypePositive)}); err != nil {
		t.Fatal(err)
	}
	before := remoteCount(t, fake)

	// Conflict on both the initial write and the single retry.
	fake.FailNextPuts(2, http.StatusConflict)
	_, err := log.AppendBatch(ctx, []Signal{sig(2, TypePositive), sig(3, TypeNegative)})
	if !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("got %v, want ErrVersionConflict", err)
	}
	if got := remoteCount(t, fake); got != before {
		t.Errorf("remote count after failed batch: got %d, want %d (unchanged)", got, before)
	}
}

func TestAppendBatchEmptyIsNoOp(t *testing.T) {
	log, fake := newTestLog(t)
	total, err := log.AppendBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("AppendBatch(nil): %v", err)
	}
	if total != 0 {
		t.Errorf("total: got %d, want 0", total)
	}
	if fake.PutCount() != 0 {
		t.Error("empty batch should not write")
	}
}

func TestDrainAbsentLogIsEmpty(t *testing.T) {
	log, _ := newTestLog(t)
	signals, err := log.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(signals) != 0 {
		t.Errorf("signals: got %d, want 0", len(signals))
	}
}

func TestDrainDoesNotTruncate(t *testing.T) {
	log, fake := newTestLog(t)
	ctx := context.Background()

	if _, err := log.AppendBatch(ctx, []Signal{sig(1, TypePositive), sig(2, TypeNegative)}); err != nil {
		t.Fatal(err)
	}

	first, err := log.Drain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := log.Drain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Errorf("drains: got %d then %d, want 2 and 2", len(first), len(second))
	}
	if got := remoteCount(t, fake); got != 2 {
		t.Errorf("remote count after drains: got %d, want 2", got)
	}
}

func TestBatchCommitMessage(t *testing.T) {
	tests := []struct {
		name    string
		signals []Signal
		want    string
	}{
		{"mixed", []Signal{sig(1, TypePositive), sig(2, TypePositive), sig(3, TypeNegative)}, "Track signals: +2 positive, -1 negative"},
		{"positive only", []Signal{sig(1, TypePositive)}, "Track signals: +1 positive"},
		{"negative only", []Signal{sig(1, TypeNegative)}, "Track signals: -1 negative"},
		{"untyped counts as positive", []Signal{sig(1, "")}, "Track signals: +1 positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := batchCommitMessage(tt.signals); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
