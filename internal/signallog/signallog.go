// Package signallog models the accumulating click/dislike log as a single
// JSON document in the store. Signals are only ever appended; each learning
// cycle re-reads the full history.
package signallog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/briefly/tracker/internal/store"
)

// Signal types.
const (
	TypePositive = "positive"
	TypeNegative = "negative"
)

// DefaultPath is where the log document lives in the repository.
const DefaultPath = "data/user_clicks.json"

// Signal is one user interest event: a click (positive) or an explicit
// "not interested" mark (negative).
type Signal struct {
	Type      string `json:"type"`
	ArticleID int    `json:"article_id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Category  string `json:"category"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

type document struct {
	Clicks    []Signal `json:"clicks"`
	CreatedAt string   `json:"created_at"`
}

// Log provides append and drain operations on the signal log document.
type Log struct {
	store  *store.Client
	path   string
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithPath overrides the document path.
func WithPath(p string) Option {
	return func(l *Log) { l.path = p }
}

// WithLogger attaches a logger.
func WithLogger(lg *zap.Logger) Option {
	return func(l *Log) { l.logger = lg }
}

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// NewLog creates a Log backed by client.
func NewLog(client *store.Client, opts ...Option) *Log {
	l := &Log{
		store:  client,
		path:   DefaultPath,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AppendBatch appends signals to the tail of the log in input order and
// returns the total signal count after the write. The batch is all-or-nothing:
// a version conflict surviving the store's retry leaves the remote log
// unchanged and is returned as store.ErrVersionConflict. An empty batch is a
// no-op. Signals with no type are recorded as positive.
func (l *Log) AppendBatch(ctx context.Context, signals []Signal) (int, error) {
	if len(signals) == 0 {
		return 0, nil
	}
	return l.append(ctx, signals, batchCommitMessage(signals))
}

// Append records a single signal. Kept for the legacy one-click endpoint;
// the commit message names the clicked article.
func (l *Log) Append(ctx context.Context, s Signal) (int, error) {
	return l.append(ctx, []Signal{s}, fmt.Sprintf("Track click: %s", s.Title))
}

func (l *Log) append(ctx context.Context, signals []Signal, message string) (int, error) {
	total := 0
	err := l.store.Update(ctx, l.path, message, func(body json.RawMessage, exists bool) ([]byte, error) {
		doc := document{CreatedAt: l.now().UTC().Format(time.RFC3339)}
		if exists {
			if err := json.Unmarshal(body, &doc); err != nil {
				return nil, fmt.Errorf("parse signal log: %w", err)
			}
		}
		for _, s := range signals {
			if s.Type == "" {
				s.Type = TypePositive
			}
			doc.Clicks = append(doc.Clicks, s)
		}
		total = len(doc.Clicks)
		return json.MarshalIndent(doc, "", "  ")
	})
	if err != nil {
		return 0, err
	}
	l.logger.Info("signals appended",
		zap.Int("batch", len(signals)),
		zap.Int("total", total),
	)
	return total, nil
}

// Drain returns the full signal history in commit order. The log is not
// truncated: consumers re-analyze everything each run. An absent document is
// an empty history, not an error.
func (l *Log) Drain(ctx context.Context) ([]Signal, error) {
	doc, err := l.store.Read(ctx, l.path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var parsed document
	if err := json.Unmarshal(doc.Body, &parsed); err != nil {
		return nil, fmt.Errorf("parse signal log: %w", err)
	}
	return parsed.Clicks, nil
}

// batchCommitMessage summarizes a batch, e.g. "Track signals: +2 positive, -1 negative".
func batchCommitMessage(signals []Signal) string {
	positive, negative := 0, 0
	for _, s := range signals {
		if s.Type == TypeNegative {
			negative++
		} else {
			positive++
		}
	}
	parts := make([]string, 0, 2)
	if positive > 0 {
		parts = append(parts, fmt.Sprintf("+%d positive", positive))
	}
	if negative > 0 {
		parts = append(parts, fmt.Sprintf("-%d negative", negative))
	}
	return "Track signals: " + strings.Join(parts, ", ")
}
