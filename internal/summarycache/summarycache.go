// Package summarycache stores per-article AI summaries as content-addressed
// documents keyed by (date, article id). Entries are created once and never
// updated: a write conflict means somebody else cached the same article first.
package summarycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/briefly/tracker/internal/inference"
	"github.com/briefly/tracker/internal/store"
)

// DefaultPrefix is the repository directory holding cache entries.
const DefaultPrefix = "data/summaries"

// Entry is one cached summary: the extracted article text plus the structured
// summary produced for it.
type Entry struct {
	ArticleText string            `json:"article_text"`
	AISummary   inference.Summary `json:"ai_summary"`
}

// Cache provides read and create-only write access to summary entries.
type Cache struct {
	store  *store.Client
	prefix string
	logger *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix overrides the repository directory for entries.
func WithPrefix(p string) Option {
	return func(c *Cache) { c.prefix = p }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// NewCache creates a Cache backed by client.
func NewCache(client *store.Client, opts ...Option) *Cache {
	c := &Cache{
		store:  client,
		prefix: DefaultPrefix,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds the cache identity for a viewing date and article id.
func Key(date string, articleID int) string {
	return fmt.Sprintf("%s_%d", date, articleID)
}

func (c *Cache) path(date string, articleID int) string {
	return fmt.Sprintf("%s/%s.json", c.prefix, Key(date, articleID))
}

// Get returns the cached entry, or (nil, nil) on a miss. Read failures of any
// kind are also reported as misses: the cache is an optimization, never a
// dependency.
func (c *Cache) Get(ctx context.Context, date string, articleID int) (*Entry, error) {
	doc, err := c.store.Read(ctx, c.path(date, articleID))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("summary cache read failed", zap.String("key", Key(date, articleID)), zap.Error(err))
		}
		return nil, nil
	}
	var entry Entry
	if err := json.Unmarshal(doc.Body, &entry); err != nil {
		c.logger.Warn("summary cache entry malformed", zap.String("key", Key(date, articleID)), zap.Error(err))
		return nil, nil
	}
	return &entry, nil
}

// PutIfAbsent creates the entry unless one already exists. A version conflict
// means another producer committed first; that counts as success and the
// stored entry wins.
func (c *Cache) PutIfAbsent(ctx context.Context, date string, articleID int, entry *Entry) error {
	body, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	key := Key(date, articleID)
	_, err = c.store.Write(ctx, c.path(date, articleID), body, "", fmt.Sprintf("Cache summary: %s", key))
	if errors.Is(err, store.ErrVersionConflict) {
		c.logger.Debug("summary already cached", zap.String("key", key))
		return nil
	}
	if err != nil {
		return err
	}
	c.logger.Debug("summary cached", zap.String("key", key))
	return nil
}
