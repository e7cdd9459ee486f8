// Package collector implements the client-side signal collection protocol:
// an in-memory queue of un-flushed signals plus two durable dedup sets scoped
// by (viewing date, article id). A collector instance is session-scoped:
// created on page load, torn down on navigation, with the durable sets
// rehydrated from persisted storage at construction.
package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/briefly/tracker/internal/signallog"
)

// Well-known persistence keys. The legacy key predates negative signals and
// is renamed on first load.
const (
	keyTracked       = "tracked_signals"
	keyDisliked      = "disliked_articles"
	keyLegacyTracked = "tracked_clicks"
)

// DefaultWaitTimeout bounds FlushAndWait so a navigation triggered by the
// same user action is never delayed indefinitely.
const DefaultWaitTimeout = 2 * time.Second

// Article is the rendered article a signal refers to.
type Article struct {
	ID       int
	Title    string
	URL      string
	Category string
	Source   string
}

// KeyStore persists the durable dedup sets across sessions.
type KeyStore interface {
	Get(key string) (values []string, ok bool, err error)
	Put(key string, values []string) error
	Delete(key string) error
}

// Sender transmits signal batches. Send is fire-and-forget with no delivery
// confirmation (page-teardown safe); SendAndConfirm reports the outcome and
// must let an in-flight request complete even if the caller stops waiting.
type Sender interface {
	Send(signals []signallog.Signal)
	SendAndConfirm(ctx context.Context, signals []signallog.Signal) error
}

// Collector queues signals and flushes them in batches.
type Collector struct {
	mu       sync.Mutex
	queue    []signallog.Signal
	tracked  map[string]struct{}
	disliked map[string]struct{}

	keys        KeyStore
	sender      Sender
	viewingDate string
	sessionID   string
	waitTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithViewingDate sets the date scope used in identity keys (YYYY-MM-DD).
func WithViewingDate(date string) Option {
	return func(c *Collector) { c.viewingDate = date }
}

// WithWaitTimeout overrides the FlushAndWait bound.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Collector) { c.waitTimeout = d }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// New creates a session-scoped collector, migrating the legacy tracked-keys
// entry if present and rehydrating both dedup sets from keys.
func New(keys KeyStore, sender Sender, opts ...Option) (*Collector, error) {
	c := &Collector{
		keys:        keys,
		sender:      sender,
		sessionID:   uuid.NewString(),
		waitTimeout: DefaultWaitTimeout,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.viewingDate == "" {
		c.viewingDate = c.now().Format("2006-01-02")
	}

	if err := migrateLegacyKey(keys); err != nil {
		return nil, err
	}
	tracked, err := loadSet(keys, keyTracked)
	if err != nil {
		return nil, err
	}
	disliked, err := loadSet(keys, keyDisliked)
	if err != nil {
		return nil, err
	}
	c.tracked = tracked
	c.disliked = disliked
	return c, nil
}

// SessionID identifies this collector instance.
func (c *Collector) SessionID() string {
	return c.sessionID
}

// SetViewingDate switches the date scope, e.g. when the user navigates to a
// different day's articles.
func (c *Collector) SetViewingDate(date string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewingDate = date
}

// IsDisliked reports whether the article is currently marked "not interested".
func (c *Collector) IsDisliked(articleID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.disliked[c.identityKey(articleID)]
	return ok
}

// Pending returns how many signals are queued for the next flush.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// TrackClick queues a positive signal for the article, at most once per
// identity key. The key is persisted before the signal ever leaves the
// client, so a lost flush can never cause a duplicate positive later.
func (c *Collector) TrackClick(a Article) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.identityKey(a.ID)
	if _, seen := c.tracked[key]; seen {
		return
	}
	c.tracked[key] = struct{}{}
	if err := c.persistSet(keyTracked, c.tracked); err != nil {
		c.logger.Warn("failed to persist tracked keys", zap.Error(err))
	}
	c.queue = append(c.queue, c.signalFor(a, signallog.TypePositive))
	c.logger.Debug("positive signal queued", zap.String("key", key), zap.String("title", a.Title))
}

// TrackDislike toggles the "not interested" mark for the article. Returns
// true when the mark was added (a negative signal is queued) and false when
// it was removed. Removing the mark also cancels a queued, still-unflushed
// negative signal for the same article, so repeated toggles before a flush
// never produce more than one net signal.
func (c *Collector) TrackDislike(a Article) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.identityKey(a.ID)
	if _, marked := c.disliked[key]; marked {
		delete(c.disliked, key)
		if err := c.persistSet(keyDisliked, c.disliked); err != nil {
			c.logger.Warn("failed to persist disliked keys", zap.Error(err))
		}
		c.removeQueuedNegative(a.ID)
		c.logger.Debug("dislike removed", zap.String("key", key), zap.String("title", a.Title))
		return false
	}

	c.disliked[key] = struct{}{}
	if err := c.persistSet(keyDisliked, c.disliked); err != nil {
		c.logger.Warn("failed to persist disliked keys", zap.Error(err))
	}
	c.queue = append(c.queue, c.signalFor(a, signallog.TypeNegative))
	c.logger.Debug("negative signal queued", zap.String("key", key), zap.String("title", a.Title))
	return true
}

// Flush transmits the queued batch fire-and-forget. Suited to page teardown:
// no response is awaited and delivery is not confirmed. Signals enqueued
// after the swap belong to the next flush cycle.
func (c *Collector) Flush() {
	batch := c.swapQueue()
	if len(batch) == 0 {
		return
	}
	c.sender.Send(batch)
	c.logger.Debug("signals flushed", zap.Int("count", len(batch)))
}

// FlushAndWait transmits the queued batch and waits for completion, bounded
// by the configured timeout. On timeout it returns nil and leaves the request
// in flight (keep-alive semantics), so the triggering navigation proceeds
// while the batch still has a chance to land.
func (c *Collector) FlushAndWait(ctx context.Context) error {
	batch := c.swapQueue()
	if len(batch) == 0 {
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		// Deliberately not the caller's ctx: the request may outlive the wait.
		errCh <- c.sender.SendAndConfirm(context.Background(), batch)
	}()

	timer := time.NewTimer(c.waitTimeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("flush signals: %w", err)
		}
		c.logger.Debug("signals flushed and confirmed", zap.Int("count", len(batch)))
		return nil
	case <-timer.C:
		c.logger.Debug("flush wait timed out, request left in flight", zap.Int("count", len(batch)))
		return nil
	case <-ctx.Done():
		return nil
	}
}

// swapQueue atomically takes the current queue. Track* calls arriving after
// the swap enqueue into a fresh queue and are never merged into the in-flight
// batch.
func (c *Collector) swapQueue() []signallog.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := c.queue
	c.queue = nil
	return batch
}

func (c *Collector) identityKey(articleID int) string {
	return fmt.Sprintf("%s_%d", c.viewingDate, articleID)
}

func (c *Collector) signalFor(a Article, typ string) signallog.Signal {
	return signallog.Signal{
		Type:      typ,
		ArticleID: a.ID,
		Title:     a.Title,
		URL:       a.URL,
		Category:  a.Category,
		Source:    a.Source,
		Timestamp: c.now().UTC().Format(time.RFC3339),
	}
}

func (c *Collector) removeQueuedNegative(articleID int) {
	kept := c.queue[:0]
	for _, s := range c.queue {
		if s.Type == signallog.TypeNegative && s.ArticleID == articleID {
			continue
		}
		kept = append(kept, s)
	}
	c.queue = kept
}

func (c *Collector) persistSet(key string, set map[string]struct{}) error {
	values := make([]string, 0, len(set))
	for k := range set {
		values = append(values, k)
	}
	sort.Strings(values)
	return c.keys.Put(key, values)
}

func loadSet(keys KeyStore, key string) (map[string]struct{}, error) {
	values, _, err := keys.Get(key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set, nil
}

// migrateLegacyKey renames the pre-negative-signals tracked set to the
// current key, once, without overwriting an existing current entry.
func migrateLegacyKey(keys KeyStore) error {
	legacy, ok, err := keys.Get(keyLegacyTracked)
	if err != nil {
		return fmt.Errorf("read legacy key: %w", err)
	}
	if !ok {
		return nil
	}
	if _, exists, err := keys.Get(keyTracked); err != nil {
		return fmt.Errorf("read tracked key: %w", err)
	} else if !exists {
		if err := keys.Put(keyTracked, legacy); err != nil {
			return fmt.Errorf("migrate legacy key: %w", err)
		}
	}
	return keys.Delete(keyLegacyTracked)
}
