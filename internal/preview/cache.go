// Package preview renders screenshots of links found in messages and memoizes
// them per URL for the life of the process.
package preview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNoSession is returned by a Browser that cannot start a rendering session.
var ErrNoSession = errors.New("preview: no rendering session")

// DefaultSettleDelay is how long a page gets to finish dynamic loading before capture.
const DefaultSettleDelay = 5 * time.Second

// Browser opens isolated rendering sessions. Sessions are never reused.
type Browser interface {
	Open(ctx context.Context) (Session, error)
}

// Session is one rendering session. Close must be called exactly once.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// Dismiss closes known interstitials (sign-in popups) on the loaded page.
	Dismiss(ctx context.Context) error
	Capture(ctx context.Context) ([]byte, error)
	Title(ctx context.Context) (string, error)
	Close() error
}

type entry struct {
	done chan struct{}
	data []byte
}

// Cache maps URL to a shared, once-computed screenshot. Failures are cached as nil.
// Entries are never evicted.
type Cache struct {
	browser Browser
	settle  time.Duration
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	entries map[string]*entry
	renders atomic.Int64
}

// NewCache creates a Cache. A negative settle delay selects DefaultSettleDelay.
func NewCache(log *slog.Logger, browser Browser, settle time.Duration) *Cache {
	if log == nil {
		log = slog.Default()
	}
	if settle < 0 {
		settle = DefaultSettleDelay
	}
	return &Cache{
		browser: browser,
		settle:  settle,
		logger:  log.With(slog.String("component", "preview")),
		sleep:   sleepWithContext,
		entries: map[string]*entry{},
	}
}

// Get returns the screenshot for url, or nil if none is available.
// The first caller for a URL installs the entry and starts the render; every other
// caller, before or after completion, shares that result. A caller whose ctx ends
// while waiting gets nil but the render continues for the others.
func (c *Cache) Get(ctx context.Context, url string) []byte {
	c.mu.Lock()
	e, ok := c.entries[url]
	if !ok {
		e = &entry{done: make(chan struct{})}
		c.entries[url] = e
	}
	c.mu.Unlock()

	if !ok {
		go c.produce(context.WithoutCancel(ctx), url, e)
	}

	select {
	case <-e.done:
		return e.data
	case <-ctx.Done():
		return nil
	}
}

// Len reports the number of URLs seen, resolved or pending.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Renders reports how many times the producer has run.
func (c *Cache) Renders() int64 {
	return c.renders.Load()
}

func (c *Cache) produce(ctx context.Context, url string, e *entry) {
	defer close(e.done)
	c.renders.Add(1)
	e.data = c.render(ctx, url)
}

func (c *Cache) render(ctx context.Context, url string) []byte {
	if c.browser == nil {
		return nil
	}
	session, err := c.browser.Open(ctx)
	if err != nil {
		c.logger.Warn("open render session failed", slog.String("url", url), slog.Any("error", err))
		return nil
	}
	defer func() {
		if err := session.Close(); err != nil {
			c.logger.Warn("close render session failed", slog.String("url", url), slog.Any("error", err))
		}
	}()

	if err := session.Navigate(ctx, url); err != nil {
		c.logger.Warn("navigate failed", slog.String("url", url), slog.Any("error", err))
		return nil
	}
	if err := c.sleep(ctx, c.settle); err != nil {
		return nil
	}
	if err := session.Dismiss(ctx); err != nil {
		c.logger.Debug("dismiss popup failed", slog.String("url", url), slog.Any("error", err))
	}
	shot, err := session.Capture(ctx)
	if err != nil || len(shot) == 0 {
		c.logger.Warn("capture failed", slog.String("url", url), slog.Any("error", err))
		return nil
	}
	title, _ := session.Title(ctx)
	c.logger.Info("screenshot taken", slog.String("url", url), slog.String("title", title), slog.Int("bytes", len(shot)))
	return shot
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
