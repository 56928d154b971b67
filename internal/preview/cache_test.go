package preview

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeBrowser struct {
	opens    atomic.Int64
	closes   atomic.Int64
	openErr  error
	navErr   error
	shot     []byte
	gate     chan struct{}
	titles   []string
	titlesMu sync.Mutex
}

func (b *fakeBrowser) Open(ctx context.Context) (Session, error) {
	b.opens.Add(1)
	if b.openErr != nil {
		return nil, b.openErr
	}
	return &fakeSession{b: b}, nil
}

type fakeSession struct {
	b   *fakeBrowser
	url string
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.url = url
	if s.b.gate != nil {
		<-s.b.gate
	}
	return s.b.navErr
}

func (s *fakeSession) Dismiss(ctx context.Context) error { return errors.New("no popup") }

func (s *fakeSession) Capture(ctx context.Context) ([]byte, error) {
	return s.b.shot, nil
}

func (s *fakeSession) Title(ctx context.Context) (string, error) {
	s.b.titlesMu.Lock()
	defer s.b.titlesMu.Unlock()
	s.b.titles = append(s.b.titles, s.url)
	return "title of " + s.url, nil
}

func (s *fakeSession) Close() error {
	s.b.closes.Add(1)
	return nil
}

func TestCacheCoalescesConcurrentRequests(t *testing.T) {
	t.Parallel()

	browser := &fakeBrowser{shot: []byte("png"), gate: make(chan struct{})}
	cache := NewCache(nil, browser, 0)

	const n = 16
	var started, done sync.WaitGroup
	results := make([][]byte, n)
	started.Add(n)
	done.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			results[i] = cache.Get(context.Background(), "https://example.com/a")
		}(i)
	}
	started.Wait()
	close(browser.gate)
	done.Wait()

	if got := browser.opens.Load(); got != 1 {
		t.Fatalf("expected exactly one render session, got %d", got)
	}
	if got := cache.Renders(); got != 1 {
		t.Fatalf("expected one producer run, got %d", got)
	}
	for i, r := range results {
		if string(r) != "png" {
			t.Fatalf("result %d = %q", i, r)
		}
	}
	if browser.closes.Load() != 1 {
		t.Fatalf("session should be closed once, got %d", browser.closes.Load())
	}
}

func TestCacheFailureIsPermanent(t *testing.T) {
	t.Parallel()

	browser := &fakeBrowser{openErr: ErrNoSession}
	cache := NewCache(nil, browser, 0)

	for i := 0; i < 3; i++ {
		if got := cache.Get(context.Background(), "https://example.com/broken"); got != nil {
			t.Fatalf("expected nil result, got %q", got)
		}
	}
	if got := browser.opens.Load(); got != 1 {
		t.Fatalf("renderer should not be re-invoked after failure, opens=%d", got)
	}
	if cache.Len() != 1 {
		t.Fatalf("failed entry should be retained, len=%d", cache.Len())
	}
}

func TestCacheClosesSessionOnNavigateError(t *testing.T) {
	t.Parallel()

	browser := &fakeBrowser{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	cache := NewCache(nil, browser, 0)

	if got := cache.Get(context.Background(), "https://nope.invalid"); got != nil {
		t.Fatalf("expected nil, got %q", got)
	}
	if browser.closes.Load() != 1 {
		t.Fatalf("session must be released on error, closes=%d", browser.closes.Load())
	}
}

func TestCacheWaitsSettleDelayBeforeCapture(t *testing.T) {
	t.Parallel()

	browser := &fakeBrowser{shot: []byte("png")}
	cache := NewCache(nil, browser, 3*time.Second)
	var slept time.Duration
	cache.sleep = func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	if got := cache.Get(context.Background(), "https://example.com/b"); string(got) != "png" {
		t.Fatalf("unexpected result %q", got)
	}
	if slept != 3*time.Second {
		t.Fatalf("settle delay = %v", slept)
	}
}

func TestCacheDistinctURLsRenderSeparately(t *testing.T) {
	t.Parallel()

	browser := &fakeBrowser{shot: []byte("png")}
	cache := NewCache(nil, browser, 0)
	cache.Get(context.Background(), "https://example.com/1")
	cache.Get(context.Background(), "https://example.com/2")
	cache.Get(context.Background(), "https://example.com/1")

	if got := browser.opens.Load(); got != 2 {
		t.Fatalf("expected two renders, got %d", got)
	}
}

func TestCacheCanceledWaiterDoesNotPoisonEntry(t *testing.T) {
	t.Parallel()

	browser := &fakeBrowser{shot: []byte("png"), gate: make(chan struct{})}
	cache := NewCache(nil, browser, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := cache.Get(ctx, "https://example.com/slow"); got != nil {
		t.Fatalf("canceled waiter should get nil, got %q", got)
	}
	close(browser.gate)
	if got := cache.Get(context.Background(), "https://example.com/slow"); string(got) != "png" {
		t.Fatalf("later caller should get the shared result, got %q", got)
	}
	if browser.opens.Load() != 1 {
		t.Fatalf("expected one render, got %d", browser.opens.Load())
	}
}

func TestCacheWithoutBrowser(t *testing.T) {
	t.Parallel()

	cache := NewCache(nil, nil, 0)
	if got := cache.Get(context.Background(), "https://example.com"); got != nil {
		t.Fatalf("expected nil without browser")
	}
}
