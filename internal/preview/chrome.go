package preview

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
)

// dismissScript closes the Instagram sign-in popup that covers reels and posts.
const dismissScript = `(() => {
	if (window.location.hostname !== "www.instagram.com") return false;
	const close = document.querySelector("svg[aria-label=Close]");
	if (!close || !close.parentElement) return false;
	close.parentElement.click();
	return true;
})()`

// ChromeOptions configures the headless browser.
type ChromeOptions struct {
	ExecPath string
	Width    int
	Height   int
}

// ChromeBrowser launches a fresh headless Chrome per session.
type ChromeBrowser struct {
	opts ChromeOptions
}

// NewChromeBrowser creates a ChromeBrowser with a phone-sized viewport by default.
func NewChromeBrowser(opts ChromeOptions) *ChromeBrowser {
	if opts.Width <= 0 {
		opts.Width = 412
	}
	if opts.Height <= 0 {
		opts.Height = 915
	}
	return &ChromeBrowser{opts: opts}
}

// Open starts a browser process and a tab sized to the configured viewport.
func (b *ChromeBrowser) Open(ctx context.Context) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(b.opts.Width, b.opts.Height),
	)
	if b.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	err := chromedp.Run(tabCtx, chromedp.EmulateViewport(int64(b.opts.Width), int64(b.opts.Height)))
	if err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	return &chromeSession{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc}, nil
}

type chromeSession struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

func (s *chromeSession) Navigate(_ context.Context, url string) error {
	return chromedp.Run(s.ctx, chromedp.Navigate(url))
}

func (s *chromeSession) Dismiss(_ context.Context) error {
	var clicked bool
	return chromedp.Run(s.ctx, chromedp.Evaluate(dismissScript, &clicked))
}

func (s *chromeSession) Capture(_ context.Context) ([]byte, error) {
	var buf []byte
	if err := chromedp.Run(s.ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromeSession) Title(_ context.Context) (string, error) {
	var title string
	err := chromedp.Run(s.ctx, chromedp.Title(&title))
	return title, err
}

// Close shuts the browser down and releases the allocator.
func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancelTab()
	s.cancelAlloc()
	return err
}
