package fetch

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// MinContentLength is the minimum extracted text length to consider a plain fetch useful.
// Shorter pages are likely JavaScript-rendered and need the browser.
const MinContentLength = 500

// DefaultRenderWait is how long the browser waits for client-side rendering.
const DefaultRenderWait = 3 * time.Second

// ShouldUseBrowser returns true if the extracted text is too short,
// indicating the page is likely a JavaScript-rendered SPA.
func ShouldUseBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < MinContentLength
}

// BrowserOptions configures headless Chrome.
type BrowserOptions struct {
	Timeout    time.Duration
	RenderWait time.Duration
	// ExecPath overrides the Chrome binary location.
	ExecPath string
	Width    int64
	Height   int64
}

// DefaultBrowserOptions returns a desktop-sized viewport with the default timeout.
func DefaultBrowserOptions() BrowserOptions {
	return BrowserOptions{
		Timeout:    DefaultTimeout,
		RenderWait: DefaultRenderWait,
		Width:      1440,
		Height:     900,
	}
}

// Browser drives a headless Chrome through chromedp. Each call starts a fresh
// browser so a crashed tab never poisons later calls.
type Browser struct {
	opts   BrowserOptions
	logger *zap.Logger
}

// NewBrowser creates a Browser. Requires Chrome/Chromium on the host.
func NewBrowser(opts BrowserOptions, logger *zap.Logger) *Browser {
	defaults := DefaultBrowserOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.RenderWait < 0 {
		opts.RenderWait = 0
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = defaults.Width, defaults.Height
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{opts: opts, logger: logger}
}

func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(int(b.opts.Width), int(b.opts.Height)),
	)
	if b.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ExecPath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, b.opts.Timeout)
	defer cancel()

	return chromedp.Run(browserCtx, actions...)
}

func (b *Browser) load(url string) chromedp.Tasks {
	return chromedp.Tasks{
		chromedp.EmulateViewport(b.opts.Width, b.opts.Height),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(b.opts.RenderWait),
		// Dismiss common cookie banners; missing buttons are fine.
		chromedp.ActionFunc(func(ctx context.Context) error {
			_ = chromedp.Click(`button[id*="accept"], button[class*="accept"]`, chromedp.NodeVisible, chromedp.AtLeast(0)).Do(ctx)
			return nil
		}),
	}
}

// RenderHTML navigates to url and returns the rendered document.
func (b *Browser) RenderHTML(ctx context.Context, url string) (string, error) {
	b.logger.Debug("rendering page", zap.String("url", url))

	var html string
	err := b.run(ctx, b.load(url), chromedp.OuterHTML("html", &html))
	if err != nil {
		return "", &Error{URL: url, Message: "browser rendering failed", Cause: err}
	}

	b.logger.Debug("rendered page", zap.String("url", url), zap.Int("bytes", len(html)))
	return html, nil
}

// Screenshot captures a full-page JPEG of url.
func (b *Browser) Screenshot(ctx context.Context, url string) ([]byte, error) {
	b.logger.Debug("capturing screenshot", zap.String("url", url))

	var buf []byte
	err := b.run(ctx, b.load(url), chromedp.FullScreenshot(&buf, 90))
	if err != nil {
		return nil, &Error{URL: url, Message: "screenshot capture failed", Cause: err}
	}
	if len(buf) == 0 {
		return nil, &Error{URL: url, Message: "screenshot capture returned no data"}
	}
	return buf, nil
}
