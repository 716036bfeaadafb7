package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resource-pipeline/internal/throttle"
)

type stubScraper struct {
	page  *Page
	err   error
	calls int
}

func (s *stubScraper) Scrape(_ context.Context, _ string) (*Page, error) {
	s.calls++
	return s.page, s.err
}

func TestPlainScraper_Scrape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Widget</title></head><body>
			<nav>Docs Home</nav>
			<main><h1>Widget</h1><p>Widget renders charts in the terminal.</p></main>
		</body></html>`))
	}))
	defer server.Close()

	page, err := NewPlainScraper(nil, 0).Scrape(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Widget", page.Title)
	assert.Equal(t, BackendPlain, page.Backend)
	assert.Contains(t, page.Text, "renders charts in the terminal")
	assert.NotContains(t, page.Text, "Docs Home")
	assert.False(t, page.FetchedAt.IsZero())
}

func TestPlainScraper_BoundsText(t *testing.T) {
	body := "<html><body><main>" + strings.Repeat("word ", 1000) + "</main></body></html>"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	page, err := NewPlainScraper(nil, 100).Scrape(context.Background(), server.URL)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(page.Text), 100)
}

func TestPlainScraper_EmptyPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>   </body></html>"))
	}))
	defer server.Close()

	_, err := NewPlainScraper(nil, 0).Scrape(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyPage)
}

func TestBrowserScraper_NotConfigured(t *testing.T) {
	_, err := (&BrowserScraper{}).Scrape(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser not configured")
}

func TestFallbackScraper_PrimarySucceeds(t *testing.T) {
	primary := &stubScraper{page: &Page{Text: "rendered", Backend: BackendBrowser}}
	fallback := &stubScraper{page: &Page{Text: "plain", Backend: BackendPlain}}

	page, err := (&FallbackScraper{Primary: primary, Fallback: fallback}).Scrape(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, BackendBrowser, page.Backend)
	assert.Equal(t, 0, fallback.calls)
}

func TestFallbackScraper_FallsBackOnError(t *testing.T) {
	primary := &stubScraper{err: errors.New("chrome not found")}
	fallback := &stubScraper{page: &Page{Text: "plain", Backend: BackendPlain}}

	page, err := (&FallbackScraper{Primary: primary, Fallback: fallback}).Scrape(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, BackendPlain, page.Backend)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestFallbackScraper_NoPrimary(t *testing.T) {
	fallback := &stubScraper{page: &Page{Text: "plain"}}

	page, err := (&FallbackScraper{Fallback: fallback}).Scrape(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "plain", page.Text)
}

func TestFallbackScraper_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := &stubScraper{err: context.Canceled}
	fallback := &stubScraper{page: &Page{Text: "plain"}}

	_, err := (&FallbackScraper{Primary: primary, Fallback: fallback}).Scrape(ctx, "https://example.com")
	require.Error(t, err)
	assert.Equal(t, 0, fallback.calls)
}

func TestHTMLToMarkdown(t *testing.T) {
	html := `<html><body><article>
		<h1>Getting started</h1>
		<p>Install the CLI with a single command and point it at your project directory.
		The tool scans the project, builds an index and serves a searchable site.</p>
		<p>Configuration lives in a single file at the repository root.</p>
	</article></body></html>`

	md, err := HTMLToMarkdown("https://example.com/docs", html)
	require.NoError(t, err)
	assert.Contains(t, md, "Install the CLI")
	assert.NotContains(t, md, "<p>")
}

type stubTaker struct {
	data []byte
	err  error
}

func (s stubTaker) Screenshot(_ context.Context, _ string) ([]byte, error) {
	return s.data, s.err
}

func TestFileCapturer_Capture(t *testing.T) {
	dir := t.TempDir()
	capturer := NewFileCapturer(stubTaker{data: []byte("jpeg-bytes")}, dir, throttle.Unlimited())

	ref, err := capturer.Capture(context.Background(), "widget", "https://example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "widget/"))
	assert.True(t, strings.HasSuffix(ref, ".jpg"))

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(ref)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestFileCapturer_CaptureError(t *testing.T) {
	capturer := NewFileCapturer(stubTaker{err: errors.New("timeout")}, t.TempDir(), nil)

	_, err := capturer.Capture(context.Background(), "widget", "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestFileCapturer_SlugCannotEscapeDir(t *testing.T) {
	dir := t.TempDir()
	capturer := NewFileCapturer(stubTaker{data: []byte("x")}, dir, nil)

	ref, err := capturer.Capture(context.Background(), "../../etc", "https://example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "etc/"))
	_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(ref)))
	assert.NoError(t, err)
}

type countingTaker struct {
	calls atomic.Int32
}

func (c *countingTaker) Screenshot(_ context.Context, _ string) ([]byte, error) {
	c.calls.Add(1)
	return []byte("x"), nil
}

func TestFileCapturer_WaitsForScreenshotDelay(t *testing.T) {
	limiter := throttle.NewRegistry(map[string]time.Duration{throttle.ServiceScreenshot: 50 * time.Millisecond})
	taker := &countingTaker{}
	capturer := NewFileCapturer(taker, t.TempDir(), limiter)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 2; i++ {
		_, err := capturer.Capture(ctx, "widget", "https://example.com")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
	assert.Equal(t, int32(2), taker.calls.Load())
}

func TestFileCapturer_CancelledWhileWaiting(t *testing.T) {
	limiter := throttle.NewRegistry(map[string]time.Duration{throttle.ServiceScreenshot: time.Hour})
	taker := &countingTaker{}
	capturer := NewFileCapturer(taker, t.TempDir(), limiter)

	_, err := capturer.Capture(context.Background(), "widget", "https://example.com")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = capturer.Capture(ctx, "widget", "https://example.com")
	require.Error(t, err)
	assert.Equal(t, int32(1), taker.calls.Load())
}
