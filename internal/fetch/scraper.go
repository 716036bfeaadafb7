package fetch

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	html2md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/mackee/go-readability"
	"go.uber.org/zap"
)

// Backend names recorded on each Page.
const (
	BackendPlain   = "plain"
	BackendBrowser = "browser"
)

// Page is the text extracted from one resource page.
type Page struct {
	URL       string
	Title     string
	Text      string
	Backend   string
	FetchedAt time.Time
}

// Scraper turns a URL into readable text.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Page, error)
}

// ErrEmptyPage is returned when a page yields no usable text.
var ErrEmptyPage = errors.New("page contains no extractable text")

// PlainScraper fetches over HTTP and strips markup with goquery.
type PlainScraper struct {
	Options       *Options
	MaxTextLength int
}

// NewPlainScraper creates a PlainScraper bounded to maxText characters.
func NewPlainScraper(opts *Options, maxText int) *PlainScraper {
	return &PlainScraper{Options: opts, MaxTextLength: maxText}
}

// Scrape implements Scraper.
func (s *PlainScraper) Scrape(ctx context.Context, urlStr string) (*Page, error) {
	result, err := URL(ctx, urlStr, s.Options)
	if err != nil {
		return nil, err
	}

	platform := DetectPlatform(urlStr)
	text, err := ExtractMainText(result.HTML, PlatformContentSelectors(platform), PlatformNoiseSelectors(platform)...)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to extract text", Cause: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &Error{URL: urlStr, Message: "empty page", Cause: ErrEmptyPage}
	}

	return &Page{
		URL:       urlStr,
		Title:     ExtractTitle(result.HTML),
		Text:      Truncate(text, s.MaxTextLength),
		Backend:   BackendPlain,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// BrowserScraper renders the page in headless Chrome and extracts the article
// body as markdown.
type BrowserScraper struct {
	Browser       *Browser
	MaxTextLength int
}

// NewBrowserScraper creates a BrowserScraper.
func NewBrowserScraper(browser *Browser, maxText int) *BrowserScraper {
	return &BrowserScraper{Browser: browser, MaxTextLength: maxText}
}

// Scrape implements Scraper.
func (s *BrowserScraper) Scrape(ctx context.Context, urlStr string) (*Page, error) {
	if s.Browser == nil {
		return nil, &Error{URL: urlStr, Message: "browser not configured"}
	}
	html, err := s.Browser.RenderHTML(ctx, urlStr)
	if err != nil {
		return nil, err
	}

	text, err := HTMLToMarkdown(urlStr, html)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to convert page", Cause: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &Error{URL: urlStr, Message: "empty page", Cause: ErrEmptyPage}
	}

	return &Page{
		URL:       urlStr,
		Title:     ExtractTitle(html),
		Text:      Truncate(text, s.MaxTextLength),
		Backend:   BackendBrowser,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// HTMLToMarkdown extracts the readable article from html. When readability
// finds no article root, the whole document is converted instead.
func HTMLToMarkdown(pageURL, html string) (string, error) {
	article, err := readability.Extract(html, readability.DefaultOptions())
	if err == nil && article.Root != nil {
		return strings.TrimSpace(readability.ToMarkdown(article.Root)), nil
	}

	host := ""
	if parsed, perr := url.Parse(pageURL); perr == nil {
		host = parsed.Host
	}
	converter := html2md.NewConverter(host, true, &html2md.Options{})
	md, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}

// FallbackScraper tries Primary and falls back to Fallback on any error.
type FallbackScraper struct {
	Primary  Scraper
	Fallback Scraper
	Logger   *zap.Logger
}

// Scrape implements Scraper.
func (s *FallbackScraper) Scrape(ctx context.Context, urlStr string) (*Page, error) {
	if s.Primary != nil {
		page, err := s.Primary.Scrape(ctx, urlStr)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if s.Logger != nil {
			s.Logger.Warn("primary scraper failed, falling back",
				zap.String("url", urlStr), zap.Error(err))
		}
	}
	if s.Fallback == nil {
		return nil, &Error{URL: urlStr, Message: "no scraper available"}
	}
	return s.Fallback.Scrape(ctx, urlStr)
}
