// Package extract scrapes the web version of a newsletter into named
// sections using an ordered chain of strategies.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"

	"github.com/hyperifyio/newsdigest/internal/content"
	"github.com/hyperifyio/newsdigest/internal/fetch"
)

// ErrNoContent is returned when every strategy came back empty.
var ErrNoContent = errors.New("no extractable content")

// Strategy turns a parsed page into sections. A nil or empty result means the
// strategy does not apply and the next one is tried.
type Strategy interface {
	Name() string
	Extract(doc *goquery.Document) []content.Section
}

// DefaultStrategies returns the chain in priority order: vendor-specific
// layout first, generic container heuristics next, plain paragraphs last.
func DefaultStrategies() []Strategy {
	return []Strategy{Vendor{Signature: DefaultVendorSignature}, Generic{}, Basic{}}
}

// Fetcher retrieves a page. *fetch.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string) (fetch.Page, error)
}

// Result is the outcome of extracting one page.
type Result struct {
	Sections []content.Section
	// Links holds every absolute http(s) anchor on the page once, in
	// document order.
	Links    []string
	FinalURL string
	Title    string
	Strategy string
}

// Extractor fetches a newsletter web page and runs the strategy chain on it.
type Extractor struct {
	Fetcher    Fetcher
	Strategies []Strategy
	// Timeout bounds the whole extraction, including a meta-refresh hop.
	Timeout time.Duration
}

var refreshURLRe = regexp.MustCompile(`(?i)url\s*=\s*['"]?([^'"\s]+)`)

// Extract fetches pageURL and returns its sections and links. On any failure
// the returned Result carries only FinalURL set to pageURL, so callers can
// fall back to email content.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = Result{FinalURL: pageURL}, fmt.Errorf("extract %s: panic: %v", pageURL, r)
		}
	}()
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	logger := zerolog.Ctx(ctx).With().Str("url", pageURL).Logger()

	doc, finalURL, err := e.load(ctx, pageURL)
	if err != nil {
		logger.Warn().Err(err).Msg("web page fetch failed")
		return Result{FinalURL: pageURL}, err
	}
	if target, ok := refreshTarget(doc, finalURL); ok {
		logger.Info().Str("target", target).Msg("following meta refresh")
		doc, finalURL, err = e.load(ctx, target)
		if err != nil {
			logger.Warn().Err(err).Msg("meta refresh target fetch failed")
			return Result{FinalURL: pageURL}, err
		}
	}

	out := Result{
		Links:    collectLinks(doc),
		FinalURL: finalURL,
		Title:    squash(doc.Find("title").First().Text()),
	}
	out.Sections, out.Strategy = e.Run(doc)
	if len(out.Sections) == 0 {
		logger.Warn().Msg("no strategy produced content")
		return Result{FinalURL: pageURL}, ErrNoContent
	}
	logger.Info().
		Str("strategy", out.Strategy).
		Int("sections", len(out.Sections)).
		Int("items", content.CountItems(out.Sections)).
		Int("links", len(out.Links)).
		Msg("extracted web content")
	return out, nil
}

// Run applies the strategies to an already parsed page and returns the first
// non-empty cleaned result with the name of the strategy that produced it.
func (e *Extractor) Run(doc *goquery.Document) ([]content.Section, string) {
	strategies := e.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	for _, s := range strategies {
		if secs := content.CleanSections(s.Extract(doc)); len(secs) > 0 {
			return secs, s.Name()
		}
	}
	return nil, ""
}

func (e *Extractor) load(ctx context.Context, pageURL string) (*goquery.Document, string, error) {
	if e.Fetcher == nil {
		return nil, "", errors.New("no fetcher configured")
	}
	page, err := e.Fetcher.Get(ctx, pageURL)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	doc, err := ParseHTML(page.Body, page.ContentType)
	if err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", pageURL, err)
	}
	final := page.FinalURL
	if final == "" {
		final = pageURL
	}
	return doc, final, nil
}

// ParseHTML decodes body to UTF-8 using the declared or sniffed charset and
// parses it.
func ParseHTML(body []byte, contentType string) (*goquery.Document, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("charset: %w", err)
	}
	return goquery.NewDocumentFromReader(r)
}

func refreshTarget(doc *goquery.Document, base string) (string, bool) {
	var target string
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("http-equiv", "")), "refresh") {
			return true
		}
		m := refreshURLRe.FindStringSubmatch(s.AttrOr("content", ""))
		if m == nil {
			return true
		}
		target = m[1]
		return false
	})
	if target == "" {
		return "", false
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", false
	}
	if b, err := url.Parse(base); err == nil {
		ref = b.ResolveReference(ref)
	}
	abs := ref.String()
	if !content.IsHTTPURL(abs) || abs == base {
		return "", false
	}
	return abs, true
}

func collectLinks(doc *goquery.Document) []string {
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if content.IsHTTPURL(href) {
			links = append(links, href)
		}
	})
	return content.AppendUnique(nil, links...)
}
