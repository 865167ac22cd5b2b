package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hyperifyio/newsdigest/internal/cache"
)

// DefaultUserAgent mimics a desktop browser; several newsletter hosts refuse
// requests from bare HTTP libraries.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// maxBodyBytes bounds how much of a page is read into memory.
const maxBodyBytes = 8 << 20

// ErrUnsupportedScheme is returned for non-http(s) URLs.
var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("unexpected status: %d", e.Code) }

// Page is a fetched HTML document.
type Page struct {
	Body        []byte
	ContentType string
	// FinalURL is the URL that served the body after redirects.
	FinalURL string
}

// Client wraps http.Client with per-request timeouts, bounded redirects,
// limited retry on transient errors and an optional revalidating page cache.
type Client struct {
	HTTPClient     *http.Client
	UserAgent      string
	AcceptLanguage string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each attempt.
	PerRequestTimeout time.Duration
	// RetryDelay is multiplied by the attempt number between retries.
	// Zero means 200ms.
	RetryDelay time.Duration
	// RedirectMaxHops caps redirect following. Zero means 5.
	RedirectMaxHops int

	Cache *cache.HTTPCache
	// BypassCache skips conditional revalidation but still stores fresh pages.
	BypassCache bool
}

// Get fetches rawURL and returns the page body. Only HTML content types are
// accepted. 5xx responses and timeouts are retried up to MaxAttempts.
func (c *Client) Get(ctx context.Context, rawURL string) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return Page{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, rawURL)
	}

	var cached *cache.PageEntry
	var cachedBody []byte
	if c.Cache != nil && !c.BypassCache {
		if e, b, err := c.Cache.Load(ctx, rawURL); err == nil {
			cached, cachedBody = e, b
		}
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := c.RetryDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	logger := zerolog.Ctx(ctx)
	var lastErr error
	for i := 0; i < attempts; i++ {
		page, notModified, err := c.tryOnce(ctx, rawURL, cached)
		if err == nil {
			if notModified && cached != nil {
				return Page{Body: cachedBody, ContentType: cached.ContentType, FinalURL: cached.FinalURL}, nil
			}
			if c.Cache != nil {
				entry := cache.PageEntry{URL: rawURL, FinalURL: page.FinalURL, ContentType: page.ContentType}
				entry.ETag, entry.LastModified = page.etag, page.lastModified
				if err := c.Cache.Save(ctx, entry, page.Body); err != nil {
					logger.Debug().Err(err).Str("url", rawURL).Msg("page cache save failed")
				}
			}
			return page.Page, nil
		}
		lastErr = err
		if !isTransient(err) || i == attempts-1 || ctx.Err() != nil {
			break
		}
		logger.Debug().Err(err).Str("url", rawURL).Int("attempt", i+1).Msg("retrying fetch")
		select {
		case <-ctx.Done():
			return Page{}, ctx.Err()
		case <-time.After(time.Duration(i+1) * delay):
		}
	}
	return Page{}, lastErr
}

type fetched struct {
	Page
	etag         string
	lastModified string
}

func (c *Client) tryOnce(ctx context.Context, rawURL string, cached *cache.PageEntry) (fetched, bool, error) {
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fetched{}, false, fmt.Errorf("new request: %w", err)
	}
	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if c.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", c.AcceptLanguage)
	}
	if cached != nil {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fetched{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return fetched{}, true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fetched{}, false, &StatusError{Code: resp.StatusCode}
	}
	ct := resp.Header.Get("Content-Type")
	if !isHTMLContentType(ct) {
		return fetched{}, false, fmt.Errorf("unsupported content type: %s", ct)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fetched{}, false, fmt.Errorf("read body: %w", err)
	}
	final := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return fetched{
		Page:         Page{Body: body, ContentType: ct, FinalURL: final},
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}, false, nil
}

func (c *Client) httpClient() *http.Client {
	base := http.Client{}
	if c.HTTPClient != nil {
		base = *c.HTTPClient
	}
	base.CheckRedirect = c.checkRedirect
	return &base
}

func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	if len(via) >= max {
		return errors.New("too many redirects")
	}
	if !isHTTPScheme(req.URL) {
		return errors.New("redirect to unsupported scheme")
	}
	return nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	// a missing header is accepted
	return ct == "" || strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}
