// Package webfetch fetches a page's table of contents (headings at
// levels 2-6) for Stage 1 related-topic discovery, adapted from the
// ambient HTTP fetcher's adaptive rate limiting and retry shape.
package webfetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dart-insight/storm-report/internal/resilience"
)

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment: on
// success it increases the rate by 20% (up to 2x initial); on 429 it
// halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.maxRate {
		newRate = a.maxRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("webfetch: reducing rate after 429", zap.Float64("new_rate", float64(newRate)))
}

// Fetcher retrieves a page's table of contents.
type Fetcher struct {
	client    *http.Client
	userAgent string

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewFetcher constructs a Fetcher with a 15s timeout, matching the
// "ignore fetch failures silently" posture Stage 1 requires — callers
// get an error to log, never a panic or indefinite hang.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: "stormgen/1.0",
		limiters:  make(map[string]*AdaptiveLimiter),
	}
}

func (f *Fetcher) limiterFor(rawURL string) *AdaptiveLimiter {
	u, err := url.Parse(rawURL)
	host := ""
	if err == nil {
		host = u.Host
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(5, 5)
		f.limiters[host] = lim
	}
	return lim
}

// FetchTOC downloads pageURL and returns its headings (levels h2-h6) as a
// newline-joined table of contents string. Retries transient failures per
// internal/resilience's default policy; a non-transient failure (404,
// malformed HTML) is returned to the caller to be ignored, per Stage 1's
// "ignore fetch failures silently" contract.
func (f *Fetcher) FetchTOC(ctx context.Context, pageURL string) (string, error) {
	limiter := f.limiterFor(pageURL)

	body, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (string, error) {
		if err := limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "webfetch: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return "", eris.Wrap(err, "webfetch: create request")
		}
		req.Header.Set("User-Agent", f.userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return "", eris.Wrap(err, "webfetch: download")
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			limiter.OnRateLimit()
			return "", resilience.NewTransientError(eris.Errorf("webfetch: 429 from %s", pageURL), resp.StatusCode)
		}
		if resp.StatusCode >= 500 {
			return "", resilience.NewTransientError(eris.Errorf("webfetch: %d from %s", resp.StatusCode, pageURL), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return "", eris.Errorf("webfetch: unexpected status %d from %s", resp.StatusCode, pageURL)
		}

		html, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", eris.Wrap(err, "webfetch: read body")
		}

		limiter.OnSuccess()
		return string(html), nil
	})
	if err != nil {
		return "", err
	}

	return extractTOC(body)
}

func extractTOC(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", eris.Wrap(err, "webfetch: parse html")
	}

	var headings []string
	doc.Find("h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			headings = append(headings, text)
		}
	})

	return strings.Join(headings, "\n"), nil
}
