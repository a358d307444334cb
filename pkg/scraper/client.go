// Package scraper reads player profiles, daily fixtures and lineups from BeSoccer.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/retry"
)

// DefaultTimeout is the maximum time to wait for one page.
const DefaultTimeout = 10 * time.Second

// maxPageBytes bounds how much of a page is read.
const maxPageBytes = 8 << 20

// Scraper is what the services need from the source site.
type Scraper interface {
	FetchProfile(ctx context.Context, profileURL string) (*PlayerProfile, error)
	MatchesByDate(ctx context.Context, date string) ([]Fixture, error)
	FetchLineups(ctx context.Context, matchURL string) (*Lineup, error)
}

// Config configures the client.
type Config struct {
	BaseURL   string // e.g. https://es.besoccer.com
	UserAgent string
	Timeout   time.Duration
	CacheTTL  time.Duration // zero disables caching
	Retries   int
}

// Client fetches and parses BeSoccer pages.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	userAgent  string
	retry      *retry.Config
	cache      *ttlCache
	logger     *zap.Logger
}

var _ Scraper = (*Client)(nil)

// NewClient creates a new BeSoccer client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid scraper base URL %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		userAgent:  cfg.UserAgent,
		retry: &retry.Config{
			MaxRetries:   retries,
			InitialDelay: 300 * time.Millisecond,
			MaxDelay:     3 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.2,
		},
		cache:  newTTLCache(cfg.CacheTTL),
		logger: logger.Named("scraper"),
	}, nil
}

// ClearCache drops every cached page.
func (c *Client) ClearCache() {
	c.cache.clear()
}

// fetchDocument GETs pageURL and parses it, retrying server errors and timeouts.
func (c *Client) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	start := time.Now()
	doc, err := retry.DoWithResult(ctx, c.retry, func() (*goquery.Document, error) {
		return c.get(ctx, pageURL)
	})
	if err != nil {
		c.logger.Warn("Fetch failed",
			zap.String("url", pageURL),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		if ctx.Err() != nil {
			return nil, &fetchError{URL: pageURL, Err: ctx.Err()}
		}
		return nil, err
	}
	c.logger.Debug("Fetched page",
		zap.String("url", pageURL),
		zap.Duration("elapsed", time.Since(start)))
	return doc, nil
}

func (c *Client) get(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &fetchError{URL: pageURL, Err: err}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "es-ES,es;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &fetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &fetchError{URL: pageURL, Status: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, &fetchError{URL: pageURL, Err: fmt.Errorf("failed to read page: %w", err)}
	}
	return doc, nil
}

// buildURL joins path segments onto the base URL.
func (c *Client) buildURL(pathSegments ...string) string {
	u := *c.baseURL
	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)
	return u.String()
}

// absolute resolves a site-relative href against the base URL.
func (c *Client) absolute(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return c.baseURL.ResolveReference(ref).String()
}
