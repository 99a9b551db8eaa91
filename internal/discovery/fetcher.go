// Package discovery locates a product-detail URL for a storefront by
// scraping its HTML when no product URL is configured.
package discovery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultFetchTimeout bounds each discovery fetch.
	DefaultFetchTimeout = 10 * time.Second

	shopifyAccessTokenHeader = "X-Shopify-Storefront-Access-Token"
)

// Fetcher retrieves a parsed HTML document for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*goquery.Document, error)
}

// HTTPFetcher fetches pages over HTTP with a realistic user agent.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	// accessToken authenticates against password-protected storefronts.
	// Empty for public stores.
	accessToken string
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithTimeout overrides the default fetch timeout.
func WithTimeout(timeout time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client.Timeout = timeout
	}
}

// WithAccessToken sends a storefront access token with each fetch.
func WithAccessToken(token string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.accessToken = token
	}
}

// NewHTTPFetcher creates a fetcher with the given user agent.
func NewHTTPFetcher(userAgent string, opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    &http.Client{Timeout: DefaultFetchTimeout},
		userAgent: userAgent,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch retrieves and parses one page.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if f.accessToken != "" {
		req.Header.Set(shopifyAccessTokenHeader, f.accessToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, rawURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", rawURL, err)
	}

	return doc, nil
}
