package discovery_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/storepulse/internal/discovery"
	"github.com/jonesrussell/storepulse/internal/logger"
)

// fakeFetcher serves canned HTML per URL and records requested URLs.
type fakeFetcher struct {
	pages    map[string]string
	requests []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	f.requests = append(f.requests, rawURL)

	html, ok := f.pages[rawURL]
	if !ok {
		return nil, errors.New("connection refused")
	}

	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func TestDiscoverProductURL_CollectionPage(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://shop.example/collections/all": `
			<div class="product-card">
				<a href="/products/blue-shirt">Blue Shirt</a>
			</div>
			<a href="/products/red-shirt">Red Shirt</a>
		`,
	}}

	d := discovery.New(fetcher, logger.NewNoOp())

	got, found := d.DiscoverProductURL(context.Background(), "https://shop.example")
	require.True(t, found)
	assert.Equal(t, "https://shop.example/products/blue-shirt", got)
	assert.Equal(t, []string{"https://shop.example/collections/all"}, fetcher.requests)
}

func TestDiscoverProductURL_CardLinkBeatsGenericAnchor(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://shop.example/collections/all": `
			<a href="/products/generic-first">Generic</a>
			<div class="product-item">
				<a href="/products/from-card">Card</a>
			</div>
		`,
	}}

	d := discovery.New(fetcher, logger.NewNoOp())

	got, found := d.DiscoverProductURL(context.Background(), "https://shop.example")
	require.True(t, found)
	assert.Equal(t, "https://shop.example/products/from-card", got)
}

func TestDiscoverProductURL_HomepageFallback(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://shop.example/collections/all": `<p>no products here</p>`,
		"https://shop.example": `
			<a href="https://shop.example/products/featured">Featured</a>
		`,
	}}

	d := discovery.New(fetcher, logger.NewNoOp())

	got, found := d.DiscoverProductURL(context.Background(), "https://shop.example")
	require.True(t, found)
	assert.Equal(t, "https://shop.example/products/featured", got)
	assert.Len(t, fetcher.requests, 2)
}

func TestDiscoverProductURL_FetchFailureIsNotFound(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{}}

	d := discovery.New(fetcher, logger.NewNoOp())

	_, found := d.DiscoverProductURL(context.Background(), "https://shop.example")
	assert.False(t, found)
	assert.Len(t, fetcher.requests, 2)
}

func TestDiscoverProductURL_NoMatchAnywhere(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://shop.example/collections/all": `<a href="/collections/sale">Sale</a>`,
		"https://shop.example":                 `<a href="/pages/about">About</a>`,
	}}

	d := discovery.New(fetcher, logger.NewNoOp())

	_, found := d.DiscoverProductURL(context.Background(), "https://shop.example")
	assert.False(t, found)
}

func TestHTTPFetcher_SendsUserAgent(t *testing.T) {
	var gotUA, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotToken = r.Header.Get("X-Shopify-Storefront-Access-Token")
		w.Write([]byte(`<html><body></body></html>`))
	}))
	defer srv.Close()

	f := discovery.NewHTTPFetcher("storepulse-test/1.0", discovery.WithAccessToken("tok-123"))

	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "storepulse-test/1.0", gotUA)
	assert.Equal(t, "tok-123", gotToken)
}

func TestHTTPFetcher_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := discovery.NewHTTPFetcher("storepulse-test/1.0")

	_, err := f.Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}
