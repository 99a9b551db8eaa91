package discovery

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/storepulse/internal/logger"
)

const collectionsAllPath = "/collections/all"

// productLinkSelectors is the selector priority list for product-detail
// links. Card and item containers are tried before the generic anchor; the
// ordering affects which product ends up under test, so it must stay stable.
var productLinkSelectors = []string{
	".product-card a[href*='/products/']",
	".product-item a[href*='/products/']",
	".grid-product a[href*='/products/']",
	".grid__item a[href*='/products/']",
	".card__heading a[href*='/products/']",
	"a.product-link[href*='/products/']",
	"a[href*='/products/']",
}

// Discovery finds a product URL for a storefront. All failures, network
// included, are treated as "not found" so callers can degrade the plan
// instead of failing the batch.
type Discovery struct {
	fetcher Fetcher
	logger  logger.Interface
}

// New creates a Discovery.
func New(fetcher Fetcher, log logger.Interface) *Discovery {
	return &Discovery{
		fetcher: fetcher,
		logger:  log.WithComponent("discovery"),
	}
}

// DiscoverProductURL searches the storefront's full-catalog collection page,
// then the homepage, for the first product-detail link. The second return
// value is false when no link was found.
func (d *Discovery) DiscoverProductURL(ctx context.Context, baseURL string) (string, bool) {
	base, err := url.Parse(baseURL)
	if err != nil {
		d.logger.Warn("invalid base URL for discovery", "url", baseURL, "error", err)
		return "", false
	}

	candidates := []string{
		strings.TrimRight(baseURL, "/") + collectionsAllPath,
		baseURL,
	}

	for _, pageURL := range candidates {
		doc, fetchErr := d.fetcher.Fetch(ctx, pageURL)
		if fetchErr != nil {
			d.logger.Warn("discovery fetch failed",
				"url", pageURL,
				"error", fetchErr,
			)
			continue
		}

		if href, found := findProductLink(doc); found {
			resolved := resolveHref(base, href)
			d.logger.Info("discovered product URL",
				"base_url", baseURL,
				"product_url", resolved,
			)
			return resolved, true
		}
	}

	d.logger.Info("no product URL discovered", "base_url", baseURL)
	return "", false
}

// findProductLink searches the selector priority list and returns the first
// matching href.
func findProductLink(doc *goquery.Document) (string, bool) {
	for _, selector := range productLinkSelectors {
		href, exists := doc.Find(selector).First().Attr("href")
		if !exists {
			continue
		}

		href = strings.TrimSpace(href)
		if href == "" || !strings.Contains(href, "/products/") {
			continue
		}

		return href, true
	}

	return "", false
}

// resolveHref resolves a possibly relative href against the site base URL.
func resolveHref(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
