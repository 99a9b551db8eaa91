// Package poller implements the client-side adaptive status polling loop
// used by watch-mode consumers of the status API.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonesrussell/storepulse/internal/config"
	"github.com/jonesrussell/storepulse/internal/domain"
	"github.com/jonesrussell/storepulse/internal/logger"
)

// ErrRateLimited signals that the status endpoint asked the client to back
// off. Sources return it for HTTP 429; any other failure is an ordinary
// error.
var ErrRateLimited = errors.New("status endpoint rate limited")

// StatusSource produces one status snapshot per call.
type StatusSource interface {
	FetchStatus(ctx context.Context) ([]domain.SiteStatus, error)
}

// Backoff tracks the adaptive polling interval: it starts at min, doubles on
// each rate-limit signal up to max, and snaps back to min on success.
type Backoff struct {
	Min     time.Duration
	Max     time.Duration
	current time.Duration
}

// NewBackoff creates a Backoff, applying the configured defaults for
// non-positive bounds.
func NewBackoff(minInterval, maxInterval time.Duration) *Backoff {
	if minInterval <= 0 {
		minInterval = config.DefaultPollMinInterval
	}
	if maxInterval < minInterval {
		maxInterval = config.DefaultPollMaxInterval
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}

	return &Backoff{Min: minInterval, Max: maxInterval, current: minInterval}
}

// Current returns the interval to wait before the next poll.
func (b *Backoff) Current() time.Duration {
	return b.current
}

// Advance doubles the interval, capped at Max.
func (b *Backoff) Advance() time.Duration {
	b.current *= 2
	if b.current > b.Max {
		b.current = b.Max
	}
	return b.current
}

// Reset snaps the interval back to Min.
func (b *Backoff) Reset() time.Duration {
	b.current = b.Min
	return b.current
}

// Poller repeatedly fetches status snapshots with adaptive pacing.
type Poller struct {
	source  StatusSource
	backoff *Backoff
	logger  logger.Interface
}

// New creates a Poller.
func New(source StatusSource, minInterval, maxInterval time.Duration, log logger.Interface) *Poller {
	return &Poller{
		source:  source,
		backoff: NewBackoff(minInterval, maxInterval),
		logger:  log.WithComponent("poller"),
	}
}

// Poll fetches snapshots until the context is cancelled, invoking handle for
// each successful one. Rate limiting stretches the interval; success resets
// it. Other fetch errors are logged and retried at the current interval.
func (p *Poller) Poll(ctx context.Context, handle func([]domain.SiteStatus)) error {
	for {
		statuses, err := p.source.FetchStatus(ctx)
		switch {
		case errors.Is(err, ErrRateLimited):
			interval := p.backoff.Advance()
			p.logger.Warn("rate limited; backing off",
				"next_interval", interval,
			)
		case err != nil:
			p.logger.Error("status fetch failed", "error", err)
		default:
			p.backoff.Reset()
			handle(statuses)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff.Current()):
		}
	}
}

// HTTPSource fetches status snapshots from the service's status endpoint.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source for the given service base URL.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type statusResponse struct {
	Sites []domain.SiteStatus `json:"sites"`
	Count int                 `json:"count"`
}

// FetchStatus performs one GET against the status endpoint. HTTP 429 maps to
// ErrRateLimited.
func (s *HTTPSource) FetchStatus(ctx context.Context) ([]domain.SiteStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/v1/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return body.Sites, nil
}
