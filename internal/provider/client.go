// Package provider wraps the external synthetic-testing service. The service
// is a black box: one call per (url, device) returning a fixed metric vector.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonesrussell/storepulse/internal/domain"
)

const (
	measurePath = "/v1/measure"

	defaultTimeout = 90 * time.Second
)

// Result is the provider's raw response for one measurement.
type Result struct {
	Success           bool            `json:"success"`
	Performance       *float64        `json:"performance"`
	FCP               *float64        `json:"fcp"`
	LCP               *float64        `json:"lcp"`
	CLS               *float64        `json:"cls"`
	TBT               *float64        `json:"tbt"`
	TTI               *float64        `json:"tti"`
	TTFB              *float64        `json:"ttfb"`
	SpeedIndex        *float64        `json:"speedIndex"`
	ThemeAssetSize    *float64        `json:"themeAssetSize"`
	RequestCount      *float64        `json:"requestCount"`
	DiagnosticPayload json.RawMessage `json:"diagnosticPayload"`
	Error             string          `json:"error,omitempty"`
}

// MetricVector normalizes the provider response into the internal shape.
// The provider's theme asset size is our page weight.
func (r *Result) MetricVector() domain.MetricVector {
	return domain.MetricVector{
		Performance:  r.Performance,
		FCP:          r.FCP,
		LCP:          r.LCP,
		CLS:          r.CLS,
		TBT:          r.TBT,
		TTI:          r.TTI,
		TTFB:         r.TTFB,
		SpeedIndex:   r.SpeedIndex,
		PageWeight:   r.ThemeAssetSize,
		RequestCount: r.RequestCount,
	}
}

// Client is the measurement-provider contract.
type Client interface {
	Measure(ctx context.Context, url string, device domain.DeviceType) (*Result, error)
}

// Config holds provider API settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient calls the provider's HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a provider client.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// measureRequest is the provider's request body.
type measureRequest struct {
	URL      string `json:"url"`
	Strategy string `json:"strategy"`
}

// Measure runs one synthetic test against the provider.
func (c *HTTPClient) Measure(ctx context.Context, url string, device domain.DeviceType) (*Result, error) {
	body, err := json.Marshal(measureRequest{URL: url, Strategy: string(device)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+measurePath,
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var result Result
	if decodeErr := json.NewDecoder(resp.Body).Decode(&result); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", decodeErr)
	}

	return &result, nil
}
