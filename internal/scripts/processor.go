// Package scripts forwards captured diagnostic payloads to the third-party
// script analysis collaborator. Delivery is best-effort: the orchestrator
// logs failures and moves on.
package scripts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonesrussell/storepulse/internal/domain"
)

const defaultTimeout = 15 * time.Second

// Request carries one group's diagnostics to the analysis service.
type Request struct {
	SiteID            string            `json:"site_id"`
	SiteURL           string            `json:"site_url"`
	DiagnosticPayload json.RawMessage   `json:"diagnostic_payload"`
	MetricID          string            `json:"metric_id"`
	PageType          domain.PageType   `json:"page_type"`
	PageURL           string            `json:"page_url"`
	DeviceType        domain.DeviceType `json:"device_type"`
}

// Processor is the downstream script-analysis contract.
type Processor interface {
	ProcessDiagnostics(ctx context.Context, req Request) error
}

// HTTPProcessor posts diagnostics to the analysis service.
type HTTPProcessor struct {
	endpoint string
	client   *http.Client
}

// NewHTTPProcessor creates a processor for the given endpoint.
func NewHTTPProcessor(endpoint string) *HTTPProcessor {
	return &HTTPProcessor{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultTimeout},
	}
}

// ProcessDiagnostics delivers one diagnostics payload.
func (p *HTTPProcessor) ProcessDiagnostics(ctx context.Context, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("diagnostics delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("diagnostics endpoint returned status %d", resp.StatusCode)
	}

	return nil
}

// NoOpProcessor discards diagnostics. Used when no scripts endpoint is
// configured.
type NoOpProcessor struct{}

// NewNoOp creates a NoOpProcessor.
func NewNoOp() *NoOpProcessor {
	return &NoOpProcessor{}
}

// ProcessDiagnostics does nothing.
func (p *NoOpProcessor) ProcessDiagnostics(ctx context.Context, req Request) error {
	return nil
}
