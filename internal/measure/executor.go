// Package measure invokes the measurement provider and collects run results.
package measure

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/storepulse/internal/domain"
	"github.com/jonesrussell/storepulse/internal/logger"
	"github.com/jonesrussell/storepulse/internal/provider"
)

// ProviderError marks a run where the provider call did not succeed. A single
// failed run is recoverable: the caller discards it and keeps going.
type ProviderError struct {
	URL    string
	Device domain.DeviceType
	Reason string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider failed for %s (%s): %s", e.URL, e.Device, e.Reason)
}

// RunResult pairs a normalized metric vector with the raw diagnostic payload
// captured during the run.
type RunResult struct {
	Metrics     domain.MetricVector
	Diagnostics []byte
}

// Executor runs measurements with inter-run pacing to respect the provider's
// rate limits. Runs within one (page, device) sequence are strictly
// sequential; pacing must never be shared across sequences.
type Executor struct {
	client provider.Client
	pacing time.Duration
	logger logger.Interface
}

// NewExecutor creates an executor with the configured pacing delay.
func NewExecutor(client provider.Client, pacing time.Duration, log logger.Interface) *Executor {
	return &Executor{
		client: client,
		pacing: pacing,
		logger: log.WithComponent("measure"),
	}
}

// RunOnce performs a single measurement. It is the one call in the pipeline
// allowed to fail: a *ProviderError is returned when the provider reports an
// unsuccessful run.
func (e *Executor) RunOnce(ctx context.Context, url string, device domain.DeviceType) (*RunResult, error) {
	result, err := e.client.Measure(ctx, url, device)
	if err != nil {
		return nil, &ProviderError{URL: url, Device: device, Reason: err.Error()}
	}

	if !result.Success {
		reason := result.Error
		if reason == "" {
			reason = "provider reported failure"
		}
		return nil, &ProviderError{URL: url, Device: device, Reason: reason}
	}

	return &RunResult{
		Metrics:     result.MetricVector(),
		Diagnostics: result.DiagnosticPayload,
	}, nil
}

// RunMany performs up to n sequential measurements with the pacing delay
// between them. Failed runs are logged and excluded; the returned slice may
// be shorter than n. Median aggregation tolerates the gaps.
func (e *Executor) RunMany(ctx context.Context, url string, device domain.DeviceType, n int) []RunResult {
	results := make([]RunResult, 0, n)

	for i := 0; i < n; i++ {
		if i > 0 && e.pacing > 0 {
			select {
			case <-ctx.Done():
				e.logger.Warn("run sequence cancelled",
					"url", url,
					"device", device,
					"completed", len(results),
				)
				return results
			case <-time.After(e.pacing):
			}
		}

		result, err := e.RunOnce(ctx, url, device)
		if err != nil {
			e.logger.Warn("measurement run failed",
				"url", url,
				"device", device,
				"run", i+1,
				"error", err,
			)
			continue
		}

		results = append(results, *result)
	}

	return results
}
