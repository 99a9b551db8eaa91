// Package orchestrator coordinates one measurement batch end to end: plan
// construction, provider runs, persistence, median aggregation, and job
// lifecycle updates.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/storepulse/internal/config"
	"github.com/jonesrussell/storepulse/internal/crypto"
	"github.com/jonesrussell/storepulse/internal/database"
	"github.com/jonesrussell/storepulse/internal/domain"
	"github.com/jonesrussell/storepulse/internal/logger"
	"github.com/jonesrussell/storepulse/internal/measure"
	"github.com/jonesrussell/storepulse/internal/median"
	"github.com/jonesrussell/storepulse/internal/scripts"
	"github.com/jonesrussell/storepulse/internal/status"
)

const (
	collectionsAllPath = "/collections/all"
	progressScale      = 100
)

// ErrBatchInProgress is returned by StartBatch when the site already has a
// queued or running job. Batches for one site never overlap.
var ErrBatchInProgress = errors.New("site already has an active batch")

// Discoverer finds a product URL for a storefront.
type Discoverer interface {
	DiscoverProductURL(ctx context.Context, baseURL string) (string, bool)
}

// DiscovererFactory builds a Discoverer carrying one site's storefront access
// token. Tokens differ per site, so the discoverer cannot be shared.
type DiscovererFactory func(accessToken string) Discoverer

// Runner executes provider measurements.
type Runner interface {
	RunOnce(ctx context.Context, url string, device domain.DeviceType) (*measure.RunResult, error)
	RunMany(ctx context.Context, url string, device domain.DeviceType, n int) []measure.RunResult
}

// Params collects the orchestrator's collaborators. Everything is injected;
// the orchestrator holds no ambient state.
type Params struct {
	Sites   database.SiteRepositoryInterface
	Jobs    database.JobRepositoryInterface
	Runs    database.RunRepositoryInterface
	Metrics database.MetricRepositoryInterface

	Tracker       *status.Tracker
	Runner        Runner
	NewDiscoverer DiscovererFactory
	Processor     scripts.Processor
	// Secrets decrypts stored storefront access tokens. Nil when no
	// encryption key is configured; encrypted tokens are then unusable.
	Secrets *crypto.SecretBox

	RunsPerCombination int
	Logger             logger.Interface
}

// Orchestrator runs measurement batches.
type Orchestrator struct {
	sites   database.SiteRepositoryInterface
	jobs    database.JobRepositoryInterface
	runs    database.RunRepositoryInterface
	metrics database.MetricRepositoryInterface

	tracker       *status.Tracker
	runner        Runner
	newDiscoverer DiscovererFactory
	processor     scripts.Processor
	secrets       *crypto.SecretBox

	runsPerCombination int
	logger             logger.Interface
}

// New creates an Orchestrator from its collaborators.
func New(p Params) *Orchestrator {
	if p.Processor == nil {
		p.Processor = scripts.NewNoOp()
	}
	if p.RunsPerCombination < 1 {
		p.RunsPerCombination = config.DefaultRunsPerCombination
	}

	return &Orchestrator{
		sites:              p.Sites,
		jobs:               p.Jobs,
		runs:               p.Runs,
		metrics:            p.Metrics,
		tracker:            p.Tracker,
		runner:             p.Runner,
		newDiscoverer:      p.NewDiscoverer,
		processor:          p.Processor,
		secrets:            p.Secrets,
		runsPerCombination: p.RunsPerCombination,
		logger:             p.Logger.WithComponent("orchestrator"),
	}
}

// StartBatch creates a queued job with a fresh batch ID for the site. It
// refuses to queue when the site already has an active job.
func (o *Orchestrator) StartBatch(ctx context.Context, siteID string) (*domain.Job, error) {
	if _, err := o.sites.GetByID(ctx, siteID); err != nil {
		return nil, fmt.Errorf("failed to load site: %w", err)
	}

	active, err := o.jobs.CountActiveBySite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active jobs: %w", err)
	}
	if active > 0 {
		return nil, fmt.Errorf("%w: site %s", ErrBatchInProgress, siteID)
	}

	job := &domain.Job{
		ID:      uuid.NewString(),
		SiteID:  siteID,
		BatchID: uuid.NewString(),
		Status:  domain.JobStatusQueued,
	}

	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	o.logger.Info("batch queued",
		"site_id", siteID,
		"job_id", job.ID,
		"batch_id", job.BatchID,
	)

	return job, nil
}

// RunBatch executes one queued batch to completion. It marks the job running,
// measures every page/device combination, persists raw runs and per-group
// medians, forwards diagnostics, and marks the job completed. Any persistence
// failure is catastrophic: the job is marked failed and the error returned.
// Individual provider run failures are not catastrophic; they only thin out
// the medians.
func (o *Orchestrator) RunBatch(ctx context.Context, siteID, jobID string) error {
	if err := o.tracker.Start(ctx, jobID); err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}

	site, err := o.sites.GetByID(ctx, siteID)
	if err != nil {
		return o.failJob(ctx, jobID, fmt.Errorf("failed to load site: %w", err))
	}

	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return o.failJob(ctx, jobID, fmt.Errorf("failed to load job: %w", err))
	}

	plan := o.buildPlan(ctx, site)
	o.logger.Info("batch starting",
		"site_id", site.ID,
		"batch_id", job.BatchID,
		"pages", len(plan.Entries),
		"total_runs", plan.TotalRuns(),
	)

	collected, diagnostics, err := o.executePlan(ctx, site, job, plan)
	if err != nil {
		return o.failJob(ctx, jobID, err)
	}

	if err := o.aggregateAndPersist(ctx, site, job, plan, collected, diagnostics); err != nil {
		return o.failJob(ctx, jobID, err)
	}

	if err := o.sites.TouchLastTested(ctx, site.ID, time.Now()); err != nil {
		o.logger.Warn("failed to update last-tested timestamp",
			"site_id", site.ID,
			"error", err,
		)
	}

	if err := o.tracker.Complete(ctx, jobID); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	o.logger.Info("batch completed",
		"site_id", site.ID,
		"batch_id", job.BatchID,
		"runs", len(collected),
	)

	return nil
}

// RunSimple measures the site's homepage once on the given device and
// records the result as its own single-run batch: a job is queued and
// transitioned, the run is persisted, and a one-run median row is written.
// Unlike a full batch, the single run failing leaves no usable output, so it
// fails the job instead of being silently skipped.
func (o *Orchestrator) RunSimple(ctx context.Context, siteID string, device domain.DeviceType) (*measure.RunResult, error) {
	job, err := o.StartBatch(ctx, siteID)
	if err != nil {
		return nil, err
	}

	if err := o.tracker.Start(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("failed to start job: %w", err)
	}

	site, err := o.sites.GetByID(ctx, siteID)
	if err != nil {
		return nil, o.failJob(ctx, job.ID, fmt.Errorf("failed to load site: %w", err))
	}

	result, err := o.runner.RunOnce(ctx, site.URL, device)
	if err != nil {
		return nil, o.failJob(ctx, job.ID, fmt.Errorf("measurement failed: %w", err))
	}

	run := domain.RawRun{
		ID:                uuid.NewString(),
		SiteID:            site.ID,
		BatchID:           job.BatchID,
		PageType:          domain.PageTypeHomepage,
		PageURL:           site.URL,
		DeviceType:        device,
		RunNumber:         1,
		MetricVector:      result.Metrics,
		DiagnosticPayload: result.Diagnostics,
	}
	if err := o.runs.Create(ctx, &run); err != nil {
		return nil, o.failJob(ctx, job.ID, fmt.Errorf("failed to persist raw run: %w", err))
	}

	metric := domain.MedianMetric{
		ID:           uuid.NewString(),
		SiteID:       site.ID,
		BatchID:      job.BatchID,
		PageType:     domain.PageTypeHomepage,
		PageURL:      site.URL,
		DeviceType:   device,
		RunCount:     1,
		MetricVector: median.Aggregate([]domain.RawRun{run}),
	}
	if err := o.metrics.Create(ctx, &metric); err != nil {
		return nil, o.failJob(ctx, job.ID, fmt.Errorf("failed to persist median metric: %w", err))
	}

	o.forwardDiagnostics(ctx, site, &metric, result.Diagnostics)

	if err := o.sites.TouchLastTested(ctx, site.ID, time.Now()); err != nil {
		o.logger.Warn("failed to update last-tested timestamp",
			"site_id", site.ID,
			"error", err,
		)
	}

	if err := o.tracker.Complete(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("failed to complete job: %w", err)
	}

	return result, nil
}

// buildPlan resolves the pages under test. Homepage is always present, the
// category page falls back to the full-catalog collection, and the product
// page is discovered by scraping when not configured. A failed discovery
// drops the product page from the plan instead of failing the batch.
func (o *Orchestrator) buildPlan(ctx context.Context, site *domain.Site) *domain.TestPlan {
	entries := []domain.PlanEntry{
		{PageType: domain.PageTypeHomepage, URL: site.URL},
	}

	categoryURL := strings.TrimRight(site.URL, "/") + collectionsAllPath
	if site.CategoryURL != nil && *site.CategoryURL != "" {
		categoryURL = *site.CategoryURL
	}
	entries = append(entries, domain.PlanEntry{PageType: domain.PageTypeCategory, URL: categoryURL})

	if productURL, ok := o.resolveProductURL(ctx, site); ok {
		entries = append(entries, domain.PlanEntry{PageType: domain.PageTypeProduct, URL: productURL})
	} else {
		o.logger.Warn("no product URL resolved; product page dropped from plan",
			"site_id", site.ID,
		)
	}

	return &domain.TestPlan{
		Entries:            entries,
		Devices:            domain.AllDeviceTypes,
		RunsPerCombination: o.runsPerCombination,
	}
}

// resolveProductURL prefers the configured product URL and falls back to
// scraping discovery.
func (o *Orchestrator) resolveProductURL(ctx context.Context, site *domain.Site) (string, bool) {
	if site.ProductURL != nil && *site.ProductURL != "" {
		return *site.ProductURL, true
	}

	if o.newDiscoverer == nil {
		return "", false
	}

	return o.newDiscoverer(o.accessToken(site)).DiscoverProductURL(ctx, site.URL)
}

// accessToken decrypts the site's stored storefront token. Decryption
// problems degrade to an empty token so public pages can still be fetched.
func (o *Orchestrator) accessToken(site *domain.Site) string {
	if site.AccessToken == nil || *site.AccessToken == "" {
		return ""
	}
	if o.secrets == nil {
		o.logger.Warn("site has an access token but no encryption key is configured",
			"site_id", site.ID,
		)
		return ""
	}

	token, err := o.secrets.Decrypt(*site.AccessToken)
	if err != nil {
		o.logger.Warn("failed to decrypt storefront access token",
			"site_id", site.ID,
			"error", err,
		)
		return ""
	}

	return token
}

// executePlan measures every page/device combination and persists the raw
// runs. It returns the persisted runs and the first non-empty diagnostic
// payload captured per group.
func (o *Orchestrator) executePlan(
	ctx context.Context,
	site *domain.Site,
	job *domain.Job,
	plan *domain.TestPlan,
) ([]domain.RawRun, map[domain.GroupKey][]byte, error) {
	collected := make([]domain.RawRun, 0, plan.TotalRuns())
	diagnostics := make(map[domain.GroupKey][]byte)

	combinations := plan.Combinations()
	done := 0

	for _, entry := range plan.Entries {
		for _, device := range plan.Devices {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, fmt.Errorf("batch cancelled: %w", ctxErr)
			}

			key := domain.GroupKey{PageType: entry.PageType, DeviceType: device}
			results := o.runner.RunMany(ctx, entry.URL, device, plan.RunsPerCombination)

			for i, result := range results {
				run := domain.RawRun{
					ID:                uuid.NewString(),
					SiteID:            site.ID,
					BatchID:           job.BatchID,
					PageType:          entry.PageType,
					PageURL:           entry.URL,
					DeviceType:        device,
					RunNumber:         i + 1,
					MetricVector:      result.Metrics,
					DiagnosticPayload: result.Diagnostics,
				}

				if err := o.runs.Create(ctx, &run); err != nil {
					return nil, nil, fmt.Errorf("failed to persist raw run: %w", err)
				}
				collected = append(collected, run)

				if len(diagnostics[key]) == 0 && len(result.Diagnostics) > 0 {
					diagnostics[key] = result.Diagnostics
				}
			}

			if len(results) == 0 {
				o.logger.Warn("all runs failed for combination",
					"site_id", site.ID,
					"page_type", entry.PageType,
					"device_type", device,
				)
			}

			done++
			o.setProgress(ctx, job.ID, done*progressScale/combinations)
		}
	}

	return collected, diagnostics, nil
}

// aggregateAndPersist writes one median row per non-empty group, in plan
// order, and forwards the group's retained diagnostic payload.
func (o *Orchestrator) aggregateAndPersist(
	ctx context.Context,
	site *domain.Site,
	job *domain.Job,
	plan *domain.TestPlan,
	collected []domain.RawRun,
	diagnostics map[domain.GroupKey][]byte,
) error {
	groups := median.GroupRuns(collected)

	for _, entry := range plan.Entries {
		for _, device := range plan.Devices {
			key := domain.GroupKey{PageType: entry.PageType, DeviceType: device}

			groupRuns := groups[key]
			if len(groupRuns) == 0 {
				continue
			}

			metric := domain.MedianMetric{
				ID:           uuid.NewString(),
				SiteID:       site.ID,
				BatchID:      job.BatchID,
				PageType:     entry.PageType,
				PageURL:      entry.URL,
				DeviceType:   device,
				RunCount:     len(groupRuns),
				MetricVector: median.Aggregate(groupRuns),
			}

			if err := o.metrics.Create(ctx, &metric); err != nil {
				return fmt.Errorf("failed to persist median metric: %w", err)
			}

			o.forwardDiagnostics(ctx, site, &metric, diagnostics[key])
		}
	}

	return nil
}

// forwardDiagnostics hands one group's diagnostic payload to the script
// analysis collaborator. Best-effort: failures are logged, never propagated.
func (o *Orchestrator) forwardDiagnostics(
	ctx context.Context,
	site *domain.Site,
	metric *domain.MedianMetric,
	payload []byte,
) {
	if len(payload) == 0 {
		return
	}

	req := scripts.Request{
		SiteID:            site.ID,
		SiteURL:           site.URL,
		DiagnosticPayload: payload,
		MetricID:          metric.ID,
		PageType:          metric.PageType,
		PageURL:           metric.PageURL,
		DeviceType:        metric.DeviceType,
	}

	if err := o.processor.ProcessDiagnostics(ctx, req); err != nil {
		o.logger.Warn("diagnostics forwarding failed",
			"site_id", site.ID,
			"metric_id", metric.ID,
			"error", err,
		)
	}
}

// setProgress records advisory progress; failures only get logged.
func (o *Orchestrator) setProgress(ctx context.Context, jobID string, progress int) {
	if err := o.tracker.SetProgress(ctx, jobID, progress); err != nil {
		o.logger.Warn("failed to update job progress",
			"job_id", jobID,
			"error", err,
		)
	}
}

// failJob records a catastrophic batch failure and returns the original
// error. A cancelled context must not block the failure write, so the update
// runs on a detached context.
func (o *Orchestrator) failJob(ctx context.Context, jobID string, cause error) error {
	failCtx := context.WithoutCancel(ctx)
	if err := o.tracker.Fail(failCtx, jobID, cause.Error()); err != nil {
		o.logger.Error("failed to mark job failed",
			"job_id", jobID,
			"cause", cause,
			"error", err,
		)
	}
	return cause
}
