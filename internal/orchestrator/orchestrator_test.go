package orchestrator_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/storepulse/internal/crypto"
	"github.com/jonesrussell/storepulse/internal/domain"
	"github.com/jonesrussell/storepulse/internal/logger"
	"github.com/jonesrussell/storepulse/internal/measure"
	"github.com/jonesrussell/storepulse/internal/orchestrator"
	"github.com/jonesrussell/storepulse/internal/scripts"
	"github.com/jonesrussell/storepulse/internal/status"
	"github.com/jonesrussell/storepulse/testutils"
)

// fakeRunner answers each (url, device) combination from a script. A missing
// entry means every run in that combination failed.
type fakeRunner struct {
	results map[string][]measure.RunResult
	calls   int
}

func comboKey(url string, device domain.DeviceType) string {
	return fmt.Sprintf("%s|%s", url, device)
}

func (r *fakeRunner) RunOnce(ctx context.Context, url string, device domain.DeviceType) (*measure.RunResult, error) {
	r.calls++
	results := r.results[comboKey(url, device)]
	if len(results) == 0 {
		return nil, &measure.ProviderError{URL: url, Device: device, Reason: "no result scripted"}
	}
	return &results[0], nil
}

func (r *fakeRunner) RunMany(ctx context.Context, url string, device domain.DeviceType, n int) []measure.RunResult {
	r.calls++
	return r.results[comboKey(url, device)]
}

// fakeDiscoverer returns a fixed answer and records the token it was built
// with.
type fakeDiscoverer struct {
	url   string
	found bool
}

func (d *fakeDiscoverer) DiscoverProductURL(ctx context.Context, baseURL string) (string, bool) {
	return d.url, d.found
}

type capturingProcessor struct {
	requests []scripts.Request
}

func (p *capturingProcessor) ProcessDiagnostics(ctx context.Context, req scripts.Request) error {
	p.requests = append(p.requests, req)
	return nil
}

func runsOf(perfs ...float64) []measure.RunResult {
	results := make([]measure.RunResult, 0, len(perfs))
	for _, perf := range perfs {
		p := perf
		results = append(results, measure.RunResult{
			Metrics: domain.MetricVector{Performance: &p},
		})
	}
	return results
}

type fixture struct {
	store     *testutils.MemStore
	runner    *fakeRunner
	processor *capturingProcessor
	orch      *orchestrator.Orchestrator
}

func newFixture(t *testing.T, site *domain.Site, runner *fakeRunner, discoverer orchestrator.Discoverer) *fixture {
	t.Helper()

	store := testutils.NewMemStore()
	store.AddSite(site)

	processor := &capturingProcessor{}
	tracker := status.NewTracker(store.JobRepo(), store.SiteRepo(), logger.NewNoOp())

	orch := orchestrator.New(orchestrator.Params{
		Sites:   store.SiteRepo(),
		Jobs:    store.JobRepo(),
		Runs:    store.RunRepo(),
		Metrics: store.MetricRepo(),
		Tracker: tracker,
		Runner:  runner,
		NewDiscoverer: func(token string) orchestrator.Discoverer {
			return discoverer
		},
		Processor:          processor,
		RunsPerCombination: 3,
		Logger:             logger.NewNoOp(),
	})

	return &fixture{store: store, runner: runner, processor: processor, orch: orch}
}

func testSite() *domain.Site {
	return &domain.Site{ID: "site-1", Name: "Shop", URL: "https://shop.example"}
}

func queueJob(t *testing.T, f *fixture, siteID string) *domain.Job {
	t.Helper()
	job, err := f.orch.StartBatch(context.Background(), siteID)
	require.NoError(t, err)
	return job
}

func TestStartBatch_RefusesSecondActiveJob(t *testing.T) {
	f := newFixture(t, testSite(), &fakeRunner{}, &fakeDiscoverer{})

	job, err := f.orch.StartBatch(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.NotEmpty(t, job.BatchID)

	_, err = f.orch.StartBatch(context.Background(), "site-1")
	assert.ErrorIs(t, err, orchestrator.ErrBatchInProgress)
}

func TestStartBatch_UnknownSite(t *testing.T) {
	f := newFixture(t, testSite(), &fakeRunner{}, &fakeDiscoverer{})

	_, err := f.orch.StartBatch(context.Background(), "nope")
	assert.Error(t, err)
}

func TestRunBatch_NoProductDiscovered(t *testing.T) {
	site := testSite()
	runner := &fakeRunner{results: map[string][]measure.RunResult{
		comboKey("https://shop.example", domain.DeviceTypeMobile):                  runsOf(80, 90, 100),
		comboKey("https://shop.example", domain.DeviceTypeDesktop):                 runsOf(91, 92, 93),
		comboKey("https://shop.example/collections/all", domain.DeviceTypeMobile):  runsOf(70, 71, 72),
		comboKey("https://shop.example/collections/all", domain.DeviceTypeDesktop): runsOf(85, 86, 87),
	}}

	f := newFixture(t, site, runner, &fakeDiscoverer{found: false})
	job := queueJob(t, f, site.ID)

	require.NoError(t, f.orch.RunBatch(context.Background(), site.ID, job.ID))

	// Two pages x two devices x three runs.
	assert.Len(t, f.store.Runs, 12)
	require.Len(t, f.store.Metrics, 4)

	final := f.store.Job(job.ID)
	assert.Equal(t, domain.JobStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)

	for _, metric := range f.store.Metrics {
		assert.Equal(t, job.BatchID, metric.BatchID)
		assert.Equal(t, 3, metric.RunCount)
	}
}

func TestRunBatch_MedianValues(t *testing.T) {
	site := testSite()
	runner := &fakeRunner{results: map[string][]measure.RunResult{
		comboKey("https://shop.example", domain.DeviceTypeMobile): runsOf(100, 80, 90),
	}}

	f := newFixture(t, site, runner, &fakeDiscoverer{found: false})
	job := queueJob(t, f, site.ID)

	require.NoError(t, f.orch.RunBatch(context.Background(), site.ID, job.ID))
	require.Len(t, f.store.Metrics, 1)

	metric := f.store.Metrics[0]
	assert.Equal(t, domain.PageTypeHomepage, metric.PageType)
	assert.Equal(t, domain.DeviceTypeMobile, metric.DeviceType)
	require.NotNil(t, metric.Performance)
	assert.InDelta(t, 90, *metric.Performance, 1e-9)
}

func TestRunBatch_ConfiguredProductURLSkipsDiscovery(t *testing.T) {
	site := testSite()
	productURL := "https://shop.example/products/widget"
	site.ProductURL = &productURL

	runner := &fakeRunner{results: map[string][]measure.RunResult{}}
	for _, device := range domain.AllDeviceTypes {
		runner.results[comboKey(site.URL, device)] = runsOf(90, 91, 92)
		runner.results[comboKey(site.URL+"/collections/all", device)] = runsOf(80, 81, 82)
		runner.results[comboKey(productURL, device)] = runsOf(70, 71, 72)
	}

	// A discoverer that would steer the plan wrong if consulted.
	f := newFixture(t, site, runner, &fakeDiscoverer{url: "https://wrong.example/products/x", found: true})
	job := queueJob(t, f, site.ID)

	require.NoError(t, f.orch.RunBatch(context.Background(), site.ID, job.ID))

	assert.Len(t, f.store.Runs, 18)
	require.Len(t, f.store.Metrics, 6)

	var productMetrics int
	for _, metric := range f.store.Metrics {
		if metric.PageType == domain.PageTypeProduct {
			productMetrics++
			assert.Equal(t, productURL, metric.PageURL)
		}
	}
	assert.Equal(t, 2, productMetrics)
}

func TestRunBatch_AllRunsFailForOneGroup(t *testing.T) {
	site := testSite()
	runner := &fakeRunner{results: map[string][]measure.RunResult{
		comboKey("https://shop.example", domain.DeviceTypeMobile):                 runsOf(80, 90, 100),
		comboKey("https://shop.example", domain.DeviceTypeDesktop):                runsOf(91, 92, 93),
		comboKey("https://shop.example/collections/all", domain.DeviceTypeMobile): runsOf(70, 71, 72),
		// category/desktop: every run fails
	}}

	f := newFixture(t, site, runner, &fakeDiscoverer{found: false})
	job := queueJob(t, f, site.ID)

	require.NoError(t, f.orch.RunBatch(context.Background(), site.ID, job.ID))

	// The empty group produces no median row; the batch still completes.
	assert.Len(t, f.store.Runs, 9)
	assert.Len(t, f.store.Metrics, 3)
	assert.Equal(t, domain.JobStatusCompleted, f.store.Job(job.ID).Status)
}

func TestRunBatch_ForwardsFirstDiagnosticPerGroup(t *testing.T) {
	site := testSite()

	first := json.RawMessage(`{"scripts":["a.js"]}`)
	second := json.RawMessage(`{"scripts":["b.js"]}`)
	perf := 90.0
	runner := &fakeRunner{results: map[string][]measure.RunResult{
		comboKey("https://shop.example", domain.DeviceTypeMobile): {
			{Metrics: domain.MetricVector{Performance: &perf}},
			{Metrics: domain.MetricVector{Performance: &perf}, Diagnostics: first},
			{Metrics: domain.MetricVector{Performance: &perf}, Diagnostics: second},
		},
	}}

	f := newFixture(t, site, runner, &fakeDiscoverer{found: false})
	job := queueJob(t, f, site.ID)

	require.NoError(t, f.orch.RunBatch(context.Background(), site.ID, job.ID))

	// Only the homepage/mobile group produced runs, so exactly one forward,
	// carrying the first non-empty payload.
	require.Len(t, f.processor.requests, 1)
	req := f.processor.requests[0]
	assert.JSONEq(t, string(first), string(req.DiagnosticPayload))
	assert.Equal(t, site.ID, req.SiteID)
	assert.Equal(t, domain.PageTypeHomepage, req.PageType)

	require.Len(t, f.store.Metrics, 1)
	assert.Equal(t, f.store.Metrics[0].ID, req.MetricID)
}

func TestRunBatch_PersistenceFailureFailsJob(t *testing.T) {
	site := testSite()
	runner := &fakeRunner{results: map[string][]measure.RunResult{
		comboKey("https://shop.example", domain.DeviceTypeMobile): runsOf(80, 90, 100),
	}}

	f := newFixture(t, site, runner, &fakeDiscoverer{found: false})
	f.store.FailRunCreate = true
	job := queueJob(t, f, site.ID)

	err := f.orch.RunBatch(context.Background(), site.ID, job.ID)
	require.Error(t, err)

	final := f.store.Job(job.ID)
	assert.Equal(t, domain.JobStatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)
	assert.NotEmpty(t, *final.ErrorMessage)
}

func TestRunBatch_TerminalJobRejected(t *testing.T) {
	site := testSite()
	runner := &fakeRunner{}
	f := newFixture(t, site, runner, &fakeDiscoverer{found: false})

	f.store.AddJob(&domain.Job{
		ID:     "done",
		SiteID: site.ID,
		Status: domain.JobStatusCompleted,
	})

	err := f.orch.RunBatch(context.Background(), site.ID, "done")
	require.Error(t, err)
	assert.Zero(t, runner.calls)
}

func TestRunBatch_CancelledContext(t *testing.T) {
	site := testSite()
	runner := &fakeRunner{results: map[string][]measure.RunResult{}}
	f := newFixture(t, site, runner, &fakeDiscoverer{found: false})
	job := queueJob(t, f, site.ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.orch.RunBatch(ctx, site.ID, job.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// The failure is still recorded despite the dead context.
	assert.Equal(t, domain.JobStatusFailed, f.store.Job(job.ID).Status)
}

func TestRunBatch_TouchesLastTested(t *testing.T) {
	site := testSite()
	runner := &fakeRunner{results: map[string][]measure.RunResult{
		comboKey("https://shop.example", domain.DeviceTypeMobile): runsOf(90),
	}}

	f := newFixture(t, site, runner, &fakeDiscoverer{found: false})
	job := queueJob(t, f, site.ID)

	require.NoError(t, f.orch.RunBatch(context.Background(), site.ID, job.ID))

	stored, err := f.store.SiteRepo().GetByID(context.Background(), site.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastTestedAt)
}

func TestRunBatch_DecryptsAccessTokenForDiscovery(t *testing.T) {
	box, err := crypto.New("test-key")
	require.NoError(t, err)

	encrypted, err := box.Encrypt("shpat-plain")
	require.NoError(t, err)

	site := testSite()
	site.AccessToken = &encrypted

	store := testutils.NewMemStore()
	store.AddSite(site)
	tracker := status.NewTracker(store.JobRepo(), store.SiteRepo(), logger.NewNoOp())

	var seenToken string
	orch := orchestrator.New(orchestrator.Params{
		Sites:   store.SiteRepo(),
		Jobs:    store.JobRepo(),
		Runs:    store.RunRepo(),
		Metrics: store.MetricRepo(),
		Tracker: tracker,
		Runner:  &fakeRunner{results: map[string][]measure.RunResult{}},
		NewDiscoverer: func(token string) orchestrator.Discoverer {
			seenToken = token
			return &fakeDiscoverer{found: false}
		},
		Secrets:            box,
		RunsPerCombination: 1,
		Logger:             logger.NewNoOp(),
	})

	job, err := orch.StartBatch(context.Background(), site.ID)
	require.NoError(t, err)
	require.NoError(t, orch.RunBatch(context.Background(), site.ID, job.ID))

	assert.Equal(t, "shpat-plain", seenToken)
}

func TestRunSimple_PersistsSingleRunBatch(t *testing.T) {
	site := testSite()
	runner := &fakeRunner{results: map[string][]measure.RunResult{
		comboKey("https://shop.example", domain.DeviceTypeDesktop): runsOf(77),
	}}
	f := newFixture(t, site, runner, &fakeDiscoverer{})

	result, err := f.orch.RunSimple(context.Background(), site.ID, domain.DeviceTypeDesktop)
	require.NoError(t, err)
	require.NotNil(t, result.Metrics.Performance)
	assert.InDelta(t, 77, *result.Metrics.Performance, 1e-9)

	// One run, one one-run median, one completed job.
	require.Len(t, f.store.Runs, 1)
	run := f.store.Runs[0]
	assert.Equal(t, domain.PageTypeHomepage, run.PageType)
	assert.Equal(t, domain.DeviceTypeDesktop, run.DeviceType)
	assert.Equal(t, 1, run.RunNumber)

	require.Len(t, f.store.Metrics, 1)
	metric := f.store.Metrics[0]
	assert.Equal(t, run.BatchID, metric.BatchID)
	assert.Equal(t, 1, metric.RunCount)
	require.NotNil(t, metric.Performance)
	assert.InDelta(t, 77, *metric.Performance, 1e-9)

	jobs := f.store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobStatusCompleted, jobs[0].Status)
	assert.Equal(t, run.BatchID, jobs[0].BatchID)

	stored, err := f.store.SiteRepo().GetByID(context.Background(), site.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastTestedAt)
}

func TestRunSimple_FailedRunFailsJob(t *testing.T) {
	site := testSite()
	f := newFixture(t, site, &fakeRunner{}, &fakeDiscoverer{})

	_, err := f.orch.RunSimple(context.Background(), site.ID, domain.DeviceTypeMobile)
	var provErr *measure.ProviderError
	require.ErrorAs(t, err, &provErr)

	assert.Empty(t, f.store.Runs)
	assert.Empty(t, f.store.Metrics)

	// The one-off's job exists and carries the failure.
	jobs := f.store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobStatusFailed, jobs[0].Status)
	require.NotNil(t, jobs[0].ErrorMessage)
	assert.NotEmpty(t, *jobs[0].ErrorMessage)
}

func TestRunSimple_RefusedWhileBatchActive(t *testing.T) {
	site := testSite()
	f := newFixture(t, site, &fakeRunner{}, &fakeDiscoverer{})

	_, err := f.orch.StartBatch(context.Background(), site.ID)
	require.NoError(t, err)

	_, err = f.orch.RunSimple(context.Background(), site.ID, domain.DeviceTypeMobile)
	assert.ErrorIs(t, err, orchestrator.ErrBatchInProgress)
}
