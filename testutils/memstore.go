// Package testutils provides shared testing utilities across the application.
package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/storepulse/internal/database"
	"github.com/jonesrussell/storepulse/internal/domain"
)

// MemStore is an in-memory implementation of the persistence interfaces,
// shared by orchestrator and status tests.
type MemStore struct {
	mu      sync.Mutex
	sites   map[string]*domain.Site
	jobs    map[string]*domain.Job
	Runs    []domain.RawRun
	Metrics []domain.MedianMetric

	// FailRunCreate makes RawRun writes fail, to exercise the
	// catastrophic-failure path.
	FailRunCreate bool
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		sites: make(map[string]*domain.Site),
		jobs:  make(map[string]*domain.Job),
	}
}

// AddSite registers a site.
func (s *MemStore) AddSite(site *domain.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[site.ID] = site
}

// AddJob registers a job directly, bypassing repository semantics.
func (s *MemStore) AddJob(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
}

// Jobs returns a snapshot of every stored job.
func (s *MemStore) Jobs() []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	return jobs
}

// Job returns a stored job by ID, or nil.
func (s *MemStore) Job(id string) *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

// SiteRepo exposes the store as a SiteRepositoryInterface.
func (s *MemStore) SiteRepo() database.SiteRepositoryInterface { return &siteRepo{store: s} }

// JobRepo exposes the store as a JobRepositoryInterface.
func (s *MemStore) JobRepo() database.JobRepositoryInterface { return &jobRepo{store: s} }

// RunRepo exposes the store as a RunRepositoryInterface.
func (s *MemStore) RunRepo() database.RunRepositoryInterface { return &runRepo{store: s} }

// MetricRepo exposes the store as a MetricRepositoryInterface.
func (s *MemStore) MetricRepo() database.MetricRepositoryInterface { return &metricRepo{store: s} }

type siteRepo struct{ store *MemStore }

func (r *siteRepo) GetByID(ctx context.Context, id string) (*domain.Site, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	site, ok := r.store.sites[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrSiteNotFound, id)
	}
	copied := *site
	return &copied, nil
}

func (r *siteRepo) List(ctx context.Context) ([]*domain.Site, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sites := make([]*domain.Site, 0, len(r.store.sites))
	for _, site := range r.store.sites {
		copied := *site
		sites = append(sites, &copied)
	}
	return sites, nil
}

func (r *siteRepo) ListScheduled(ctx context.Context) ([]*domain.Site, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sites := make([]*domain.Site, 0)
	for _, site := range r.store.sites {
		if site.ScheduleEnabled && site.ScheduleSpec != nil {
			copied := *site
			sites = append(sites, &copied)
		}
	}
	return sites, nil
}

func (r *siteRepo) TouchLastTested(ctx context.Context, id string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	site, ok := r.store.sites[id]
	if !ok {
		return fmt.Errorf("%w: %s", database.ErrSiteNotFound, id)
	}
	site.LastTestedAt = &at
	return nil
}

type jobRepo struct{ store *MemStore }

func (r *jobRepo) Create(ctx context.Context, job *domain.Job) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	copied := *job
	r.store.jobs[job.ID] = &copied
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	job, ok := r.store.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrJobNotFound, id)
	}
	copied := *job
	return &copied, nil
}

func (r *jobRepo) Update(ctx context.Context, job *domain.Job) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.jobs[job.ID]; !ok {
		return fmt.Errorf("%w: %s", database.ErrJobNotFound, job.ID)
	}
	job.UpdatedAt = time.Now()
	copied := *job
	r.store.jobs[job.ID] = &copied
	return nil
}

func (r *jobRepo) ListActive(ctx context.Context) ([]*domain.Job, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	jobs := make([]*domain.Job, 0)
	for _, job := range r.store.jobs {
		if !job.Status.IsTerminal() {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}
	return jobs, nil
}

func (r *jobRepo) CountActiveBySite(ctx context.Context, siteID string) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	count := 0
	for _, job := range r.store.jobs {
		if job.SiteID == siteID && !job.Status.IsTerminal() {
			count++
		}
	}
	return count, nil
}

func (r *jobRepo) GetStuck(ctx context.Context, runningSince time.Time) ([]*domain.Job, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	jobs := make([]*domain.Job, 0)
	for _, job := range r.store.jobs {
		if job.Status == domain.JobStatusRunning &&
			job.StartedAt != nil && job.StartedAt.Before(runningSince) {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}
	return jobs, nil
}

type runRepo struct{ store *MemStore }

func (r *runRepo) Create(ctx context.Context, run *domain.RawRun) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.FailRunCreate {
		return fmt.Errorf("failed to create raw run: store unavailable")
	}

	run.CreatedAt = time.Now()
	r.store.Runs = append(r.store.Runs, *run)
	return nil
}

func (r *runRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.RawRun, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	runs := make([]domain.RawRun, 0)
	for _, run := range r.store.Runs {
		if run.BatchID == batchID {
			runs = append(runs, run)
		}
	}
	return runs, nil
}

type metricRepo struct{ store *MemStore }

func (r *metricRepo) Create(ctx context.Context, metric *domain.MedianMetric) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	metric.CreatedAt = time.Now()
	r.store.Metrics = append(r.store.Metrics, *metric)
	return nil
}

func (r *metricRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.MedianMetric, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	metrics := make([]domain.MedianMetric, 0)
	for _, metric := range r.store.Metrics {
		if metric.BatchID == batchID {
			metrics = append(metrics, metric)
		}
	}
	return metrics, nil
}
