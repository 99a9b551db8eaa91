package status

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/storepulse/internal/database"
	"github.com/jonesrussell/storepulse/internal/domain"
	"github.com/jonesrussell/storepulse/internal/logger"
)

const progressComplete = 100

// stuckJobMessage is attached to jobs force-failed by the sweep. Never empty:
// a failed job without an error message is indistinguishable from a bug.
const stuckJobMessage = "job exceeded staleness threshold; force-failed by sweep"

// Tracker maintains job lifecycle state and answers "what is in flight, per
// site" for polling clients.
type Tracker struct {
	jobs   database.JobRepositoryInterface
	sites  database.SiteRepositoryInterface
	logger logger.Interface
}

// NewTracker creates a Tracker.
func NewTracker(
	jobs database.JobRepositoryInterface,
	sites database.SiteRepositoryInterface,
	log logger.Interface,
) *Tracker {
	return &Tracker{
		jobs:   jobs,
		sites:  sites,
		logger: log.WithComponent("status"),
	}
}

// Start transitions a job from queued to running and stamps the start time.
func (t *Tracker) Start(ctx context.Context, jobID string) error {
	return t.transition(ctx, jobID, domain.JobStatusRunning, func(job *domain.Job) {
		now := time.Now()
		job.StartedAt = &now
	})
}

// Complete transitions a job from running to completed.
func (t *Tracker) Complete(ctx context.Context, jobID string) error {
	return t.transition(ctx, jobID, domain.JobStatusCompleted, func(job *domain.Job) {
		now := time.Now()
		job.CompletedAt = &now
		job.Progress = progressComplete
	})
}

// Fail transitions a job from running to failed with the given message.
func (t *Tracker) Fail(ctx context.Context, jobID, message string) error {
	return t.transition(ctx, jobID, domain.JobStatusFailed, func(job *domain.Job) {
		now := time.Now()
		job.CompletedAt = &now
		job.ErrorMessage = &message
	})
}

// SetProgress updates the approximate progress of a running job. Progress is
// advisory; errors here must not fail a batch, so callers only log them.
func (t *Tracker) SetProgress(ctx context.Context, jobID string, progress int) error {
	job, err := t.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	if job.Status != domain.JobStatusRunning {
		return fmt.Errorf("cannot set progress on %s job %s", job.Status, jobID)
	}

	job.Progress = progress
	if err := t.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	return nil
}

// transition validates and applies one state change.
func (t *Tracker) transition(
	ctx context.Context,
	jobID string,
	to domain.JobStatus,
	apply func(*domain.Job),
) error {
	job, err := t.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	if err := ValidateStateTransition(job.Status, to); err != nil {
		return fmt.Errorf("job %s: %w", jobID, err)
	}

	job.Status = to
	apply(job)

	if err := t.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	t.logger.Info("job state changed",
		"job_id", jobID,
		"status", to,
	)

	return nil
}

// ActiveStatus derives the per-site polling view: idle when a site has no
// live job, pending while queued, testing while running. The view carries no
// job IDs and no error detail; failures surface only as absent metrics.
func (t *Tracker) ActiveStatus(ctx context.Context) ([]domain.SiteStatus, error) {
	sites, err := t.sites.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}

	active, err := t.jobs.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}

	jobsBySite := make(map[string][]*domain.Job)
	for _, job := range active {
		jobsBySite[job.SiteID] = append(jobsBySite[job.SiteID], job)
	}

	statuses := make([]domain.SiteStatus, 0, len(sites))
	for _, site := range sites {
		entry := domain.SiteStatus{
			SiteID:   site.ID,
			SiteName: site.Name,
			SiteURL:  site.URL,
			Status:   domain.SiteActivityIdle,
		}

		siteJobs := jobsBySite[site.ID]
		entry.JobCount = len(siteJobs)
		entry.ActiveJobs = make([]domain.JobSummary, 0, len(siteJobs))

		for _, job := range siteJobs {
			entry.ActiveJobs = append(entry.ActiveJobs, domain.JobSummary{
				Status:    job.Status,
				Progress:  job.Progress,
				StartedAt: job.StartedAt,
			})

			switch job.Status {
			case domain.JobStatusRunning:
				entry.Status = domain.SiteActivityTesting
				entry.Progress = job.Progress
			case domain.JobStatusQueued:
				if entry.Status == domain.SiteActivityIdle {
					entry.Status = domain.SiteActivityPending
				}
			}
		}

		statuses = append(statuses, entry)
	}

	return statuses, nil
}

// SweepStuck force-fails jobs that have been running longer than the
// staleness threshold. The orchestrator's own failure path cannot fire when
// its process died mid-batch, so this runs out-of-band. Returns the number
// of jobs swept.
func (t *Tracker) SweepStuck(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold)

	stuck, err := t.jobs.GetStuck(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to find stuck jobs: %w", err)
	}

	swept := 0
	for _, job := range stuck {
		if failErr := t.Fail(ctx, job.ID, stuckJobMessage); failErr != nil {
			t.logger.Error("failed to sweep stuck job",
				"job_id", job.ID,
				"error", failErr,
			)
			continue
		}

		t.logger.Warn("swept stuck job",
			"job_id", job.ID,
			"site_id", job.SiteID,
			"started_at", job.StartedAt,
		)
		swept++
	}

	return swept, nil
}
