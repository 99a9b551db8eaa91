package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/storepulse/internal/domain"
)

// ErrJobNotFound is returned when a job lookup matches no row.
var ErrJobNotFound = errors.New("job not found")

const jobColumns = `id, site_id, batch_id, status, progress, started_at,
       completed_at, error_message, created_at, updated_at`

// JobRepository handles database operations for jobs.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job into the database.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, site_id, batch_id, status, progress)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		job.ID,
		job.SiteID,
		job.BatchID,
		job.Status,
		job.Progress,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &job, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// Update updates an existing job.
func (r *JobRepository) Update(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET status = $1, progress = $2, started_at = $3, completed_at = $4,
		    error_message = $5, updated_at = NOW()
		WHERE id = $6
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		job.Status,
		job.Progress,
		job.StartedAt,
		job.CompletedAt,
		job.ErrorMessage,
		job.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}

	return nil
}

// ListActive retrieves all jobs in a non-terminal state.
func (r *JobRepository) ListActive(ctx context.Context) ([]*domain.Job, error) {
	var jobs []*domain.Job
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status IN ('queued', 'running')
		ORDER BY created_at
	`

	err := r.db.SelectContext(ctx, &jobs, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}

	if jobs == nil {
		jobs = []*domain.Job{}
	}

	return jobs, nil
}

// CountActiveBySite counts non-terminal jobs for one site.
func (r *JobRepository) CountActiveBySite(ctx context.Context, siteID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM jobs WHERE site_id = $1 AND status IN ('queued', 'running')`

	err := r.db.GetContext(ctx, &count, query, siteID)
	if err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}

	return count, nil
}

// GetStuck retrieves running jobs whose execution started before the cutoff.
// These are orphans from crashed or killed batch processes.
func (r *JobRepository) GetStuck(ctx context.Context, runningSince time.Time) ([]*domain.Job, error) {
	var jobs []*domain.Job
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = 'running' AND started_at < $1
		ORDER BY started_at
	`

	err := r.db.SelectContext(ctx, &jobs, query, runningSince)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck jobs: %w", err)
	}

	if jobs == nil {
		jobs = []*domain.Job{}
	}

	return jobs, nil
}
