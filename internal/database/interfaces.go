package database

import (
	"context"
	"time"

	"github.com/jonesrussell/storepulse/internal/domain"
)

// SiteRepositoryInterface defines read access to site configuration.
// Sites are owned by the dashboard; the measurement core only reads them and
// stamps the last-tested time.
type SiteRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*domain.Site, error)
	List(ctx context.Context) ([]*domain.Site, error)
	ListScheduled(ctx context.Context) ([]*domain.Site, error)
	TouchLastTested(ctx context.Context, id string, at time.Time) error
}

// JobRepositoryInterface defines the contract for job data access.
type JobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	ListActive(ctx context.Context) ([]*domain.Job, error)
	CountActiveBySite(ctx context.Context, siteID string) (int, error)
	GetStuck(ctx context.Context, runningSince time.Time) ([]*domain.Job, error)
}

// RunRepositoryInterface defines the contract for raw-run data access.
// Raw runs are append-only; there is deliberately no update operation.
type RunRepositoryInterface interface {
	Create(ctx context.Context, run *domain.RawRun) error
	ListByBatch(ctx context.Context, batchID string) ([]domain.RawRun, error)
}

// MetricRepositoryInterface defines the contract for median-metric data access.
type MetricRepositoryInterface interface {
	Create(ctx context.Context, metric *domain.MedianMetric) error
	ListByBatch(ctx context.Context, batchID string) ([]domain.MedianMetric, error)
}
