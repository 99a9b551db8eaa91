package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/storepulse/internal/domain"
)

const metricColumns = `id, site_id, batch_id, page_type, page_url, device_type,
       run_count, performance, fcp, lcp, cls, tbt, tti, ttfb, speed_index,
       page_weight, request_count, created_at`

// MetricRepository handles database operations for median metrics.
type MetricRepository struct {
	db *sqlx.DB
}

// NewMetricRepository creates a new metric repository.
func NewMetricRepository(db *sqlx.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// Create inserts a median metric. One row per (batch, page, device) group,
// written once, never updated.
func (r *MetricRepository) Create(ctx context.Context, metric *domain.MedianMetric) error {
	query := `
		INSERT INTO median_metrics (
			id, site_id, batch_id, page_type, page_url, device_type,
			run_count, performance, fcp, lcp, cls, tbt, tti, ttfb,
			speed_index, page_weight, request_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		metric.ID,
		metric.SiteID,
		metric.BatchID,
		metric.PageType,
		metric.PageURL,
		metric.DeviceType,
		metric.RunCount,
		metric.Performance,
		metric.FCP,
		metric.LCP,
		metric.CLS,
		metric.TBT,
		metric.TTI,
		metric.TTFB,
		metric.SpeedIndex,
		metric.PageWeight,
		metric.RequestCount,
	).Scan(&metric.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create median metric: %w", err)
	}

	return nil
}

// ListByBatch retrieves the median metrics produced by one batch.
func (r *MetricRepository) ListByBatch(ctx context.Context, batchID string) ([]domain.MedianMetric, error) {
	var metrics []domain.MedianMetric
	query := `
		SELECT ` + metricColumns + `
		FROM median_metrics
		WHERE batch_id = $1
		ORDER BY page_type, device_type
	`

	err := r.db.SelectContext(ctx, &metrics, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list median metrics: %w", err)
	}

	return metrics, nil
}
