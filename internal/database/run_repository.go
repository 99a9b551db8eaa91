package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/storepulse/internal/domain"
)

const runColumns = `id, site_id, batch_id, page_type, page_url, device_type,
       run_number, performance, fcp, lcp, cls, tbt, tti, ttfb, speed_index,
       page_weight, request_count, diagnostic_payload, created_at`

// RunRepository handles database operations for raw measurement runs.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a raw run. Runs are immutable once written.
func (r *RunRepository) Create(ctx context.Context, run *domain.RawRun) error {
	query := `
		INSERT INTO raw_runs (
			id, site_id, batch_id, page_type, page_url, device_type,
			run_number, performance, fcp, lcp, cls, tbt, tti, ttfb,
			speed_index, page_weight, request_count, diagnostic_payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		run.ID,
		run.SiteID,
		run.BatchID,
		run.PageType,
		run.PageURL,
		run.DeviceType,
		run.RunNumber,
		run.Performance,
		run.FCP,
		run.LCP,
		run.CLS,
		run.TBT,
		run.TTI,
		run.TTFB,
		run.SpeedIndex,
		run.PageWeight,
		run.RequestCount,
		run.DiagnosticPayload,
	).Scan(&run.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create raw run: %w", err)
	}

	return nil
}

// ListByBatch retrieves all raw runs for one batch, in run-number order
// within each (page, device) group.
func (r *RunRepository) ListByBatch(ctx context.Context, batchID string) ([]domain.RawRun, error) {
	var runs []domain.RawRun
	query := `
		SELECT ` + runColumns + `
		FROM raw_runs
		WHERE batch_id = $1
		ORDER BY page_type, device_type, run_number
	`

	err := r.db.SelectContext(ctx, &runs, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw runs: %w", err)
	}

	return runs, nil
}
