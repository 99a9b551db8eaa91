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

// ErrSiteNotFound is returned when a site lookup matches no row.
var ErrSiteNotFound = errors.New("site not found")

const siteColumns = `id, name, url, category_url, product_url, access_token,
       schedule_enabled, schedule_spec, created_at, updated_at, last_tested_at`

// SiteRepository handles database operations for sites.
type SiteRepository struct {
	db *sqlx.DB
}

// NewSiteRepository creates a new site repository.
func NewSiteRepository(db *sqlx.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

// GetByID retrieves a site by its ID.
func (r *SiteRepository) GetByID(ctx context.Context, id string) (*domain.Site, error) {
	var site domain.Site
	query := `
		SELECT ` + siteColumns + `
		FROM sites
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &site, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSiteNotFound, id)
		}
		return nil, fmt.Errorf("failed to get site: %w", err)
	}

	return &site, nil
}

// List retrieves all sites ordered by name.
func (r *SiteRepository) List(ctx context.Context) ([]*domain.Site, error) {
	var sites []*domain.Site
	query := `
		SELECT ` + siteColumns + `
		FROM sites
		ORDER BY name
	`

	err := r.db.SelectContext(ctx, &sites, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}

	if sites == nil {
		sites = []*domain.Site{}
	}

	return sites, nil
}

// ListScheduled retrieves sites with an enabled cron schedule.
func (r *SiteRepository) ListScheduled(ctx context.Context) ([]*domain.Site, error) {
	var sites []*domain.Site
	query := `
		SELECT ` + siteColumns + `
		FROM sites
		WHERE schedule_enabled = true AND schedule_spec IS NOT NULL
		ORDER BY name
	`

	err := r.db.SelectContext(ctx, &sites, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled sites: %w", err)
	}

	if sites == nil {
		sites = []*domain.Site{}
	}

	return sites, nil
}

// TouchLastTested stamps the time the site last completed a batch.
func (r *SiteRepository) TouchLastTested(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE sites SET last_tested_at = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to update site: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrSiteNotFound, id)
	}

	return nil
}
