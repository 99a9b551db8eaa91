package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/jonesrussell/storepulse/internal/database"
	"github.com/jonesrussell/storepulse/internal/domain"
)

func TestRunRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewRunRepository(db)
	ctx := context.Background()

	perf := 92.0
	lcp := 2.1

	mock.ExpectQuery("INSERT INTO raw_runs").
		WithArgs(
			"run-1", "site-1", "batch-1", "homepage", "https://shop.example",
			"mobile", 1,
			&perf, nil, &lcp, nil, nil, nil, nil, nil, nil, nil,
			sqlmock.AnyArg(),
		).
		WillReturnRows(
			sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()),
		)

	run := &domain.RawRun{
		ID:         "run-1",
		SiteID:     "site-1",
		BatchID:    "batch-1",
		PageType:   domain.PageTypeHomepage,
		PageURL:    "https://shop.example",
		DeviceType: domain.DeviceTypeMobile,
		RunNumber:  1,
		MetricVector: domain.MetricVector{
			Performance: &perf,
			LCP:         &lcp,
		},
	}

	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMetricRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewMetricRepository(db)
	ctx := context.Background()

	perf := 90.0

	mock.ExpectQuery("INSERT INTO median_metrics").
		WithArgs(
			"metric-1", "site-1", "batch-1", "category", "https://shop.example/collections/all",
			"desktop", 3,
			&perf, nil, nil, nil, nil, nil, nil, nil, nil, nil,
		).
		WillReturnRows(
			sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()),
		)

	metric := &domain.MedianMetric{
		ID:         "metric-1",
		SiteID:     "site-1",
		BatchID:    "batch-1",
		PageType:   domain.PageTypeCategory,
		PageURL:    "https://shop.example/collections/all",
		DeviceType: domain.DeviceTypeDesktop,
		RunCount:   3,
		MetricVector: domain.MetricVector{
			Performance: &perf,
		},
	}

	if err := repo.Create(ctx, metric); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
