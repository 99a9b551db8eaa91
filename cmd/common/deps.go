// Package common wires the shared dependency graph used by every
// subcommand: configuration, logging, database, and the measurement
// pipeline.
package common

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/storepulse/internal/config"
	"github.com/jonesrussell/storepulse/internal/crypto"
	"github.com/jonesrussell/storepulse/internal/database"
	"github.com/jonesrussell/storepulse/internal/discovery"
	"github.com/jonesrussell/storepulse/internal/logger"
	"github.com/jonesrussell/storepulse/internal/measure"
	"github.com/jonesrussell/storepulse/internal/orchestrator"
	"github.com/jonesrussell/storepulse/internal/provider"
	"github.com/jonesrussell/storepulse/internal/scripts"
	"github.com/jonesrussell/storepulse/internal/status"
)

// Deps is the assembled dependency graph.
type Deps struct {
	Config *config.Config
	Logger logger.Interface
	DB     *sqlx.DB

	Sites   database.SiteRepositoryInterface
	Jobs    database.JobRepositoryInterface
	Runs    database.RunRepositoryInterface
	Metrics database.MetricRepositoryInterface

	Tracker      *status.Tracker
	Orchestrator *orchestrator.Orchestrator
}

// Init loads configuration, connects to Postgres, and builds the
// measurement pipeline.
func Init(ctx context.Context) (*Deps, error) {
	if err := config.InitializeViper(); err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.NewPostgresConnection(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	sites := database.NewSiteRepository(db)
	jobs := database.NewJobRepository(db)
	runs := database.NewRunRepository(db)
	metrics := database.NewMetricRepository(db)

	tracker := status.NewTracker(jobs, sites, log)

	providerClient := provider.NewHTTPClient(provider.Config{
		BaseURL: cfg.Measure.Provider.BaseURL,
		APIKey:  cfg.Measure.Provider.APIKey,
		Timeout: cfg.Measure.Provider.Timeout,
	})
	executor := measure.NewExecutor(providerClient, cfg.Measure.PacingDelay, log)

	var secrets *crypto.SecretBox
	if cfg.Measure.EncryptionKey != "" {
		secrets, err = crypto.New(cfg.Measure.EncryptionKey)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize encryption: %w", err)
		}
	}

	var processor scripts.Processor = scripts.NewNoOp()
	if cfg.Measure.ScriptsURL != "" {
		processor = scripts.NewHTTPProcessor(cfg.Measure.ScriptsURL)
	}

	newDiscoverer := func(token string) orchestrator.Discoverer {
		fetcher := discovery.NewHTTPFetcher(
			cfg.Measure.UserAgent,
			discovery.WithTimeout(cfg.Measure.DiscoveryTimeout),
			discovery.WithAccessToken(token),
		)
		return discovery.New(fetcher, log)
	}

	orch := orchestrator.New(orchestrator.Params{
		Sites:              sites,
		Jobs:               jobs,
		Runs:               runs,
		Metrics:            metrics,
		Tracker:            tracker,
		Runner:             executor,
		NewDiscoverer:      newDiscoverer,
		Processor:          processor,
		Secrets:            secrets,
		RunsPerCombination: cfg.Measure.RunsPerCombination,
		Logger:             log,
	})

	return &Deps{
		Config:       cfg,
		Logger:       log,
		DB:           db,
		Sites:        sites,
		Jobs:         jobs,
		Runs:         runs,
		Metrics:      metrics,
		Tracker:      tracker,
		Orchestrator: orch,
	}, nil
}

// Close releases held resources.
func (d *Deps) Close() {
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
