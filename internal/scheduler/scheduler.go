// Package scheduler triggers measurement batches from per-site cron
// schedules and runs the periodic stuck-job sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/storepulse/internal/config"
	"github.com/jonesrussell/storepulse/internal/database"
	"github.com/jonesrussell/storepulse/internal/domain"
	"github.com/jonesrussell/storepulse/internal/logger"
	"github.com/jonesrussell/storepulse/internal/orchestrator"
)

// reloadInterval is how often site schedules are re-read from the database.
const reloadInterval = 5 * time.Minute

// BatchStarter queues and executes measurement batches.
type BatchStarter interface {
	StartBatch(ctx context.Context, siteID string) (*domain.Job, error)
	RunBatch(ctx context.Context, siteID, jobID string) error
}

// Sweeper force-fails stuck jobs.
type Sweeper interface {
	SweepStuck(ctx context.Context, threshold time.Duration) (int, error)
}

// Scheduler owns the cron instance and the sweep loop.
type Scheduler struct {
	logger  logger.Interface
	sites   database.SiteRepositoryInterface
	batches BatchStarter
	sweeper Sweeper

	cron       *cron.Cron
	cronParser cron.Parser
	entries    map[string]cron.EntryID
	entriesMu  sync.Mutex

	staleAfter    time.Duration
	sweepInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler. Non-positive staleness and sweep intervals fall
// back to the configured defaults.
func New(
	log logger.Interface,
	sites database.SiteRepositoryInterface,
	batches BatchStarter,
	sweeper Sweeper,
	staleAfter time.Duration,
	sweepInterval time.Duration,
) *Scheduler {
	if staleAfter <= 0 {
		staleAfter = config.DefaultStaleAfter
	}
	if sweepInterval <= 0 {
		sweepInterval = config.DefaultSweepInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	// Standard 5-field cron format (minute hour day month weekday).
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	return &Scheduler{
		logger:        log.WithComponent("scheduler"),
		sites:         sites,
		batches:       batches,
		sweeper:       sweeper,
		cron:          c,
		cronParser:    parser,
		entries:       make(map[string]cron.EntryID),
		staleAfter:    staleAfter,
		sweepInterval: sweepInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start loads site schedules and starts the cron and sweep loops.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler",
		"stale_after", s.staleAfter,
		"sweep_interval", s.sweepInterval,
	)

	s.cron.Start()

	if err := s.ReloadSites(); err != nil {
		s.logger.Error("failed to load site schedules", "error", err)
	}

	s.wg.Add(1)
	go s.sweepLoop()

	s.wg.Add(1)
	go s.reloadLoop()

	return nil
}

// Stop halts the cron instance and waits for in-flight work owned by the
// scheduler to finish. Batches launched by triggers keep their own contexts.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")

	s.cancel()

	cronCtx := s.cron.Stop()
	<-cronCtx.Done()

	s.wg.Wait()

	s.logger.Info("scheduler stopped")
}

// ReloadSites re-reads schedule-enabled sites and rebuilds the cron entries.
func (s *Scheduler) ReloadSites() error {
	sites, err := s.sites.ListScheduled(s.ctx)
	if err != nil {
		return fmt.Errorf("failed to list scheduled sites: %w", err)
	}

	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()

	for siteID, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, siteID)
	}

	for _, site := range sites {
		if site.ScheduleSpec == nil || *site.ScheduleSpec == "" {
			continue
		}

		spec := *site.ScheduleSpec
		if _, parseErr := s.cronParser.Parse(spec); parseErr != nil {
			s.logger.Error("invalid cron schedule for site",
				"site_id", site.ID,
				"schedule", spec,
				"error", parseErr,
			)
			continue
		}

		siteID := site.ID
		entryID, addErr := s.cron.AddFunc(spec, func() {
			s.TriggerSite(siteID)
		})
		if addErr != nil {
			s.logger.Error("failed to register site schedule",
				"site_id", site.ID,
				"schedule", spec,
				"error", addErr,
			)
			continue
		}

		s.entries[site.ID] = entryID
		s.logger.Info("site schedule registered",
			"site_id", site.ID,
			"schedule", spec,
		)
	}

	s.logger.Info("site schedules loaded", "count", len(s.entries))
	return nil
}

// ScheduledSiteCount returns the number of registered cron entries.
func (s *Scheduler) ScheduledSiteCount() int {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	return len(s.entries)
}

// TriggerSite queues a batch for the site and runs it in the background. An
// already-active batch is skipped, not an error: overlapping schedules on a
// slow site must not pile up jobs.
func (s *Scheduler) TriggerSite(siteID string) {
	job, err := s.batches.StartBatch(s.ctx, siteID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrBatchInProgress) {
			s.logger.Info("batch already in progress; skipping trigger",
				"site_id", siteID,
			)
			return
		}
		s.logger.Error("failed to queue scheduled batch",
			"site_id", siteID,
			"error", err,
		)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if runErr := s.batches.RunBatch(s.ctx, siteID, job.ID); runErr != nil {
			s.logger.Error("scheduled batch failed",
				"site_id", siteID,
				"job_id", job.ID,
				"error", runErr,
			)
		}
	}()
}

// RunSweep performs one stuck-job sweep pass.
func (s *Scheduler) RunSweep(ctx context.Context) (int, error) {
	swept, err := s.sweeper.SweepStuck(ctx, s.staleAfter)
	if err != nil {
		return 0, fmt.Errorf("sweep failed: %w", err)
	}
	if swept > 0 {
		s.logger.Warn("swept stuck jobs", "count", swept)
	}
	return swept, nil
}

func (s *Scheduler) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunSweep(s.ctx); err != nil {
				s.logger.Error("stuck-job sweep failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) reloadLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(reloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.ReloadSites(); err != nil {
				s.logger.Error("failed to reload site schedules", "error", err)
			}
		}
	}
}
