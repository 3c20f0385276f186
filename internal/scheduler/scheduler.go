// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/overlaypush/broadcast-backend/internal/model"
	"github.com/overlaypush/broadcast-backend/internal/repository"
	"github.com/overlaypush/broadcast-backend/internal/runner"
)

// Scheduler scans for due pending campaigns on a fixed interval, claims each
// one atomically, and hands it to a runner goroutine. Ticks never block on a
// campaign's processing.
type Scheduler struct {
	Repo     repository.CampaignRepositoryInterface
	Runner   *runner.Runner
	Interval time.Duration
	Log      zerolog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start begins ticking. Idempotent: calling Start on a running scheduler is
// a no-op. Due campaigns are evaluated once immediately rather than waiting
// for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	c := cron.New()
	if _, err := c.AddFunc("@every "+s.Interval.String(), func() { s.Tick(runCtx) }); err != nil {
		cancel()
		return err
	}
	s.cron = c
	c.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Tick(runCtx)
	}()

	s.Log.Info().Dur("interval", s.Interval).Msg("scheduler started")
	return nil
}

// Stop halts ticking and waits for in-flight runners to observe
// cancellation. Safe to call on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cron == nil {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.cron = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	<-c.Stop().Done()
	cancel()
	s.wg.Wait()
	s.Log.Info().Msg("scheduler stopped")
}

// Tick evaluates every stored campaign once: pending records whose
// scheduled time has passed are claimed and started. The claim is the
// repository's compare-and-set, so a concurrent tick (or a second process)
// loses cleanly and skips the campaign.
func (s *Scheduler) Tick(ctx context.Context) {
	campaigns, err := s.Repo.List(ctx)
	if err != nil {
		s.Log.Error().Err(err).Msg("scheduler tick: failed to list campaigns")
		return
	}

	now := time.Now()
	for _, c := range campaigns {
		if c.Status != model.StatusPending || c.ScheduledAt.After(now) {
			continue
		}
		claimed, err := s.Repo.ClaimPending(ctx, c.ID)
		if err != nil {
			s.Log.Error().Err(err).Str("campaign_id", c.ID).Msg("failed to claim campaign")
			continue
		}
		if !claimed {
			continue
		}

		s.Log.Info().Str("campaign_id", c.ID).Time("scheduled_at", c.ScheduledAt).Msg("campaign claimed")

		claimedCampaign := *c
		claimedCampaign.Status = model.StatusProcessing

		s.wg.Add(1)
		go func(c model.Campaign) {
			defer s.wg.Done()
			s.Runner.Run(ctx, &c)
		}(claimedCampaign)
	}
}
