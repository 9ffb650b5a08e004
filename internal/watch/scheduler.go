package watch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relayworks/mailwatch/internal/instrumentation"
	"github.com/relayworks/mailwatch/internal/logging"
	"github.com/relayworks/mailwatch/internal/notify"
	"github.com/relayworks/mailwatch/internal/store"
)

// renewer is the slice of Manager the scheduler drives.
type renewer interface {
	Renew(ctx context.Context, accountID string) RenewalResult
}

// batchNotifier reports batch outcomes downstream. Satisfied by
// notify.Notifier; nil disables reporting.
type batchNotifier interface {
	Notify(ctx context.Context, kind notify.EventKind, payload any) notify.Outcome
}

// SchedulerConfig wires a Scheduler's collaborators.
type SchedulerConfig struct {
	Store    *store.Store
	Renewer  renewer
	Notifier batchNotifier
	Logger   *slog.Logger
	Metrics  *instrumentation.Metrics
}

// Scheduler selects accounts whose watch is about to lapse and renews them
// in one concurrent batch. The cadence comes from outside (the renew
// command, typically under cron); the scheduler itself is a single pass.
type Scheduler struct {
	store    *store.Store
	renewer  renewer
	notifier batchNotifier
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
}

// NewScheduler builds a Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &instrumentation.Metrics{}
	}

	return &Scheduler{
		store:    cfg.Store,
		renewer:  cfg.Renewer,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// RunBatch renews every watch expiring within the given horizon. Accounts
// are independent, so renewals run concurrently; each goroutine writes only
// its own slot in the results slice. Individual failures never abort the
// batch, and an empty selection is a successful no-op.
func (s *Scheduler) RunBatch(ctx context.Context, horizonHours int) (*BatchSummary, error) {
	start := time.Now()
	threshold := start.UTC().Add(time.Duration(horizonHours) * time.Hour)

	accounts, err := s.store.ListExpiringBefore(ctx, threshold)
	if err != nil {
		return nil, fmt.Errorf("watch: failed to select accounts for renewal: %w", err)
	}

	s.logger.Info("renewal batch starting",
		slog.Int("accounts", len(accounts)),
		slog.Time("threshold", threshold))

	results := make([]RenewalResult, len(accounts))
	var wg sync.WaitGroup
	for i, a := range accounts {
		wg.Add(1)
		go func(i int, accountID string) {
			defer wg.Done()
			results[i] = s.renewer.Renew(ctx, accountID)
		}(i, a.ID)
	}
	wg.Wait()

	summary := &BatchSummary{
		TotalProcessed: len(results),
		Results:        results,
	}
	for _, r := range results {
		if r.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}

	s.metrics.RecordRenewalBatch(ctx, summary.TotalProcessed, time.Since(start))
	s.logger.Info("renewal batch finished",
		slog.Int("processed", summary.TotalProcessed),
		slog.Int("successful", summary.Successful),
		slog.Int("failed", summary.Failed),
		slog.Duration("took", time.Since(start)))

	if s.notifier != nil {
		outcome := s.notifier.Notify(ctx, notify.EventWatchRenewalBatch, summary)
		s.metrics.RecordWebhookDelivery(ctx, string(notify.EventWatchRenewalBatch), outcome.Status)
		if !outcome.Delivered() && outcome.Status != notify.StatusSkipped {
			s.logger.Warn("renewal batch report not delivered",
				logging.Status(outcome.Status),
				logging.Err(outcome.Err))
		}
	}

	return summary, nil
}
