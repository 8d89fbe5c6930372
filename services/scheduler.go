package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StartLedgerScheduler runs Reconcile every interval. The caller shuts the
// returned scheduler down on exit.
func (s *LedgerService) StartLedgerScheduler(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			report, err := s.Reconcile(ctx)
			if err != nil {
				zap.L().Error("[Scheduler] Ledger reconcile failed", zap.Error(err))
				return
			}
			if report.Repaired > 0 {
				zap.L().Warn("[Scheduler] Ledger counters repaired",
					zap.Int("checked", report.Checked),
					zap.Int("repaired", report.Repaired),
				)
				return
			}
			zap.L().Debug("[Scheduler] Ledger consistent", zap.Int("checked", report.Checked))
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
