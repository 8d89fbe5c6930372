package workers

import (
	"context"
	"time"

	"bithrah-early-access/services"

	"go.uber.org/zap"
)

// WaitlistExportWorker periodically uploads a waitlist snapshot.
type WaitlistExportWorker struct {
	exporter *services.ExportService
	interval time.Duration
}

func NewWaitlistExportWorker(exporter *services.ExportService, interval time.Duration) *WaitlistExportWorker {
	return &WaitlistExportWorker{exporter: exporter, interval: interval}
}

// Run blocks until ctx is cancelled. A failed export is logged and retried
// on the next tick.
func (w *WaitlistExportWorker) Run(ctx context.Context) {
	zap.L().Info("Starting waitlist export worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("Waitlist export worker stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *WaitlistExportWorker) runOnce(ctx context.Context) {
	res, err := w.exporter.Export(ctx)
	if err != nil {
		zap.L().Error("Waitlist export failed", zap.Error(err))
		return
	}
	zap.L().Info("Waitlist export uploaded", zap.String("key", res.Key), zap.Int("total", res.Total))
}
