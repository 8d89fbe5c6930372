package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bithrah-early-access/config"
	"bithrah-early-access/db"
	"bithrah-early-access/handlers"
	"bithrah-early-access/services"
	"bithrah-early-access/utils"
	"bithrah-early-access/workers"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		zap.L().Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.Migrate(conn); err != nil {
		zap.L().Fatal("Failed to migrate database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger := services.NewLedgerService(conn, cfg.EarlyAccessBatch, cfg.PublicBaseURL)
	ideas := services.NewIdeaService(conn, services.NewLLMEvaluator(cfg.LLM))

	exporter := services.NewExportService(conn, nil)
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.R2)
		if err != nil {
			zap.L().Fatal("Failed to initialize R2 client", zap.Error(err))
		}
		exporter.Uploader = r2
		go workers.NewWaitlistExportWorker(exporter, cfg.ExportEvery).Run(ctx)
	} else {
		zap.L().Warn("R2 is not configured, waitlist export disabled")
	}

	sched, err := ledger.StartLedgerScheduler(ctx, cfg.ReconcileEvery)
	if err != nil {
		zap.L().Fatal("Failed to start ledger scheduler", zap.Error(err))
	}

	app := handlers.NewApp(handlers.Deps{
		DB:             conn,
		Ledger:         ledger,
		Ideas:          ideas,
		Exporter:       exporter,
		AdminToken:     cfg.AdminToken,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		zap.L().Info("Server starting",
			zap.String("addr", addr),
			zap.String("env", cfg.Environment),
			zap.Duration("reconcile_every", cfg.ReconcileEvery),
		)
		if err := app.Listen(addr); err != nil {
			zap.L().Error("Server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zap.L().Info("Shutting down server")

	if err := sched.Shutdown(); err != nil {
		zap.L().Warn("Scheduler shutdown failed", zap.Error(err))
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zap.L().Warn("Server shutdown failed", zap.Error(err))
	}
	if sqlDB, err := conn.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
