// Command reconciler recomputes course progress for enrollments flagged stale
// after a failed inline reconcile. It runs on a cron schedule, or once with
// -once.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mind-engage/mindengage-coursework/internal/app"
	"github.com/mind-engage/mindengage-coursework/internal/config"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/progress"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg := config.FromEnv()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.DBDriver == "memory" {
		log.Fatal("reconciler needs a shared database; DB_DRIVER=memory has nothing to sweep")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", "error", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close", "error", err)
		}
	}()

	s, err := progress.NewSweeper(a.Progress, cfg.ReconcileSchedule, cfg.ReconcileBatch, log)
	if err != nil {
		log.Fatal("stale sweep schedule", "schedule", cfg.ReconcileSchedule, "error", err)
	}

	if *once {
		n, err := s.RunOnce(ctx)
		if err != nil {
			_ = a.Close()
			os.Exit(1)
		}
		log.Info("sweep done", "reconciled", n)
		return
	}

	log.Info("reconciler started", "schedule", cfg.ReconcileSchedule, "batch", cfg.ReconcileBatch)
	s.Start()
	<-ctx.Done()

	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Stop(sctx)
	log.Info("reconciler stopped")
}
