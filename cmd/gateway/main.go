package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/mind-engage/mindengage-coursework/internal/api/http"
	"github.com/mind-engage/mindengage-coursework/internal/app"
	auth "github.com/mind-engage/mindengage-coursework/internal/auth/middleware"
	"github.com/mind-engage/mindengage-coursework/internal/config"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/progress"
	"github.com/mind-engage/mindengage-coursework/internal/storage"
)

func main() {
	cfg := config.FromEnv()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", "error", err)
	}

	bs, err := storage.NewFSStore(cfg.BlobBasePath, "/files")
	if err != nil {
		log.Fatal("blob store", "path", cfg.BlobBasePath, "error", err)
	}

	var sweeper *progress.Sweeper
	if cfg.InProcessSweep {
		sweeper, err = progress.NewSweeper(a.Progress, cfg.ReconcileSchedule, cfg.ReconcileBatch, log)
		if err != nil {
			log.Fatal("stale sweep schedule", "schedule", cfg.ReconcileSchedule, "error", err)
		}
		sweeper.Start()
	}

	var events api.EventLog
	if a.Outbox != nil {
		events = a.Outbox
	}
	handler := api.NewRouter(api.Deps{
		Store:              a.Store,
		Enrollment:         a.Enrollment,
		Coursework:         a.Coursework,
		Progress:           a.Progress,
		Events:             events,
		Reporter:           a.Reporter,
		Blobs:              bs,
		Auth:               auth.NewAuthService(cfg.AuthSecret, cfg.TokenTTL),
		Log:                log,
		CORSOrigins:        cfg.CORSOrigins,
		EnableRegistration: cfg.EnableRegistration,
		AllowClaimFallback: cfg.Mode == config.ModeOffline,
		Ready:              a.Ready,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if sweeper != nil {
		sweeper.Stop(sctx)
	}
	if err := a.Close(); err != nil {
		log.Warn("close", "error", err)
	}
}
