// Package app assembles stores, services and notification sinks from config.
// Both binaries build the same graph so a sweep and a request see identical
// behaviour.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mind-engage/mindengage-coursework/internal/analytics"
	"github.com/mind-engage/mindengage-coursework/internal/config"
	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/coursework"
	"github.com/mind-engage/mindengage-coursework/internal/db"
	"github.com/mind-engage/mindengage-coursework/internal/enrollment"
	"github.com/mind-engage/mindengage-coursework/internal/grading"
	"github.com/mind-engage/mindengage-coursework/internal/ledger"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/notify"
	"github.com/mind-engage/mindengage-coursework/internal/progress"
)

type App struct {
	Store      course.Store
	DB         *sql.DB // nil for the memory driver
	Metrics    *analytics.Counters
	Reporter   *analytics.Reporter
	Enrollment *enrollment.Service
	Progress   *progress.Reconciler
	Coursework *coursework.Service
	Events     *notify.Queue
	Outbox     *notify.Outbox // nil for the memory driver

	closers []func() error
}

// Build opens the store named by cfg.DBDriver and wires every service on top.
func Build(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	a := &App{Metrics: analytics.NewCounters()}

	switch cfg.DBDriver {
	case "memory":
		a.Store = course.NewInMemoryStore()
	default:
		octx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		dbh, err := db.Open(octx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		a.DB = dbh
		a.Store = course.NewSQLStore(dbh)
		a.closers = append(a.closers, dbh.Close)
	}

	sinks := []notify.Sink{notify.NewLogSink(log)}
	if a.DB != nil {
		site, _ := os.Hostname()
		a.Outbox = notify.NewOutbox(a.DB, site)
		sinks = append(sinks, a.Outbox)
	}
	if cfg.RedisAddr != "" {
		rp, err := notify.DialRedis(ctx, log, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			// events still reach the other sinks
			log.Warn("redis publisher disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			sinks = append(sinks, rp)
			a.closers = append(a.closers, rp.Close)
		}
	}
	if cfg.SendgridAPIKey != "" {
		sinks = append(sinks, notify.NewMailer(cfg.SendgridAPIKey, cfg.MailFrom, cfg.MailFromName, a.Store, a.Store))
	}
	a.Events = notify.NewQueue(log, notify.QueueOptions{
		Workers: cfg.NotifyWorkers,
		Buffer:  cfg.NotifyQueue,
	}, sinks...)

	a.Enrollment = enrollment.New(a.Store, a.Events, log,
		enrollment.WithMetrics(a.Metrics), enrollment.WithRetries(cfg.CASRetries))
	a.Progress = progress.New(a.Store, a.Enrollment, log)
	grader := grading.New(
		grading.WithMaxEditDistance(cfg.MaxEditDistance),
		grading.WithNumericTolerance(cfg.NumericTolerance),
	)
	a.Coursework = coursework.New(a.Store, grader,
		ledger.New(a.Store, log, ledger.WithRetries(cfg.CASRetries)), a.Progress, log,
		coursework.WithEvents(a.Events), coursework.WithMetrics(a.Metrics))
	a.Reporter = analytics.NewReporter(a.Store)

	log.Info("services ready", "db", cfg.DBDriver, "sinks", len(sinks))
	return a, nil
}

// Ready pings the database when there is one.
func (a *App) Ready(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.PingContext(ctx)
}

// Close drains pending events, then releases connections.
func (a *App) Close() error {
	errs := []error{a.Events.Close()}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
