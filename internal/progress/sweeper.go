package progress

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mind-engage/mindengage-coursework/internal/logger"
)

// Sweeper runs SweepStale on a cron schedule. Overlapping runs are skipped.
type Sweeper struct {
	rec     *Reconciler
	cron    *cron.Cron
	batch   int
	timeout time.Duration
	log     *logger.Logger
}

// NewSweeper registers the sweep under schedule ("@every 5m", "*/10 * * * *").
func NewSweeper(rec *Reconciler, schedule string, batch int, log *logger.Logger) (*Sweeper, error) {
	if log == nil {
		log = logger.Nop()
	}
	if batch <= 0 {
		batch = 200
	}
	s := &Sweeper{
		rec:     rec,
		batch:   batch,
		timeout: 4 * time.Minute,
		log:     log.With("service", "StaleSweeper"),
	}
	cl := CronLogger(s.log)
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	n, err := s.rec.SweepStale(ctx, s.batch)
	if err != nil {
		s.log.Error("stale sweep failed", "error", err)
	}
	return n, err
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep until ctx expires.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("sweep still running at shutdown")
	}
}

// CronLogger routes cron's scheduler chatter and job panics through log.
// Scheduler info lines are debug level.
func CronLogger(log *logger.Logger) cron.Logger { return cronLogger{log} }

type cronLogger struct{ log *logger.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, append(keysAndValues, "error", err)...)
}
