package progress_test

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/progress"
)

func TestSweeper_RejectsBadSchedule(t *testing.T) {
	w := newWorld(t)
	_, err := progress.NewSweeper(w.rec, "every now and then", 10, logger.Nop())
	assert.Error(t, err)
}

func TestSweeper_RunOnce(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	_, err := w.enroll.Enroll(ctx, "u1", w.course.ID)
	require.NoError(t, err)
	w.completeLesson(t, "u1", w.lessons[1])
	require.NoError(t, w.store.MarkProgressStale(ctx, "u1", w.course.ID))

	s, err := progress.NewSweeper(w.rec, "@every 1h", 10, logger.Nop())
	require.NoError(t, err)
	s.Start()
	defer func() {
		sctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		s.Stop(sctx)
	}()

	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, err := w.store.FindEnrollment(ctx, "u1", w.course.ID)
	require.NoError(t, err)
	assert.Equal(t, 33, e.Progress)
}

func TestCronLogger_JobPanicReachesZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	job := cron.NewChain(cron.Recover(progress.CronLogger(log))).Then(cron.FuncJob(func() { panic("boom") }))
	require.NotPanics(t, job.Run)

	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "panic", entries[0].Message)
	assert.Contains(t, entries[0].ContextMap()["error"], "boom")
}
