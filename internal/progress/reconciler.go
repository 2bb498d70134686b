// Package progress recomputes a learner's course completion percentage from
// completed lessons and passed quizzes.
package progress

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/grading"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
)

type Store interface {
	course.UnitCounter
	GetLessonProgress(ctx context.Context, userID, lessonID string) (course.LessonProgress, error)
	ListStaleEnrollments(ctx context.Context, limit int) ([]course.Enrollment, error)
}

// Applier writes a computed progress value onto the enrollment. The
// enrollment service implements it.
type Applier interface {
	ApplyProgress(ctx context.Context, userID, courseID string, progress int) (course.Enrollment, bool, error)
}

// Outcome is the breakdown behind one reconciled percentage.
type Outcome struct {
	UserID           string            `json:"user_id"`
	CourseID         string            `json:"course_id"`
	Lessons          int               `json:"lessons"`
	Quizzes          int               `json:"quizzes"`
	CompletedLessons int               `json:"completed_lessons"`
	PassedQuizzes    int               `json:"passed_quizzes"`
	TotalUnits       int               `json:"total_units"`
	CompletedUnits   int               `json:"completed_units"`
	Percentage       int               `json:"percentage"`
	Enrollment       course.Enrollment `json:"enrollment"`
	// Completed is set when this reconcile moved the enrollment to completed.
	Completed bool `json:"completed"`
}

type Reconciler struct {
	store   Store
	applier Applier
	log     *logger.Logger
}

func New(store Store, applier Applier, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{store: store, applier: applier, log: log.With("service", "Progress")}
}

// Compute counts units and returns the percentage without writing anything.
func (r *Reconciler) Compute(ctx context.Context, userID, courseID string) (Outcome, error) {
	out := Outcome{UserID: userID, CourseID: courseID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Lessons, out.Quizzes, err = r.store.CountCourseUnits(gctx, courseID)
		return err
	})
	g.Go(func() error {
		var err error
		out.CompletedLessons, err = r.store.CountCompletedLessons(gctx, userID, courseID)
		return err
	})
	g.Go(func() error {
		var err error
		out.PassedQuizzes, err = r.store.CountPassedQuizzes(gctx, userID, courseID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, fmt.Errorf("count units: %w", err)
	}
	out.TotalUnits = out.Lessons + out.Quizzes
	out.CompletedUnits = min(out.CompletedLessons+out.PassedQuizzes, out.TotalUnits)
	out.Percentage = grading.Percentage(out.CompletedUnits, out.TotalUnits)
	return out, nil
}

// ReconcileCourse recomputes the course percentage and writes it onto the
// enrollment, creating one when it is missing.
func (r *Reconciler) ReconcileCourse(ctx context.Context, userID, courseID string) (Outcome, error) {
	out, err := r.Compute(ctx, userID, courseID)
	if err != nil {
		return Outcome{}, err
	}
	e, completed, err := r.applier.ApplyProgress(ctx, userID, courseID, out.Percentage)
	if err != nil {
		return Outcome{}, fmt.Errorf("apply progress: %w", err)
	}
	out.Enrollment = e
	out.Completed = completed
	r.log.Debug("course progress reconciled",
		"user_id", userID, "course_id", courseID,
		"completed_units", out.CompletedUnits, "total_units", out.TotalUnits, "percentage", out.Percentage)
	return out, nil
}

// ReconcileLesson returns the learner's record for one lesson. A lesson never
// started reports not-started with progress 0.
func (r *Reconciler) ReconcileLesson(ctx context.Context, userID, lessonID string) (course.LessonProgress, error) {
	p, err := r.store.GetLessonProgress(ctx, userID, lessonID)
	if course.IsNotFound(err) {
		return course.LessonProgress{UserID: userID, LessonID: lessonID, Status: course.ProgressNotStarted}, nil
	}
	return p, err
}

// SweepStale reconciles up to limit enrollments flagged stale after an
// earlier failure. It returns how many were reconciled; individual failures
// are logged and left stale for the next sweep.
func (r *Reconciler) SweepStale(ctx context.Context, limit int) (int, error) {
	stale, err := r.store.ListStaleEnrollments(ctx, limit)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, e := range stale {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if _, err := r.ReconcileCourse(ctx, e.UserID, e.CourseID); err != nil {
			r.log.Warn("stale enrollment not reconciled", "enrollment_id", e.ID, "error", err)
			continue
		}
		done++
	}
	if len(stale) > 0 {
		r.log.Info("stale sweep finished", "found", len(stale), "reconciled", done)
	}
	return done, nil
}
