// Package analytics keeps process counters and aggregates per-course reports.
package analytics

import (
	"context"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-coursework/internal/course"
)

// Counter names incremented by the services.
const (
	EnrollmentsCreated     = "enrollments.created"
	EnrollmentsReactivated = "enrollments.reactivated"
	EnrollmentsDropped     = "enrollments.dropped"
	CoursesCompleted       = "courses.completed"
	AttemptsSubmitted      = "attempts.submitted"
	AttemptsPassed         = "attempts.passed"
	LessonsCompleted       = "lessons.completed"
	ReconcileFailures      = "reconcile.failures"
)

// Counters is a mutex-guarded set of named counters. It is passed to the
// services that increment it.
type Counters struct {
	mu sync.Mutex
	m  map[string]int64
}

func NewCounters() *Counters { return &Counters{m: map[string]int64{}} }

func (c *Counters) Incr(name string) { c.Add(name, 1) }

func (c *Counters) Add(name string, n int64) {
	c.mu.Lock()
	c.m[name] += n
	c.mu.Unlock()
}

func (c *Counters) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.m))
	for k, v := range c.m {
		out[k] = v
	}
	return out
}

type ReportStore interface {
	GetCourse(ctx context.Context, id string) (course.Course, error)
	ListEnrollmentsByCourse(ctx context.Context, courseID string) ([]course.Enrollment, error)
	ListQuizzes(ctx context.Context, courseID string) ([]course.Quiz, error)
	ListGradesByQuiz(ctx context.Context, quizID string) ([]course.Grade, error)
}

type QuizStats struct {
	QuizID                string  `json:"quiz_id"`
	Title                 string  `json:"title"`
	Students              int     `json:"students"`
	Passed                int     `json:"passed"`
	PassRate              float64 `json:"pass_rate"`
	AverageBestPercentage float64 `json:"average_best_percentage"`
	TotalAttempts         int     `json:"total_attempts"`
}

type CourseReport struct {
	CourseID           string                          `json:"course_id"`
	Title              string                          `json:"title"`
	CurrentEnrollments int                             `json:"current_enrollments"`
	ByStatus           map[course.EnrollmentStatus]int `json:"by_status"`
	AverageProgress    float64                         `json:"average_progress"`
	CompletionRate     float64                         `json:"completion_rate"`
	Quizzes            []QuizStats                     `json:"quizzes"`
}

type Reporter struct{ store ReportStore }

func NewReporter(store ReportStore) *Reporter { return &Reporter{store: store} }

// CourseReport aggregates enrollment and grade statistics for one course.
// Averages are over enrollments that are not dropped.
func (r *Reporter) CourseReport(ctx context.Context, courseID string) (CourseReport, error) {
	c, err := r.store.GetCourse(ctx, courseID)
	if err != nil {
		return CourseReport{}, err
	}
	rep := CourseReport{
		CourseID:           c.ID,
		Title:              c.Title,
		CurrentEnrollments: c.CurrentEnrollments,
		ByStatus:           map[course.EnrollmentStatus]int{},
	}

	g, gctx := errgroup.WithContext(ctx)
	var enrollments []course.Enrollment
	var quizzes []course.Quiz
	g.Go(func() error {
		var err error
		enrollments, err = r.store.ListEnrollmentsByCourse(gctx, courseID)
		return err
	})
	g.Go(func() error {
		var err error
		quizzes, err = r.store.ListQuizzes(gctx, courseID)
		return err
	})
	if err := g.Wait(); err != nil {
		return CourseReport{}, err
	}

	counted, progressSum, completed := 0, 0, 0
	for _, e := range enrollments {
		rep.ByStatus[e.Status]++
		if e.Status == course.EnrollmentDropped {
			continue
		}
		counted++
		progressSum += e.EffectiveProgress()
		if e.Status == course.EnrollmentCompleted {
			completed++
		}
	}
	if counted > 0 {
		rep.AverageProgress = round2(float64(progressSum) / float64(counted))
		rep.CompletionRate = round2(float64(completed) / float64(counted) * 100)
	}

	rep.Quizzes = make([]QuizStats, len(quizzes))
	qg, qctx := errgroup.WithContext(ctx)
	qg.SetLimit(4)
	for i, q := range quizzes {
		qg.Go(func() error {
			grades, err := r.store.ListGradesByQuiz(qctx, q.ID)
			if err != nil {
				return err
			}
			rep.Quizzes[i] = quizStats(q, grades)
			return nil
		})
	}
	if err := qg.Wait(); err != nil {
		return CourseReport{}, err
	}
	sort.SliceStable(rep.Quizzes, func(i, j int) bool { return rep.Quizzes[i].Title < rep.Quizzes[j].Title })
	return rep, nil
}

func quizStats(q course.Quiz, grades []course.Grade) QuizStats {
	st := QuizStats{QuizID: q.ID, Title: q.Title, Students: len(grades)}
	best := 0
	for _, g := range grades {
		if g.Status == course.GradePassed {
			st.Passed++
		}
		best += g.BestPercentage
		st.TotalAttempts += g.TotalAttempts
	}
	if st.Students > 0 {
		st.PassRate = round2(float64(st.Passed) / float64(st.Students) * 100)
		st.AverageBestPercentage = round2(float64(best) / float64(st.Students))
	}
	return st
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
