// Package coursework runs the learner-facing flows that cross components:
// quiz submission and lesson progress, each followed by a course progress
// reconcile.
package coursework

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-coursework/internal/analytics"
	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/grading"
	"github.com/mind-engage/mindengage-coursework/internal/ledger"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/notify"
	"github.com/mind-engage/mindengage-coursework/internal/progress"
)

type Store interface {
	GetQuizWithQuestions(ctx context.Context, id string) (course.Quiz, []course.Question, error)
	GetLesson(ctx context.Context, id string) (course.Lesson, error)
	FindEnrollment(ctx context.Context, userID, courseID string) (course.Enrollment, error)
	MarkProgressStale(ctx context.Context, userID, courseID string) error
	GetLessonProgress(ctx context.Context, userID, lessonID string) (course.LessonProgress, error)
	UpsertLessonProgress(ctx context.Context, p course.LessonProgress) (course.LessonProgress, error)
	ListLessonProgress(ctx context.Context, userID, courseID string) ([]course.LessonProgress, error)
}

type Counter interface {
	Incr(name string)
}

type Service struct {
	store    Store
	grader   *grading.Engine
	ledger   *ledger.Ledger
	progress *progress.Reconciler
	events   notify.Publisher
	metrics  Counter
	log      *logger.Logger
}

type Option func(*Service)

func WithMetrics(c Counter) Option { return func(s *Service) { s.metrics = c } }

func WithEvents(p notify.Publisher) Option { return func(s *Service) { s.events = p } }

func New(store Store, grader *grading.Engine, led *ledger.Ledger, rec *progress.Reconciler, log *logger.Logger, opts ...Option) *Service {
	s := &Service{store: store, grader: grader, ledger: led, progress: rec, log: log}
	for _, o := range opts {
		o(s)
	}
	if s.events == nil {
		s.events = notify.Discard{}
	}
	if s.metrics == nil {
		s.metrics = analytics.NewCounters()
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.With("service", "Coursework")
	return s
}

// SubmitResult is what a learner gets back after submitting a quiz attempt.
type SubmitResult struct {
	Grade   course.Grade   `json:"grade"`
	Result  grading.Result `json:"result"`
	Attempt int            `json:"attempt"`
	Passed  bool           `json:"passed"`
	// Progress is set when the submission triggered a successful reconcile.
	Progress *progress.Outcome `json:"progress,omitempty"`
}

// SubmitAttempt grades answers, records the attempt on the user's grade and,
// when the grade is passed, reconciles course progress. A reconcile failure
// does not fail the submission; the enrollment is flagged stale instead.
func (s *Service) SubmitAttempt(ctx context.Context, userID, quizID string, answers []grading.Answer, meta ledger.Meta) (SubmitResult, error) {
	quiz, questions, err := s.store.GetQuizWithQuestions(ctx, quizID)
	if err != nil {
		return SubmitResult{}, err
	}
	if len(questions) == 0 {
		return SubmitResult{}, course.Validation("quiz has no questions")
	}
	if err := s.requireActive(ctx, userID, quiz.CourseID); err != nil {
		return SubmitResult{}, err
	}

	res, err := s.grader.Grade(quiz, questions, answers)
	if err != nil {
		return SubmitResult{}, err
	}
	g, err := s.ledger.Record(ctx, userID, quiz, res, meta)
	if err != nil {
		return SubmitResult{}, err
	}
	s.metrics.Incr(analytics.AttemptsSubmitted)

	out := SubmitResult{
		Grade:   g,
		Result:  res,
		Attempt: g.TotalAttempts,
		Passed:  res.Percentage >= quiz.PassingScore,
	}
	if !quiz.ShowCorrectAnswers {
		out.Result.Questions = hideExpected(res.Questions)
	}

	typ := notify.EventQuizFailed
	if out.Passed {
		typ = notify.EventQuizPassed
		s.metrics.Incr(analytics.AttemptsPassed)
	}
	s.events.Publish(ctx, notify.NewEvent(typ, userID, quiz.CourseID, map[string]any{
		"quiz_id":    quiz.ID,
		"attempt":    out.Attempt,
		"percentage": res.Percentage,
	}))

	// a failed retake leaves the passed-quiz count where it was
	if out.Passed {
		out.Progress = s.reconcile(ctx, userID, quiz.CourseID)
	}
	s.log.Info("attempt recorded", "user_id", userID, "quiz_id", quiz.ID,
		"attempt", out.Attempt, "percentage", res.Percentage, "status", g.Status)
	return out, nil
}

func hideExpected(in []grading.QuestionResult) []grading.QuestionResult {
	out := make([]grading.QuestionResult, len(in))
	for i, q := range in {
		q.Expected = nil
		out[i] = q
	}
	return out
}

// ProgressUpdate is a learner's report on one lesson. Progress only moves
// forward; TimeSpent (seconds) is added to the stored total.
type ProgressUpdate struct {
	Progress  int    `json:"progress" validate:"gte=0,lte=100"`
	TimeSpent int    `json:"time_spent" validate:"gte=0"`
	Notes     string `json:"notes" validate:"max=2000"`
}

type LessonResult struct {
	Lesson course.LessonProgress `json:"lesson"`
	// Course is set when the course reconcile succeeded.
	Course *progress.Outcome `json:"course,omitempty"`
}

// UpdateLessonProgress merges upd into the user's lesson progress and
// reconciles the course.
func (s *Service) UpdateLessonProgress(ctx context.Context, userID, lessonID string, upd ProgressUpdate) (LessonResult, error) {
	if err := course.Validate(upd); err != nil {
		return LessonResult{}, err
	}
	l, err := s.store.GetLesson(ctx, lessonID)
	if err != nil {
		return LessonResult{}, err
	}
	if err := s.requireActive(ctx, userID, l.CourseID); err != nil {
		return LessonResult{}, err
	}

	wasCompleted := false
	if prev, err := s.store.GetLessonProgress(ctx, userID, lessonID); err == nil {
		wasCompleted = prev.Status == course.ProgressCompleted
	}
	p, err := s.store.UpsertLessonProgress(ctx, course.LessonProgress{
		UserID:    userID,
		LessonID:  lessonID,
		CourseID:  l.CourseID,
		Progress:  upd.Progress,
		TimeSpent: upd.TimeSpent,
		Notes:     upd.Notes,
	})
	if err != nil {
		return LessonResult{}, err
	}
	if !wasCompleted && p.Status == course.ProgressCompleted {
		s.metrics.Incr(analytics.LessonsCompleted)
	}
	return LessonResult{Lesson: p, Course: s.reconcile(ctx, userID, l.CourseID)}, nil
}

// MarkLessonComplete sets the lesson to 100%.
func (s *Service) MarkLessonComplete(ctx context.Context, userID, lessonID string, timeSpent int) (LessonResult, error) {
	return s.UpdateLessonProgress(ctx, userID, lessonID, ProgressUpdate{Progress: 100, TimeSpent: timeSpent})
}

// CourseView is the learner's progress breakdown for one course.
type CourseView struct {
	progress.Outcome
	LessonProgress []course.LessonProgress `json:"lesson_progress"`
}

// CourseProgress recomputes and returns the user's progress in a course.
// Reading progress is also how a stale enrollment heals between sweeps.
func (s *Service) CourseProgress(ctx context.Context, userID, courseID string) (CourseView, error) {
	if _, err := s.store.FindEnrollment(ctx, userID, courseID); err != nil {
		if course.IsNotFound(err) {
			return CourseView{}, course.NotEnrolled()
		}
		return CourseView{}, err
	}
	out, err := s.progress.ReconcileCourse(ctx, userID, courseID)
	if err != nil {
		return CourseView{}, err
	}
	lessons, err := s.store.ListLessonProgress(ctx, userID, courseID)
	if err != nil {
		return CourseView{}, err
	}
	return CourseView{Outcome: out, LessonProgress: lessons}, nil
}

func (s *Service) requireActive(ctx context.Context, userID, courseID string) error {
	e, err := s.store.FindEnrollment(ctx, userID, courseID)
	if course.IsNotFound(err) {
		return course.NotEnrolled()
	}
	if err != nil {
		return err
	}
	if e.Status != course.EnrollmentActive {
		return course.NotEnrolled()
	}
	return nil
}

// reconcile runs the course reconcile on behalf of a write that already
// succeeded. Failures flag the enrollment stale and return nil.
func (s *Service) reconcile(ctx context.Context, userID, courseID string) *progress.Outcome {
	start := time.Now()
	out, err := s.progress.ReconcileCourse(ctx, userID, courseID)
	if err == nil {
		return &out
	}
	s.metrics.Incr(analytics.ReconcileFailures)
	s.log.Error("progress reconcile failed", "user_id", userID, "course_id", courseID,
		"elapsed", time.Since(start), "error", err)
	if serr := s.store.MarkProgressStale(context.WithoutCancel(ctx), userID, courseID); serr != nil {
		s.log.Warn("enrollment not flagged stale", "user_id", userID, "course_id", courseID, "error", serr)
	}
	return nil
}
