// Package ledger appends scored attempts to a user's per-quiz Grade and keeps
// the best-attempt summary consistent under concurrent submissions.
package ledger

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/grading"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
)

// Policy is the part of a quiz the ledger enforces. MaxAttempts <= 0 means
// unlimited.
type Policy struct {
	MaxAttempts  int
	PassingScore int
}

func PolicyFor(q course.Quiz) Policy {
	return Policy{MaxAttempts: q.MaxAttempts, PassingScore: q.PassingScore}
}

// Meta is request data stored alongside an attempt.
type Meta struct {
	TimeSpent int
	IPAddress string
	UserAgent string
}

// Apply checks the attempt ceiling, appends a to g and recomputes the
// summary. It returns the grade to persist and the attempt with its sequence
// number. On AttemptLimitExceeded g is returned untouched.
func Apply(g course.Grade, a course.Attempt, p Policy, now time.Time) (course.Grade, course.Attempt, error) {
	if p.MaxAttempts > 0 && g.TotalAttempts >= p.MaxAttempts {
		return g, course.Attempt{}, course.AttemptLimitExceeded(p.MaxAttempts)
	}
	a.Seq = g.TotalAttempts + 1
	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = now
	}

	out := g
	out.Attempts = make([]course.Attempt, 0, len(g.Attempts)+1)
	out.Attempts = append(out.Attempts, g.Attempts...)
	out.Attempts = append(out.Attempts, a)
	out.TotalAttempts = len(out.Attempts)

	out.BestScore, out.BestPercentage = 0, 0
	for _, at := range out.Attempts {
		if at.Percentage > out.BestPercentage || (at.Percentage == out.BestPercentage && at.Score > out.BestScore) {
			out.BestPercentage = at.Percentage
			out.BestScore = at.Score
		}
	}

	switch {
	case g.Status == course.GradePassed, out.BestPercentage >= p.PassingScore:
		out.Status = course.GradePassed
	default:
		out.Status = course.GradeFailed
	}
	if out.FirstAttemptAt.IsZero() {
		out.FirstAttemptAt = now
	}
	out.LastAttemptAt = now
	return out, a, nil
}

// AttemptFrom turns a grading result into a ledger attempt.
func AttemptFrom(res grading.Result, meta Meta) course.Attempt {
	answers := make([]course.AttemptAnswer, 0, len(res.Questions))
	for _, q := range res.Questions {
		answers = append(answers, course.AttemptAnswer{
			QuestionID: q.QuestionID,
			Selected:   q.Selected,
			Correct:    q.Correct,
			Points:     q.Points,
		})
	}
	return course.Attempt{
		Score:      res.Score,
		MaxScore:   res.MaxScore,
		Percentage: res.Percentage,
		Answers:    answers,
		TimeSpent:  max(meta.TimeSpent, 0),
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	}
}

type Option func(*Ledger)

func WithRetries(n int) Option { return func(l *Ledger) { l.retries = n } }

func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

type Ledger struct {
	grades  course.GradeStore
	log     *logger.Logger
	retries int
	now     func() time.Time
}

func New(grades course.GradeStore, log *logger.Logger, opts ...Option) *Ledger {
	l := &Ledger{grades: grades, log: log, retries: course.DefaultRetries, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	if l.log == nil {
		l.log = logger.Nop()
	}
	return l
}

// Record appends res as the next attempt of userID on quiz. The ceiling check
// and the append run against the same stored version, so concurrent
// submissions serialize and the (N+1)-th one fails without writing.
func (l *Ledger) Record(ctx context.Context, userID string, quiz course.Quiz, res grading.Result, meta Meta) (course.Grade, error) {
	policy := PolicyFor(quiz)
	attempt := AttemptFrom(res, meta)
	var saved course.Grade
	tries := 0
	err := course.RetryOnConflict(ctx, l.retries, func() error {
		tries++
		cur, err := l.grades.GetGrade(ctx, userID, quiz.ID)
		switch {
		case course.IsNotFound(err):
			cur = course.Grade{UserID: userID, QuizID: quiz.ID, Status: course.GradeInProgress}
		case err != nil:
			return err
		}
		next, att, err := Apply(cur, attempt, policy, l.now())
		if err != nil {
			return err
		}
		saved, err = l.grades.AppendAttempt(ctx, next, att, cur.Version)
		return err
	})
	if err != nil {
		if course.IsKind(err, course.KindConcurrencyConflict) {
			l.log.Warn("grade write lost every retry", "user_id", userID, "quiz_id", quiz.ID, "tries", tries)
		}
		return course.Grade{}, err
	}
	if tries > 1 {
		l.log.Debug("grade write retried", "user_id", userID, "quiz_id", quiz.ID, "tries", tries)
	}
	return saved, nil
}
