// Package enrollment owns the state machine of a learner's enrollment in a
// course: enroll, drop, suspend, reinstate and completion.
package enrollment

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-coursework/internal/analytics"
	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/notify"
)

type Store interface {
	course.CourseStore
	course.EnrollmentStore
}

// Counter is the analytics sink the service reports transitions to.
type Counter interface {
	Incr(name string)
}

type Service struct {
	store   Store
	events  notify.Publisher
	metrics Counter
	log     *logger.Logger
	retries int
	now     func() time.Time
}

type Option func(*Service)

func WithRetries(n int) Option { return func(s *Service) { s.retries = n } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithMetrics(c Counter) Option { return func(s *Service) { s.metrics = c } }

func New(store Store, events notify.Publisher, log *logger.Logger, opts ...Option) *Service {
	s := &Service{store: store, events: events, log: log, retries: course.DefaultRetries, now: time.Now}
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
	s.log = s.log.With("service", "Enrollment")
	return s
}

// Transition applies a computed progress value to e. Dropped and suspended
// enrollments record the value but never complete; a completed enrollment
// keeps its status and never loses progress. It reports whether e moved to
// completed.
func Transition(e course.Enrollment, progress int, now time.Time) (course.Enrollment, bool) {
	progress = min(max(progress, 0), 100)
	if e.Status == course.EnrollmentCompleted {
		e.Progress = max(e.Progress, progress)
	} else {
		e.Progress = progress
	}
	e.ProgressStale = false
	e.LastAccessedAt = now
	return completeIfDue(e, now)
}

func completeIfDue(e course.Enrollment, now time.Time) (course.Enrollment, bool) {
	if e.Status != course.EnrollmentActive || e.EffectiveProgress() < 100 {
		return e, false
	}
	e.Status = course.EnrollmentCompleted
	if e.CompletedAt == nil {
		t := now
		e.CompletedAt = &t
	}
	return e, true
}

func paymentFor(c course.Course) (course.PaymentStatus, float64) {
	if c.Price <= 0 {
		return course.PaymentFree, 0
	}
	return course.PaymentPending, c.Price
}

// Enroll creates an active enrollment or reactivates a dropped one in place.
// The course's enrollment counter moves only when a seat is actually taken.
func (s *Service) Enroll(ctx context.Context, userID, courseID string) (course.Enrollment, error) {
	var out course.Enrollment
	var created, completed bool
	err := course.RetryOnConflict(ctx, s.retries, func() error {
		created, completed = false, false
		c, err := s.store.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		existing, err := s.store.FindEnrollment(ctx, userID, courseID)
		found := err == nil
		if err != nil && !course.IsNotFound(err) {
			return err
		}
		if found {
			switch existing.Status {
			case course.EnrollmentActive, course.EnrollmentSuspended:
				return course.AlreadyEnrolled()
			case course.EnrollmentCompleted:
				return course.AlreadyCompleted()
			}
		}
		if c.Full() {
			return course.CourseFull()
		}
		if !c.Published {
			return course.CourseUnpublished()
		}

		now := s.now()
		if found {
			e := existing
			e.Status = course.EnrollmentActive
			e.EnrolledAt = now
			e.LastAccessedAt = now
			e, completed = completeIfDue(e, now)
			out, err = s.store.SaveEnrollment(ctx, e, existing.Version)
			return err
		}
		pay, amount := paymentFor(c)
		out, err = s.store.SaveEnrollment(ctx, course.Enrollment{
			UserID:         userID,
			CourseID:       courseID,
			Status:         course.EnrollmentActive,
			PaymentStatus:  pay,
			PaymentAmount:  amount,
			EnrolledAt:     now,
			LastAccessedAt: now,
		}, 0)
		created = true
		return err
	})
	if err != nil {
		return course.Enrollment{}, err
	}

	if _, err := s.store.AdjustEnrollmentCount(ctx, courseID, 1); err != nil {
		s.log.Error("enrollment counter not incremented", "course_id", courseID, "error", err)
	}
	if created {
		s.metrics.Incr(analytics.EnrollmentsCreated)
	} else {
		s.metrics.Incr(analytics.EnrollmentsReactivated)
	}
	s.events.Publish(ctx, notify.NewEvent(notify.EventEnrolled, userID, courseID, map[string]any{
		"enrollment_id": out.ID,
		"reactivated":   !created,
	}))
	if completed {
		s.announceCompletion(ctx, out)
	}
	return out, nil
}

// Drop releases the seat of an active or suspended enrollment.
func (s *Service) Drop(ctx context.Context, enrollmentID string) (course.Enrollment, error) {
	out, err := s.update(ctx, enrollmentID, func(e course.Enrollment) (course.Enrollment, error) {
		switch e.Status {
		case course.EnrollmentCompleted:
			return e, course.AlreadyCompleted()
		case course.EnrollmentDropped:
			return e, course.InvalidState("enrollment is already dropped")
		}
		e.Status = course.EnrollmentDropped
		return e, nil
	})
	if err != nil {
		return course.Enrollment{}, err
	}
	if _, err := s.store.AdjustEnrollmentCount(ctx, out.CourseID, -1); err != nil {
		s.log.Error("enrollment counter not decremented", "course_id", out.CourseID, "error", err)
	}
	s.metrics.Incr(analytics.EnrollmentsDropped)
	s.events.Publish(ctx, notify.NewEvent(notify.EventDropped, out.UserID, out.CourseID, map[string]any{
		"enrollment_id": out.ID,
	}))
	return out, nil
}

// Suspend pauses an active enrollment. The seat stays taken.
func (s *Service) Suspend(ctx context.Context, enrollmentID string) (course.Enrollment, error) {
	return s.update(ctx, enrollmentID, func(e course.Enrollment) (course.Enrollment, error) {
		if e.Status != course.EnrollmentActive {
			return e, course.InvalidState("only active enrollments can be suspended")
		}
		e.Status = course.EnrollmentSuspended
		return e, nil
	})
}

// Reinstate reactivates a suspended enrollment and re-applies its progress,
// which may complete it.
func (s *Service) Reinstate(ctx context.Context, enrollmentID string) (course.Enrollment, error) {
	var completed bool
	out, err := s.update(ctx, enrollmentID, func(e course.Enrollment) (course.Enrollment, error) {
		if e.Status != course.EnrollmentSuspended {
			return e, course.InvalidState("only suspended enrollments can be reinstated")
		}
		e.Status = course.EnrollmentActive
		e, completed = completeIfDue(e, s.now())
		return e, nil
	})
	if err != nil {
		return course.Enrollment{}, err
	}
	if completed {
		s.announceCompletion(ctx, out)
	}
	return out, nil
}

// ApplyProgress writes a reconciled progress value. A missing enrollment is
// created as active without taking a seat on the course counter.
func (s *Service) ApplyProgress(ctx context.Context, userID, courseID string, progress int) (course.Enrollment, bool, error) {
	var out course.Enrollment
	var completed bool
	err := course.RetryOnConflict(ctx, s.retries, func() error {
		e, err := s.store.FindEnrollment(ctx, userID, courseID)
		var expected int64
		switch {
		case course.IsNotFound(err):
			c, cerr := s.store.GetCourse(ctx, courseID)
			if cerr != nil {
				return cerr
			}
			pay, amount := paymentFor(c)
			now := s.now()
			e = course.Enrollment{UserID: userID, CourseID: courseID, Status: course.EnrollmentActive,
				PaymentStatus: pay, PaymentAmount: amount, EnrolledAt: now}
			s.log.Warn("progress for user without enrollment, creating one", "user_id", userID, "course_id", courseID)
		case err != nil:
			return err
		default:
			expected = e.Version
		}
		e, completed = Transition(e, progress, s.now())
		out, err = s.store.SaveEnrollment(ctx, e, expected)
		return err
	})
	if err != nil {
		return course.Enrollment{}, false, err
	}
	if completed {
		s.announceCompletion(ctx, out)
	}
	return out, completed, nil
}

// SetManualProgress records an instructor override. nil clears it. The
// computed progress is left alone; completion follows the larger of the two.
func (s *Service) SetManualProgress(ctx context.Context, enrollmentID string, progress *int) (course.Enrollment, error) {
	if progress != nil && (*progress < 0 || *progress > 100) {
		return course.Enrollment{}, course.Validation("progress must be between 0 and 100")
	}
	var completed bool
	out, err := s.update(ctx, enrollmentID, func(e course.Enrollment) (course.Enrollment, error) {
		if progress == nil {
			e.ManualProgress = nil
		} else {
			v := *progress
			e.ManualProgress = &v
		}
		e, completed = completeIfDue(e, s.now())
		return e, nil
	})
	if err != nil {
		return course.Enrollment{}, err
	}
	if completed {
		s.announceCompletion(ctx, out)
	}
	return out, nil
}

func (s *Service) UpdatePaymentStatus(ctx context.Context, enrollmentID string, status course.PaymentStatus, amount *float64) (course.Enrollment, error) {
	switch status {
	case course.PaymentPending, course.PaymentCompleted, course.PaymentFailed, course.PaymentRefunded, course.PaymentFree:
	default:
		return course.Enrollment{}, course.Validation("unknown payment status %q", status)
	}
	if amount != nil && *amount < 0 {
		return course.Enrollment{}, course.Validation("payment amount must not be negative")
	}
	return s.update(ctx, enrollmentID, func(e course.Enrollment) (course.Enrollment, error) {
		e.PaymentStatus = status
		if amount != nil {
			e.PaymentAmount = *amount
		}
		return e, nil
	})
}

// update runs a read-modify-write on one enrollment under version checks.
func (s *Service) update(ctx context.Context, id string, fn func(course.Enrollment) (course.Enrollment, error)) (course.Enrollment, error) {
	var out course.Enrollment
	err := course.RetryOnConflict(ctx, s.retries, func() error {
		cur, err := s.store.GetEnrollment(ctx, id)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		next.LastAccessedAt = s.now()
		out, err = s.store.SaveEnrollment(ctx, next, cur.Version)
		return err
	})
	return out, err
}

func (s *Service) announceCompletion(ctx context.Context, e course.Enrollment) {
	s.metrics.Incr(analytics.CoursesCompleted)
	s.log.Info("course completed", "user_id", e.UserID, "course_id", e.CourseID, "enrollment_id", e.ID)
	data := map[string]any{"enrollment_id": e.ID, "progress": e.EffectiveProgress()}
	s.events.Publish(ctx, notify.NewEvent(notify.EventCourseCompleted, e.UserID, e.CourseID, data))
	s.events.Publish(ctx, notify.NewEvent(notify.EventCertificateEligible, e.UserID, e.CourseID, data))
}
