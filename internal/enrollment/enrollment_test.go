package enrollment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-coursework/internal/analytics"
	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/enrollment"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/notify"
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(_ context.Context, ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	svc     *enrollment.Service
	store   course.Store
	events  *recorder
	metrics *analytics.Counters
	course  course.Course
}

func setup(t *testing.T, c course.Course) fixture {
	t.Helper()
	st := course.NewInMemoryStore()
	if c.Title == "" {
		c.Title = "Distributed Systems"
	}
	if c.InstructorID == "" {
		c.InstructorID = "instructor-9"
	}
	created, err := st.CreateCourse(context.Background(), course.NormalizeCourse(c))
	require.NoError(t, err)
	rec := &recorder{}
	m := analytics.NewCounters()
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := enrollment.New(st, rec, logger.Nop(), enrollment.WithMetrics(m),
		enrollment.WithClock(func() time.Time { clock = clock.Add(time.Second); return clock }))
	return fixture{svc: svc, store: st, events: rec, metrics: m, course: created}
}

func (f fixture) count(t *testing.T) int {
	c, err := f.store.GetCourse(context.Background(), f.course.ID)
	require.NoError(t, err)
	return c.CurrentEnrollments
}

func TestEnroll_TwiceIsAlreadyEnrolled(t *testing.T) {
	f := setup(t, course.Course{Published: true})
	ctx := context.Background()

	e, err := f.svc.Enroll(ctx, "u1", f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, course.EnrollmentActive, e.Status)
	assert.Equal(t, course.PaymentFree, e.PaymentStatus)
	assert.Equal(t, 1, f.count(t))

	_, err = f.svc.Enroll(ctx, "u1", f.course.ID)
	assert.True(t, course.IsKind(err, course.KindAlreadyEnrolled))
	assert.Equal(t, 1, f.count(t))
}

func TestEnroll_DropThenReenrollReusesID(t *testing.T) {
	f := setup(t, course.Course{Published: true})
	ctx := context.Background()

	first, err := f.svc.Enroll(ctx, "u1", f.course.ID)
	require.NoError(t, err)
	_, _, err = f.svc.ApplyProgress(ctx, "u1", f.course.ID, 40)
	require.NoError(t, err)

	dropped, err := f.svc.Drop(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, course.EnrollmentDropped, dropped.Status)
	assert.Equal(t, 0, f.count(t))

	again, err := f.svc.Enroll(ctx, "u1", f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, course.EnrollmentActive, again.Status)
	assert.Equal(t, 40, again.Progress)
	assert.True(t, again.EnrolledAt.After(first.EnrolledAt))
	assert.Equal(t, 1, f.count(t))
	assert.Equal(t, int64(1), f.metrics.Snapshot()[analytics.EnrollmentsReactivated])
}

func TestDrop_CompletedIsRejected(t *testing.T) {
	f := setup(t, course.Course{Published: true})
	ctx := context.Background()

	e, err := f.svc.Enroll(ctx, "u1", f.course.ID)
	require.NoError(t, err)
	_, err = f.svc.Enroll(ctx, "u2", f.course.ID)
	require.NoError(t, err)
	require.Equal(t, 2, f.count(t))

	done, completed, err := f.svc.ApplyProgress(ctx, "u1", f.course.ID, 100)
	require.NoError(t, err)
	require.True(t, completed)
	assert.Equal(t, course.EnrollmentCompleted, done.Status)

	_, err = f.svc.Drop(ctx, e.ID)
	assert.True(t, course.IsKind(err, course.KindAlreadyCompleted))

	other, err := f.store.FindEnrollment(ctx, "u2", f.course.ID)
	require.NoError(t, err)
	dropped, err := f.svc.Drop(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, course.EnrollmentDropped, dropped.Status)
	assert.Equal(t, 1, f.count(t))

	_, err = f.svc.Drop(ctx, other.ID)
	assert.True(t, course.IsKind(err, course.KindInvalidState))
	assert.Equal(t, 1, f.count(t))
}

func TestEnroll_Rejections(t *testing.T) {
	ctx := context.Background()

	full := setup(t, course.Course{Published: true, MaxStudents: 1})
	_, err := full.svc.Enroll(ctx, "u1", full.course.ID)
	require.NoError(t, err)
	_, err = full.svc.Enroll(ctx, "u2", full.course.ID)
	assert.True(t, course.IsKind(err, course.KindCourseFull))

	draft := setup(t, course.Course{Published: false})
	_, err = draft.svc.Enroll(ctx, "u1", draft.course.ID)
	assert.True(t, course.IsKind(err, course.KindCourseUnpublished))

	_, err = draft.svc.Enroll(ctx, "u1", "missing")
	assert.True(t, course.IsNotFound(err))
}

func TestEnroll_CompletedAndSuspended(t *testing.T) {
	f := setup(t, course.Course{Published: true, Price: 49})
	ctx := context.Background()

	e, err := f.svc.Enroll(ctx, "u1", f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, course.PaymentPending, e.PaymentStatus)
	assert.Equal(t, 49.0, e.PaymentAmount)

	_, err = f.svc.Suspend(ctx, e.ID)
	require.NoError(t, err)
	_, err = f.svc.Enroll(ctx, "u1", f.course.ID)
	assert.True(t, course.IsKind(err, course.KindAlreadyEnrolled))

	_, err = f.svc.Suspend(ctx, e.ID)
	assert.True(t, course.IsKind(err, course.KindInvalidState))

	// progress recorded while suspended does not complete the course
	got, completed, err := f.svc.ApplyProgress(ctx, "u1", f.course.ID, 100)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, course.EnrollmentSuspended, got.Status)
	assert.Equal(t, 100, got.Progress)

	back, err := f.svc.Reinstate(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, course.EnrollmentCompleted, back.Status)
	require.NotNil(t, back.CompletedAt)

	_, err = f.svc.Enroll(ctx, "u1", f.course.ID)
	assert.True(t, course.IsKind(err, course.KindAlreadyCompleted))
}

func TestApplyProgress_CompletionIsSticky(t *testing.T) {
	f := setup(t, course.Course{Published: true})
	ctx := context.Background()
	_, err := f.svc.Enroll(ctx, "u1", f.course.ID)
	require.NoError(t, err)

	done, completed, err := f.svc.ApplyProgress(ctx, "u1", f.course.ID, 100)
	require.NoError(t, err)
	require.True(t, completed)
	at := *done.CompletedAt

	later, completed, err := f.svc.ApplyProgress(ctx, "u1", f.course.ID, 67)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, course.EnrollmentCompleted, later.Status)
	assert.Equal(t, 100, later.Progress)
	assert.Equal(t, at, *later.CompletedAt)

	assert.Equal(t, []string{
		notify.EventEnrolled, notify.EventCourseCompleted, notify.EventCertificateEligible,
	}, f.events.types())
	assert.Equal(t, int64(1), f.metrics.Snapshot()[analytics.CoursesCompleted])
}

func TestApplyProgress_CreatesMissingEnrollmentWithoutSeat(t *testing.T) {
	f := setup(t, course.Course{Published: true})
	e, completed, err := f.svc.ApplyProgress(context.Background(), "ghost", f.course.ID, 30)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, course.EnrollmentActive, e.Status)
	assert.Equal(t, 30, e.Progress)
	assert.Equal(t, 0, f.count(t))
}

func TestSetManualProgress(t *testing.T) {
	f := setup(t, course.Course{Published: true})
	ctx := context.Background()
	e, err := f.svc.Enroll(ctx, "u1", f.course.ID)
	require.NoError(t, err)
	_, _, err = f.svc.ApplyProgress(ctx, "u1", f.course.ID, 20)
	require.NoError(t, err)

	bad := 150
	_, err = f.svc.SetManualProgress(ctx, e.ID, &bad)
	assert.True(t, course.IsKind(err, course.KindValidation))

	v := 60
	got, err := f.svc.SetManualProgress(ctx, e.ID, &v)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Progress)
	assert.Equal(t, 60, got.EffectiveProgress())
	assert.Equal(t, course.EnrollmentActive, got.Status)

	// a later reconcile does not erase the override
	got, _, err = f.svc.ApplyProgress(ctx, "u1", f.course.ID, 30)
	require.NoError(t, err)
	require.NotNil(t, got.ManualProgress)
	assert.Equal(t, 60, *got.ManualProgress)

	full := 100
	got, err = f.svc.SetManualProgress(ctx, e.ID, &full)
	require.NoError(t, err)
	assert.Equal(t, course.EnrollmentCompleted, got.Status)
	assert.Equal(t, 30, got.Progress)
}

func TestUpdatePaymentStatus(t *testing.T) {
	f := setup(t, course.Course{Published: true})
	ctx := context.Background()
	e, err := f.svc.Enroll(ctx, "u1", f.course.ID)
	require.NoError(t, err)

	amount := 19.5
	got, err := f.svc.UpdatePaymentStatus(ctx, e.ID, course.PaymentCompleted, &amount)
	require.NoError(t, err)
	assert.Equal(t, course.PaymentCompleted, got.PaymentStatus)
	assert.Equal(t, 19.5, got.PaymentAmount)

	_, err = f.svc.UpdatePaymentStatus(ctx, e.ID, "bitcoin", nil)
	assert.True(t, course.IsKind(err, course.KindValidation))
}

func TestTransition(t *testing.T) {
	now := time.Unix(100, 0)
	e, done := enrollment.Transition(course.Enrollment{Status: course.EnrollmentDropped}, 100, now)
	assert.False(t, done)
	assert.Equal(t, course.EnrollmentDropped, e.Status)

	e, done = enrollment.Transition(course.Enrollment{Status: course.EnrollmentActive, ProgressStale: true}, 140, now)
	assert.True(t, done)
	assert.Equal(t, 100, e.Progress)
	assert.False(t, e.ProgressStale)
	assert.Equal(t, now, *e.CompletedAt)
}
