package analytics_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-coursework/internal/analytics"
	"github.com/mind-engage/mindengage-coursework/internal/course"
)

func TestCounters_ConcurrentIncr(t *testing.T) {
	c := analytics.NewCounters()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Incr(analytics.AttemptsSubmitted)
		}()
	}
	wg.Wait()
	c.Add(analytics.AttemptsPassed, 3)

	snap := c.Snapshot()
	assert.Equal(t, int64(50), snap[analytics.AttemptsSubmitted])
	assert.Equal(t, int64(3), snap[analytics.AttemptsPassed])

	snap[analytics.AttemptsPassed] = 99
	assert.Equal(t, int64(3), c.Snapshot()[analytics.AttemptsPassed])
}

func TestReporter_CourseReport(t *testing.T) {
	ctx := context.Background()
	st := course.NewInMemoryStore()
	c, err := st.CreateCourse(ctx, course.Course{Title: "Algebra", InstructorID: "i", Published: true, MaxStudents: 10})
	require.NoError(t, err)
	quiz, _, err := st.CreateQuiz(ctx, course.Quiz{CourseID: c.ID, Title: "Week 1", PassingScore: 60, MaxAttempts: 3}, nil)
	require.NoError(t, err)

	now := time.Now()
	save := func(user string, status course.EnrollmentStatus, progress int) {
		_, err := st.SaveEnrollment(ctx, course.Enrollment{UserID: user, CourseID: c.ID, Status: status,
			Progress: progress, EnrolledAt: now, LastAccessedAt: now}, 0)
		require.NoError(t, err)
	}
	save("u1", course.EnrollmentActive, 50)
	save("u2", course.EnrollmentCompleted, 100)
	save("u3", course.EnrollmentDropped, 10)

	grade := func(user string, pct int, status course.GradeStatus) {
		_, err := st.AppendAttempt(ctx, course.Grade{UserID: user, QuizID: quiz.ID, BestPercentage: pct,
			TotalAttempts: 1, Status: status, FirstAttemptAt: now, LastAttemptAt: now},
			course.Attempt{Seq: 1, Percentage: pct, SubmittedAt: now}, 0)
		require.NoError(t, err)
	}
	grade("u1", 40, course.GradeFailed)
	grade("u2", 90, course.GradePassed)

	rep, err := analytics.NewReporter(st).CourseReport(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ByStatus[course.EnrollmentActive])
	assert.Equal(t, 1, rep.ByStatus[course.EnrollmentDropped])
	assert.Equal(t, 75.0, rep.AverageProgress)
	assert.Equal(t, 50.0, rep.CompletionRate)
	require.Len(t, rep.Quizzes, 1)
	assert.Equal(t, 2, rep.Quizzes[0].Students)
	assert.Equal(t, 1, rep.Quizzes[0].Passed)
	assert.Equal(t, 50.0, rep.Quizzes[0].PassRate)
	assert.Equal(t, 65.0, rep.Quizzes[0].AverageBestPercentage)
	assert.Equal(t, 2, rep.Quizzes[0].TotalAttempts)
}

func TestReporter_UnknownCourse(t *testing.T) {
	_, err := analytics.NewReporter(course.NewInMemoryStore()).CourseReport(context.Background(), "nope")
	assert.True(t, course.IsNotFound(err))
}
