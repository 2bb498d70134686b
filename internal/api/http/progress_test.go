package http_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-coursework/internal/course"
)

func TestGetLessonProgress(t *testing.T) {
	s := newServer(t)
	instructor, _ := s.register(t, "grace@example.com", "instructor")
	student, studentID := s.register(t, "alan@example.com", "student")
	c, l, _ := s.seedCourse(t, instructor)
	path := "/lessons/" + l.ID + "/progress"

	rec := s.do(t, http.MethodGet, path, student, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[course.LessonProgress](t, rec)
	assert.Equal(t, course.ProgressNotStarted, p.Status)
	assert.Equal(t, studentID, p.UserID)
	assert.Equal(t, 0, p.Progress)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/courses/"+c.ID+"/enroll", student, nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/lessons/"+l.ID+"/complete", student, nil).Code)

	rec = s.do(t, http.MethodGet, path, student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p = decode[course.LessonProgress](t, rec)
	assert.Equal(t, course.ProgressCompleted, p.Status)
	assert.Equal(t, 100, p.Progress)
}
