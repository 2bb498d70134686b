package http_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-coursework/internal/course"
)

func TestCourseRosterAndMyGrades(t *testing.T) {
	s := newServer(t)
	owner, _ := s.register(t, "grace@example.com", "instructor")
	other, _ := s.register(t, "barbara@example.com", "instructor")
	student, studentID := s.register(t, "alan@example.com", "student")
	c, _, qv := s.seedCourse(t, owner)

	rec := s.do(t, http.MethodGet, "/me/grades", student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]course.Grade](t, rec))

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/courses/"+c.ID+"/enroll", student, nil).Code)
	rec = s.do(t, http.MethodPost, "/quizzes/"+qv.Quiz.ID+"/attempts", student, map[string]any{"answers": []map[string]any{
		{"question_id": qv.Questions[0].ID, "selected": true},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/me/grades", student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	grades := decode[[]course.Grade](t, rec)
	require.Len(t, grades, 1)
	assert.Equal(t, qv.Quiz.ID, grades[0].QuizID)
	assert.Equal(t, studentID, grades[0].UserID)

	roster := "/courses/" + c.ID + "/enrollments"
	rec = s.do(t, http.MethodGet, roster, owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]course.Enrollment](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, studentID, list[0].UserID)

	rec = s.do(t, http.MethodGet, roster+"?status=dropped", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]course.Enrollment](t, rec))

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, roster, other, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, roster, student, nil).Code)
}
