package http_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-coursework/internal/course"
)

func TestQuizDefaultsKeepExplicitZero(t *testing.T) {
	s := newServer(t)
	instructor, _ := s.register(t, "grace@example.com", "instructor")
	c, _, qv := s.seedCourse(t, instructor)

	assert.True(t, qv.Quiz.ShowCorrectAnswers, "unset show_correct_answers defaults to true")
	assert.True(t, qv.Quiz.AllowReview)
	assert.Equal(t, 50, qv.Quiz.PassingScore)

	rec := s.do(t, http.MethodPost, "/courses/"+c.ID+"/quizzes", instructor, map[string]any{
		"title": "Warm-up", "passing_score": 0, "show_correct_answers": false,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	q := decode[quizView](t, rec).Quiz
	assert.Equal(t, 0, q.PassingScore)
	assert.False(t, q.ShowCorrectAnswers)
	assert.Equal(t, course.DefaultMaxAttempts, q.MaxAttempts)

	rec = s.do(t, http.MethodPost, "/courses/"+c.ID+"/quizzes", instructor, map[string]any{"title": "Defaults"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, course.DefaultPassingScore, decode[quizView](t, rec).Quiz.PassingScore)
}

func TestUpdateQuiz(t *testing.T) {
	s := newServer(t)
	owner, _ := s.register(t, "grace@example.com", "instructor")
	other, _ := s.register(t, "barbara@example.com", "instructor")
	_, _, qv := s.seedCourse(t, owner)
	path := "/quizzes/" + qv.Quiz.ID

	rec := s.do(t, http.MethodPut, path, owner, map[string]any{"passing_score": 80, "shuffle_questions": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decode[course.Quiz](t, rec)
	assert.Equal(t, 80, q.PassingScore)
	assert.True(t, q.ShuffleQuestions)
	assert.Equal(t, "Scheduling", q.Title)
	assert.Equal(t, 2, q.MaxAttempts)
	assert.Len(t, q.QuestionIDs, 2)

	rec = s.do(t, http.MethodPut, path, owner, map[string]any{"passing_score": 150})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, path, other, map[string]any{"title": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, "/quizzes/nope", owner, map[string]any{"title": "Ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateAndDeleteQuestion(t *testing.T) {
	s := newServer(t)
	owner, _ := s.register(t, "grace@example.com", "instructor")
	student, _ := s.register(t, "alan@example.com", "student")
	_, _, qv := s.seedCourse(t, owner)
	mcPath := "/questions/" + qv.Questions[1].ID

	// correct_answer wins over a stale is_correct flag
	rec := s.do(t, http.MethodPut, mcPath, owner, map[string]any{
		"text": "Pick the preemptive one", "type": "multiple-choice", "correct_answer": 2,
		"options": []map[string]any{{"text": "FCFS", "is_correct": true}, {"text": "SJF"}, {"text": "SRTF"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decode[course.Question](t, rec)
	assert.Equal(t, qv.Quiz.ID, q.QuizID)
	assert.Equal(t, 2, q.Order)
	assert.False(t, q.Options[0].IsCorrect)
	assert.True(t, q.Options[2].IsCorrect)

	rec = s.do(t, http.MethodPut, mcPath, owner, map[string]any{
		"text": "Broken", "type": "multiple-choice", "options": []map[string]any{{"text": "only"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, mcPath, student, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, "/questions/"+qv.Questions[0].ID, owner, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/questions/"+qv.Questions[0].ID, owner, nil).Code)

	rec = s.do(t, http.MethodGet, "/quizzes/"+qv.Quiz.ID, owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[quizView](t, rec)
	require.Len(t, got.Questions, 1)
	assert.Equal(t, qv.Questions[1].ID, got.Questions[0].ID)
	assert.Equal(t, 1, got.Questions[0].Order)
	assert.Equal(t, []string{qv.Questions[1].ID}, got.Quiz.QuestionIDs)
}
