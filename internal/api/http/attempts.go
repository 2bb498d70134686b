package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-coursework/internal/auth/middleware"
	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/coursework"
	"github.com/mind-engage/mindengage-coursework/internal/grading"
	"github.com/mind-engage/mindengage-coursework/internal/ledger"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
)

type submitRequest struct {
	Answers   []grading.Answer `json:"answers"`
	TimeSpent int              `json:"time_spent" validate:"gte=0"`
}

// POST /quizzes/{quizID}/attempts
func SubmitAttemptHandler(svc *coursework.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		out, err := svc.SubmitAttempt(r.Context(),
			authmw.SubjectFromContext(r.Context()),
			chi.URLParam(r, "quizID"),
			req.Answers,
			ledger.Meta{TimeSpent: req.TimeSpent, IPAddress: r.RemoteAddr, UserAgent: r.UserAgent()},
		)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// GET /quizzes/{quizID}/grade  the caller's own grade
func MyGradeHandler(store course.GradeStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := store.GetGrade(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

// GET /me/grades  the caller's grades across every quiz
func MyGradesHandler(store course.GradeStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := store.ListGradesByUser(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type gradeStore interface {
	quizStore
	course.GradeStore
}

// GET /quizzes/{quizID}/grades  every learner's grade, for the course staff
func QuizGradesHandler(store gradeStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := managedQuiz(w, r, log, store)
		if !ok {
			return
		}
		out, err := store.ListGradesByQuiz(r.Context(), q.ID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
