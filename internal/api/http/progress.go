package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-coursework/internal/auth/middleware"
	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/coursework"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/progress"
)

// PUT /lessons/{lessonID}/progress  { "progress", "time_spent", "notes" }
func UpdateLessonProgressHandler(svc *coursework.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req coursework.ProgressUpdate
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		out, err := svc.UpdateLessonProgress(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "lessonID"), req)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /lessons/{lessonID}/complete  { "time_spent" } (body optional)
func CompleteLessonHandler(svc *coursework.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TimeSpent int `json:"time_spent" validate:"gte=0"`
		}
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, r, log, err)
				return
			}
		}
		out, err := svc.MarkLessonComplete(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "lessonID"), req.TimeSpent)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /lessons/{lessonID}/progress  the caller's own record; never started
// lessons report not-started.
func GetLessonProgressHandler(rec *progress.Reconciler, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := rec.ReconcileLesson(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "lessonID"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// GET /courses/{courseID}/progress?user_id=
// Staff may read another learner's progress with user_id.
func CourseProgressHandler(svc *coursework.Service, store course.CourseStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := chi.URLParam(r, "courseID")
		userID := authmw.SubjectFromContext(r.Context())
		if other := r.URL.Query().Get("user_id"); other != "" && other != userID {
			if _, ok := managedCourse(w, r, log, store, courseID); !ok {
				return
			}
			userID = other
		}
		out, err := svc.CourseProgress(r.Context(), userID, courseID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
