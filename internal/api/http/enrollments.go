package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-coursework/internal/auth/middleware"
	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/enrollment"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
)

type enrollmentStore interface {
	course.CourseStore
	course.EnrollmentStore
}

// POST /courses/{courseID}/enroll
func EnrollHandler(svc *enrollment.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := svc.Enroll(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "courseID"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

// loadEnrollment fetches the enrollment in the URL and checks access: the
// learner may act on it when ownerOK, the course staff always.
func loadEnrollment(w http.ResponseWriter, r *http.Request, log *logger.Logger, store enrollmentStore, ownerOK bool) (course.Enrollment, bool) {
	e, err := store.GetEnrollment(r.Context(), chi.URLParam(r, "enrollmentID"))
	if err != nil {
		writeError(w, r, log, err)
		return course.Enrollment{}, false
	}
	if ownerOK && e.UserID == authmw.SubjectFromContext(r.Context()) {
		return e, true
	}
	if _, ok := managedCourse(w, r, log, store, e.CourseID); !ok {
		return course.Enrollment{}, false
	}
	return e, true
}

type enrollmentAction func(ctx context.Context, id string) (course.Enrollment, error)

func enrollmentActionHandler(store enrollmentStore, log *logger.Logger, ownerOK bool, act enrollmentAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := loadEnrollment(w, r, log, store, ownerOK)
		if !ok {
			return
		}
		out, err := act(r.Context(), e.ID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /enrollments/{enrollmentID}/drop  by the learner or the course staff
func DropEnrollmentHandler(svc *enrollment.Service, store enrollmentStore, log *logger.Logger) http.HandlerFunc {
	return enrollmentActionHandler(store, log, true, svc.Drop)
}

func SuspendEnrollmentHandler(svc *enrollment.Service, store enrollmentStore, log *logger.Logger) http.HandlerFunc {
	return enrollmentActionHandler(store, log, false, svc.Suspend)
}

func ReinstateEnrollmentHandler(svc *enrollment.Service, store enrollmentStore, log *logger.Logger) http.HandlerFunc {
	return enrollmentActionHandler(store, log, false, svc.Reinstate)
}

// PUT /enrollments/{enrollmentID}/manual-progress  { "progress": 0-100 | null }
func ManualProgressHandler(svc *enrollment.Service, store enrollmentStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := loadEnrollment(w, r, log, store, false)
		if !ok {
			return
		}
		var req struct {
			Progress *int `json:"progress"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		out, err := svc.SetManualProgress(r.Context(), e.ID, req.Progress)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// PUT /enrollments/{enrollmentID}/payment  { "status": "...", "amount": 10.5 }
func PaymentStatusHandler(svc *enrollment.Service, store enrollmentStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := loadEnrollment(w, r, log, store, false)
		if !ok {
			return
		}
		var req struct {
			Status course.PaymentStatus `json:"status" validate:"required"`
			Amount *float64             `json:"amount"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		out, err := svc.UpdatePaymentStatus(r.Context(), e.ID, req.Status, req.Amount)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /me/enrollments
func MyEnrollmentsHandler(store course.EnrollmentStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := store.ListEnrollmentsByUser(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /courses/{courseID}/enrollments?status=  the roster, for the course staff
func CourseEnrollmentsHandler(store enrollmentStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := managedCourse(w, r, log, store, chi.URLParam(r, "courseID"))
		if !ok {
			return
		}
		all, err := store.ListEnrollmentsByCourse(r.Context(), c.ID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		status := course.EnrollmentStatus(r.URL.Query().Get("status"))
		if status == "" {
			writeJSON(w, http.StatusOK, all)
			return
		}
		out := []course.Enrollment{}
		for _, e := range all {
			if e.Status == status {
				out = append(out, e)
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}
