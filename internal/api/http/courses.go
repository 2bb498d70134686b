package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-coursework/internal/analytics"
	authmw "github.com/mind-engage/mindengage-coursework/internal/auth/middleware"
	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/rbac"
)

// Handlers only; routes are assembled in router.go

type courseRequest struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Level        string  `json:"level"`
	Price        float64 `json:"price"`
	Published    bool    `json:"published"`
	MaxStudents  int     `json:"max_students"`
	InstructorID string  `json:"instructor_id"` // admins only
}

func CreateCourseHandler(store course.CourseStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req courseRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		p := authmw.PrincipalFrom(r.Context())
		owner := p.Subject
		if p.Role == rbac.RoleAdmin && req.InstructorID != "" {
			owner = req.InstructorID
		}
		c := course.NormalizeCourse(course.Course{
			Title:        strings.TrimSpace(req.Title),
			Description:  req.Description,
			InstructorID: owner,
			Level:        req.Level,
			Price:        req.Price,
			Published:    req.Published,
			MaxStudents:  req.MaxStudents,
		})
		if err := course.Validate(c); err != nil {
			writeError(w, r, log, err)
			return
		}
		out, err := store.CreateCourse(r.Context(), c)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// GET /courses?q=&limit=&offset=&mine=1
// Students see published courses; mine=1 lists the caller's own courses,
// drafts included. Admins see everything.
func ListCoursesHandler(store course.CourseStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := authmw.PrincipalFrom(r.Context())
		opts := course.CourseListOpts{
			Q:             strings.TrimSpace(r.URL.Query().Get("q")),
			Limit:         queryInt(r, "limit", 50, 200),
			Offset:        queryInt(r, "offset", 0, 0),
			PublishedOnly: p.Role != rbac.RoleAdmin,
		}
		if r.URL.Query().Get("mine") == "1" {
			opts.InstructorID = p.Subject
			opts.PublishedOnly = false
		}
		if id := r.URL.Query().Get("instructor_id"); id != "" && p.Role == rbac.RoleAdmin {
			opts.InstructorID = id
		}
		out, err := store.ListCourses(r.Context(), opts)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func GetCourseHandler(store course.CourseStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _, ok := visibleCourse(w, r, log, store, chi.URLParam(r, "courseID"))
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

type coursePatch struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Level       *string  `json:"level"`
	Price       *float64 `json:"price"`
	Published   *bool    `json:"published"`
	MaxStudents *int     `json:"max_students"`
}

func UpdateCourseHandler(store course.CourseStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := managedCourse(w, r, log, store, chi.URLParam(r, "courseID"))
		if !ok {
			return
		}
		var patch coursePatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, r, log, err)
			return
		}
		if patch.Title != nil {
			c.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			c.Description = *patch.Description
		}
		if patch.Level != nil {
			c.Level = *patch.Level
		}
		if patch.Price != nil {
			c.Price = *patch.Price
		}
		if patch.Published != nil {
			c.Published = *patch.Published
		}
		if patch.MaxStudents != nil {
			c.MaxStudents = *patch.MaxStudents
		}
		if err := course.Validate(c); err != nil {
			writeError(w, r, log, err)
			return
		}
		out, err := store.UpdateCourse(r.Context(), c)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func DeleteCourseHandler(store course.CourseStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := managedCourse(w, r, log, store, chi.URLParam(r, "courseID"))
		if !ok {
			return
		}
		if err := store.DeleteCourse(r.Context(), c.ID); err != nil {
			writeError(w, r, log, err)
			return
		}
		log.Info("course deleted", "course_id", c.ID, "by", authmw.SubjectFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}
}

func CourseAnalyticsHandler(store course.CourseStore, reporter *analytics.Reporter, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := managedCourse(w, r, log, store, chi.URLParam(r, "courseID"))
		if !ok {
			return
		}
		rep, err := reporter.CourseReport(r.Context(), c.ID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}
