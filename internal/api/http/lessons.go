package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
)

type lessonStore interface {
	course.CourseStore
	course.LessonStore
}

type lessonRequest struct {
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Content          string            `json:"content"`
	VideoURL         string            `json:"video_url"`
	Order            int               `json:"order"`
	Published        bool              `json:"published"`
	EstimatedMinutes int               `json:"estimated_minutes"`
	Resources        []course.Resource `json:"resources"`
}

func CreateLessonHandler(store lessonStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := managedCourse(w, r, log, store, chi.URLParam(r, "courseID"))
		if !ok {
			return
		}
		var req lessonRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		l := course.Lesson{
			CourseID:         c.ID,
			Title:            strings.TrimSpace(req.Title),
			Description:      req.Description,
			Content:          req.Content,
			VideoURL:         req.VideoURL,
			Order:            req.Order,
			Published:        req.Published,
			EstimatedMinutes: req.EstimatedMinutes,
			Resources:        req.Resources,
		}
		if err := course.Validate(l); err != nil {
			writeError(w, r, log, err)
			return
		}
		out, err := store.CreateLesson(r.Context(), l)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func ListLessonsHandler(store lessonStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, manager, ok := visibleCourse(w, r, log, store, chi.URLParam(r, "courseID"))
		if !ok {
			return
		}
		out, err := store.ListLessons(r.Context(), c.ID, !manager)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// managedLesson loads a lesson whose course the caller manages.
func managedLesson(w http.ResponseWriter, r *http.Request, log *logger.Logger, store lessonStore) (course.Lesson, bool) {
	l, err := store.GetLesson(r.Context(), chi.URLParam(r, "lessonID"))
	if err != nil {
		writeError(w, r, log, err)
		return course.Lesson{}, false
	}
	if _, ok := managedCourse(w, r, log, store, l.CourseID); !ok {
		return course.Lesson{}, false
	}
	return l, true
}

type lessonPatch struct {
	Title            *string            `json:"title"`
	Description      *string            `json:"description"`
	Content          *string            `json:"content"`
	VideoURL         *string            `json:"video_url"`
	Order            *int               `json:"order"`
	Published        *bool              `json:"published"`
	EstimatedMinutes *int               `json:"estimated_minutes"`
	Resources        *[]course.Resource `json:"resources"`
}

func UpdateLessonHandler(store lessonStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := managedLesson(w, r, log, store)
		if !ok {
			return
		}
		var p lessonPatch
		if err := decodeJSON(r, &p); err != nil {
			writeError(w, r, log, err)
			return
		}
		if p.Title != nil {
			l.Title = strings.TrimSpace(*p.Title)
		}
		if p.Description != nil {
			l.Description = *p.Description
		}
		if p.Content != nil {
			l.Content = *p.Content
		}
		if p.VideoURL != nil {
			l.VideoURL = *p.VideoURL
		}
		if p.Order != nil {
			l.Order = *p.Order
		}
		if p.Published != nil {
			l.Published = *p.Published
		}
		if p.EstimatedMinutes != nil {
			l.EstimatedMinutes = *p.EstimatedMinutes
		}
		if p.Resources != nil {
			l.Resources = *p.Resources
		}
		if err := course.Validate(l); err != nil {
			writeError(w, r, log, err)
			return
		}
		out, err := store.UpdateLesson(r.Context(), l)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func DeleteLessonHandler(store lessonStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := managedLesson(w, r, log, store)
		if !ok {
			return
		}
		if err := store.DeleteLesson(r.Context(), l.ID); err != nil {
			writeError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PUT /courses/{courseID}/lessons/order  { "lesson_ids": [...] }
func ReorderLessonsHandler(store lessonStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := managedCourse(w, r, log, store, chi.URLParam(r, "courseID"))
		if !ok {
			return
		}
		var req struct {
			LessonIDs []string `json:"lesson_ids" validate:"required,min=1"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		out, err := store.ReorderLessons(r.Context(), c.ID, req.LessonIDs)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
