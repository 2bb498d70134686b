package http

import (
	"context"
	"net/http"

	authmw "github.com/mind-engage/mindengage-coursework/internal/auth/middleware"
	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/rbac"
)

type courseGetter interface {
	GetCourse(ctx context.Context, id string) (course.Course, error)
}

func canManage(r *http.Request, ownerID string) bool {
	p := authmw.PrincipalFrom(r.Context())
	return rbac.Default().CanManage(p.Role, p.Subject, ownerID)
}

// managedCourse loads a course the caller may change. It writes the error
// response itself and reports false when the handler must stop.
func managedCourse(w http.ResponseWriter, r *http.Request, log *logger.Logger, store courseGetter, id string) (course.Course, bool) {
	c, err := store.GetCourse(r.Context(), id)
	if err != nil {
		writeError(w, r, log, err)
		return course.Course{}, false
	}
	if !canManage(r, c.InstructorID) {
		forbidden(w)
		return course.Course{}, false
	}
	return c, true
}

// visibleCourse loads a course the caller may read. Unpublished courses
// only exist for the people who manage them.
func visibleCourse(w http.ResponseWriter, r *http.Request, log *logger.Logger, store courseGetter, id string) (course.Course, bool, bool) {
	c, err := store.GetCourse(r.Context(), id)
	if err != nil {
		writeError(w, r, log, err)
		return course.Course{}, false, false
	}
	manager := canManage(r, c.InstructorID)
	if !c.Published && !manager {
		writeError(w, r, log, course.NotFound("course"))
		return course.Course{}, false, false
	}
	return c, manager, true
}
