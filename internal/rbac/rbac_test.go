package rbac_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mind-engage/mindengage-coursework/internal/rbac"
)

func TestChecker_DefaultPolicy(t *testing.T) {
	c := rbac.NewChecker(nil)

	assert.True(t, c.Has(rbac.RoleStudent, "quiz:attempt"))
	assert.False(t, c.Has(rbac.RoleStudent, "course:create"))
	assert.True(t, c.Has(rbac.RoleInstructor, "course:create"))
	assert.True(t, c.Has(rbac.RoleInstructor, "lesson:reorder"))
	assert.False(t, c.Has(rbac.RoleInstructor, "quiz-bank:edit"))
	assert.True(t, c.Has(rbac.RoleAdmin, "anything:at-all"))
	assert.False(t, c.Has("guest", "course:view"))

	assert.True(t, c.Any(rbac.RoleStudent, "course:create", "course:view"))
	assert.False(t, c.All(rbac.RoleStudent, "course:create", "course:view"))
}

func TestChecker_CanManage(t *testing.T) {
	c := rbac.NewChecker(nil)
	assert.True(t, c.CanManage(rbac.RoleAdmin, "a", "someone-else"))
	assert.True(t, c.CanManage(rbac.RoleInstructor, "i1", "i1"))
	assert.False(t, c.CanManage(rbac.RoleInstructor, "i1", "i2"))
	assert.False(t, c.CanManage(rbac.RoleStudent, "s1", "s1"))
}

func TestRequire(t *testing.T) {
	h := rbac.Require("course:create")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/courses", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":{"kind":"Forbidden","message":"forbidden"}}`, rec.Body.String())

	req = req.WithContext(rbac.WithRole(req.Context(), rbac.RoleInstructor))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
