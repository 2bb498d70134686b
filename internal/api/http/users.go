package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	authmw "github.com/mind-engage/mindengage-coursework/internal/auth/middleware"
	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
)

// GET /me
func MeHandler(users course.UserStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := users.GetUser(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

type changePasswordReq struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// POST /me/password
func ChangePasswordHandler(users course.UserStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordReq
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		u, err := users.GetUser(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.OldPassword)) != nil {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error": errorBody{Kind: kindForbidden, Message: "incorrect old password"},
			})
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if err := users.SetPasswordHash(r.Context(), u.ID, string(hash)); err != nil {
			writeError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /users?role=student&limit=&offset=
func ListUsersHandler(users course.UserStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := course.Role(strings.ToLower(r.URL.Query().Get("role")))
		out, err := users.ListUsers(r.Context(), role, queryInt(r, "limit", 50, 200), queryInt(r, "offset", 0, 0))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type updateUserRoleReq struct {
	Role course.Role `json:"role" validate:"required,oneof=student instructor admin"`
}

// PUT /users/{userID}/role
func UpdateUserRoleHandler(users course.UserStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateUserRoleReq
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		u, err := users.SetUserRole(r.Context(), chi.URLParam(r, "userID"), req.Role)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		log.Info("user role changed", "user_id", u.ID, "role", u.Role,
			"by", authmw.SubjectFromContext(r.Context()))
		writeJSON(w, http.StatusOK, u)
	}
}
