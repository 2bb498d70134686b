package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
)

type UserStore interface {
	CreateUser(ctx context.Context, u course.User) (course.User, error)
	GetUserByEmail(ctx context.Context, email string) (course.User, error)
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	User        course.User `json:"user"`
}

type registerRequest struct {
	Email    string      `json:"email" validate:"required,email"`
	Name     string      `json:"name" validate:"required,max=100"`
	Password string      `json:"password" validate:"required,min=8,max=72"`
	Role     course.Role `json:"role" validate:"omitempty,oneof=student instructor"`
}

// POST /auth/register  { "email", "name", "password", "role": "student|instructor" }
func RegisterHandler(a *AuthService, users UserStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, string(course.KindValidation), "bad json")
			return
		}
		if req.Role == "" {
			req.Role = course.RoleStudent
		}
		if err := course.Validate(req); err != nil {
			writeError(w, http.StatusBadRequest, string(course.KindValidation), err.Error())
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Error("hash password", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal", "internal error")
			return
		}
		u, err := users.CreateUser(r.Context(), course.User{
			Email:        strings.TrimSpace(req.Email),
			Name:         strings.TrimSpace(req.Name),
			Role:         req.Role,
			PasswordHash: string(hash),
		})
		if course.IsKind(err, course.KindDuplicate) {
			writeError(w, http.StatusConflict, string(course.KindDuplicate), "email already registered")
			return
		}
		if err != nil {
			log.Error("create user", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal", "internal error")
			return
		}
		tok, err := a.IssueJWT(u.ID, string(u.Role))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal", "issue token")
			return
		}
		log.Info("user registered", "user_id", u.ID, "role", u.Role)
		writeJSON(w, http.StatusCreated, tokenResponse{AccessToken: tok, User: u})
	}
}

// POST /auth/login  { "email": "...", "password": "..." }
func LoginHandler(a *AuthService, users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, string(course.KindValidation), "bad json")
			return
		}
		u, err := users.GetUserByEmail(r.Context(), req.Email)
		if err != nil || u.PasswordHash == "" ||
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
			unauthorized(w, "invalid credentials")
			return
		}
		tok, err := a.IssueJWT(u.ID, string(u.Role))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal", "issue token")
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: tok, User: u})
	}
}
