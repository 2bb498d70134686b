package auth

import (
	"context"
	"net/http"

	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/rbac"
)

type UserLookup interface {
	GetUser(ctx context.Context, id string) (course.User, error)
}

// AttachRoleFromStore replaces the token's role with the one stored for the
// subject, so a demoted user loses access before the token expires.
// allowClaimFallback=true in dev/offline keeps the claim role for subjects
// with no user record; in prod such requests are refused.
func AttachRoleFromStore(users UserLookup, log *logger.Logger, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)
			claimRole := rbac.RoleFromContext(ctx)

			u, err := users.GetUser(ctx, sub)
			switch {
			case err == nil && u.Role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, string(u.Role))))
			case course.IsNotFound(err) && allowClaimFallback && claimRole != "":
				next.ServeHTTP(w, r)
			case course.IsNotFound(err):
				writeError(w, http.StatusForbidden, "Forbidden", "unknown user")
			default:
				log.Error("role lookup failed", "sub", sub, "error", err)
				if allowClaimFallback && claimRole != "" {
					next.ServeHTTP(w, r)
					return
				}
				writeError(w, http.StatusForbidden, "Forbidden", "forbidden")
			}
		})
	}
}
