package auth

import (
	"context"

	"github.com/mind-engage/mindengage-coursework/internal/rbac"
)

type ctxKey string

const ctxKeySub ctxKey = "sub"

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKeySub, sub)
}

func SubjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeySub).(string); ok {
		return s
	}
	return ""
}

// Principal is the authenticated caller of a request.
type Principal struct {
	Subject string
	Role    string
}

func PrincipalFrom(ctx context.Context) Principal {
	return Principal{Subject: SubjectFromContext(ctx), Role: rbac.RoleFromContext(ctx)}
}
