package httpx

import "context"

type ctxKey string

const (
	// CtxKeyUserID is the authenticated user's id, injected by SessionMiddleware.
	CtxKeyUserID ctxKey = "user_id"
	// CtxKeySessionKey is the session key the request authenticated with.
	CtxKeySessionKey ctxKey = "session_key"
	// CtxKeyRoles holds the authenticated user's role names.
	CtxKeyRoles ctxKey = "roles"
)

// UserIDFromContext returns the authenticated user id, or "" when the request
// is anonymous.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}

// SessionKeyFromContext returns the session key used to authenticate the
// request, or "".
func SessionKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeySessionKey).(string); ok {
		return v
	}
	return ""
}

// RolesFromContext returns the authenticated user's role names, or nil.
func RolesFromContext(ctx context.Context) []string {
	if v, ok := ctx.Value(CtxKeyRoles).([]string); ok {
		return v
	}
	return nil
}

// HasRole reports whether the request context carries the named role.
func HasRole(ctx context.Context, role string) bool {
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}
