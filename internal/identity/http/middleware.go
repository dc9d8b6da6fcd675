package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
	"github.com/quorumsec/gatehouse/internal/identity/service"
	"github.com/quorumsec/gatehouse/internal/identity/store"
	"github.com/quorumsec/gatehouse/pkg/httpx"
	"github.com/quorumsec/gatehouse/pkg/slogx"
)

// SessionCookieName carries the session key for browser clients. API clients
// use "Authorization: Session <key>" instead.
const SessionCookieName = "gatehouse_session"

// SessionMiddleware resolves the caller's session key to a principal and
// rejects the request when no live ticket backs it. The principal's security
// stamp is checked against the user's current stamp, so password or role
// changes kill sessions minted before the change even though the ticket row
// still exists.
func SessionMiddleware(tickets *service.TicketService, st store.Store) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			key := sessionKeyFromRequest(r)
			if key == "" {
				writeUnauthorized(w)
				return
			}

			payload, err := tickets.Retrieve(ctx, key)
			if err != nil {
				writeUnauthorized(w)
				return
			}

			principal, err := domain.ParsePrincipal(payload)
			if err != nil {
				log.Error("corrupt ticket payload", "session_key", key, "err", err)
				writeUnauthorized(w)
				return
			}

			user, err := st.Users().GetUserByID(ctx, principal.UserID)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			if user.SecurityStamp != principal.SecurityStamp {
				log.Info("session invalidated by stamp rotation", "user_id", user.ID)
				_ = tickets.Remove(ctx, key)
				writeUnauthorized(w)
				return
			}

			ctx = context.WithValue(ctx, httpx.CtxKeyUserID, principal.UserID)
			ctx = context.WithValue(ctx, httpx.CtxKeySessionKey, key)
			ctx = context.WithValue(ctx, httpx.CtxKeyRoles, principal.Roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route on the authenticated principal carrying the
// named role. Must sit after SessionMiddleware in the chain.
func RequireRole(role string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !httpx.HasRole(r.Context(), role) {
				httpx.WriteError(w, http.StatusForbidden,
					"forbidden", "Insufficient privileges")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func sessionKeyFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, key, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Session") {
			return strings.TrimSpace(key)
		}
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusUnauthorized,
		"invalid_session", "Missing or invalid session")
}
