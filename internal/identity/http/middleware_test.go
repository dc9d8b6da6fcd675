package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
	"github.com/quorumsec/gatehouse/internal/identity/service"
	"github.com/quorumsec/gatehouse/internal/identity/store"
	"github.com/quorumsec/gatehouse/internal/identity/store/drivers/sqlite"
	"github.com/quorumsec/gatehouse/pkg/httpx"
	"github.com/quorumsec/gatehouse/pkg/idx"
)

func newTestBackend(t *testing.T) (store.Store, *service.TicketService) {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	return st, &service.TicketService{Store: st}
}

func mintSession(t *testing.T, st store.Store, tickets *service.TicketService, roles ...string) domain.User {
	t.Helper()
	ctx := context.Background()

	user := domain.User{
		ID:            idx.New().String(),
		Username:      "alice",
		PasswordHash:  "hash",
		SecurityStamp: "stamp-1",
	}
	require.NoError(t, st.Users().CreateUser(ctx, user))

	principal := domain.Principal{
		UserID:        user.ID,
		Username:      user.Username,
		Roles:         roles,
		SecurityStamp: user.SecurityStamp,
		AuthMethod:    domain.AuthMethodPassword,
		IssuedAt:      time.Now().UTC(),
	}
	payload, err := principal.Serialize()
	require.NoError(t, err)

	_, err = tickets.StoreTicket(ctx, user.ID, payload, nil)
	require.NoError(t, err)
	return user
}

func TestSessionMiddlewareInjectsPrincipal(t *testing.T) {
	st, tickets := newTestBackend(t)
	user := mintSession(t, st, tickets, domain.RoleUser)

	var gotUserID, gotKey string
	var gotRoles []string
	handler := SessionMiddleware(tickets, st)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = httpx.UserIDFromContext(r.Context())
		gotKey = httpx.SessionKeyFromContext(r.Context())
		gotRoles = httpx.RolesFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Session "+user.ID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, user.ID, gotUserID)
	require.Equal(t, user.ID, gotKey)
	require.Equal(t, []string{domain.RoleUser}, gotRoles)
}

func TestSessionMiddlewareAcceptsCookie(t *testing.T) {
	st, tickets := newTestBackend(t)
	user := mintSession(t, st, tickets)

	handler := SessionMiddleware(tickets, st)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: user.ID})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionMiddlewareRejectsAnonymous(t *testing.T) {
	st, tickets := newTestBackend(t)

	called := false
	handler := SessionMiddleware(tickets, st)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.False(t, called)
}

func TestSessionMiddlewareRejectsStaleStamp(t *testing.T) {
	ctx := context.Background()
	st, tickets := newTestBackend(t)
	user := mintSession(t, st, tickets)

	// Rotate the stamp after the ticket is minted.
	require.NoError(t, st.Users().UpdateSecurityStamp(ctx, user.ID, "stamp-2"))

	handler := SessionMiddleware(tickets, st)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Session "+user.ID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// The stale ticket was removed outright.
	_, err := st.Tickets().GetTicketByUser(ctx, user.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRequireRole(t *testing.T) {
	st, tickets := newTestBackend(t)
	user := mintSession(t, st, tickets, domain.RoleUser)

	chain := httpx.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		SessionMiddleware(tickets, st),
		RequireRole(domain.RoleAdmin),
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Session "+user.ID)
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code,
		"a plain user must not pass the admin gate")
}
