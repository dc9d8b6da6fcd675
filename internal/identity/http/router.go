package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
	"github.com/quorumsec/gatehouse/internal/identity/service"
	"github.com/quorumsec/gatehouse/internal/identity/store"
	"github.com/quorumsec/gatehouse/pkg/httpx"
	"github.com/quorumsec/gatehouse/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store          store.Store
	LoginService   *service.LoginService
	TicketService  *service.TicketService
	AccountService *service.AccountService
	MFAService     *service.MFAService
	RoleService    *service.RoleService
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLogin()
	r.registerAccount()
	r.registerMFA()
	r.registerSessions()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerLogin() {
	h := &LoginHandler{LoginService: r.LoginService}

	// Credential submission is rate limited by IP + username so one box
	// cannot walk a username list.
	r.Mux.Handle("POST /v1/login",
		httpx.Chain(http.HandlerFunc(h.HandlePassword),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "username"),
		),
	)

	r.Mux.Handle("POST /v1/login/authenticator",
		httpx.Chain(http.HandlerFunc(h.HandleAuthenticator),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/login/sms-code",
		httpx.Chain(http.HandlerFunc(h.HandleSMSFactor),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/login/recovery",
		httpx.Chain(http.HandlerFunc(h.HandleRecovery),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /v1/login/sms",
		httpx.Chain(http.HandlerFunc(h.HandleSMSStart),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/login/sms/complete",
		httpx.Chain(http.HandlerFunc(h.HandleSMSComplete),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /v1/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			r.sessionMiddleware(),
		),
	)
}

func (r *Router) registerAccount() {
	h := &AccountHandler{AccountService: r.AccountService}

	r.Mux.Handle("POST /v1/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/phone/verify",
		httpx.Chain(http.HandlerFunc(h.HandlePhoneVerifyStart),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/phone/confirm",
		httpx.Chain(http.HandlerFunc(h.HandlePhoneConfirm),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /v1/password/change",
		httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
			r.sessionMiddleware(),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/password/reset",
		httpx.Chain(http.HandlerFunc(h.HandleResetRequest),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/password/reset/complete",
		httpx.Chain(http.HandlerFunc(h.HandleResetComplete),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /v1/email/confirm/request",
		httpx.Chain(http.HandlerFunc(h.HandleEmailConfirmRequest),
			r.sessionMiddleware(),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/email/confirm",
		httpx.Chain(http.HandlerFunc(h.HandleEmailConfirm),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService}

	r.Mux.Handle("POST /v1/mfa/totp/enroll",
		httpx.Chain(http.HandlerFunc(h.HandleEnroll),
			r.sessionMiddleware(),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/mfa/totp/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			r.sessionMiddleware(),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/mfa/totp/disable",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			r.sessionMiddleware(),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/mfa/recovery/regenerate",
		httpx.Chain(http.HandlerFunc(h.HandleRegenerate),
			r.sessionMiddleware(),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/mfa/recovery/count",
		httpx.Chain(http.HandlerFunc(h.HandleRecoveryCount),
			r.sessionMiddleware(),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{
		TicketService: r.TicketService,
		RoleService:   r.RoleService,
	}

	admin := func(handler http.HandlerFunc) http.Handler {
		return httpx.Chain(handler,
			r.sessionMiddleware(),
			RequireRole(domain.RoleAdmin),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("GET /v1/admin/sessions", admin(h.HandleList))
	r.Mux.Handle("GET /v1/admin/sessions/count", admin(h.HandleCount))
	r.Mux.Handle("DELETE /v1/admin/sessions", admin(h.HandleClearAll))
	r.Mux.Handle("DELETE /v1/admin/sessions/{ticket_id}", admin(h.HandleForceLogoutSession))
	r.Mux.Handle("POST /v1/admin/sessions/cleanup", admin(h.HandleCleanup))
	r.Mux.Handle("GET /v1/admin/users/{user_id}/online", admin(h.HandleIsOnline))
	r.Mux.Handle("DELETE /v1/admin/users/{user_id}/sessions", admin(h.HandleForceLogoutUser))

	r.Mux.Handle("GET /v1/admin/roles", admin(h.HandleListRoles))
	r.Mux.Handle("PUT /v1/admin/users/{user_id}/roles/{role}", admin(h.HandleAssignRole))
	r.Mux.Handle("DELETE /v1/admin/users/{user_id}/roles/{role}", admin(h.HandleRemoveRole))
}

func (r *Router) registerSystem() {
	h := &SystemHandler{
		Store:        r.store,
		BuildVersion: r.buildVersion,
		StartTime:    r.startTime,
	}

	r.Mux.HandleFunc("GET /livez", h.HandleLivez)
	r.Mux.HandleFunc("GET /readyz", h.HandleReadyz)
}

func (r *Router) sessionMiddleware() httpx.Middleware {
	return SessionMiddleware(r.TicketService, r.store)
}
