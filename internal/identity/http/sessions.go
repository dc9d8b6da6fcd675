package http

import (
	"net/http"

	"github.com/quorumsec/gatehouse/internal/identity/service"
	"github.com/quorumsec/gatehouse/pkg/httpx"
)

// SessionsHandler is the privileged session administration surface. Every
// route is gated on the admin role; the acting admin's id flows into the
// audit log through the service layer.
type SessionsHandler struct {
	TicketService *service.TicketService
	RoleService   *service.RoleService
}

// HandleList handles GET /v1/admin/sessions.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.TicketService.ListOnline(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// HandleCount handles GET /v1/admin/sessions/count.
func (h *SessionsHandler) HandleCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.TicketService.ActiveSessionCount(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

// HandleIsOnline handles GET /v1/admin/users/{user_id}/online.
func (h *SessionsHandler) HandleIsOnline(w http.ResponseWriter, r *http.Request) {
	online, err := h.TicketService.IsOnline(r.Context(), r.PathValue("user_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"online": online})
}

// HandleForceLogoutUser handles DELETE /v1/admin/users/{user_id}/sessions.
func (h *SessionsHandler) HandleForceLogoutUser(w http.ResponseWriter, r *http.Request) {
	actor := httpx.UserIDFromContext(r.Context())

	removed, err := h.TicketService.ForceLogoutUser(r.Context(), actor, r.PathValue("user_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

// HandleForceLogoutSession handles DELETE /v1/admin/sessions/{ticket_id}.
func (h *SessionsHandler) HandleForceLogoutSession(w http.ResponseWriter, r *http.Request) {
	actor := httpx.UserIDFromContext(r.Context())

	removed, err := h.TicketService.ForceLogoutSession(r.Context(), actor, r.PathValue("ticket_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

// HandleClearAll handles DELETE /v1/admin/sessions.
func (h *SessionsHandler) HandleClearAll(w http.ResponseWriter, r *http.Request) {
	actor := httpx.UserIDFromContext(r.Context())

	removed, err := h.TicketService.ClearAll(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// HandleCleanup handles POST /v1/admin/sessions/cleanup.
func (h *SessionsHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.TicketService.CleanupExpired(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// HandleListRoles handles GET /v1/admin/roles.
func (h *SessionsHandler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.RoleService.ListRoles(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"roles": names})
}

// HandleAssignRole handles PUT /v1/admin/users/{user_id}/roles/{role}.
func (h *SessionsHandler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	actor := httpx.UserIDFromContext(r.Context())

	err := h.RoleService.Assign(r.Context(), actor, r.PathValue("user_id"), r.PathValue("role"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

// HandleRemoveRole handles DELETE /v1/admin/users/{user_id}/roles/{role}.
func (h *SessionsHandler) HandleRemoveRole(w http.ResponseWriter, r *http.Request) {
	actor := httpx.UserIDFromContext(r.Context())

	err := h.RoleService.Remove(r.Context(), actor, r.PathValue("user_id"), r.PathValue("role"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
