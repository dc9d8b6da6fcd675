package http

import (
	"encoding/json"
	"net/http"

	"github.com/quorumsec/gatehouse/internal/identity/service"
	"github.com/quorumsec/gatehouse/pkg/httpx"
)

// MFAHandler covers authenticator enrollment and recovery code management.
// Every route requires an authenticated session.
type MFAHandler struct {
	MFAService *service.MFAService
}

// HandleEnroll handles POST /v1/mfa/totp/enroll.
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())

	enrollment, err := h.MFAService.BeginEnrollment(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, enrollment)
}

// HandleVerify handles POST /v1/mfa/totp/verify. On success two-factor is
// enabled and the response carries the recovery codes, shown exactly once.
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}

	codes, err := h.MFAService.VerifyAndEnable(r.Context(), userID, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "two_factor_enabled",
		"recovery_codes": codes,
	})
}

// HandleDisable handles POST /v1/mfa/totp/disable.
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())

	if err := h.MFAService.Disable(r.Context(), userID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "two_factor_disabled"})
}

// HandleRegenerate handles POST /v1/mfa/recovery/regenerate.
func (h *MFAHandler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())

	codes, err := h.MFAService.RegenerateRecoveryCodes(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"recovery_codes": codes})
}

// HandleRecoveryCount handles GET /v1/mfa/recovery/count.
func (h *MFAHandler) HandleRecoveryCount(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())

	count, err := h.MFAService.RemainingRecoveryCodes(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]int{"remaining": count})
}
