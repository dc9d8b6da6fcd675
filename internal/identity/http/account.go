package http

import (
	"encoding/json"
	"net/http"

	"github.com/quorumsec/gatehouse/internal/identity/service"
	"github.com/quorumsec/gatehouse/pkg/httpx"
)

// AccountHandler covers registration, phone verification, and credential
// maintenance endpoints.
type AccountHandler struct {
	AccountService *service.AccountService
}

// HandlePhoneVerifyStart handles POST /v1/phone/verify.
func (h *AccountHandler) HandlePhoneVerifyStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "phone is required")
		return
	}

	key, err := h.AccountService.StartPhoneVerification(r.Context(), req.Phone)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"key": key})
}

// HandlePhoneConfirm handles POST /v1/phone/confirm.
func (h *AccountHandler) HandlePhoneConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key  string `json:"key"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" || req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "key and code are required")
		return
	}

	if err := h.AccountService.ConfirmPhoneCode(r.Context(), req.Key, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

// HandleRegister handles POST /v1/register.
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		PhoneKey string `json:"phone_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" || req.PhoneKey == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request",
			"username, password, and phone_key are required")
		return
	}

	user, err := h.AccountService.Register(r.Context(), service.RegisterParams{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		PhoneKey: req.PhoneKey,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]string{
		"user_id":  user.ID,
		"username": user.Username,
	})
}

// HandleChangePassword handles POST /v1/password/change. Authenticated.
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.CurrentPassword == "" || req.NewPassword == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request",
			"current_password and new_password are required")
		return
	}

	if err := h.AccountService.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}

	// The session was evicted with the old stamp; the client must log in
	// again with the new password.
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// HandleResetRequest handles POST /v1/password/reset. Always answers 202 so
// the response cannot confirm whether a username exists.
func (h *AccountHandler) HandleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "username is required")
		return
	}

	if err := h.AccountService.IssuePasswordResetToken(r.Context(), req.Username); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// HandleResetComplete handles POST /v1/password/reset/complete.
func (h *AccountHandler) HandleResetComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.Token == "" || req.NewPassword == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request",
			"token and new_password are required")
		return
	}

	if err := h.AccountService.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "password_reset"})
}

// HandleEmailConfirmRequest handles POST /v1/email/confirm/request.
// Authenticated.
func (h *AccountHandler) HandleEmailConfirmRequest(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())

	if err := h.AccountService.IssueEmailConfirmToken(r.Context(), userID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// HandleEmailConfirm handles POST /v1/email/confirm.
func (h *AccountHandler) HandleEmailConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	if err := h.AccountService.ConfirmEmail(r.Context(), req.Token); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "email_confirmed"})
}
