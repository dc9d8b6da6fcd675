package http

import (
	"encoding/json"
	"net/http"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
	"github.com/quorumsec/gatehouse/internal/identity/service"
	"github.com/quorumsec/gatehouse/pkg/httpx"
)

// LoginHandler covers credential login, second-factor completion, and the
// passwordless SMS flow.
type LoginHandler struct {
	LoginService *service.LoginService
}

type loginResponse struct {
	Status string `json:"status"`

	SessionKey string `json:"session_key,omitempty"`
	TicketID   string `json:"ticket_id,omitempty"`

	ChallengeToken string   `json:"challenge_token,omitempty"`
	Methods        []string `json:"methods,omitempty"`
}

func writeLoginResult(w http.ResponseWriter, res domain.LoginResult) {
	if res.SessionKey != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    res.SessionKey,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Status:         string(res.Status),
		SessionKey:     res.SessionKey,
		TicketID:       res.TicketID,
		ChallengeToken: res.ChallengeToken,
		Methods:        res.Methods,
	})
}

// HandlePassword handles POST /v1/login. Form-encoded so the rate limiter
// can key on the username field before the handler runs.
func (h *LoginHandler) HandlePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Malformed form body")
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	res, err := h.LoginService.PasswordLogin(r.Context(), username, password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeLoginResult(w, res)
}

type challengeRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
}

// HandleAuthenticator handles POST /v1/login/authenticator.
func (h *LoginHandler) HandleAuthenticator(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChallengeRequest(w, r)
	if !ok {
		return
	}

	res, err := h.LoginService.CompleteAuthenticator(r.Context(), req.ChallengeToken, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeLoginResult(w, res)
}

// HandleSMSFactor handles POST /v1/login/sms-code (second-factor SMS code).
func (h *LoginHandler) HandleSMSFactor(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChallengeRequest(w, r)
	if !ok {
		return
	}

	res, err := h.LoginService.CompleteSMS(r.Context(), req.ChallengeToken, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeLoginResult(w, res)
}

// HandleRecovery handles POST /v1/login/recovery.
func (h *LoginHandler) HandleRecovery(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChallengeRequest(w, r)
	if !ok {
		return
	}

	res, err := h.LoginService.CompleteRecovery(r.Context(), req.ChallengeToken, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeLoginResult(w, res)
}

func decodeChallengeRequest(w http.ResponseWriter, r *http.Request) (challengeRequest, bool) {
	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return challengeRequest{}, false
	}
	if req.ChallengeToken == "" || req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "challenge_token and code are required")
		return challengeRequest{}, false
	}
	return req, true
}

// HandleSMSStart handles POST /v1/login/sms.
func (h *LoginHandler) HandleSMSStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "phone is required")
		return
	}

	key, err := h.LoginService.SMSLoginStart(r.Context(), req.Phone)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"key": key})
}

// HandleSMSComplete handles POST /v1/login/sms/complete.
func (h *LoginHandler) HandleSMSComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key  string `json:"key"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" || req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "key and code are required")
		return
	}

	res, err := h.LoginService.SMSLoginComplete(r.Context(), req.Key, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeLoginResult(w, res)
}

// HandleLogout handles POST /v1/logout. Requires an authenticated session.
func (h *LoginHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	key := httpx.SessionKeyFromContext(r.Context())
	if err := h.LoginService.Logout(r.Context(), key); err != nil {
		writeServiceError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
