package http_handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/dto"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/middleware"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/response"
)

// APIPrefix is where the router mounts the user routes.
const APIPrefix = "/api/v1"

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := dto.Validate(&req); err != nil {
		response.WriteError(w, r, err)
		return
	}

	sentTo, err := h.svc.ForgotPassword(r.Context(), req.Email, requestBaseURL(r))
	if err != nil {
		middleware.PasswordResetEmailsTotal.WithLabelValues("failed").Inc()
		response.WriteError(w, r, err)
		return
	}
	middleware.PasswordResetEmailsTotal.WithLabelValues("sent").Inc()

	response.Message(w, fmt.Sprintf("Email sent to %s successfully", sentTo))
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.WriteError(w, r, err)
		return
	}

	res, err := h.svc.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password, req.ConfirmPassword)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	h.writeSession(w, http.StatusOK, res)
}

func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserIDFromContext(r.Context())

	var req dto.UpdatePasswordRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := dto.Validate(&req); err != nil {
		response.WriteError(w, r, err)
		return
	}

	res, err := h.svc.UpdatePassword(r.Context(), uid, req.OldPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	h.writeSession(w, http.StatusOK, res)
}

// requestBaseURL is scheme://host/api/v1 as seen by the client. The service
// only uses it when no reset base URL is configured, which config allows in
// dev only.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host + APIPrefix
}
