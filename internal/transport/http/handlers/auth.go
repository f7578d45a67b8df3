package http_handlers

import (
	"net/http"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/application/auth"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/security"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/dto"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/middleware"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/response"
)

type AuthHandler struct {
	svc           *auth.Service
	secureCookies bool
}

func NewAuthHandler(svc *auth.Service, secureCookies bool) *AuthHandler {
	return &AuthHandler{svc: svc, secureCookies: secureCookies}
}

// writeSession sets the cookie and renders {user, token}.
func (h *AuthHandler) writeSession(w http.ResponseWriter, status int, res auth.AuthResult) {
	security.SetSessionCookie(w, res.Session.Token, h.svc.SessionTTL(), h.secureCookies)
	response.WriteJSON(w, status, map[string]any{
		"success": true,
		"user":    dto.User(res.User),
		"token":   res.Session.Token,
	})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := dto.Validate(&req); err != nil {
		response.WriteError(w, r, err)
		return
	}

	res, err := h.svc.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	logger.WithCtx(r.Context()).Info().Str("user_id", res.User.ID).Msg("user_registered")
	h.writeSession(w, http.StatusCreated, res)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.WriteError(w, r, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		middleware.LoginAttemptsTotal.WithLabelValues("failed").Inc()
		response.WriteError(w, r, err)
		return
	}
	middleware.LoginAttemptsTotal.WithLabelValues("success").Inc()

	logger.WithCtx(r.Context()).Info().Str("user_id", res.User.ID).Msg("user_logged_in")
	h.writeSession(w, http.StatusOK, res)
}

// Logout always succeeds; a valid token is also revoked.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.svc.Logout(r.Context(), security.ReadSessionToken(r))
	security.ClearSessionCookie(w, h.secureCookies)
	response.Message(w, "Logged out")
}
