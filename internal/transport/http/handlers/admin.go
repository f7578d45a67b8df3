package http_handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/application/auth"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/dto"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/middleware"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/response"
)

// AdminHandler serves /admin/users. The router gates it behind RequireRole(admin).
type AdminHandler struct {
	svc *auth.Service
}

func NewAdminHandler(svc *auth.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, map[string]any{"users": dto.Users(users)})
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, map[string]any{"user": dto.User(u)})
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.UserIDFromContext(r.Context())

	var req dto.AdminUpdateUserRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := dto.Validate(&req); err != nil {
		response.WriteError(w, r, err)
		return
	}

	u, err := h.svc.AdminUpdateUser(r.Context(), actor, chi.URLParam(r, "id"), auth.AdminUpdateInput{
		Name:  req.Name,
		Email: req.Email,
		Role:  req.Role,
	})
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, map[string]any{"user": dto.User(u)})
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.UserIDFromContext(r.Context())

	if err := h.svc.DeleteUser(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Message(w, "User deleted successfully")
}
