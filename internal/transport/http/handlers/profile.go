package http_handlers

import (
	"net/http"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/application/auth"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/dto"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/middleware"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/response"
)

type ProfileHandler struct {
	svc *auth.Service
}

func NewProfileHandler(svc *auth.Service) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

// Details handles GET /details.
func (h *ProfileHandler) Details(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserIDFromContext(r.Context())

	u, err := h.svc.Me(r.Context(), uid)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, map[string]any{"user": dto.User(u)})
}

// Update handles PUT /details/update.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserIDFromContext(r.Context())

	var req dto.UpdateProfileRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := dto.Validate(&req); err != nil {
		response.WriteError(w, r, err)
		return
	}

	u, err := h.svc.UpdateProfile(r.Context(), uid, req.Name, req.Email)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, map[string]any{"user": dto.User(u)})
}

// Avatar handles POST /details/avatar.
func (h *ProfileHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserIDFromContext(r.Context())

	var req dto.AvatarUploadRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := dto.Validate(&req); err != nil {
		response.WriteError(w, r, err)
		return
	}

	up, err := h.svc.RequestAvatarUpload(r.Context(), uid, req.ContentType)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, map[string]any{
		"upload": dto.AvatarUploadResponse{
			UploadURL: up.UploadURL,
			Avatar:    dto.AvatarResponse{PublicID: up.Avatar.PublicID, URL: up.Avatar.URL},
			ExpiresIn: up.ExpiresIn,
		},
	})
}
