package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tuweeter/internal/httputil"
	"tuweeter/internal/model"
	"tuweeter/internal/transport/http/middleware"
)

type profileService interface {
	Search(ctx context.Context, query string) ([]model.UserSummary, error)
	GetProfile(ctx context.Context, viewerID int64, username string) (*model.Profile, error)
	SetPrivacy(ctx context.Context, userID int64, isPrivate bool) (*model.User, error)
}

type UserHandler struct {
	users profileService
}

func NewUserHandler(users profileService) *UserHandler {
	return &UserHandler{users: users}
}

// Search handles GET /users/search?q=
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, r, err, "search users")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, users)
}

// GetProfile handles GET /users/{username}. Anonymous viewers are allowed.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := middleware.GetUserIDFromContext(r.Context())

	profile, err := h.users.GetProfile(r.Context(), viewerID, chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err, "get profile")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, profile)
}

// SetPrivacy handles PUT /users/privacy
func (h *UserHandler) SetPrivacy(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req model.PrivacyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	user, err := h.users.SetPrivacy(r.Context(), userID, req.IsPrivate)
	if err != nil {
		writeServiceError(w, r, err, "update privacy")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}
