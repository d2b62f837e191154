package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"tuweeter/internal/httputil"
	"tuweeter/internal/model"
	"tuweeter/internal/service"
	"tuweeter/internal/transport/http/middleware"
)

type accountService interface {
	Signup(ctx context.Context, req *model.SignupRequest) (*model.AuthResponse, error)
	Login(ctx context.Context, req *model.LoginRequest) (*model.AuthResponse, error)
	Me(ctx context.Context, userID int64) (*model.User, error)
	UpdateProfile(ctx context.Context, userID int64, req *model.UpdateProfileRequest, avatar *service.Upload) (*model.User, error)
}

// AuthHandler groups account endpoints.
type AuthHandler struct {
	users accountService
}

func NewAuthHandler(users accountService) *AuthHandler {
	return &AuthHandler{users: users}
}

// Signup handles POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req model.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	res, err := h.users.Signup(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, err, "sign up")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, res)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "Email and password are required")
		return
	}

	res, err := h.users.Login(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, err, "login")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, res)
}

// Me handles GET /auth/me. A valid token for a deleted account is forbidden.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	user, err := h.users.Me(r.Context(), userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			httputil.WriteForbidden(w, "Account no longer exists")
			return
		}
		writeServiceError(w, r, err, "get user")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}

// UpdateProfile handles PUT /auth/profile as JSON or as multipart with an
// optional avatar file.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	var req model.UpdateProfileRequest
	var avatar *service.Upload

	if isMultipart(r) {
		if !parseMultipart(w, r, model.MaxAvatarSizeBytes) {
			return
		}
		req.Username = formValue(r.MultipartForm, "username")
		req.Bio = formValue(r.MultipartForm, "bio")
		req.DOB = formValue(r.MultipartForm, "dob")
		req.Gender = formValue(r.MultipartForm, "gender")

		if avatar, ok = formUpload(w, r, "avatar"); !ok {
			return
		}
		defer closeUpload(avatar)
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, &req, avatar)
	if err != nil {
		writeServiceError(w, r, err, "update profile")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}
