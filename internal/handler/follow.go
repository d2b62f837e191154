package handler

import (
	"context"
	"net/http"

	"tuweeter/internal/httputil"
	"tuweeter/internal/model"
	"tuweeter/internal/transport/http/middleware"
)

type relationshipService interface {
	RequestFollow(ctx context.Context, requesterID, targetID int64) (*model.FollowResult, error)
	Unfollow(ctx context.Context, requesterID, targetID int64) (*model.FollowingResponse, error)
	AcceptRequest(ctx context.Context, ownerID, requesterID int64) ([]model.UserSummary, error)
	RejectRequest(ctx context.Context, ownerID, requesterID int64) ([]model.UserSummary, error)
	PendingRequests(ctx context.Context, ownerID int64) ([]model.UserSummary, error)
}

type FollowHandler struct {
	follows relationshipService
}

func NewFollowHandler(follows relationshipService) *FollowHandler {
	return &FollowHandler{follows: follows}
}

// Follow handles PUT /users/{id}/follow. Private targets get a pending request.
func (h *FollowHandler) Follow(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	targetID, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}

	result, err := h.follows.RequestFollow(r.Context(), requesterID, targetID)
	if err != nil {
		writeServiceError(w, r, err, "follow user")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// Unfollow handles PUT /users/{id}/unfollow. It also withdraws a pending request.
func (h *FollowHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	targetID, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}

	result, err := h.follows.Unfollow(r.Context(), requesterID, targetID)
	if err != nil {
		writeServiceError(w, r, err, "unfollow user")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// AcceptRequest handles PUT /users/requests/{id}/accept
func (h *FollowHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveRequest(w, r, h.follows.AcceptRequest, "accept follow request")
}

// RejectRequest handles PUT /users/requests/{id}/reject
func (h *FollowHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveRequest(w, r, h.follows.RejectRequest, "reject follow request")
}

func (h *FollowHandler) resolveRequest(
	w http.ResponseWriter,
	r *http.Request,
	resolve func(ctx context.Context, ownerID, requesterID int64) ([]model.UserSummary, error),
	action string,
) {
	ownerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	requesterID, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}

	pending, err := resolve(r.Context(), ownerID, requesterID)
	if err != nil {
		writeServiceError(w, r, err, action)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pending)
}

// PendingRequests handles GET /users/requests/pending
func (h *FollowHandler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	pending, err := h.follows.PendingRequests(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, r, err, "list follow requests")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pending)
}
