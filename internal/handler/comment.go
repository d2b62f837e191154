package handler

import (
	"encoding/json"
	"net/http"

	"tuweeter/internal/httputil"
	"tuweeter/internal/model"
	"tuweeter/internal/transport/http/middleware"
)

// AddComment handles POST /tweets/{id}/comment and returns the tweet's
// comments, newest first.
func (h *TweetHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	tweetID, ok := pathID(w, r, "id", "tweet")
	if !ok {
		return
	}

	var req model.CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	comments, err := h.tweets.AddComment(r.Context(), tweetID, userID, req.Text)
	if err != nil {
		writeServiceError(w, r, err, "add comment")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, comments)
}

// ToggleCommentLike handles POST /tweets/{tweetId}/comments/{commentId}/like
func (h *TweetHandler) ToggleCommentLike(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	tweetID, ok := pathID(w, r, "tweetId", "tweet")
	if !ok {
		return
	}
	commentID, ok := pathID(w, r, "commentId", "comment")
	if !ok {
		return
	}

	comments, err := h.tweets.ToggleCommentLike(r.Context(), tweetID, commentID, userID)
	if err != nil {
		writeServiceError(w, r, err, "like comment")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, comments)
}
