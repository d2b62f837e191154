package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"tuweeter/internal/httputil"
	"tuweeter/internal/model"
	"tuweeter/internal/service"
	"tuweeter/internal/transport/http/middleware"
)

type tweetService interface {
	Create(ctx context.Context, authorID int64, content string, image *service.Upload) (*model.Tweet, error)
	ToggleLike(ctx context.Context, tweetID, userID int64) (*model.Tweet, error)
	AddComment(ctx context.Context, tweetID, userID int64, text string) ([]model.Comment, error)
	ToggleCommentLike(ctx context.Context, tweetID, commentID, userID int64) ([]model.Comment, error)
}

type TweetHandler struct {
	tweets tweetService
}

func NewTweetHandler(tweets tweetService) *TweetHandler {
	return &TweetHandler{tweets: tweets}
}

// Create handles POST /tweets with a JSON body, or multipart with content
// and an optional image file.
func (h *TweetHandler) Create(w http.ResponseWriter, r *http.Request) {
	authorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var content string
	var image *service.Upload

	if isMultipart(r) {
		if !parseMultipart(w, r, model.MaxTweetImageSize) {
			return
		}
		content = r.FormValue("content")
		if image, ok = formUpload(w, r, "image"); !ok {
			return
		}
		defer closeUpload(image)
	} else {
		var req model.CreateTweetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteBadRequest(w, "Invalid request body")
			return
		}
		content = req.Content
	}

	tweet, err := h.tweets.Create(r.Context(), authorID, content, image)
	if err != nil {
		writeServiceError(w, r, err, "create tweet")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, tweet)
}

// ToggleLike handles POST /tweets/{id}/like
func (h *TweetHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	tweetID, ok := pathID(w, r, "id", "tweet")
	if !ok {
		return
	}

	tweet, err := h.tweets.ToggleLike(r.Context(), tweetID, userID)
	if err != nil {
		writeServiceError(w, r, err, "like tweet")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, tweet)
}
