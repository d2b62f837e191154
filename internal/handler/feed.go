package handler

import (
	"context"
	"net/http"

	"tuweeter/internal/httputil"
	"tuweeter/internal/model"
	"tuweeter/internal/transport/http/middleware"
)

type feedService interface {
	GetFeed(ctx context.Context, viewerID int64, scope model.FeedScope, page, limit int) ([]model.Tweet, error)
}

type FeedHandler struct {
	feeds feedService
}

func NewFeedHandler(feeds feedService) *FeedHandler {
	return &FeedHandler{feeds: feeds}
}

// GetFeed handles GET /tweets
//
// Query params:
//   - type: "all" (default) or "following"; following requires a token
//   - page: 1-based page number (default 1)
//   - limit: tweets per page (default 20, max 50)
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := middleware.GetUserIDFromContext(r.Context())
	scope := model.ParseFeedScope(r.URL.Query().Get("type"))

	if scope == model.FeedFollowing && viewerID == 0 {
		httputil.WriteUnauthorized(w, "Authentication required for the following feed")
		return
	}

	page, ok := queryInt(r, "page")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid page parameter")
		return
	}
	limit, ok := queryInt(r, "limit")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid limit parameter")
		return
	}

	tweets, err := h.feeds.GetFeed(r.Context(), viewerID, scope, page, limit)
	if err != nil {
		writeServiceError(w, r, err, "get feed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, tweets)
}
