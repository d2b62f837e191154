package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tuweeter/internal/httputil"
	"tuweeter/internal/logging"
	"tuweeter/internal/model"
)

var notFoundErrors = []error{
	model.ErrUserNotFound,
	model.ErrTweetNotFound,
	model.ErrCommentNotFound,
	model.ErrFollowRequestNotFound,
}

var conflictErrors = []error{
	model.ErrAlreadyFollowing,
	model.ErrFollowRequestAlreadySent,
	model.ErrUsernameExists,
	model.ErrUsernameTaken,
}

func matchSentinel(err error, sentinels []error) (error, bool) {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s, true
		}
	}
	return nil, false
}

// writeServiceError maps service errors onto the error envelope. Messages
// come from the sentinel so wrapped store details never reach the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		httputil.WriteValidationError(w, verr.Field, verr.Message)
		return
	}
	if s, ok := matchSentinel(err, notFoundErrors); ok {
		httputil.WriteNotFound(w, s.Error())
		return
	}
	if s, ok := matchSentinel(err, conflictErrors); ok {
		httputil.WriteConflict(w, s.Error())
		return
	}

	switch {
	case errors.Is(err, model.ErrCannotFollowSelf):
		httputil.WriteBadRequestWithCode(w, httputil.ErrCodeSelfAction, model.ErrCannotFollowSelf.Error())
	case errors.Is(err, model.ErrInvalidCredentials):
		httputil.WriteUnauthorized(w, model.ErrInvalidCredentials.Error())
	case errors.Is(err, model.ErrForbidden):
		httputil.WriteForbidden(w, model.ErrForbidden.Error())
	case errors.Is(err, model.ErrFileTooLarge):
		httputil.WriteBadRequestWithCode(w, model.CodeFileTooLarge, "Image is too large")
	case errors.Is(err, model.ErrInvalidImageType):
		httputil.WriteBadRequestWithCode(w, model.CodeInvalidImageType, "Unsupported image type. Allowed: jpeg, png, gif, webp")
	case errors.Is(err, model.ErrMediaNotConfigured):
		httputil.WriteBadRequest(w, model.ErrMediaNotConfigured.Error())
	case errors.Is(err, model.ErrStoreUnavailable):
		logging.Ctx(r.Context()).Warn().Err(err).Msg(action + ": store unavailable")
		httputil.WriteServiceUnavailable(w, model.ErrStoreUnavailable.Error())
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg(action)
		httputil.WriteInternalError(w, "Failed to "+action)
	}
}

// pathID parses a positive integer URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name, label string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteBadRequest(w, "Invalid "+label+" ID")
		return 0, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}
