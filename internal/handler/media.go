package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"tuweeter/internal/httputil"
	"tuweeter/internal/model"
	"tuweeter/internal/service"
)

// formOverhead leaves room for the text fields next to the file part.
const formOverhead = 1024 * 1024

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// parseMultipart bounds the body to maxFile plus form overhead and parses it.
// It writes the error response itself and returns false on failure.
func parseMultipart(w http.ResponseWriter, r *http.Request, maxFile int64) bool {
	maxFormSize := maxFile + formOverhead
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, http.ErrNotMultipart):
			httputil.WriteBadRequest(w, "Content-Type must be multipart/form-data")
		case errors.As(err, &tooLarge), strings.Contains(err.Error(), "request body too large"):
			httputil.WriteBadRequestWithCode(w, model.CodeFileTooLarge, "Upload exceeds size limit")
		default:
			httputil.WriteBadRequest(w, "Invalid form data")
		}
		return false
	}
	return true
}

// formUpload returns the named file of a parsed form, or nil when the field
// is absent. The caller closes the returned upload.
func formUpload(w http.ResponseWriter, r *http.Request, field string) (*service.Upload, bool) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, true
	}
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid "+field+" upload")
		return nil, false
	}
	return &service.Upload{File: file, Header: header}, true
}

func closeUpload(up *service.Upload) {
	if up != nil && up.File != nil {
		up.File.Close()
	}
}

// formValue returns a pointer to the named form field, or nil when the
// client did not send it.
func formValue(form *multipart.Form, key string) *string {
	if form == nil {
		return nil
	}
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	v := values[0]
	return &v
}
