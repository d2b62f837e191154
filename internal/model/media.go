package model

import "errors"

const (
	MaxAvatarSizeBytes = 5 * 1024 * 1024
	AvatarSize         = 200
	AvatarFolder       = "avatars"
	JPEGExt            = ".jpg"
	ImageCacheControl  = "public, max-age=31536000"

	// Tweet images are scaled down to fit this box, keeping aspect ratio.
	TweetImageMaxWidth  = 1200
	TweetImageMaxHeight = 1200
)

const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
	ContentTypeGIF  = "image/gif"
	ContentTypeWebP = "image/webp"
)

var allowedImageTypes = map[string]struct{}{
	ContentTypeJPEG: {},
	ContentTypePNG:  {},
	ContentTypeGIF:  {},
	ContentTypeWebP: {},
}

// Error codes for HTTP responses
const (
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeInvalidImageType = "INVALID_IMAGE_TYPE"
)

var (
	ErrFileTooLarge       = errors.New("File too large")
	ErrInvalidImageType   = errors.New("Invalid image type")
	ErrMediaNotConfigured = errors.New("Image uploads are not configured")
)

// UploadResult is the public URL of a stored object and its bucket key.
type UploadResult struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// IsAllowedImageType reports if the provided content type is supported
func IsAllowedImageType(contentType string) bool {
	_, ok := allowedImageTypes[contentType]
	return ok
}
