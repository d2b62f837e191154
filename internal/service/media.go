package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"tuweeter/internal/config"
	"tuweeter/internal/model"
)

// Upload is an image file received in a multipart form.
type Upload struct {
	File   multipart.File
	Header *multipart.FileHeader
}

// MediaStore stores normalized images and returns their public URLs.
type MediaStore interface {
	UploadAvatar(ctx context.Context, up Upload) (*model.UploadResult, error)
	UploadTweetImage(ctx context.Context, up Upload) (*model.UploadResult, error)
	DeleteObject(ctx context.Context, key string) error
}

// MediaService handles media uploads to Cloudflare R2.
type MediaService struct {
	s3Client  *s3.Client
	bucket    string
	publicURL string
}

// NewMediaService constructs an S3-compatible client for Cloudflare R2.
func NewMediaService(ctx context.Context, cfg *config.Config) (*MediaService, error) {
	if !cfg.MediaConfigured() {
		return nil, model.ErrMediaNotConfigured
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for R2: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID)
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &MediaService{
		s3Client:  s3Client,
		bucket:    cfg.R2BucketName,
		publicURL: strings.TrimSuffix(cfg.R2PublicURL, "/"),
	}, nil
}

// UploadAvatar enforces size/type, normalizes to a square JPEG, and uploads to R2.
func (s *MediaService) UploadAvatar(ctx context.Context, up Upload) (*model.UploadResult, error) {
	data, err := readAndValidateImage(up, model.MaxAvatarSizeBytes)
	if err != nil {
		return nil, err
	}

	jpegBytes, err := encodeJPEG(data, 85, func(img image.Image) image.Image {
		return imaging.Fill(img, model.AvatarSize, model.AvatarSize, imaging.Center, imaging.Lanczos)
	})
	if err != nil {
		return nil, err
	}
	return s.store(ctx, model.AvatarFolder, jpegBytes)
}

// UploadTweetImage scales the image down to fit the tweet image box, keeping
// its aspect ratio. Smaller images are only re-encoded.
func (s *MediaService) UploadTweetImage(ctx context.Context, up Upload) (*model.UploadResult, error) {
	data, err := readAndValidateImage(up, model.MaxTweetImageSize)
	if err != nil {
		return nil, err
	}

	jpegBytes, err := encodeJPEG(data, 90, func(img image.Image) image.Image {
		b := img.Bounds()
		if b.Dx() <= model.TweetImageMaxWidth && b.Dy() <= model.TweetImageMaxHeight {
			return img
		}
		return imaging.Fit(img, model.TweetImageMaxWidth, model.TweetImageMaxHeight, imaging.Lanczos)
	})
	if err != nil {
		return nil, err
	}
	return s.store(ctx, model.TweetImageFolder, jpegBytes)
}

func (s *MediaService) store(ctx context.Context, folder string, body []byte) (*model.UploadResult, error) {
	key := fmt.Sprintf("%s/%s%s", folder, uuid.NewString(), model.JPEGExt)
	if err := s.putObject(ctx, key, body, model.ContentTypeJPEG, model.ImageCacheControl); err != nil {
		return nil, err
	}
	return &model.UploadResult{URL: fmt.Sprintf("%s/%s", s.publicURL, key), Key: key}, nil
}

// readAndValidateImage loads the upload into memory with size and type checks.
func readAndValidateImage(up Upload, maxSize int64) ([]byte, error) {
	if up.Header != nil && up.Header.Size > maxSize {
		return nil, model.ErrFileTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(up.File, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, model.ErrFileTooLarge
	}

	var contentType string
	if up.Header != nil {
		contentType = up.Header.Header.Get("Content-Type")
	}
	if contentType == "" && len(data) > 0 {
		contentType = http.DetectContentType(data[:min(len(data), 512)])
	}
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if !model.IsAllowedImageType(contentType) {
		return nil, model.ErrInvalidImageType
	}
	return data, nil
}

func encodeJPEG(data []byte, quality int, transform func(image.Image) image.Image) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, model.ErrInvalidImageType
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, transform(img), imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// putObject uploads bytes to R2 with metadata.
func (s *MediaService) putObject(ctx context.Context, key string, body []byte, contentType, cacheControl string) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControl),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to r2: %w", err)
	}
	return nil
}

// DeleteObject removes an object by key. An empty key is a no-op.
func (s *MediaService) DeleteObject(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from r2: %w", err)
	}
	return nil
}
