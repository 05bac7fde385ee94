package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrUploadTooLarge indicates an image exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the content is not a supported image.
	ErrUploadTypeNotAllowed = errors.New("only jpeg, png and webp images are accepted")
)

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/webp"}

// ImageUploader validates image bytes and hands them to the configured storage.
type ImageUploader struct {
	storage FileStorage
	maxSize int64
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewImageUploader constructs an uploader enforcing maxSize bytes per image.
func NewImageUploader(storage FileStorage, maxSize int64, logger zerolog.Logger) *ImageUploader {
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	return &ImageUploader{
		storage: storage,
		maxSize: maxSize,
		logger:  logger.With().Str("component", "image_uploader").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/edumark-api/internal/service/upload"),
	}
}

// MaxSize reports the per-image byte limit.
func (u *ImageUploader) MaxSize() int64 {
	return u.maxSize
}

// Upload reads at most the size limit from reader, checks the sniffed type
// and stores the image under folder. An empty folder uses the storage default.
func (u *ImageUploader) Upload(ctx context.Context, folder, name string, reader io.Reader) (string, error) {
	ctx, span := u.tracer.Start(ctx, "upload.image", trace.WithAttributes(
		attribute.String("upload.original_name", name),
		attribute.String("upload.folder", folder),
	))
	defer span.End()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(reader, u.maxSize+1)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return "", fmt.Errorf("read image: %w", err)
	}
	if int64(buf.Len()) > u.maxSize {
		span.SetStatus(codes.Error, "payload too large")
		return "", ErrUploadTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	if !isAllowedImage(detected) {
		span.SetStatus(codes.Error, "type not allowed")
		return "", fmt.Errorf("%w: got %s", ErrUploadTypeNotAllowed, detected.String())
	}

	start := time.Now()
	url, err := u.storage.Upload(ctx, folder, sanitizeFileName(name, detected.Extension()), bytes.NewReader(buf.Bytes()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return "", fmt.Errorf("store image: %w", err)
	}

	u.logger.Debug().
		Str("name", name).
		Int("size_bytes", buf.Len()).
		Dur("latency", time.Since(start)).
		Msg("image stored")

	return url, nil
}

func isAllowedImage(detected *mimetype.MIME) bool {
	for _, allowed := range allowedImageTypes {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}

func sanitizeFileName(name, fallbackExt string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = "image"
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = fallbackExt
	}

	return base + ext
}
