package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service stores submission images on Cloudinary.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload sends an image to the folder (or the default folder when empty) and
// returns its secure URL.
func (s *Service) Upload(ctx context.Context, folder, name string, reader io.Reader) (string, error) {
	target := strings.Trim(folder, "/")
	if target == "" {
		target = s.folder
	}

	params := uploader.UploadParams{
		Folder:       target,
		PublicID:     PublicID(name),
		ResourceType: "image",
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload image: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Str("folder", target).Msg("image uploaded to cloudinary")

	return result.SecureURL, nil
}

// PublicID derives a unique, URL-safe asset id from an uploaded file name.
func PublicID(name string) string {
	base := strings.TrimSuffix(path.Base(filepath.ToSlash(name)), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		base = "image"
	}

	return fmt.Sprintf("%s-%s", base, uuid.NewString()[:8])
}
