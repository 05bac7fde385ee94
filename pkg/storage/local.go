// Package storage keeps uploaded images on the local filesystem when no
// remote image host is configured.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Local writes uploads below a root directory and returns their paths.
type Local struct {
	root   string
	logger zerolog.Logger
}

// NewLocal constructs a local store rooted at dir.
func NewLocal(dir string, logger zerolog.Logger) *Local {
	return &Local{
		root:   dir,
		logger: logger.With().Str("component", "local_storage").Logger(),
	}
}

// Upload copies reader into root/folder and returns the resulting path.
func (l *Local) Upload(ctx context.Context, folder, name string, reader io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(l.root, cleanFolder(folder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(name))
	target := filepath.Join(dir, uuid.NewString()+ext)

	file, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("close upload file: %w", err)
	}

	l.logger.Debug().Str("path", target).Msg("image stored locally")

	return target, nil
}

func cleanFolder(folder string) string {
	cleaned := filepath.Clean("/" + filepath.FromSlash(strings.TrimSpace(folder)))
	return strings.TrimPrefix(cleaned, string(filepath.Separator))
}
