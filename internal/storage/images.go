package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RMahshie/psychro/pkg/models"
)

// ErrNotFound is returned when an image key does not exist
var ErrNotFound = errors.New("image not found")

// ImageStore handles exemplar photo storage operations
type ImageStore interface {
	PutImage(ctx context.Context, key string, image models.Image) error
	GetImage(ctx context.Context, key string) (models.Image, error)
	DeleteImage(ctx context.Context, key string) error
	GenerateDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/heic": "heic",
}

// ValidateContentType validates that the content type is a supported photo format
func ValidateContentType(contentType string) error {
	if _, ok := imageExtensions[contentType]; !ok {
		return fmt.Errorf("invalid content type: %s. Supported types: image/jpeg, image/png, image/webp, image/heic", contentType)
	}
	return nil
}

// ExemplarKey builds the object key for an exemplar photo
func ExemplarKey(exemplarID, contentType string) string {
	ext, ok := imageExtensions[contentType]
	if !ok {
		ext = "img"
	}
	return fmt.Sprintf("exemplars/%s.%s", exemplarID, ext)
}
