// Package storage keeps rendered certificate artifacts on local disk or S3.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dnacommunity/backend/internal/config"

	"github.com/google/uuid"
)

// Storage defines the interface for file storage operations
type Storage interface {
	// Store saves a file under the owner's prefix and returns the storage key
	Store(ctx context.Context, owner, filename string, content io.Reader, contentType string) (string, error)

	// Delete removes a file by storage key; a missing file is not an error
	Delete(ctx context.Context, key string) error

	// GetURL returns a URL clients can download the file from
	GetURL(ctx context.Context, key string, expiration time.Duration) (string, error)
}

type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// New builds the backend selected by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch StorageType(cfg.Type) {
	case StorageTypeLocal, "":
		basePath := cfg.LocalPath
		if basePath == "" {
			basePath = "./certificates"
		}
		return NewLocalStorage(basePath, cfg.PublicBaseURL)

	case StorageTypeS3:
		if cfg.S3Bucket == "" || cfg.S3Region == "" {
			return nil, fmt.Errorf("S3 storage requires a bucket and a region")
		}
		return NewS3Storage(ctx, cfg.S3Bucket, cfg.S3Region)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// objectKey generates owner/year/month/uuid_filename.
func objectKey(owner, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%d/%02d/%s_%s",
		sanitizeFilename(owner),
		now.Year(),
		now.Month(),
		uuid.New().String(),
		sanitizeFilename(filename),
	)
}

func sanitizeFilename(filename string) string {
	// Remove path separators and other dangerous characters
	return strings.NewReplacer(
		"/", "_", "\\", "_", "..", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
	).Replace(filename)
}
