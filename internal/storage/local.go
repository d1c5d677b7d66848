package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type LocalStorage struct {
	basePath      string
	publicBaseURL string
}

func NewLocalStorage(basePath, publicBaseURL string) (*LocalStorage, error) {
	// Ensure base path exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		basePath:      basePath,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

func (ls *LocalStorage) Store(ctx context.Context, owner, filename string, content io.Reader, contentType string) (string, error) {
	key := objectKey(owner, filename, time.Now())

	fullPath, err := ls.resolve(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, content); err != nil {
		_ = os.Remove(fullPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return key, nil
}

func (ls *LocalStorage) Delete(ctx context.Context, key string) error {
	fullPath, err := ls.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// GetURL points at the static file route; local files do not expire.
func (ls *LocalStorage) GetURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	return ls.publicBaseURL + "/" + key, nil
}

// BasePath is the directory served under the public base URL.
func (ls *LocalStorage) BasePath() string {
	return ls.basePath
}

// resolve maps a key to a path and rejects keys escaping the base directory.
func (ls *LocalStorage) resolve(key string) (string, error) {
	absBasePath, err := filepath.Abs(ls.basePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}

	absFullPath, err := filepath.Abs(filepath.Join(ls.basePath, key))
	if err != nil {
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}

	if !strings.HasPrefix(absFullPath, absBasePath+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid file path: path traversal detected")
	}
	return absFullPath, nil
}
