package certificate

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dnacommunity/backend/internal/storage"
)

// Data is everything printed on a certificate.
type Data struct {
	CertificateID    string
	WorkshopID       string
	WorkshopTitle    string
	UserID           string
	UserName         string
	CreatorName      string
	Duration         int
	CompletedAt      time.Time
	IssuedAt         time.Time
	VerificationCode string
}

// Artifact locates a rendered certificate. Key is empty when nothing was stored.
type Artifact struct {
	URL string
	Key string
}

// Renderer produces certificate artifacts. Discard removes an artifact that
// a newer rendering replaced.
type Renderer interface {
	Render(ctx context.Context, data Data) (Artifact, error)
	Discard(ctx context.Context, key string) error
}

// PlaceholderRenderer stores nothing and returns a deterministic bucket URL.
type PlaceholderRenderer struct {
	now func() time.Time
}

func NewPlaceholderRenderer() *PlaceholderRenderer {
	return &PlaceholderRenderer{now: time.Now}
}

const placeholderBaseURL = "https://storage.googleapis.com/dna-community-certificates/"

func (r *PlaceholderRenderer) Render(_ context.Context, data Data) (Artifact, error) {
	filename := fmt.Sprintf("certificate_%s_%s_%d.pdf", data.UserID, data.WorkshopID, r.now().UnixMilli())
	return Artifact{URL: placeholderBaseURL + filename}, nil
}

func (r *PlaceholderRenderer) Discard(context.Context, string) error { return nil }

// TemplRenderer renders an HTML certificate and keeps it in storage.
type TemplRenderer struct {
	storage storage.Storage
}

func NewTemplRenderer(s storage.Storage) *TemplRenderer {
	return &TemplRenderer{storage: s}
}

func (r *TemplRenderer) Render(ctx context.Context, data Data) (Artifact, error) {
	var buf bytes.Buffer
	if err := Document(data).Render(ctx, &buf); err != nil {
		return Artifact{}, fmt.Errorf("failed to render certificate: %w", err)
	}

	filename := fmt.Sprintf("certificate_%s.html", data.WorkshopID)
	key, err := r.storage.Store(ctx, data.UserID, filename, &buf, "text/html; charset=utf-8")
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to store certificate: %w", err)
	}

	url, err := r.storage.GetURL(ctx, key, 7*24*time.Hour)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to get certificate url: %w", err)
	}
	return Artifact{URL: url, Key: key}, nil
}

func (r *TemplRenderer) Discard(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return r.storage.Delete(ctx, key)
}

func durationLabel(minutes int) string {
	return strconv.Itoa(minutes) + " minutes"
}
