package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dnacommunity/backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	ls, err := NewLocalStorage(t.TempDir(), "http://localhost:3001/files/")
	require.NoError(t, err)

	key, err := ls.Store(ctx, "user-1", "certificate_w1.html", strings.NewReader("<html></html>"), "text/html")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "user-1/"))
	assert.True(t, strings.HasSuffix(key, "_certificate_w1.html"))

	body, err := os.ReadFile(filepath.Join(ls.BasePath(), key))
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(body))

	url, err := ls.GetURL(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3001/files/"+key, url)

	require.NoError(t, ls.Delete(ctx, key))
	require.NoError(t, ls.Delete(ctx, key), "deleting twice is fine")

	_, err = os.Stat(filepath.Join(ls.BasePath(), key))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	ls, err := NewLocalStorage(t.TempDir(), "http://localhost/files")
	require.NoError(t, err)

	for _, key := range []string{"../secret", "a/../../secret", "/../etc/passwd"} {
		assert.Error(t, ls.Delete(ctx, key), key)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in  string
		out string
	}{
		{in: "report.pdf", out: "report.pdf"},
		{in: "../../etc/passwd", out: "____etc_passwd"},
		{in: `a\b:c*d?e"f<g>h|i`, out: "a_b_c_d_e_f_g_h_i"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, sanitizeFilename(tt.in), tt.in)
	}
}

func TestObjectKey(t *testing.T) {
	key := objectKey("owner/x", "cert.html", time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC))
	assert.Regexp(t, `^owner_x/2025/03/[0-9a-f-]{36}_cert\.html$`, key)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("local", func(t *testing.T) {
		s, err := New(ctx, config.StorageConfig{Type: "local", LocalPath: t.TempDir(), PublicBaseURL: "http://x/files"})
		require.NoError(t, err)
		assert.IsType(t, &LocalStorage{}, s)
	})

	t.Run("s3_requires_bucket", func(t *testing.T) {
		_, err := New(ctx, config.StorageConfig{Type: "s3"})
		assert.Error(t, err)
	})

	t.Run("unknown_type", func(t *testing.T) {
		_, err := New(ctx, config.StorageConfig{Type: "ftp"})
		assert.Error(t, err)
	})
}
