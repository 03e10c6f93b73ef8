package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := New(dir, "http://localhost:8080/media/")
	require.NoError(t, err)

	url, err := s.Put(ctx, "chat_images/abc", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/media/chat_images/abc", url)

	data, err := os.ReadFile(filepath.Join(dir, "chat_images", "abc"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, s.Delete(ctx, "chat_images/abc"))
	assert.ErrorIs(t, s.Delete(ctx, "chat_images/abc"), domain.ErrNotFound)
}

func TestRejectsTraversal(t *testing.T) {
	s, err := New(t.TempDir(), "/media")
	require.NoError(t, err)

	for _, key := range []string{"", "../etc/passwd", "a/../../b", "/abs", "a//b"} {
		_, err := s.Put(context.Background(), key, "image/png", strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrBadKey, key)
	}
}

func TestDetectContentType(t *testing.T) {
	s, err := New(t.TempDir(), "/media")
	require.NoError(t, err)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	assert.Equal(t, "image/png", s.DetectContentType(png))
	assert.Equal(t, "text/plain; charset=utf-8", s.DetectContentType([]byte("just text")))
}
