package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerSave(t *testing.T) {
	tempDir := t.TempDir()

	manager, err := NewManager(filepath.Join(tempDir, "project"))
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	data := []byte("test image data")
	path, size, err := manager.Save(bytes.NewReader(data), "123", ".png")
	if err != nil {
		t.Fatalf("Failed to save media: %v", err)
	}

	expectedPath := filepath.Join(tempDir, "project", "123.png")
	if path != expectedPath {
		t.Errorf("Expected path %s, got %s", expectedPath, path)
	}
	if size != int64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), size)
	}

	content, err := os.ReadFile(expectedPath)
	require.NoError(t, err)
	assert.Equal(t, data, content)

	_, err = os.Stat(expectedPath + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file should be gone")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestManagerSaveCleansUpOnError(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewManager(dir)
	require.NoError(t, err)

	_, _, err = manager.Save(failingReader{}, "1", ".jpg")
	require.Error(t, err)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestNewManagerUnwritable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	_, err := NewManager(filepath.Join(blocker, "sub"))
	assert.Error(t, err)
}

func TestCommit(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	require.NoError(t, err)

	temp := manager.TempPath("v1", ".mp4")
	require.NoError(t, os.WriteFile(temp, []byte("video"), 0644))

	final, err := manager.Commit(temp, "v1", ".mp4")
	require.NoError(t, err)
	assert.Equal(t, manager.PathFor("v1", ".mp4"), final)
	assert.FileExists(t, final)
	assert.NoFileExists(t, temp)
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		src         string
		contentType string
		want        string
	}{
		{"https://i.pinimg.com/originals/a/b.png", "", ".png"},
		{"https://i.pinimg.com/originals/a/b.JPEG", "", ".jpg"},
		{"https://i.pinimg.com/originals/a/b.gif?x=1", "", ".gif"},
		{"https://cdn.example.com/media/abc", "image/webp", ".webp"},
		{"https://cdn.example.com/media/abc", "image/png; charset=binary", ".png"},
		{"https://cdn.example.com/media/abc", "", ".jpg"},
	}

	for _, tt := range tests {
		if got := ExtensionFor(tt.src, tt.contentType); got != tt.want {
			t.Errorf("ExtensionFor(%q, %q) = %q, want %q", tt.src, tt.contentType, got, tt.want)
		}
	}
}

func TestPathForSanitizesIDs(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewManager(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a_b.jpg"), manager.PathFor("a/b", ".jpg"))
}
