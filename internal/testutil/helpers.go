package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateDummyFile creates a file with the given content at path, creating
// parent directories as needed.
func CreateDummyFile(t *testing.T, path string, content string) {
	t.Helper()
	fullPath := filepath.Clean(path)
	dir := filepath.Dir(fullPath)
	err := os.MkdirAll(dir, 0755)
	require.NoError(t, err, "Failed to create directory %s for dummy file", dir)
	err = os.WriteFile(fullPath, []byte(content), 0644)
	require.NoError(t, err, "Failed to write dummy file %s", fullPath)
}

// CreateDummyDir ensures a directory exists at the given path, creating parents if needed.
func CreateDummyDir(t *testing.T, path string) {
	t.Helper()
	fullPath := filepath.Clean(path)
	err := os.MkdirAll(fullPath, 0755)
	require.NoError(t, err, "Failed to create dummy directory %s", fullPath)
}

// CreateTree populates root from a map of slash-separated relative paths to
// file contents. Keys ending in "/" create empty directories.
func CreateTree(t *testing.T, root string, structure map[string]string) {
	t.Helper()
	for rel, content := range structure {
		fullPath := filepath.Join(root, filepath.FromSlash(rel))
		if strings.HasSuffix(rel, "/") {
			CreateDummyDir(t, fullPath)
			continue
		}
		CreateDummyFile(t, fullPath, content)
	}
}

// NewTestLogger returns a debug-level text handler writing into the returned builder.
func NewTestLogger() (slog.Handler, *strings.Builder) {
	logBuf := &strings.Builder{}
	return slog.NewTextHandler(&syncWriter{w: logBuf}, &slog.HandlerOptions{Level: slog.LevelDebug}), logBuf
}
