package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// TempDirInMemory creates a temporary directory that preferentially uses
// an in-memory filesystem (tmpfs/ramdisk) when available, to keep the
// SQLite-backed database tests off real disk I/O.
//
// On Linux: uses /dev/shm if available.
// On macOS and Windows: falls back to the standard temp directory.
//
// The directory is automatically cleaned up when the test ends.
func TempDirInMemory(t testing.TB) string {
	t.Helper()

	var baseDir string

	if runtime.GOOS == "linux" {
		if stat, err := os.Stat("/dev/shm"); err == nil && stat.IsDir() {
			tmpBase := filepath.Join("/dev/shm", "ask-test")
			if err := os.MkdirAll(tmpBase, 0755); err == nil {
				baseDir = tmpBase
			}
		}
	}

	if baseDir == "" {
		baseDir = os.TempDir()
	}

	tmpDir, err := os.MkdirTemp(baseDir, "ask-test-*")
	if err != nil {
		t.Fatalf("testutil: create temp dir: %v", err)
	}

	t.Cleanup(func() {
		_ = os.RemoveAll(tmpDir)
	})

	return tmpDir
}
