// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// TempDir returns a fresh data directory with the same 0700 mode chatd
// creates. It is removed when the test ends.
func TempDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "data")
	if err := os.Mkdir(dir, 0700); err != nil {
		t.Fatalf("failed to create data dir: %v", err)
	}
	return dir
}

// SetEnv sets an environment variable for the duration of the test
func SetEnv(t *testing.T, key, value string) {
	t.Helper()
	t.Setenv(key, value)
}

// UnsetEnv removes an environment variable for the duration of the test.
// Lookups see it as missing, not empty.
func UnsetEnv(t *testing.T, key string) {
	t.Helper()
	// registers the restore
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env var %s: %v", key, err)
	}
}

// ClearEnv unsets every key, e.g. provider key variables from the developer's shell
func ClearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		UnsetEnv(t, k)
	}
}

// WriteFile writes data to name inside dir with 0600 permissions and returns the path
func WriteFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}
