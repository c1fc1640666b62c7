// Package pathutil provides the small filesystem helpers LocalSide needs:
// directory creation and existence checks.
package pathutil

import (
	"os"
	"path/filepath"
)

// EnsureParent makes sure the parent directory of path exists.
func EnsureParent(path string) error {
	return EnsureDir(filepath.Dir(path))
}

// EnsureDir makes sure path exists as a directory.
func EnsureDir(path string) error {
	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return &os.PathError{Op: "ensuredir", Path: path, Err: os.ErrExist}
		}
		return nil
	}
	return os.MkdirAll(path, 0o755)
}

// FileExists reports whether path exists and is a regular file (or at
// least not a directory).
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
