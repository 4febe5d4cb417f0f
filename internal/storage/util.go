package storage

import (
	"os"
	"path/filepath"
)

// EnsureDir ensures a directory exists with default permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// EnsureParentDir ensures the directory holding file exists.
func EnsureParentDir(file string) error {
	dir := filepath.Dir(file)
	if dir == "." {
		return nil
	}
	return EnsureDir(dir)
}
