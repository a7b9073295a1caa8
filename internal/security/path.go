package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateStorageDir validates that a storage directory path is safe to use
// as the session root. Absolute paths are allowed; traversal components that
// survive cleaning are not.
func ValidateStorageDir(path string) error {
	if path == "" {
		return fmt.Errorf("storage directory cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("storage directory contains directory traversal: %s", path)
	}

	return nil
}

// ValidateFileWithinDir validates that a file name joined to a base directory
// cannot escape it. Used for the per-mapping mirror records, whose names are
// derived from network-supplied identifiers.
func ValidateFileWithinDir(name, baseDir string) error {
	if name == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if strings.ContainsAny(name, "/\\") || name != filepath.Base(name) {
		return fmt.Errorf("file name contains path separators: %s", name)
	}

	fullPath := filepath.Clean(filepath.Join(baseDir, name))
	cleanBase := filepath.Clean(baseDir)
	if !strings.HasPrefix(fullPath, cleanBase) {
		return fmt.Errorf("file escapes base directory: %s", name)
	}

	return nil
}
