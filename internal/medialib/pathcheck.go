package medialib

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/tabula/internal/errors"
)

// ValidateTarget checks that path may be deleted through the gateway:
// 1. No directory traversal (.. components)
// 2. The file lives under one of roots (compared after resolving symlinks of the
//    roots and of the file's parent directory)
// 3. The file itself is a regular file, not a symlink
func ValidateTarget(path string, roots []string) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}
	if !filepath.IsAbs(path) {
		return errors.NewInvalidRequest("path must be absolute")
	}

	cleaned := filepath.Clean(path)
	parent, err := resolveDir(filepath.Dir(cleaned))
	if err != nil {
		return errors.NewNotFound("file", path)
	}

	if !isUnderAny(parent, resolveRoots(roots)) {
		return errors.NewInvalidRequest(fmt.Sprintf("path is outside the library roots: %s", path))
	}

	info, err := os.Lstat(cleaned)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFound("file", path)
		}
		return errors.NewInternal(err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	if !info.Mode().IsRegular() {
		return errors.NewInvalidRequest("path must be a regular file")
	}
	return nil
}

// resolveRoots returns absolute roots with symlinks resolved where the root exists.
func resolveRoots(roots []string) []string {
	result := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := filepath.Abs(filepath.Clean(r))
		if err != nil {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		result = append(result, abs)
	}
	return result
}

func resolveDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// isUnderAny reports whether dir equals or is nested inside one of roots.
func isUnderAny(dir string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, dir)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// Also check for forward slashes on all platforms (e.g., user input)
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
