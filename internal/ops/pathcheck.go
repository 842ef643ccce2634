package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/tabula/internal/config"
	"github.com/hpungsan/tabula/internal/errors"
)

// Manifest extensions accepted by ExportTrash.
const (
	manifestExt           = ".jsonl"
	compressedManifestExt = ".jsonl.zst"
)

// ValidateExportPath checks where a trash manifest may be written. The file must
// sit directly in the exports directory or in one of cfg.AllowedPaths, carry a
// manifest extension, and be neither a symlink nor inside a symlinked directory.
// Subdirectories are refused so that only the final component is opened, and
// that open uses O_NOFOLLOW.
func ValidateExportPath(path string, cfg *config.Config) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	target := filepath.Clean(path)
	if !strings.HasSuffix(target, manifestExt) && !isCompressedExport(target) {
		return errors.NewInvalidRequest(fmt.Sprintf("path must end in %s or %s", manifestExt, compressedManifestExt))
	}
	target, err := filepath.Abs(target)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	dirs, err := exportDirs(cfg)
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	if !inExportDir(dir, dirs) {
		return errors.NewInvalidRequest(fmt.Sprintf("manifest must be written directly into one of %v", dirs))
	}

	if isSymlink(dir) {
		return errors.NewInvalidRequest("parent directory must not be a symlink")
	}
	if isSymlink(target) {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// exportDirs lists the directories manifests may be written to: the default exports
// directory plus absolute allowed_paths, each with a symlinked entry resolved.
func exportDirs(cfg *config.Config) ([]string, error) {
	exports, err := DefaultExportsDir()
	if err != nil {
		return nil, err
	}
	candidates := []string{exports}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				candidates = append(candidates, p)
			}
		}
	}

	dirs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		dir, err := filepath.Abs(filepath.Clean(c))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path %q: %v", c, err))
		}
		if isSymlink(dir) {
			if dir, err = filepath.EvalSymlinks(dir); err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve allowed path %q: %v", c, err))
			}
		}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

func inExportDir(dir string, dirs []string) bool {
	for _, d := range dirs {
		if dir == filepath.Clean(d) {
			return true
		}
	}
	return false
}

// isSymlink reports whether path exists and is a symlink.
func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// DefaultExportsDir returns <base dir>/exports.
func DefaultExportsDir() (string, error) {
	baseDir, err := config.BaseDir()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to get base directory: %w", err))
	}
	return filepath.Join(baseDir, "exports"), nil
}

// containsTraversal reports whether any component of path, split on either
// separator, is "..".
func containsTraversal(path string) bool {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	})
	for _, part := range parts {
		if part == ".." {
			return true
		}
	}
	return false
}

// isCompressedExport reports whether path names a zstd-compressed manifest.
func isCompressedExport(path string) bool {
	return strings.HasSuffix(path, compressedManifestExt)
}
