package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/tabula/internal/config"
	"github.com/hpungsan/tabula/internal/errors"
)

func TestValidateExportPath_TraversalRejected(t *testing.T) {
	t.Setenv("TABULA_HOME", t.TempDir())
	cfg := config.DefaultConfig()

	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../backup.jsonl"},
		{"deep traversal", "../../etc/backup.jsonl"},
		{"mid-path traversal", "/tmp/../etc/backup.jsonl"},
		{"hidden in path", "/tmp/safe/../../../etc/shadow.jsonl"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateExportPath(tc.path, cfg)
			if err == nil {
				t.Error("expected error for path traversal, got nil")
			}
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidateExportPath_ExtensionRequired(t *testing.T) {
	base := t.TempDir()
	t.Setenv("TABULA_HOME", base)
	exports := filepath.Join(base, "exports")

	for _, name := range []string{"backup", "backup.json", "backup.txt", "backup.zst"} {
		err := ValidateExportPath(filepath.Join(exports, name), config.DefaultConfig())
		if !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("ValidateExportPath(%q) = %v, want ErrInvalidRequest", name, err)
		}
	}
}

func TestValidateExportPath_DirectoryRestriction(t *testing.T) {
	base := t.TempDir()
	t.Setenv("TABULA_HOME", base)
	cfg := config.DefaultConfig()

	if err := ValidateExportPath(filepath.Join(base, "exports", "trash.jsonl"), cfg); err != nil {
		t.Errorf("default exports dir rejected: %v", err)
	}
	if err := ValidateExportPath(filepath.Join(base, "exports", "trash.jsonl.zst"), cfg); err != nil {
		t.Errorf("compressed export rejected: %v", err)
	}

	err := ValidateExportPath(filepath.Join(t.TempDir(), "trash.jsonl"), cfg)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("outside dir error = %v, want ErrInvalidRequest", err)
	}
}

func TestValidateExportPath_AllowedPaths(t *testing.T) {
	t.Setenv("TABULA_HOME", t.TempDir())
	allowed := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowed, "relative/ignored"}

	if err := ValidateExportPath(filepath.Join(allowed, "trash.jsonl"), cfg); err != nil {
		t.Errorf("allowed path rejected: %v", err)
	}
}

func TestValidateExportPath_NestedPathRejected(t *testing.T) {
	base := t.TempDir()
	t.Setenv("TABULA_HOME", base)

	err := ValidateExportPath(filepath.Join(base, "exports", "sub", "trash.jsonl"), config.DefaultConfig())
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("nested path error = %v, want ErrInvalidRequest", err)
	}
}

func TestValidateExportPath_SymlinkFileRejected(t *testing.T) {
	base := t.TempDir()
	t.Setenv("TABULA_HOME", base)
	exports := filepath.Join(base, "exports")
	if err := os.MkdirAll(exports, 0700); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	target := filepath.Join(t.TempDir(), "target.jsonl")
	if err := os.WriteFile(target, []byte("{}"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	link := filepath.Join(exports, "link.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	err := ValidateExportPath(link, config.DefaultConfig())
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("symlink error = %v, want ErrInvalidRequest", err)
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/a/b/c.jsonl", false},
		{"/a/../c.jsonl", true},
		{"..", true},
		{"/a/..b/c.jsonl", false},
	}
	for _, tt := range tests {
		if got := containsTraversal(tt.path); got != tt.want {
			t.Errorf("containsTraversal(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
