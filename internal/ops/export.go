package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/hpungsan/tabula/internal/config"
	"github.com/hpungsan/tabula/internal/db"
	"github.com/hpungsan/tabula/internal/errors"
)

// ExportTrashInput contains parameters for the ExportTrash operation.
type ExportTrashInput struct {
	Path string // optional, default: <base dir>/exports/trash-<timestamp>.jsonl
	// Compress writes a zstd stream and names the default file .jsonl.zst.
	// An explicit path ending in .jsonl.zst is always compressed.
	Compress bool
}

// ExportTrashOutput contains the result of the ExportTrash operation.
type ExportTrashOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of a trash manifest.
type ExportHeader struct {
	TabulaTrash   bool   `json:"_tabula_trash"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
}

// ExportTrash writes the staged trash to a JSONL manifest: one header line, then one
// entry per line, most recently staged first. Paths ending in .jsonl.zst are
// zstd-compressed.
func ExportTrash(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportTrashInput) (*ExportTrashOutput, error) {
	now := time.Now()
	exportedAt := now.Unix()

	exportPath := input.Path
	if exportPath == "" {
		dir, err := DefaultExportsDir()
		if err != nil {
			return nil, err
		}
		exportPath = filepath.Join(dir, "trash-"+now.Format("2006-01-02T150405")+".jsonl")
		if input.Compress {
			exportPath += ".zst"
		}
	}

	if err := ValidateExportPath(exportPath, cfg); err != nil {
		return nil, err
	}

	entries, err := db.ListTrash(ctx, database)
	if err != nil {
		return nil, err
	}
	if len(entries) > MaxExportItems {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("trash holds %d entries; exports are limited to %d", len(entries), MaxExportItems))
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	// Write to temp file first, then atomic rename to preserve existing file on failure
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	var w io.Writer = file
	var zw *zstd.Encoder
	if isCompressedExport(exportPath) {
		zw, err = zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("failed to create zstd writer: %w", err))
		}
		defer func() {
			if zw != nil {
				zw.Close()
			}
		}()
		w = zw
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(ExportHeader{TabulaTrash: true, SchemaVersion: "1.0", ExportedAt: exportedAt}); err != nil {
		return nil, errors.NewInternal(err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := enc.Encode(e); err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	if zw != nil {
		err := zw.Close()
		zw = nil
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("failed to finish zstd stream: %w", err))
		}
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}

	// Close before atomic replace (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportTrashOutput{
		Path:       exportPath,
		Count:      len(entries),
		ExportedAt: exportedAt,
	}, nil
}
