package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/hpungsan/tabula/internal/config"
	"github.com/hpungsan/tabula/internal/db"
	"github.com/hpungsan/tabula/internal/errors"
	"github.com/hpungsan/tabula/internal/photo"
)

func TestExportTrash_HappyPath(t *testing.T) {
	base := t.TempDir()
	t.Setenv("TABULA_HOME", base)

	database, err := db.Init(base)
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	defer database.Close()
	ctx := context.Background()

	if _, err := AddToTrash(ctx, database, AddToTrashInput{Photos: []photo.Photo{{ID: 1, URI: "file:///a.jpg"}}, StagedAt: 1000}); err != nil {
		t.Fatalf("AddToTrash failed: %v", err)
	}
	if _, err := AddToTrash(ctx, database, AddToTrashInput{Photos: []photo.Photo{{ID: 2, URI: "file:///b.jpg"}}, StagedAt: 2000}); err != nil {
		t.Fatalf("AddToTrash failed: %v", err)
	}

	out, err := ExportTrash(ctx, database, config.DefaultConfig(), ExportTrashInput{})
	if err != nil {
		t.Fatalf("ExportTrash failed: %v", err)
	}
	if out.Count != 2 {
		t.Errorf("Count = %d, want 2", out.Count)
	}
	if filepath.Dir(out.Path) != filepath.Join(base, "exports") {
		t.Errorf("Path = %q, want under default exports dir", out.Path)
	}
	if !strings.HasPrefix(filepath.Base(out.Path), "trash-") {
		t.Errorf("Path = %q, want trash-<timestamp>.jsonl", out.Path)
	}

	f, err := os.Open(out.Path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3 (header + 2)", len(lines))
	}

	var header ExportHeader
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("header unmarshal failed: %v", err)
	}
	if !header.TabulaTrash || header.SchemaVersion != "1.0" {
		t.Errorf("header = %+v", header)
	}

	var first photo.TrashEntry
	if err := json.Unmarshal([]byte(lines[1]), &first); err != nil {
		t.Fatalf("entry unmarshal failed: %v", err)
	}
	if first.ID != 2 {
		t.Errorf("first entry id = %d, want 2 (newest first)", first.ID)
	}
}

func TestExportTrash_InvalidPath(t *testing.T) {
	base := t.TempDir()
	t.Setenv("TABULA_HOME", base)

	database, err := db.Init(base)
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	defer database.Close()

	_, err = ExportTrash(context.Background(), database, config.DefaultConfig(), ExportTrashInput{Path: "/etc/trash.jsonl"})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestExportTrash_Empty(t *testing.T) {
	base := t.TempDir()
	t.Setenv("TABULA_HOME", base)

	database, err := db.Init(base)
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	defer database.Close()

	path := filepath.Join(base, "exports", "empty.jsonl")
	out, err := ExportTrash(context.Background(), database, config.DefaultConfig(), ExportTrashInput{Path: path})
	if err != nil {
		t.Fatalf("ExportTrash failed: %v", err)
	}
	if out.Count != 0 || out.Path != path {
		t.Errorf("out = %+v", out)
	}

	// No temp files left behind
	entries, _ := os.ReadDir(filepath.Join(base, "exports"))
	if len(entries) != 1 {
		t.Errorf("exports dir has %d entries, want 1", len(entries))
	}
}

func TestExportTrash_Compressed(t *testing.T) {
	base := t.TempDir()
	t.Setenv("TABULA_HOME", base)

	database, err := db.Init(base)
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	defer database.Close()
	ctx := context.Background()

	if _, err := AddToTrash(ctx, database, AddToTrashInput{Photos: []photo.Photo{{ID: 7, URI: "file:///c.jpg"}}, StagedAt: 1000}); err != nil {
		t.Fatalf("AddToTrash failed: %v", err)
	}

	out, err := ExportTrash(ctx, database, config.DefaultConfig(), ExportTrashInput{Compress: true})
	if err != nil {
		t.Fatalf("ExportTrash failed: %v", err)
	}
	if !strings.HasSuffix(out.Path, ".jsonl.zst") {
		t.Fatalf("Path = %q, want .jsonl.zst", out.Path)
	}

	f, err := os.Open(out.Path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd.NewReader failed: %v", err)
	}
	defer zr.Close()

	scanner := bufio.NewScanner(zr)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2 (header + 1)", len(lines))
	}

	var entry photo.TrashEntry
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("entry unmarshal failed: %v", err)
	}
	if entry.ID != 7 {
		t.Errorf("entry id = %d, want 7", entry.ID)
	}
}
