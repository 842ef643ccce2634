package medialib

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// FSLibrary indexes image files under a set of root directories.
type FSLibrary struct {
	roots      []string
	extensions map[string]bool

	// captureTime reads the capture time of a file; swapped in tests
	captureTime func(path string) (time.Time, bool)
}

// NewFSLibrary returns a library over roots, matching the given extensions
// (lower-case, with leading dot).
func NewFSLibrary(roots, extensions []string) *FSLibrary {
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		cleaned = append(cleaned, filepath.Clean(r))
	}
	return &FSLibrary{roots: cleaned, extensions: exts, captureTime: exifCaptureTime}
}

// Roots returns the configured library roots.
func (l *FSLibrary) Roots() []string {
	return append([]string(nil), l.roots...)
}

// Query walks every root and returns a cursor over matching files in path order.
// Returns a nil cursor when no root is readable.
// Symlinked directories are skipped; symlinked files are skipped too, since a
// photo must be deletable in place. Hidden directories (such as .tabula) are not indexed.
func (l *FSLibrary) Query(ctx context.Context) (Cursor, error) {
	var entries []fileEntry
	readable := 0

	for _, root := range l.roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			log.Warn().Str("root", root).Msg("library root not readable, skipping")
			continue
		}
		readable++

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Error accessing path, skipping")
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if !l.extensions[strings.ToLower(filepath.Ext(d.Name()))] {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Failed to stat file, skipping")
				return nil
			}
			entries = append(entries, fileEntry{path: path, modTime: fi.ModTime()})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if readable == 0 {
		return nil, nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	// A file reachable from two overlapping roots is indexed once
	deduped := entries[:0]
	for i, e := range entries {
		if i > 0 && entries[i-1].path == e.path {
			continue
		}
		deduped = append(deduped, e)
	}

	return &sliceCursor{entries: deduped, pos: -1, captureTime: l.captureTime}, nil
}

// Access reports Granted when every root is readable, Limited when only some are,
// Denied when a root exists but cannot be read, and Required when no root exists.
func (l *FSLibrary) Access(ctx context.Context) Access {
	if len(l.roots) == 0 {
		return AccessRequired
	}
	ok, denied := 0, 0
	for _, root := range l.roots {
		f, err := os.Open(root)
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				denied++
			}
			continue
		}
		_, err = f.ReadDir(1)
		f.Close()
		if err != nil && !errors.Is(err, io.EOF) {
			if errors.Is(err, fs.ErrPermission) {
				denied++
			}
			continue
		}
		ok++
	}
	switch {
	case ok == len(l.roots):
		return AccessGranted
	case ok > 0:
		return AccessLimited
	case denied > 0:
		return AccessDenied
	default:
		return AccessRequired
	}
}

type fileEntry struct {
	path    string
	modTime time.Time
}

type sliceCursor struct {
	entries     []fileEntry
	pos         int
	cur         Record
	captureTime func(string) (time.Time, bool)
}

func (c *sliceCursor) Count() int { return len(c.entries) }

func (c *sliceCursor) Next() bool {
	c.pos++
	if c.pos >= len(c.entries) {
		return false
	}
	e := c.entries[c.pos]
	var taken int64
	if t, ok := c.captureTime(e.path); ok {
		taken = t.UnixMilli()
	}
	c.cur = Record{
		ID:        IDForPath(e.path),
		DateTaken: taken,
		DateAdded: e.modTime.Unix(),
		URI:       URIFromPath(e.path),
	}
	return true
}

func (c *sliceCursor) Record() Record { return c.cur }
func (c *sliceCursor) Err() error     { return nil }
func (c *sliceCursor) Close() error   { return nil }

// exifCaptureTime reads the capture time from EXIF metadata.
// Priority: DateTimeOriginal > CreateDate > ModifyDate.
func exifCaptureTime(path string) (time.Time, bool) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, false
	}
	defer f.Close()

	exif, err := imagemeta.Decode(f)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("no EXIF metadata")
		return time.Time{}, false
	}

	for _, t := range []time.Time{exif.DateTimeOriginal(), exif.CreateDate(), exif.ModifyDate()} {
		if !t.IsZero() {
			return t, true
		}
	}
	return time.Time{}, false
}
