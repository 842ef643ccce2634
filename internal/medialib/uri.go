package medialib

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"path/filepath"
)

// URIFromPath returns the file:// URI for an absolute path.
func URIFromPath(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// PathFromURI returns the local path for a file:// URI.
func PathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
	if u.Path == "" {
		return "", fmt.Errorf("uri %q has no path", uri)
	}
	return filepath.FromSlash(u.Path), nil
}

// IDForPath derives the stable photo id for a file from its absolute path.
// The id is always positive.
func IDForPath(path string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(filepath.Clean(path)))
	id := int64(h.Sum64() & 0x7fffffffffffffff)
	if id == 0 {
		id = 1
	}
	return id
}
