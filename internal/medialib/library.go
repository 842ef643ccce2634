// Package medialib adapts a directory tree of photos to the media index and
// deletion gateway the review session works against.
package medialib

import (
	"context"
)

// Record is one row reported by the media index.
type Record struct {
	ID int64

	// DateTaken is the capture time in ms, or <= 0 when metadata is absent
	DateTaken int64

	// DateAdded is when the file entered the library, in seconds
	DateAdded int64

	URI string
}

// Cursor iterates the records of one query. Count is known before iteration.
type Cursor interface {
	Count() int
	Next() bool
	Record() Record
	Err() error
	Close() error
}

// Library is the platform media index.
type Library interface {
	// Query returns a cursor over every photo, or a nil cursor when there is nothing to index.
	Query(ctx context.Context) (Cursor, error)

	// Access probes how much of the library is readable.
	Access(ctx context.Context) Access
}

// Access describes the media access the library currently has.
type Access int

const (
	AccessUnknown Access = iota
	AccessGranted
	AccessLimited
	AccessRequired
	AccessDenied
)

func (a Access) String() string {
	switch a {
	case AccessGranted:
		return "granted"
	case AccessLimited:
		return "limited"
	case AccessRequired:
		return "required"
	case AccessDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// CanRead reports whether the library can be indexed at all.
func (a Access) CanRead() bool {
	return a == AccessGranted || a == AccessLimited
}

// MarshalText renders the access as its lower-case name.
func (a Access) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
