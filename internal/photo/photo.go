package photo

import (
	"fmt"
	"strings"
	"time"
)

// Photo is one indexed entry of the photo library.
type Photo struct {
	// ID is the stable identifier assigned by the media library
	ID int64 `json:"id"`

	// URI is the opaque resource locator handed to the deletion gateway
	URI string `json:"uri"`

	// DateTaken is the capture time in milliseconds since the epoch
	DateTaken int64 `json:"date_taken"`
}

// TrashEntry is a photo staged for deletion but not yet removed from the library.
type TrashEntry struct {
	ID  int64  `json:"id"`
	URI string `json:"uri"`

	// StagedAt is when the photo was marked, in milliseconds since the epoch
	StagedAt int64 `json:"staged_at"`

	// DateTaken is recovered from the index when the photo is still indexed (0 otherwise)
	DateTaken int64 `json:"date_taken,omitempty"`
}

// Photo converts the entry back to the photo it was staged from.
func (e TrashEntry) Photo() Photo {
	return Photo{ID: e.ID, URI: e.URI, DateTaken: e.DateTaken}
}

// Time returns the capture time as a time.Time.
func (p Photo) Time() time.Time {
	return time.UnixMilli(p.DateTaken)
}

// DateString formats the capture time the way the review card shows it.
func (p Photo) DateString() string {
	return p.Time().UTC().Format("2006-01-02 15:04:05")
}

// MonthLabel formats the capture month in upper case, e.g. "2024 OCT".
func (p Photo) MonthLabel() string {
	return strings.ToUpper(p.Time().UTC().Format("2006 Jan"))
}

// ResolveTimestamp picks the capture time for a library record.
// A capture time <= 0 means the metadata was absent; the add time (seconds) is used instead,
// scaled to milliseconds.
func ResolveTimestamp(dateTakenMillis, dateAddedSeconds int64) int64 {
	if dateTakenMillis > 0 {
		return dateTakenMillis
	}
	return dateAddedSeconds * 1000
}

// IDs returns the IDs of the given photos, preserving order.
func IDs(photos []Photo) []int64 {
	ids := make([]int64, len(photos))
	for i, p := range photos {
		ids[i] = p.ID
	}
	return ids
}

// URIs returns the URIs of the given photos, preserving order.
func URIs(photos []Photo) []string {
	uris := make([]string, len(photos))
	for i, p := range photos {
		uris[i] = p.URI
	}
	return uris
}

// Contains reports whether photos holds a photo with the given ID.
func Contains(photos []Photo, id int64) bool {
	for _, p := range photos {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Without returns a new slice with every photo whose ID appears in drop removed.
// The input slice is never modified.
func Without(photos []Photo, drop []Photo) []Photo {
	if len(drop) == 0 {
		return append([]Photo(nil), photos...)
	}
	ids := make(map[int64]struct{}, len(drop))
	for _, p := range drop {
		ids[p.ID] = struct{}{}
	}
	result := make([]Photo, 0, len(photos))
	for _, p := range photos {
		if _, ok := ids[p.ID]; !ok {
			result = append(result, p)
		}
	}
	return result
}

// CurationMode selects how a review session is populated.
type CurationMode string

const (
	CurationRandom CurationMode = "RANDOM"
	CurationBurst  CurationMode = "BURST"
)

// ParseCurationMode parses a mode name case-insensitively. Empty means RANDOM.
func ParseCurationMode(s string) (CurationMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(CurationRandom):
		return CurationRandom, nil
	case string(CurationBurst):
		return CurationBurst, nil
	default:
		return "", fmt.Errorf("unknown curation mode %q (want RANDOM or BURST)", s)
	}
}
