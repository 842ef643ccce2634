package review

import (
	"slices"

	"github.com/hpungsan/tabula/internal/medialib"
	"github.com/hpungsan/tabula/internal/photo"
	"github.com/hpungsan/tabula/internal/prefs"
)

// Access is the media access the library currently has.
type Access = medialib.Access

// Phase is the coarse screen a consumer should render for a State.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseActive
	PhaseComplete
	PhaseAwaitingConsent
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseActive:
		return "active"
	case PhaseComplete:
		return "complete"
	case PhaseAwaitingConsent:
		return "awaiting_consent"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is an immutable snapshot of a review session. Slices in a published
// State are never modified afterwards.
type State struct {
	PhotoStack []photo.Photo `json:"photo_stack"`
	Previous   *photo.Photo  `json:"previous,omitempty"`
	Current    *photo.Photo  `json:"current,omitempty"`
	Next       *photo.Photo  `json:"next,omitempty"`

	// CurrentIndex is 1-based; 0 means no current photo
	CurrentIndex       int `json:"current_index"`
	TotalCount         int `json:"total_count"`
	SessionMarkedCount int `json:"session_marked_count"`

	CurationMode        photo.CurationMode `json:"curation_mode"`
	SessionSize         int                `json:"session_size"`
	Theme               prefs.ThemeMode    `json:"theme_mode"`
	Language            prefs.Language     `json:"language"`
	OnboardingCompleted bool               `json:"onboarding_completed"`

	IndexingProgress int  `json:"indexing_progress"`
	IsIndexing       bool `json:"is_indexing"`
	IsLoading        bool `json:"is_loading"`
	IsDeleting       bool `json:"is_deleting"`

	TrashBin       []photo.Photo            `json:"trash_bin"`
	PendingConsent *medialib.ConsentRequest `json:"pending_consent,omitempty"`

	IsSessionComplete bool   `json:"is_session_complete"`
	Access            Access `json:"access"`

	// Version increases by one with every published change
	Version uint64 `json:"version"`
}

// Phase derives the screen to render. Consent outranks everything else.
func (s State) Phase() Phase {
	switch {
	case s.PendingConsent != nil:
		return PhaseAwaitingConsent
	case s.IsLoading:
		return PhaseLoading
	case s.IsSessionComplete:
		return PhaseComplete
	default:
		return PhaseActive
	}
}

// Report is a State with its phase spelled out, as served to JSON clients.
type Report struct {
	Screen Phase `json:"phase"`
	State
}

// Report derives the JSON view of s.
func (s State) Report() Report {
	return Report{Screen: s.Phase(), State: s}
}

// IsLimitedAccess reports whether only part of the library is readable.
func (s State) IsLimitedAccess() bool {
	return s.Access == medialib.AccessLimited
}

// withViews returns s with the cursor moved to index and the three views recomputed.
func (s State) withViews(index int) State {
	s.CurrentIndex = index
	s.Previous = at(s.PhotoStack, index-2)
	s.Current = at(s.PhotoStack, index-1)
	s.Next = at(s.PhotoStack, index)
	return s
}

func (s State) clearViews() State {
	s.Previous, s.Current, s.Next = nil, nil, nil
	return s
}

func at(stack []photo.Photo, i int) *photo.Photo {
	if i < 0 || i >= len(stack) {
		return nil
	}
	p := stack[i]
	return &p
}

// appendPhoto returns a new slice; the input is never written through.
func appendPhoto(list []photo.Photo, p photo.Photo) []photo.Photo {
	return append(slices.Clip(list), p)
}

// DeleteMode is how a pending deletion proceeds once consent is granted.
type DeleteMode int

const (
	// ModeRecoverable retries the gateway call after consent.
	ModeRecoverable DeleteMode = iota
	// ModeBatch treats consent as the deletion itself.
	ModeBatch
)

func (m DeleteMode) String() string {
	if m == ModeBatch {
		return "batch"
	}
	return "recoverable"
}

// pendingDeletion is the one outstanding delete request.
type pendingDeletion struct {
	photos       []photo.Photo
	shouldReload bool
	mode         DeleteMode
	attempt      uint64

	// handle of the consent prompt this deletion waits on, if any
	handle string
}
