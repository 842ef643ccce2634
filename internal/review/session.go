package review

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/tabula/internal/medialib"
	"github.com/hpungsan/tabula/internal/photo"
	"github.com/hpungsan/tabula/internal/prefs"
)

// RescanLibrary resets the session, re-indexes the library, then loads a new session.
func (m *Machine) RescanLibrary() {
	m.enqueue(func() {
		m.resetSession()
		m.startLoad(true)
	})
}

// RefreshSession resets the session and loads a new one from the existing index.
func (m *Machine) RefreshSession() {
	m.enqueue(func() {
		m.resetSession()
		m.startLoad(false)
	})
}

// UpdateSessionSize clamps, persists and applies a new session size, then refreshes.
func (m *Machine) UpdateSessionSize(n int) {
	n = prefs.ClampSessionSize(n)
	m.enqueue(func() {
		m.st.SessionSize = n
		m.async(func(ctx context.Context) {
			if _, err := m.prefs.SetSessionSize(ctx, n); err != nil {
				log.Error().Err(err).Int("session_size", n).Msg("failed to persist session size")
			}
		})
		m.resetSession()
		m.startLoad(false)
	})
}

// UpdateCurationMode persists and applies a new curation mode, then refreshes.
func (m *Machine) UpdateCurationMode(mode photo.CurationMode) {
	parsed, err := photo.ParseCurationMode(string(mode))
	if err != nil {
		log.Warn().Err(err).Msg("ignoring curation mode")
		return
	}
	m.enqueue(func() {
		m.st.CurationMode = parsed
		m.async(func(ctx context.Context) {
			if err := m.prefs.SetCurationMode(ctx, parsed); err != nil {
				log.Error().Err(err).Str("mode", string(parsed)).Msg("failed to persist curation mode")
			}
		})
		m.resetSession()
		m.startLoad(false)
	})
}

// UpdateTheme persists the theme; the state follows the preference.
func (m *Machine) UpdateTheme(theme prefs.ThemeMode) {
	m.enqueue(func() {
		m.async(func(ctx context.Context) {
			if err := m.prefs.SetTheme(ctx, theme); err != nil {
				log.Error().Err(err).Str("theme", string(theme)).Msg("failed to persist theme")
			}
		})
	})
}

// UpdateLanguage persists the language; the state follows the preference.
func (m *Machine) UpdateLanguage(lang prefs.Language) {
	m.enqueue(func() {
		m.async(func(ctx context.Context) {
			if err := m.prefs.SetLanguage(ctx, lang); err != nil {
				log.Error().Err(err).Str("language", string(lang)).Msg("failed to persist language")
			}
		})
	})
}

// CompleteOnboarding records that the user finished onboarding.
func (m *Machine) CompleteOnboarding() {
	m.enqueue(func() {
		m.async(func(ctx context.Context) {
			if err := m.prefs.SetOnboardingCompleted(ctx, true); err != nil {
				log.Error().Err(err).Msg("failed to persist onboarding")
			}
		})
	})
}

// UpdateMediaAccess probes media access and publishes it. Gaining access after it was
// required or denied triggers a rescan.
func (m *Machine) UpdateMediaAccess() {
	m.enqueue(func() {
		if m.access == nil {
			return
		}
		m.async(func(ctx context.Context) {
			access := m.access.Access(ctx)
			m.enqueue(func() {
				prev := m.st.Access
				if prev == access {
					return
				}
				m.st.Access = access
				m.publish()
				if access.CanRead() && (prev == medialib.AccessRequired || prev == medialib.AccessDenied) {
					m.resetSession()
					m.startLoad(true)
				}
			})
		})
	})
}

// MarkForDeletion moves p from the stack to the trash bin. A photo is in the bin at
// most once; marking it again changes neither the bin nor the marked count.
func (m *Machine) MarkForDeletion(p photo.Photo) {
	m.enqueue(func() { m.markLocked(p) })
}

// MarkCurrent marks the photo under the cursor, if any.
func (m *Machine) MarkCurrent() {
	m.enqueue(func() {
		if m.st.Current != nil {
			m.markLocked(*m.st.Current)
		}
	})
}

func (m *Machine) markLocked(p photo.Photo) {
	st := m.st
	alreadyTrashed := photo.Contains(st.TrashBin, p.ID)
	stack := photo.Without(st.PhotoStack, []photo.Photo{p})

	index := st.CurrentIndex
	switch {
	case len(stack) == 0:
		index = 0
	case index > len(stack):
		index = len(stack)
	}

	st.PhotoStack = stack
	st = st.withViews(index)
	if !alreadyTrashed {
		st.TrashBin = appendPhoto(st.TrashBin, p)
		st.SessionMarkedCount++
	}
	st.IsSessionComplete = len(stack) == 0
	m.st = st
	m.publish()

	if !alreadyTrashed {
		m.persist("add_to_trash", func(ctx context.Context) error {
			return m.src.AddToTrash(ctx, []photo.Photo{p})
		})
	}
}

// ShowNext advances the cursor. Past the last photo the views clear and the session
// completes; the stack is kept.
func (m *Machine) ShowNext() {
	m.enqueue(func() {
		st := m.st
		size := len(st.PhotoStack)
		if size == 0 || st.CurrentIndex >= size {
			st = st.clearViews()
			st.IsSessionComplete = true
		} else {
			st = st.withViews(min(st.CurrentIndex+1, size))
			st.IsSessionComplete = false
		}
		m.st = st
		m.publish()
	})
}

// ShowPrevious moves the cursor back. No-op at the first photo.
func (m *Machine) ShowPrevious() {
	m.enqueue(func() {
		st := m.st
		size := len(st.PhotoStack)
		if size == 0 || st.CurrentIndex <= 1 {
			return
		}
		st = st.withViews(max(st.CurrentIndex-1, 1))
		st.IsSessionComplete = false
		m.st = st
		m.publish()
	})
}

// OpenReview shows the trash review without finishing the stack.
func (m *Machine) OpenReview() {
	m.enqueue(func() {
		m.st.IsSessionComplete = true
		m.publish()
	})
}

// RestoreSelected takes photos out of the trash bin. They do not return to the stack.
func (m *Machine) RestoreSelected(photos []photo.Photo) {
	if len(photos) == 0 {
		return
	}
	photos = append([]photo.Photo(nil), photos...)
	m.enqueue(func() {
		m.st.TrashBin = photo.Without(m.st.TrashBin, photos)
		m.st.IsSessionComplete = true
		m.publish()

		m.persist("remove_from_trash", func(ctx context.Context) error {
			return m.src.RemoveFromTrash(ctx, photos)
		})
	})
}

// resetSession clears the stack, the cursor and any pending deletion, and marks the
// machine loading. Executor only.
func (m *Machine) resetSession() {
	st := m.st
	st.PhotoStack = []photo.Photo{}
	st = st.clearViews()
	st.CurrentIndex = 0
	st.TotalCount = 0
	st.SessionMarkedCount = 0
	st.PendingConsent = nil
	st.IsDeleting = false
	st.IsSessionComplete = false
	st.IsLoading = true
	m.st = st
	m.pending = nil
	m.publish()
}

// startLoad builds a new session off the executor. A load finishing after a newer
// one started is discarded. Executor only.
func (m *Machine) startLoad(reindex bool) {
	m.generation++
	gen := m.generation
	mode, size := m.st.CurationMode, m.st.SessionSize

	m.async(func(ctx context.Context) {
		if reindex {
			if err := m.src.RefreshIndex(ctx); err != nil {
				log.Warn().Err(err).Msg("index refresh failed; using existing index")
			}
		}
		photos, err := m.src.GetPhotos(ctx, 0, size, mode)

		m.enqueue(func() {
			if gen != m.generation {
				log.Debug().Uint64("generation", gen).Msg("discarding stale session load")
				return
			}
			if err != nil {
				log.Error().Err(err).Msg("failed to load session")
				return
			}
			st := m.st
			st.PhotoStack = photos
			index := 0
			if len(photos) > 0 {
				index = 1
			}
			st = st.withViews(index)
			st.TotalCount = len(photos)
			st.SessionMarkedCount = 0
			st.IsSessionComplete = len(photos) == 0
			st.IsLoading = false
			m.st = st
			m.publish()
		})
	})
}
