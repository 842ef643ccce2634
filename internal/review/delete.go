package review

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/tabula/internal/medialib"
	"github.com/hpungsan/tabula/internal/photo"
)

// DeleteSelected permanently deletes photos from the trash bin.
func (m *Machine) DeleteSelected(photos []photo.Photo) {
	if len(photos) == 0 {
		return
	}
	photos = append([]photo.Photo(nil), photos...)
	m.enqueue(func() {
		m.performDeleteLocked(&pendingDeletion{photos: photos, mode: ModeRecoverable})
	})
}

// ConfirmBurn deletes everything in the trash bin and starts a new session.
func (m *Machine) ConfirmBurn() {
	m.enqueue(func() {
		if len(m.st.TrashBin) == 0 {
			return
		}
		m.performDeleteLocked(&pendingDeletion{
			photos:       m.st.TrashBin,
			shouldReload: true,
			mode:         ModeRecoverable,
		})
	})
}

// OnDeletePermissionResult answers the outstanding consent prompt.
//
// Denial leaves the trash bin untouched. A granted batch consent is the deletion
// itself, so the photos leave the bin without another gateway call. A granted
// single-item consent retries the gateway.
func (m *Machine) OnDeletePermissionResult(granted bool) {
	m.enqueue(func() { m.answerPendingLocked(granted) })
}

func (m *Machine) answerPendingLocked(granted bool) {
	pd := m.pending
	if pd == nil {
		return
	}
	switch {
	case !granted:
		log.Info().Int("photos", len(pd.photos)).Msg("deletion denied")
		m.pending = nil
		m.st.PendingConsent = nil
		m.st.IsDeleting = false
		m.publish()
	case pd.mode == ModeBatch:
		m.finishDeletionLocked(pd, pd.photos)
	default:
		m.performDeleteLocked(pd)
	}
}

// performDeleteLocked makes pd the pending deletion and calls the gateway. A later
// request supersedes it and takes over the consent prompt.
func (m *Machine) performDeleteLocked(pd *pendingDeletion) {
	m.attempt++
	pd.attempt = m.attempt
	pd.handle = ""
	m.pending = pd
	m.st.PendingConsent = nil
	m.st.IsDeleting = true
	m.publish()

	attempt := pd.attempt
	photos := pd.photos
	uris := photo.URIs(photos)
	m.async(func(ctx context.Context) {
		res := m.src.DeletePhotos(ctx, uris)
		m.enqueue(func() { m.onDeleteResult(attempt, photos, res) })
	})
}

// onDeleteResult applies a gateway result. Files the gateway reports as removed
// leave the trash even when the attempt was superseded or the session was reset;
// consent prompts and failures only apply to the current attempt.
func (m *Machine) onDeleteResult(attempt uint64, photos []photo.Photo, res medialib.DeleteResult) {
	pd := m.pending
	if pd == nil || pd.attempt != attempt {
		if res.Kind == medialib.ResultSuccess {
			if gone := withURIs(photos, res.Deleted); len(gone) > 0 {
				m.dropDeletedLocked(gone)
				m.publish()
				log.Info().Uint64("attempt", attempt).Int("photos", len(gone)).Msg("applied superseded delete result")
				return
			}
		}
		log.Debug().Uint64("attempt", attempt).Msg("discarding superseded delete result")
		return
	}

	switch res.Kind {
	case medialib.ResultSuccess:
		m.finishDeletionLocked(pd, withURIs(pd.photos, res.Deleted))
	case medialib.ResultConsentRequired:
		if res.Consent != nil && res.Consent.Scope == medialib.ScopeBatch {
			pd.mode = ModeBatch
		} else {
			pd.mode = ModeRecoverable
		}
		if res.Consent != nil {
			pd.handle = res.Consent.Handle
		}
		m.st.PendingConsent = res.Consent
		m.st.IsDeleting = false
		m.publish()
	default:
		log.Warn().Str("reason", res.Reason).Int("photos", len(pd.photos)).Int("removed", len(res.Deleted)).Msg("deletion failed")
		m.pending = nil
		m.st.PendingConsent = nil
		m.st.IsDeleting = false
		m.publish()
	}
}

// finishDeletionLocked drops the deleted photos from the trash bin and the trash
// store. A burn that removed everything rebuilds the session from a fresh index.
func (m *Machine) finishDeletionLocked(pd *pendingDeletion, gone []photo.Photo) {
	burn := pd.shouldReload && len(gone) == len(pd.photos)

	var remaining []photo.Photo
	if burn {
		m.persist("clear_trash", m.src.ClearTrash)
		remaining = []photo.Photo{}
	} else {
		if len(gone) > 0 {
			m.persist("remove_from_trash", func(ctx context.Context) error {
				return m.src.RemoveFromTrash(ctx, gone)
			})
		}
		remaining = photo.Without(m.st.TrashBin, gone)
	}

	m.st.TrashBin = remaining
	m.st.PendingConsent = nil
	m.st.IsDeleting = false
	m.st.IsSessionComplete = !burn && len(remaining) > 0
	m.pending = nil
	m.publish()

	log.Info().Int("photos", len(gone)).Int("requested", len(pd.photos)).Bool("burn", burn).Msg("deleted photos")

	if burn {
		m.resetSession()
		m.startLoad(true)
	}
}

// dropDeletedLocked removes photos whose files are gone from the bin and the store.
func (m *Machine) dropDeletedLocked(gone []photo.Photo) {
	m.st.TrashBin = photo.Without(m.st.TrashBin, gone)
	m.persist("remove_from_trash", func(ctx context.Context) error {
		return m.src.RemoveFromTrash(ctx, gone)
	})
}

// withURIs returns the photos whose URI is in uris.
func withURIs(photos []photo.Photo, uris []string) []photo.Photo {
	set := make(map[string]bool, len(uris))
	for _, u := range uris {
		set[u] = true
	}
	var out []photo.Photo
	for _, p := range photos {
		if set[p.URI] {
			out = append(out, p)
		}
	}
	return out
}
