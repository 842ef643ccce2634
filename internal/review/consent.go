package review

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/tabula/internal/errors"
	"github.com/hpungsan/tabula/internal/medialib"
)

// ConsentResolver settles a consent prompt on the platform side.
// medialib.FSGateway satisfies it.
type ConsentResolver interface {
	Resolve(ctx context.Context, handle string, granted bool) error
}

// AnswerConsent resolves the machine's pending consent prompt and feeds the answer
// back into the machine. handle must match the prompt currently shown, both before
// the platform is asked and when the answer is applied.
func AnswerConsent(ctx context.Context, m *Machine, r ConsentResolver, handle string, granted bool) error {
	req, err := m.consentPrompt(ctx, handle)
	if err != nil {
		return err
	}
	if err := r.Resolve(ctx, handle, granted); err != nil {
		return err
	}
	m.answerConsent(req, granted)
	return nil
}

// consentPrompt returns the pending prompt if its handle is handle.
func (m *Machine) consentPrompt(ctx context.Context, handle string) (medialib.ConsentRequest, error) {
	reply := make(chan *medialib.ConsentRequest, 1)
	ok := m.enqueue(func() {
		pc := m.st.PendingConsent
		if pc == nil || pc.Handle != handle || m.pending == nil || m.pending.handle != handle {
			reply <- nil
			return
		}
		req := *pc
		reply <- &req
	})
	if !ok {
		return medialib.ConsentRequest{}, errors.NewConflict("review session is closed")
	}

	select {
	case req := <-reply:
		if req == nil {
			return medialib.ConsentRequest{}, errors.NewNotFound("consent", handle)
		}
		return *req, nil
	case <-ctx.Done():
		return medialib.ConsentRequest{}, ctx.Err()
	}
}

// answerConsent applies an answer already given to the platform. If another deletion
// took over the prompt meanwhile, the answer does not touch it; a granted batch
// prompt still removed its files, so those photos leave the trash.
func (m *Machine) answerConsent(req medialib.ConsentRequest, granted bool) {
	m.enqueue(func() {
		if pd := m.pending; pd != nil && pd.handle == req.Handle {
			m.answerPendingLocked(granted)
			return
		}
		if granted && req.Scope == medialib.ScopeBatch {
			if gone := withURIs(m.st.TrashBin, req.URIs); len(gone) > 0 {
				m.dropDeletedLocked(gone)
				m.publish()
			}
		}
		log.Debug().Str("handle", req.Handle).Msg("consent answered for a superseded deletion")
	})
}
