// Package review owns the photo review session: the card stack, the staged trash,
// and the deletion consent round-trip.
//
// All state lives on one executor goroutine. Public methods enqueue work and return
// immediately; slow work (indexing, store reads, gateway calls) runs on separate
// goroutines that post their results back to the executor. Every change is published
// as a fresh State snapshot.
package review

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/tabula/internal/errors"
	"github.com/hpungsan/tabula/internal/medialib"
	"github.com/hpungsan/tabula/internal/observe"
	"github.com/hpungsan/tabula/internal/photo"
	"github.com/hpungsan/tabula/internal/prefs"
)

// DataSource is the persistence and platform surface the machine drives.
type DataSource interface {
	GetPhotos(ctx context.Context, offset, limit int, mode photo.CurationMode) ([]photo.Photo, error)
	DeletePhotos(ctx context.Context, uris []string) medialib.DeleteResult
	RefreshIndex(ctx context.Context) error
	IndexingProgress() *observe.Value[int]
	AddToTrash(ctx context.Context, photos []photo.Photo) error
	RemoveFromTrash(ctx context.Context, photos []photo.Photo) error
	ClearTrash(ctx context.Context) error
	GetTrashPhotos(ctx context.Context) ([]photo.Photo, error)
}

// AccessProber reports media access. medialib.Library satisfies it.
type AccessProber interface {
	Access(ctx context.Context) medialib.Access
}

// Options configures a Machine.
type Options struct {
	// Access probes media access for UpdateMediaAccess. Nil disables probing.
	Access AccessProber

	// SkipInitialRescan loads a session from the existing index instead of
	// re-indexing the library at startup.
	SkipInitialRescan bool
}

// Machine is the review session state machine.
type Machine struct {
	src    DataSource
	prefs  *prefs.Store
	access AccessProber

	ctx    context.Context
	cancel context.CancelFunc
	ops    chan func()
	done   chan struct{}
	wg     sync.WaitGroup
	writes *writeQueue
	unsubs []func()
	state  *observe.Value[State]

	closeOnce sync.Once

	// Executor-owned
	st         State
	pending    *pendingDeletion
	generation uint64
	attempt    uint64
}

// New starts a machine: it loads the persisted trash, starts observing indexing
// progress and preferences, and begins the first session.
func New(src DataSource, p *prefs.Store, opts Options) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	v := p.Snapshot()

	initial := State{
		PhotoStack:          []photo.Photo{},
		TrashBin:            []photo.Photo{},
		CurationMode:        v.CurationMode,
		SessionSize:         v.SessionSize,
		Theme:               v.Theme,
		Language:            v.Language,
		OnboardingCompleted: v.OnboardingCompleted,
		IndexingProgress:    src.IndexingProgress().Get(),
		IsLoading:           true,
		Access:              medialib.AccessUnknown,
	}

	m := &Machine{
		src:    src,
		prefs:  p,
		access: opts.Access,
		ctx:    ctx,
		cancel: cancel,
		ops:    make(chan func(), 64),
		done:   make(chan struct{}),
		writes: newWriteQueue(),
		state:  observe.New(initial, nil),
		st:     initial,
	}

	go m.run()
	go m.writes.run(context.Background())

	watch(m, src.IndexingProgress(), func(st *State, progress int) {
		st.IndexingProgress = progress
		st.IsIndexing = progress >= 0 && progress < 100
	})
	watch(m, p.Theme, func(st *State, t prefs.ThemeMode) { st.Theme = t })
	watch(m, p.Language, func(st *State, l prefs.Language) { st.Language = l })
	watch(m, p.OnboardingCompleted, func(st *State, done bool) { st.OnboardingCompleted = done })

	m.loadTrashBin()
	if opts.SkipInitialRescan {
		m.RefreshSession()
	} else {
		m.RescanLibrary()
	}
	return m
}

// watch mirrors an observable into the state for the machine's lifetime.
func watch[T any](m *Machine, v *observe.Value[T], apply func(*State, T)) {
	ch, cancel := v.Subscribe()
	m.unsubs = append(m.unsubs, cancel)
	go func() {
		for x := range ch {
			if !m.enqueue(func() {
				apply(&m.st, x)
				m.publish()
			}) {
				return
			}
		}
	}()
}

func (m *Machine) run() {
	defer close(m.done)
	for {
		select {
		case fn := <-m.ops:
			fn()
		case <-m.ctx.Done():
			return
		}
	}
}

// enqueue schedules fn on the executor. Returns false once the machine is closed.
func (m *Machine) enqueue(fn func()) bool {
	select {
	case <-m.ctx.Done():
		return false
	default:
	}
	select {
	case m.ops <- fn:
		return true
	case <-m.ctx.Done():
		return false
	}
}

// async runs fn off the executor, tracked for Close. Call only from the executor
// (or New, before the machine is shared).
func (m *Machine) async(fn func(ctx context.Context)) {
	if m.ctx.Err() != nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(m.ctx)
	}()
}

// persist queues a store write. Writes run in order and survive Close.
func (m *Machine) persist(what string, fn func(ctx context.Context) error) {
	m.writes.push(func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			log.Error().Err(err).Str("op", what).Msg("failed to persist trash change")
		}
	})
}

// publish bumps the version and broadcasts the current state. Executor only.
func (m *Machine) publish() {
	m.st.Version++
	m.state.Set(m.st)
}

// Snapshot returns the latest published state.
func (m *Machine) Snapshot() State {
	return m.state.Get()
}

// Subscribe streams state snapshots, starting with the current one.
func (m *Machine) Subscribe() (<-chan State, func()) {
	return m.state.Subscribe()
}

// Await blocks until pred holds for a published state.
func (m *Machine) Await(ctx context.Context, pred func(State) bool) (State, error) {
	return observe.Await(ctx, m.state, pred)
}

// Sync returns once every operation enqueued before it has run. It fails with
// CONFLICT when the machine is closed.
func (m *Machine) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if !m.enqueue(func() { close(done) }) {
		return errors.NewConflict("review session is closed")
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every queued store write has been applied.
func (m *Machine) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !m.writes.push(func(context.Context) { close(done) }) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the machine. Queued store writes are applied before it returns.
func (m *Machine) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		for _, unsub := range m.unsubs {
			unsub()
		}
		<-m.done
		m.wg.Wait()
		m.writes.close()
		<-m.writes.done
		m.state.Close()
	})
}

// loadTrashBin merges the persisted trash into the in-memory bin.
func (m *Machine) loadTrashBin() {
	m.async(func(ctx context.Context) {
		stored, err := m.src.GetTrashPhotos(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to load trash")
			return
		}
		m.enqueue(func() {
			merged := m.st.TrashBin
			for _, p := range stored {
				if !photo.Contains(merged, p.ID) {
					merged = appendPhoto(merged, p)
				}
			}
			m.st.TrashBin = merged
			m.publish()
		})
	})
}
