package indexer

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/hpungsan/tabula/internal/db"
	"github.com/hpungsan/tabula/internal/medialib"
	"github.com/hpungsan/tabula/internal/photo"
)

type fakeCursor struct {
	records []medialib.Record
	pos     int
	err     error
	// gate, when set, is received from before each record
	gate chan struct{}
}

func (c *fakeCursor) Count() int { return len(c.records) }
func (c *fakeCursor) Next() bool {
	if c.gate != nil {
		<-c.gate
	}
	if c.pos >= len(c.records) {
		return false
	}
	c.pos++
	return true
}
func (c *fakeCursor) Record() medialib.Record { return c.records[c.pos-1] }
func (c *fakeCursor) Err() error              { return c.err }
func (c *fakeCursor) Close() error            { return nil }

type fakeLibrary struct {
	cursor  medialib.Cursor
	err     error
	queried chan struct{}
}

func (l *fakeLibrary) Query(ctx context.Context) (medialib.Cursor, error) {
	if l.queried != nil {
		close(l.queried)
	}
	return l.cursor, l.err
}

func (l *fakeLibrary) Access(ctx context.Context) medialib.Access { return medialib.AccessGranted }

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func records(n int) []medialib.Record {
	out := make([]medialib.Record, n)
	for i := range out {
		out[i] = medialib.Record{ID: int64(i + 1), DateTaken: int64(1000 * (i + 1)), DateAdded: 1, URI: "u"}
	}
	return out
}

func TestRefresh_IndexesAndResolvesTimestamps(t *testing.T) {
	database := setupDB(t)
	lib := &fakeLibrary{cursor: &fakeCursor{records: []medialib.Record{
		{ID: 1, DateTaken: 5000, DateAdded: 9, URI: "A"},
		{ID: 2, DateTaken: 0, DateAdded: 7, URI: "B"},
	}}}
	ix := New(database, lib)

	out, err := ix.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if out.Indexed != 2 {
		t.Errorf("Indexed = %d, want 2", out.Indexed)
	}

	photos, err := db.PhotosByDateAsc(context.Background(), database)
	if err != nil {
		t.Fatalf("PhotosByDateAsc failed: %v", err)
	}
	want := []photo.Photo{{ID: 1, URI: "A", DateTaken: 5000}, {ID: 2, URI: "B", DateTaken: 7000}}
	if len(photos) != 2 || photos[0] != want[0] || photos[1] != want[1] {
		t.Errorf("index = %+v, want %+v", photos, want)
	}
	if ix.Progress().Get() != 100 {
		t.Errorf("progress = %d, want 100", ix.Progress().Get())
	}
}

func TestRefresh_ProgressMonotonic(t *testing.T) {
	database := setupDB(t)
	ix := New(database, &fakeLibrary{cursor: &fakeCursor{records: records(7)}})

	ch, cancel := ix.Progress().Subscribe()
	defer cancel()

	var (
		mu   sync.Mutex
		seen []int
		done = make(chan struct{})
	)
	go func() {
		defer close(done)
		sawZero := false
		for p := range ch {
			mu.Lock()
			seen = append(seen, p)
			mu.Unlock()
			if p == 0 {
				sawZero = true
			}
			if sawZero && p == 100 {
				return
			}
		}
	}()

	if _, err := ix.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("did not observe progress reach 100")
	}

	mu.Lock()
	defer mu.Unlock()
	// Initial idle value, then 0 .. 100 non-decreasing with no repeats
	if len(seen) < 3 || seen[0] != 100 || seen[1] != 0 {
		t.Fatalf("progress sequence = %v, want 100, 0, ..., 100", seen)
	}
	cycle := seen[1:]
	for i := 1; i < len(cycle); i++ {
		if cycle[i] <= cycle[i-1] {
			t.Errorf("progress not strictly increasing: %v", cycle)
			break
		}
	}
	if cycle[len(cycle)-1] != 100 {
		t.Errorf("progress ended at %d, want 100", cycle[len(cycle)-1])
	}
}

func TestRefresh_NilCursorKeepsIndex(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	if err := db.ReplacePhotos(ctx, database, []photo.Photo{{ID: 1, URI: "A"}}); err != nil {
		t.Fatalf("ReplacePhotos failed: %v", err)
	}

	ix := New(database, &fakeLibrary{})
	out, err := ix.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !out.Empty {
		t.Error("Empty = false, want true")
	}
	if n, _ := db.CountPhotos(ctx, database); n != 1 {
		t.Errorf("CountPhotos = %d, want 1 (index untouched)", n)
	}
	if ix.Progress().Get() != 100 {
		t.Errorf("progress = %d, want 100", ix.Progress().Get())
	}
}

func TestRefresh_EmptyLibraryClearsIndex(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	if err := db.ReplacePhotos(ctx, database, []photo.Photo{{ID: 1, URI: "A"}}); err != nil {
		t.Fatalf("ReplacePhotos failed: %v", err)
	}

	ix := New(database, &fakeLibrary{cursor: &fakeCursor{}})
	if _, err := ix.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if n, _ := db.CountPhotos(ctx, database); n != 0 {
		t.Errorf("CountPhotos = %d, want 0", n)
	}
}

func TestRefresh_FailureKeepsPriorIndex(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	if err := db.ReplacePhotos(ctx, database, []photo.Photo{{ID: 1, URI: "A"}, {ID: 2, URI: "B"}}); err != nil {
		t.Fatalf("ReplacePhotos failed: %v", err)
	}

	tests := []struct {
		name string
		lib  *fakeLibrary
	}{
		{"query error", &fakeLibrary{err: stderrors.New("boom")}},
		{"cursor error", &fakeLibrary{cursor: &fakeCursor{records: records(3), err: stderrors.New("io")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix := New(database, tt.lib)
			if _, err := ix.Refresh(ctx); err == nil {
				t.Fatal("Refresh should fail")
			}
			photos, err := db.PhotosByDateAsc(ctx, database)
			if err != nil {
				t.Fatalf("PhotosByDateAsc failed: %v", err)
			}
			if len(photos) != 2 || photos[0].URI != "A" || photos[1].URI != "B" {
				t.Errorf("index = %+v, want prior {A, B}", photos)
			}
			if ix.Progress().Get() != 100 {
				t.Errorf("progress = %d, want 100", ix.Progress().Get())
			}
		})
	}
}

func TestRefresh_CanceledBeforeSwapKeepsIndex(t *testing.T) {
	database := setupDB(t)
	if err := db.ReplacePhotos(context.Background(), database, []photo.Photo{{ID: 1, URI: "A"}}); err != nil {
		t.Fatalf("ReplacePhotos failed: %v", err)
	}

	gate := make(chan struct{})
	ix := New(database, &fakeLibrary{cursor: &fakeCursor{records: records(3), gate: gate}})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := ix.Refresh(ctx)
		errCh <- err
	}()

	gate <- struct{}{}
	cancel()
	close(gate)

	if err := <-errCh; err == nil {
		t.Fatal("canceled Refresh should fail")
	}
	photos, _ := db.PhotosByDateAsc(context.Background(), database)
	if len(photos) != 1 || photos[0].URI != "A" {
		t.Errorf("index = %+v, want prior {A}", photos)
	}
}

// changingLibrary snapshots its records when queried. The first query blocks on
// hold after taking its snapshot.
type changingLibrary struct {
	mu      sync.Mutex
	records []medialib.Record
	queries int
	queried chan struct{}
	hold    chan struct{}
}

func (l *changingLibrary) Query(ctx context.Context) (medialib.Cursor, error) {
	l.mu.Lock()
	l.queries++
	first := l.queries == 1
	snapshot := append([]medialib.Record(nil), l.records...)
	l.mu.Unlock()

	if first {
		close(l.queried)
		<-l.hold
	}
	return &fakeCursor{records: snapshot}, nil
}

func (l *changingLibrary) Access(ctx context.Context) medialib.Access { return medialib.AccessGranted }

func (l *changingLibrary) set(recs []medialib.Record) {
	l.mu.Lock()
	l.records = recs
	l.mu.Unlock()
}

func TestRefresh_ConcurrentWaitsAndRescans(t *testing.T) {
	database := setupDB(t)
	lib := &changingLibrary{
		records: []medialib.Record{{ID: 1, DateTaken: 1000, URI: "A"}},
		queried: make(chan struct{}),
		hold:    make(chan struct{}),
	}
	ix := New(database, lib)

	firstErr := make(chan error, 1)
	go func() {
		_, err := ix.Refresh(context.Background())
		firstErr <- err
	}()
	<-lib.queried

	lib.set([]medialib.Record{{ID: 2, DateTaken: 2000, URI: "B"}})
	secondErr := make(chan error, 1)
	go func() {
		_, err := ix.Refresh(context.Background())
		secondErr <- err
	}()

	select {
	case err := <-secondErr:
		t.Fatalf("second Refresh returned before the first finished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(lib.hold)
	if err := <-firstErr; err != nil {
		t.Errorf("first Refresh failed: %v", err)
	}
	if err := <-secondErr; err != nil {
		t.Errorf("second Refresh failed: %v", err)
	}

	photos, err := db.PhotosByDateAsc(context.Background(), database)
	if err != nil {
		t.Fatalf("PhotosByDateAsc failed: %v", err)
	}
	if len(photos) != 1 || photos[0].ID != 2 {
		t.Errorf("index = %+v, want the library after the change", photos)
	}
	if got := ix.Progress().Get(); got != 100 {
		t.Errorf("progress = %d, want 100", got)
	}
}

func TestRefresh_WaitHonorsContext(t *testing.T) {
	database := setupDB(t)
	gate := make(chan struct{})
	queried := make(chan struct{})
	ix := New(database, &fakeLibrary{cursor: &fakeCursor{records: records(2), gate: gate}, queried: queried})

	errCh := make(chan error, 1)
	go func() {
		_, err := ix.Refresh(context.Background())
		errCh <- err
	}()
	<-queried

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := ix.Refresh(ctx); !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("waiting Refresh error = %v, want deadline exceeded", err)
	}

	close(gate)
	if err := <-errCh; err != nil {
		t.Errorf("first Refresh failed: %v", err)
	}
}
