// Package indexer rebuilds the local photo index from the media library.
package indexer

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/hpungsan/tabula/internal/db"
	"github.com/hpungsan/tabula/internal/errors"
	"github.com/hpungsan/tabula/internal/medialib"
	"github.com/hpungsan/tabula/internal/observe"
	"github.com/hpungsan/tabula/internal/photo"
)

// Indexer copies the media library into the photo index and reports progress 0..100.
type Indexer struct {
	db       *sql.DB
	lib      medialib.Library
	progress *observe.Value[int]

	// one refresh at a time
	sem *semaphore.Weighted
}

// RefreshOutput summarizes one refresh.
type RefreshOutput struct {
	Indexed  int           `json:"indexed"`
	Empty    bool          `json:"empty,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// New returns an indexer. Progress starts at 100 (idle).
func New(database *sql.DB, lib medialib.Library) *Indexer {
	return &Indexer{
		db:       database,
		lib:      lib,
		progress: observe.NewComparable(100),
		sem:      semaphore.NewWeighted(1),
	}
}

// Progress is the observable indexing progress. Consecutive duplicates are coalesced.
func (ix *Indexer) Progress() *observe.Value[int] {
	return ix.progress
}

// Refresh rebuilds the index. Any failure leaves the previous index intact and
// progress at 100; the error is for logging.
// A refresh started while another is running waits for it, then scans the library
// again, so the index reflects the library as of the latest call.
func (ix *Indexer) Refresh(ctx context.Context) (*RefreshOutput, error) {
	if err := ix.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer ix.sem.Release(1)
	defer ix.progress.Set(100)

	start := time.Now()
	ix.progress.Set(0)

	cursor, err := ix.lib.Query(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("media library query failed")
		return nil, errors.NewInternal(err)
	}
	if cursor == nil {
		log.Info().Msg("media library has nothing to index")
		return &RefreshOutput{Empty: true, Duration: time.Since(start)}, nil
	}
	defer cursor.Close()

	total := max(cursor.Count(), 1)
	photos := make([]photo.Photo, 0, cursor.Count())
	processed := 0

	for cursor.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := cursor.Record()
		photos = append(photos, photo.Photo{
			ID:        rec.ID,
			URI:       rec.URI,
			DateTaken: photo.ResolveTimestamp(rec.DateTaken, rec.DateAdded),
		})
		processed++
		ix.progress.Set(min(processed*100/total, 100))
	}
	if err := cursor.Err(); err != nil {
		log.Warn().Err(err).Msg("media library cursor failed")
		return nil, errors.NewInternal(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := db.ReplacePhotos(ctx, ix.db, photos); err != nil {
		log.Warn().Err(err).Msg("failed to replace photo index")
		return nil, err
	}

	out := &RefreshOutput{Indexed: len(photos), Duration: time.Since(start)}
	log.Info().Int("indexed", out.Indexed).Dur("took", out.Duration).Msg("photo index refreshed")
	return out, nil
}
