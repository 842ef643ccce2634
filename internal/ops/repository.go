package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/tabula/internal/indexer"
	"github.com/hpungsan/tabula/internal/medialib"
	"github.com/hpungsan/tabula/internal/observe"
	"github.com/hpungsan/tabula/internal/photo"
)

// Repository bundles the photo index, the trash, the indexer, and the deletion
// gateway behind the narrow interface the review session consumes.
type Repository struct {
	db      *sql.DB
	indexer *indexer.Indexer
	gateway medialib.Gateway
}

// NewRepository returns a repository over database.
func NewRepository(database *sql.DB, ix *indexer.Indexer, gw medialib.Gateway) *Repository {
	return &Repository{db: database, indexer: ix, gateway: gw}
}

// DB returns the underlying store handle.
func (r *Repository) DB() *sql.DB {
	return r.db
}

// GetPhotos builds one review session.
func (r *Repository) GetPhotos(ctx context.Context, offset, limit int, mode photo.CurationMode) ([]photo.Photo, error) {
	out, err := GetPhotos(ctx, r.db, GetPhotosInput{Offset: offset, Limit: limit, Mode: mode})
	if err != nil {
		return nil, err
	}
	return out.Photos, nil
}

// DeletePhotos asks the gateway to remove the given URIs from the library.
func (r *Repository) DeletePhotos(ctx context.Context, uris []string) medialib.DeleteResult {
	return r.gateway.Delete(ctx, uris)
}

// RefreshIndex rebuilds the photo index from the media library.
func (r *Repository) RefreshIndex(ctx context.Context) error {
	_, err := r.indexer.Refresh(ctx)
	return err
}

// IndexingProgress is the observable 0..100 indexing progress.
func (r *Repository) IndexingProgress() *observe.Value[int] {
	return r.indexer.Progress()
}

// AddToTrash stages photos.
func (r *Repository) AddToTrash(ctx context.Context, photos []photo.Photo) error {
	_, err := AddToTrash(ctx, r.db, AddToTrashInput{Photos: photos})
	return err
}

// RemoveFromTrash drops photos from the trash.
func (r *Repository) RemoveFromTrash(ctx context.Context, photos []photo.Photo) error {
	_, err := RemoveFromTrash(ctx, r.db, RemoveFromTrashInput{IDs: photo.IDs(photos)})
	return err
}

// ClearTrash empties the trash.
func (r *Repository) ClearTrash(ctx context.Context) error {
	_, err := ClearTrash(ctx, r.db)
	return err
}

// GetTrashPhotos returns the staged photos, most recently staged first.
func (r *Repository) GetTrashPhotos(ctx context.Context) ([]photo.Photo, error) {
	out, err := ListTrash(ctx, r.db)
	if err != nil {
		return nil, err
	}
	photos := make([]photo.Photo, len(out.Items))
	for i, e := range out.Items {
		photos[i] = e.Photo()
	}
	return photos, nil
}
