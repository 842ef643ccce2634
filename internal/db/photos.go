package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/tabula/internal/errors"
	"github.com/hpungsan/tabula/internal/photo"
)

// ReplacePhotos swaps the whole photo index for photos in one transaction.
// On any failure the previous index is left untouched.
func ReplacePhotos(ctx context.Context, db *sql.DB, photos []photo.Photo) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorage(err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM photos`); err != nil {
		return errors.NewStorage(err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO photos (id, dateTaken, uri) VALUES (?, ?, ?)`)
	if err != nil {
		return errors.NewStorage(err)
	}
	defer stmt.Close()

	for i, p := range photos {
		// Check cancellation periodically so a long swap can be abandoned
		if i%500 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.DateTaken, p.URI); err != nil {
			return errors.NewStorage(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// RandomPhotos returns up to limit photos in random order.
func RandomPhotos(ctx context.Context, q Querier, limit int) ([]photo.Photo, error) {
	return queryPhotos(ctx, q, `
		SELECT id, COALESCE(dateTaken, 0), COALESCE(uri, '')
		FROM photos
		ORDER BY RANDOM()
		LIMIT ?
	`, limit)
}

// PhotosByDateAsc returns every indexed photo ordered by capture time (oldest first).
// Ties are broken by id so the order is stable.
func PhotosByDateAsc(ctx context.Context, q Querier) ([]photo.Photo, error) {
	return queryPhotos(ctx, q, `
		SELECT id, COALESCE(dateTaken, 0), COALESCE(uri, '')
		FROM photos
		ORDER BY dateTaken ASC, id ASC
	`)
}

// GetPhoto retrieves one indexed photo by id.
func GetPhoto(ctx context.Context, q Querier, id int64) (*photo.Photo, error) {
	var p photo.Photo
	err := q.QueryRowContext(ctx, `
		SELECT id, COALESCE(dateTaken, 0), COALESCE(uri, '')
		FROM photos
		WHERE id = ?
	`, id).Scan(&p.ID, &p.DateTaken, &p.URI)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("photo", formatID(id))
	}
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	return &p, nil
}

// CountPhotos returns the number of indexed photos.
func CountPhotos(ctx context.Context, q Querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM photos`).Scan(&n); err != nil {
		return 0, errors.NewStorage(err)
	}
	return n, nil
}

// MaxDateTaken returns the newest capture time in the index, or 0 when empty.
func MaxDateTaken(ctx context.Context, q Querier) (int64, error) {
	var n sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(dateTaken) FROM photos`).Scan(&n); err != nil {
		return 0, errors.NewStorage(err)
	}
	return n.Int64, nil
}

func queryPhotos(ctx context.Context, q Querier, query string, args ...any) ([]photo.Photo, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	defer rows.Close()

	photos := []photo.Photo{}
	for rows.Next() {
		var p photo.Photo
		if err := rows.Scan(&p.ID, &p.DateTaken, &p.URI); err != nil {
			return nil, errors.NewStorage(err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(err)
	}
	return photos, nil
}
