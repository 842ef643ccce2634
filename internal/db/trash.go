package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/hpungsan/tabula/internal/errors"
	"github.com/hpungsan/tabula/internal/photo"
)

// InsertTrash stages photos in the trash. stagedAt is stored in the dateAdded column.
// Existing rows with the same id are replaced.
func InsertTrash(ctx context.Context, db *sql.DB, photos []photo.Photo, stagedAt int64) error {
	if len(photos) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorage(err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, p := range photos {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO trash_photos (id, uri, dateAdded) VALUES (?, ?, ?)`,
			p.ID, p.URI, stagedAt,
		)
		if err != nil {
			return errors.NewStorage(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// DeleteTrashByIDs removes the given ids from the trash.
// Returns the number of rows removed; unknown ids are ignored.
func DeleteTrashByIDs(ctx context.Context, q Querier, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `DELETE FROM trash_photos WHERE id IN (` + strings.Join(placeholders, ", ") + `)`
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewStorage(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewStorage(err)
	}
	return int(n), nil
}

// ClearTrash removes every staged entry. Returns the number of rows removed.
func ClearTrash(ctx context.Context, q Querier) (int, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM trash_photos`)
	if err != nil {
		return 0, errors.NewStorage(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewStorage(err)
	}
	return int(n), nil
}

// ListTrash returns staged entries, most recently staged first.
// DateTaken is recovered from the photo index when the photo is still indexed, else 0.
func ListTrash(ctx context.Context, q Querier) ([]photo.TrashEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT t.id, COALESCE(t.uri, ''), COALESCE(t.dateAdded, 0), COALESCE(p.dateTaken, 0)
		FROM trash_photos t
		LEFT JOIN photos p ON p.id = t.id
		ORDER BY t.dateAdded DESC, t.id ASC
	`)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	defer rows.Close()

	entries := []photo.TrashEntry{}
	for rows.Next() {
		var e photo.TrashEntry
		if err := rows.Scan(&e.ID, &e.URI, &e.StagedAt, &e.DateTaken); err != nil {
			return nil, errors.NewStorage(err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(err)
	}
	return entries, nil
}

// CountTrash returns the number of staged entries.
func CountTrash(ctx context.Context, q Querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM trash_photos`).Scan(&n); err != nil {
		return 0, errors.NewStorage(err)
	}
	return n, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
