package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/tabula/internal/errors"
)

// GetPreference returns the stored value for key and whether it exists.
func GetPreference(ctx context.Context, q Querier, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewStorage(err)
	}
	return value, true, nil
}

// SetPreference upserts key.
func SetPreference(ctx context.Context, q Querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// AllPreferences returns every stored preference.
func AllPreferences(ctx context.Context, q Querier) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM preferences ORDER BY key`)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.NewStorage(err)
		}
		prefs[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(err)
	}
	return prefs, nil
}
