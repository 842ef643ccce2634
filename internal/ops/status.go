package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/tabula/internal/db"
	"github.com/hpungsan/tabula/internal/photo"
)

// StatusOutput summarizes the local stores.
type StatusOutput struct {
	Indexed       int    `json:"indexed"`
	Trash         int    `json:"trash"`
	NewestTaken   int64  `json:"newest_taken,omitempty"`
	NewestMonth   string `json:"newest_month,omitempty"`
	SchemaVersion int    `json:"schema_version"`
}

// Status reports index and trash counts.
func Status(ctx context.Context, database *sql.DB) (*StatusOutput, error) {
	indexed, err := db.CountPhotos(ctx, database)
	if err != nil {
		return nil, err
	}
	trash, err := db.CountTrash(ctx, database)
	if err != nil {
		return nil, err
	}
	newest, err := db.MaxDateTaken(ctx, database)
	if err != nil {
		return nil, err
	}
	version, err := db.GetUserVersion(database)
	if err != nil {
		return nil, err
	}

	out := &StatusOutput{
		Indexed:       indexed,
		Trash:         trash,
		NewestTaken:   newest,
		SchemaVersion: version,
	}
	if newest > 0 {
		out.NewestMonth = photo.Photo{DateTaken: newest}.MonthLabel()
	}
	return out, nil
}
