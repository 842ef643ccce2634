package ops

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hpungsan/tabula/internal/db"
	"github.com/hpungsan/tabula/internal/errors"
	"github.com/hpungsan/tabula/internal/photo"
)

// AddToTrashInput contains parameters for the AddToTrash operation.
type AddToTrashInput struct {
	Photos   []photo.Photo
	StagedAt int64 // ms; 0 means now
}

// AddToTrashOutput contains the result of the AddToTrash operation.
type AddToTrashOutput struct {
	Staged   int   `json:"staged"`
	StagedAt int64 `json:"staged_at"`
}

// AddToTrash stages photos for deletion. Re-staging a photo replaces its entry.
func AddToTrash(ctx context.Context, database *sql.DB, input AddToTrashInput) (*AddToTrashOutput, error) {
	for i, p := range input.Photos {
		if p.ID <= 0 {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("photos[%d]: id must be positive", i))
		}
		if p.URI == "" {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("photos[%d]: uri is required", i))
		}
	}

	stagedAt := input.StagedAt
	if stagedAt == 0 {
		stagedAt = nowMillis()
	}

	if err := db.InsertTrash(ctx, database, input.Photos, stagedAt); err != nil {
		return nil, err
	}
	return &AddToTrashOutput{Staged: len(input.Photos), StagedAt: stagedAt}, nil
}

// RemoveFromTrashInput contains parameters for the RemoveFromTrash operation.
type RemoveFromTrashInput struct {
	IDs []int64
}

// RemoveFromTrashOutput contains the result of the RemoveFromTrash operation.
type RemoveFromTrashOutput struct {
	Removed int `json:"removed"`
}

// RemoveFromTrash drops entries from the trash. Unknown ids are ignored.
func RemoveFromTrash(ctx context.Context, database db.Querier, input RemoveFromTrashInput) (*RemoveFromTrashOutput, error) {
	n, err := db.DeleteTrashByIDs(ctx, database, input.IDs)
	if err != nil {
		return nil, err
	}
	return &RemoveFromTrashOutput{Removed: n}, nil
}

// ClearTrashOutput contains the result of the ClearTrash operation.
type ClearTrashOutput struct {
	Cleared int `json:"cleared"`
}

// ClearTrash empties the trash.
func ClearTrash(ctx context.Context, database db.Querier) (*ClearTrashOutput, error) {
	n, err := db.ClearTrash(ctx, database)
	if err != nil {
		return nil, err
	}
	return &ClearTrashOutput{Cleared: n}, nil
}

// ListTrashOutput contains the result of the ListTrash operation.
type ListTrashOutput struct {
	Items []photo.TrashEntry `json:"items"`
	Count int                `json:"count"`
}

// ListTrash returns staged entries, most recently staged first.
func ListTrash(ctx context.Context, database db.Querier) (*ListTrashOutput, error) {
	items, err := db.ListTrash(ctx, database)
	if err != nil {
		return nil, err
	}
	return &ListTrashOutput{Items: items, Count: len(items)}, nil
}
