package ops

import (
	"context"

	"github.com/hpungsan/tabula/internal/db"
	"github.com/hpungsan/tabula/internal/errors"
	"github.com/hpungsan/tabula/internal/photo"
)

// GetPhotosInput contains parameters for the GetPhotos operation.
type GetPhotosInput struct {
	// Offset is accepted for forward compatibility; neither mode paginates yet.
	Offset int
	Limit  int
	Mode   photo.CurationMode // empty means RANDOM
}

// GetPhotosOutput contains the result of the GetPhotos operation.
type GetPhotosOutput struct {
	Photos []photo.Photo      `json:"photos"`
	Mode   photo.CurationMode `json:"mode"`
	Count  int                `json:"count"`
}

// GetPhotos builds one review session from the photo index. len(Photos) <= Limit.
//
// RANDOM samples uniformly and is fresh on every call. BURST returns the photos of
// every burst (runs of >= 4 photos taken < 2s apart) in chronological order,
// truncated to Limit.
func GetPhotos(ctx context.Context, database db.Querier, input GetPhotosInput) (*GetPhotosOutput, error) {
	if input.Limit <= 0 {
		return nil, errors.NewInvalidRequest("limit must be positive")
	}
	mode, err := photo.ParseCurationMode(string(input.Mode))
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	var photos []photo.Photo
	switch mode {
	case photo.CurationBurst:
		sorted, err := db.PhotosByDateAsc(ctx, database)
		if err != nil {
			return nil, err
		}
		photos = photo.BurstSession(sorted, input.Limit)
	default:
		photos, err = db.RandomPhotos(ctx, database, input.Limit)
		if err != nil {
			return nil, err
		}
	}

	if photos == nil {
		photos = []photo.Photo{}
	}
	return &GetPhotosOutput{Photos: photos, Mode: mode, Count: len(photos)}, nil
}
