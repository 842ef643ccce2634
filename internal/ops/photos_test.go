package ops

import (
	"context"
	"database/sql"
	"testing"

	"github.com/hpungsan/tabula/internal/db"
	"github.com/hpungsan/tabula/internal/errors"
	"github.com/hpungsan/tabula/internal/photo"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func seed(t *testing.T, database *sql.DB, timestamps ...int64) {
	t.Helper()
	photos := make([]photo.Photo, len(timestamps))
	for i, ts := range timestamps {
		photos[i] = photo.Photo{ID: int64(i + 1), URI: "file:///p.jpg", DateTaken: ts}
	}
	if err := db.ReplacePhotos(context.Background(), database, photos); err != nil {
		t.Fatalf("ReplacePhotos failed: %v", err)
	}
}

func TestGetPhotos_Random(t *testing.T) {
	database := setupDB(t)
	seed(t, database, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	out, err := GetPhotos(context.Background(), database, GetPhotosInput{Limit: 4})
	if err != nil {
		t.Fatalf("GetPhotos failed: %v", err)
	}
	if out.Mode != photo.CurationRandom {
		t.Errorf("Mode = %s, want RANDOM (default)", out.Mode)
	}
	if out.Count != 4 || len(out.Photos) != 4 {
		t.Errorf("Count = %d, len = %d, want 4", out.Count, len(out.Photos))
	}
}

func TestGetPhotos_RandomFewerThanLimit(t *testing.T) {
	database := setupDB(t)
	seed(t, database, 1, 2)

	out, err := GetPhotos(context.Background(), database, GetPhotosInput{Limit: 15, Mode: photo.CurationRandom})
	if err != nil {
		t.Fatalf("GetPhotos failed: %v", err)
	}
	if out.Count != 2 {
		t.Errorf("Count = %d, want 2", out.Count)
	}
}

func TestGetPhotos_Burst(t *testing.T) {
	database := setupDB(t)
	seed(t, database, 5800, 0, 5000, 500, 6200, 900, 5400)

	out, err := GetPhotos(context.Background(), database, GetPhotosInput{Limit: 10, Mode: photo.CurationBurst})
	if err != nil {
		t.Fatalf("GetPhotos failed: %v", err)
	}

	want := []int64{5000, 5400, 5800, 6200}
	if len(out.Photos) != len(want) {
		t.Fatalf("photos = %+v, want timestamps %v", out.Photos, want)
	}
	for i, ts := range want {
		if out.Photos[i].DateTaken != ts {
			t.Errorf("photos[%d].DateTaken = %d, want %d", i, out.Photos[i].DateTaken, ts)
		}
	}
}

func TestGetPhotos_BurstTruncatesAndNoBursts(t *testing.T) {
	database := setupDB(t)
	seed(t, database, 0, 100, 200, 300, 400)

	out, err := GetPhotos(context.Background(), database, GetPhotosInput{Limit: 3, Mode: photo.CurationBurst})
	if err != nil {
		t.Fatalf("GetPhotos failed: %v", err)
	}
	if len(out.Photos) != 3 {
		t.Errorf("len = %d, want 3 (truncated mid-burst)", len(out.Photos))
	}

	sparse := setupDB(t)
	seed(t, sparse, 0, 10000, 20000)
	out, err = GetPhotos(context.Background(), sparse, GetPhotosInput{Limit: 10, Mode: photo.CurationBurst})
	if err != nil {
		t.Fatalf("GetPhotos failed: %v", err)
	}
	if out.Photos == nil || len(out.Photos) != 0 {
		t.Errorf("photos = %v, want empty non-nil", out.Photos)
	}
}

func TestGetPhotos_OffsetIgnored(t *testing.T) {
	database := setupDB(t)
	seed(t, database, 0, 100, 200, 300)

	a, err := GetPhotos(context.Background(), database, GetPhotosInput{Limit: 10, Mode: photo.CurationBurst})
	if err != nil {
		t.Fatalf("GetPhotos failed: %v", err)
	}
	b, err := GetPhotos(context.Background(), database, GetPhotosInput{Offset: 2, Limit: 10, Mode: photo.CurationBurst})
	if err != nil {
		t.Fatalf("GetPhotos failed: %v", err)
	}
	if len(a.Photos) != len(b.Photos) {
		t.Errorf("offset changed result: %d vs %d", len(a.Photos), len(b.Photos))
	}
}

func TestGetPhotos_Validation(t *testing.T) {
	database := setupDB(t)

	tests := []struct {
		name  string
		input GetPhotosInput
	}{
		{"zero limit", GetPhotosInput{Limit: 0}},
		{"negative limit", GetPhotosInput{Limit: -1}},
		{"unknown mode", GetPhotosInput{Limit: 5, Mode: "SHUFFLE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GetPhotos(context.Background(), database, tt.input)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestGetPhotos_StoreUnreadable(t *testing.T) {
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	database.Close()

	_, err = GetPhotos(context.Background(), database, GetPhotosInput{Limit: 5})
	if !errors.Is(err, errors.ErrStorage) {
		t.Errorf("error = %v, want ErrStorage", err)
	}
}
