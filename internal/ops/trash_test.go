package ops

import (
	"context"
	"testing"

	"github.com/hpungsan/tabula/internal/errors"
	"github.com/hpungsan/tabula/internal/photo"
)

func TestAddToTrash_Validation(t *testing.T) {
	database := setupDB(t)

	tests := []struct {
		name   string
		photos []photo.Photo
	}{
		{"zero id", []photo.Photo{{ID: 0, URI: "u"}}},
		{"missing uri", []photo.Photo{{ID: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AddToTrash(context.Background(), database, AddToTrashInput{Photos: tt.photos})
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestTrash_RoundTrip(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	staged := []photo.Photo{{ID: 1, URI: "A"}, {ID: 2, URI: "B"}, {ID: 3, URI: "C"}}
	addOut, err := AddToTrash(ctx, database, AddToTrashInput{Photos: staged})
	if err != nil {
		t.Fatalf("AddToTrash failed: %v", err)
	}
	if addOut.Staged != 3 || addOut.StagedAt == 0 {
		t.Errorf("AddToTrash = %+v", addOut)
	}

	removeOut, err := RemoveFromTrash(ctx, database, RemoveFromTrashInput{IDs: []int64{2}})
	if err != nil {
		t.Fatalf("RemoveFromTrash failed: %v", err)
	}
	if removeOut.Removed != 1 {
		t.Errorf("Removed = %d, want 1", removeOut.Removed)
	}

	list, err := ListTrash(ctx, database)
	if err != nil {
		t.Fatalf("ListTrash failed: %v", err)
	}
	if list.Count != 2 {
		t.Fatalf("Count = %d, want 2", list.Count)
	}
	for _, e := range list.Items {
		if e.ID == 2 {
			t.Error("restored photo still in trash")
		}
	}

	clearOut, err := ClearTrash(ctx, database)
	if err != nil {
		t.Fatalf("ClearTrash failed: %v", err)
	}
	if clearOut.Cleared != 2 {
		t.Errorf("Cleared = %d, want 2", clearOut.Cleared)
	}
}

func TestStatus(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	seed(t, database, 1000, 1729000000000)

	if _, err := AddToTrash(ctx, database, AddToTrashInput{Photos: []photo.Photo{{ID: 1, URI: "A"}}}); err != nil {
		t.Fatalf("AddToTrash failed: %v", err)
	}

	out, err := Status(ctx, database)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if out.Indexed != 2 || out.Trash != 1 {
		t.Errorf("Status = %+v, want 2 indexed, 1 trash", out)
	}
	if out.NewestTaken != 1729000000000 || out.NewestMonth != "2024 OCT" {
		t.Errorf("newest = %d %q", out.NewestTaken, out.NewestMonth)
	}
	if out.SchemaVersion < 2 {
		t.Errorf("SchemaVersion = %d", out.SchemaVersion)
	}
}
