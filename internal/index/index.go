package index

import (
	"context"

	"github.com/starford/notetaker/internal/models"
)

// NoteStore defines the persistence boundary consumed by the coordinator.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type NoteStore interface {
	Save(ctx context.Context, n *models.Note) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Note, error)
	FetchAll(ctx context.Context, opts ListOptions) ([]*models.Note, int, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	AttachmentRefs(ctx context.Context) (map[string]string, error)
}

// Verify *DB satisfies NoteStore at compile time.
var _ NoteStore = (*DB)(nil)
