// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"

	"github.com/artpar/actionkit/domain/note"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Ports
// -----------------------------------------------------------------------------

// NoteStore persists notes.
type NoteStore interface {
	// Get returns note.ErrNotFound for unknown IDs.
	Get(ctx context.Context, id string) (note.Note, error)
	// List returns the selected page and the number of matches.
	List(ctx context.Context, f note.Filter) ([]note.Note, int, error)
	Create(ctx context.Context, n note.Note) error
	// Update replaces a note. It fails with note.ErrVersionConflict unless
	// the stored version equals n.Version-1.
	Update(ctx context.Context, n note.Note) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}
