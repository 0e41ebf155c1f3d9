// Package memory provides in-memory implementations of the data ports.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/artpar/actionkit/domain/note"
	"github.com/artpar/actionkit/ports"
)

// NoteStore is an in-memory implementation of ports.NoteStore.
type NoteStore struct {
	mu    sync.RWMutex
	notes map[string]note.Note // by ID
}

// NewNoteStore creates a new in-memory note store.
func NewNoteStore() *NoteStore {
	return &NoteStore{
		notes: make(map[string]note.Note),
	}
}

// Get retrieves a note by ID.
func (s *NoteStore) Get(ctx context.Context, id string) (note.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notes[id]
	if !ok {
		return note.Note{}, note.ErrNotFound
	}
	return n.Clone(), nil
}

// List returns the notes selected by f.
func (s *NoteStore) List(ctx context.Context, f note.Filter) ([]note.Note, int, error) {
	s.mu.RLock()
	all := make([]note.Note, 0, len(s.notes))
	for _, n := range s.notes {
		all = append(all, n.Clone())
	}
	s.mu.RUnlock()

	page, total := note.Select(all, f)
	return page, total, nil
}

// Create stores a new note.
func (s *NoteStore) Create(ctx context.Context, n note.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notes[n.ID]; exists {
		return fmt.Errorf("note %s already exists", n.ID)
	}
	s.notes[n.ID] = n.Clone()
	return nil
}

// Update replaces a note if the stored version precedes n's.
func (s *NoteStore) Update(ctx context.Context, n note.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.notes[n.ID]
	if !ok {
		return note.ErrNotFound
	}
	if cur.Version != n.Version-1 {
		return note.ErrVersionConflict
	}
	s.notes[n.ID] = n.Clone()
	return nil
}

// Delete removes a note.
func (s *NoteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[id]; !ok {
		return note.ErrNotFound
	}
	delete(s.notes, id)
	return nil
}

// Count returns the number of stored notes.
func (s *NoteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes), nil
}

// HealthCheck implements the readiness probe contract.
func (s *NoteStore) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// Clear removes all notes (for testing).
func (s *NoteStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = make(map[string]note.Note)
}

// Ensure interface compliance.
var _ ports.NoteStore = (*NoteStore)(nil)
