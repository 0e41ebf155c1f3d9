// Package app contains the sample notes resource and the token endpoints
// served by the action pipeline.
package app

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/artpar/actionkit/adapters/auth"
	"github.com/artpar/actionkit/adapters/clock"
	"github.com/artpar/actionkit/core/action"
	"github.com/artpar/actionkit/core/registry"
	"github.com/artpar/actionkit/core/schema"
	"github.com/artpar/actionkit/domain/note"
	"github.com/artpar/actionkit/pkg/apierr"
	"github.com/artpar/actionkit/ports"
	"github.com/google/uuid"
)

// Roles understood by the notes view.
const (
	RoleWriter = "writer"
	RoleAdmin  = "admin"
)

// currentNoteKey holds the note loaded by the resource filter in
// action.Context.Values.
const currentNoteKey = "note"

var errPreconditionFailed = apierr.New(http.StatusPreconditionFailed, "precondition_failed",
	"The note was modified since it was retrieved.").Build()

// NotesService serves the notes view.
type NotesService struct {
	store ports.NoteStore
	ids   ports.IDGenerator
	clock clock.Clock
	realm string
}

// NewNotesService creates the notes service. realm is used in the
// WWW-Authenticate challenge of anonymous requests.
func NewNotesService(store ports.NoteStore, ids ports.IDGenerator, c clock.Clock, realm string) *NotesService {
	if realm == "" {
		realm = "api"
	}
	return &NotesService{store: store, ids: ids, clock: clock.OrReal(c), realm: realm}
}

// View returns the notes view. Every route requires an authenticated
// caller; writes additionally require the writer role.
func (s *NotesService) View() registry.View {
	writer := []action.Filter{auth.HasRole(RoleWriter), auditFilter()}
	detail := []action.Filter{s.loadNote()}
	return registry.View{
		Name: "notes",
		Filters: []action.Filter{
			auth.IsAuthenticated(fmt.Sprintf(`Bearer realm=%q`, s.realm)),
			s.conflictFilter(),
			noStoreFilter(),
		},
		Endpoints: []registry.Endpoint{
			{Route: action.Route{Name: "notes.list", Method: http.MethodGet, Pattern: "/notes", Handler: s.list, Schema: NoteSchema}},
			{Route: action.Route{Name: "notes.create", Method: http.MethodPost, Pattern: "/notes", Handler: s.create, Schema: NoteSchema}, Filters: writer},
			{Route: action.Route{Name: "notes.detail", Method: http.MethodGet, Pattern: "/notes/{id}", Handler: s.detail, Schema: NoteSchema}, Filters: detail},
			{Route: action.Route{Name: "notes.replace", Method: http.MethodPut, Pattern: "/notes/{id}", Handler: s.update(false), Schema: NoteSchema}, Filters: append(detail, writer...)},
			{Route: action.Route{Name: "notes.update", Method: http.MethodPatch, Pattern: "/notes/{id}", Handler: s.update(true), Schema: NoteSchema}, Filters: append(detail, writer...)},
			{Route: action.Route{Name: "notes.delete", Method: http.MethodDelete, Pattern: "/notes/{id}", Handler: s.delete}, Filters: append(detail, writer...)},
		},
	}
}

func (s *NotesService) list(ctx *action.Context) (any, error) {
	q, err := ListQuery.LoadRecord(ctx.Query())
	if err != nil {
		return nil, err
	}
	f := note.Filter{
		Owner:  ctx.Principal.ID,
		Limit:  int(q["limit"].(int64)),
		Offset: int(q["offset"].(int64)),
	}
	if tag, ok := q["tag"].(string); ok {
		f.Tag = strings.ToLower(tag)
	}
	if pinned, ok := q["pinned"].(bool); ok {
		f.Pinned = &pinned
	}
	if ctx.Principal.HasRole(RoleAdmin) {
		f.Owner, _ = q["owner"].(string)
	}

	notes, total, err := s.store.List(ctx.Request.Context(), f)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return action.Response{
		Value:   notes,
		Headers: http.Header{"X-Total-Count": {strconv.Itoa(total)}},
	}, nil
}

func (s *NotesService) create(ctx *action.Context) (any, error) {
	v, err := ctx.Load(NoteSchema)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	n := note.Note{
		ID:        s.ids.New(),
		Owner:     ctx.Principal.ID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	apply(&n, v.(schema.Record))
	if err := s.store.Create(ctx.Request.Context(), n); err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	ctx.Header.Set("Location", "/notes/"+n.ID)
	ctx.Header.Set("ETag", n.ETag())
	return action.Created(n), nil
}

func (s *NotesService) detail(ctx *action.Context) (any, error) {
	n := current(ctx)
	ctx.Header.Set("ETag", n.ETag())
	return n, nil
}

// update serves PUT (full replacement, defaults applied) and PATCH
// (partial). Both honour If-Match.
func (s *NotesService) update(partial bool) action.Handler {
	return func(ctx *action.Context) (any, error) {
		cur := current(ctx)
		if !note.MatchVersion(ctx.Request.Header.Get("If-Match"), cur.Version) {
			return nil, errPreconditionFailed
		}
		var opts []schema.CallOption
		if partial {
			opts = append(opts, schema.Partial())
		}
		v, err := ctx.Load(NoteSchema, opts...)
		if err != nil {
			return nil, err
		}

		next := cur.Clone()
		apply(&next, v.(schema.Record))
		next.Version = cur.Version + 1
		next.UpdatedAt = s.clock.Now().UTC()
		if err := s.store.Update(ctx.Request.Context(), next); err != nil {
			return nil, fmt.Errorf("update note %s: %w", next.ID, err)
		}
		ctx.Header.Set("ETag", next.ETag())
		return next, nil
	}
}

func (s *NotesService) delete(ctx *action.Context) (any, error) {
	cur := current(ctx)
	if !note.MatchVersion(ctx.Request.Header.Get("If-Match"), cur.Version) {
		return nil, errPreconditionFailed
	}
	if err := s.store.Delete(ctx.Request.Context(), cur.ID); err != nil {
		return nil, fmt.Errorf("delete note %s: %w", cur.ID, err)
	}
	return nil, nil
}

// apply copies loaded fields onto n. Absent keys leave n untouched.
func apply(n *note.Note, rec schema.Record) {
	if v, ok := rec["title"].(string); ok {
		n.Title = v
	}
	if v, ok := rec["body"].(string); ok {
		n.Body = v
	}
	if v, ok := rec["tags"].([]any); ok {
		tags := make([]string, 0, len(v))
		for _, t := range v {
			tags = append(tags, t.(string))
		}
		n.Tags = note.NormalizeTags(tags)
	}
	if v, ok := rec["pinned"].(bool); ok {
		n.Pinned = v
	}
}

func current(ctx *action.Context) note.Note {
	return ctx.Values[currentNoteKey].(note.Note)
}

// loadNote resolves {id} into the note it names. Notes of other owners
// are reported as missing unless the caller is an admin.
func (s *NotesService) loadNote() action.Filter {
	return action.Filter{
		Name:     "load_note",
		Category: action.Resource,
		Before: func(ctx *action.Context) error {
			id := ctx.Param("id")
			if _, err := uuid.Parse(id); err != nil {
				return apierr.NotFound("")
			}
			n, err := s.store.Get(ctx.Request.Context(), id)
			if errors.Is(err, note.ErrNotFound) {
				return apierr.NotFound("")
			}
			if err != nil {
				return fmt.Errorf("load note %s: %w", id, err)
			}
			if !n.OwnedBy(ctx.Principal.ID) && !ctx.Principal.HasRole(RoleAdmin) {
				return apierr.NotFound("")
			}
			ctx.Values[currentNoteKey] = n
			return nil
		},
	}
}

// conflictFilter answers lost updates with 409 and the stored note, and
// treats a note deleted concurrently with a DELETE as deleted.
func (s *NotesService) conflictFilter() action.Filter {
	return action.Filter{
		Name:     "note_conflict",
		Category: action.Exception,
		Handle: func(ctx *action.Context, err error) bool {
			switch {
			case errors.Is(err, note.ErrVersionConflict):
				stored, getErr := s.store.Get(ctx.Request.Context(), current(ctx).ID)
				if getErr != nil {
					return false
				}
				ctx.Header.Set("ETag", stored.ETag())
				ctx.SetResult(action.Response{Status: http.StatusConflict, Value: stored})
				return true
			case errors.Is(err, note.ErrNotFound) && ctx.Request.Method == http.MethodDelete:
				return true
			}
			return false
		},
	}
}

// auditFilter logs successful writes.
func auditFilter() action.Filter {
	return action.Filter{
		Name:     "audit",
		Category: action.Action,
		After: func(ctx *action.Context) error {
			ev := ctx.Logger.Info().
				Str("method", ctx.Request.Method).
				Str("principal", ctx.Principal.ID)
			res, _ := ctx.Result()
			if resp, ok := res.(action.Response); ok {
				res = resp.Value
			}
			if n, ok := res.(note.Note); ok {
				ev = ev.Str("note_id", n.ID).Int64("version", n.Version)
			} else if n, ok := ctx.Values[currentNoteKey].(note.Note); ok {
				ev = ev.Str("note_id", n.ID)
			}
			ev.Msg("note changed")
			return nil
		},
	}
}

func noStoreFilter() action.Filter {
	return action.Filter{
		Name:     "no_store",
		Category: action.Result,
		Before: func(ctx *action.Context) error {
			ctx.Header.Set("Cache-Control", "no-store")
			return nil
		},
	}
}
