// Package reader lists notes page by page with their tags hydrated from the pivot table.
package reader

import (
	"context"
	"errors"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/notesync/internal/access"
	"github.com/emrgen/notesync/internal/model"
	"github.com/emrgen/notesync/internal/store"
	"github.com/emrgen/notesync/internal/tags"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	DefaultLimit     = 20
	MaxLimit         = 100
	DefaultChunkSize = 100
)

// ErrNoteNotFound is returned for missing notes and notes the caller cannot read.
var ErrNoteNotFound = errors.New("note not found")

type Store interface {
	store.NoteStore
	store.NoteTagStore
	store.CollaboratorStore
}

// Query selects the notes of an owner, or of a custom scope when Scope is set.
type Query struct {
	OwnerID string
	Status  string
	Scope   func(db *gorm.DB) *gorm.DB
}

type NoteView struct {
	Note *model.Note
	Tags []string
}

type Page struct {
	Notes      []*NoteView
	NextCursor string
	// HasMore is true when the page is full, the next page may be empty.
	HasMore bool
}

type Option func(*Reader)

// WithChunkSize caps the number of note ids per pivot query.
func WithChunkSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.chunk = n
		}
	}
}

type Reader struct {
	store  Store
	access *access.Checker
	chunk  int
}

func NewReader(s Store, opts ...Option) *Reader {
	r := &Reader{
		store:  s,
		access: access.NewChecker(s),
		chunk:  DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// ListNotesPage returns notes newest first, starting after the cursor.
func (r *Reader) ListNotesPage(ctx context.Context, q Query, cursor string, limit int) (*Page, error) {
	limit = clampLimit(limit)

	after, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	notes, err := r.store.ListNotes(ctx, store.NoteQuery{
		OwnerID: q.OwnerID,
		Status:  q.Status,
		Scope:   q.Scope,
	}, after, limit)
	if err != nil {
		return nil, err
	}

	page := &Page{
		Notes:   r.hydrate(ctx, notes),
		HasMore: len(notes) == limit,
	}
	if page.HasMore {
		page.NextCursor = encodeCursor(notes[len(notes)-1])
	}

	return page, nil
}

// GetNote returns a single hydrated note the caller can read.
func (r *Reader) GetNote(ctx context.Context, noteID, callerID string) (*NoteView, error) {
	note, err := r.store.GetNote(ctx, noteID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}

	ok, err := r.access.CanRead(ctx, note, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoteNotFound
	}

	return r.hydrate(ctx, []*model.Note{note})[0], nil
}

// hydrate attaches pivot tag names with one query per chunk of note ids.
// A failed chunk falls back to the denormalized tag names of its notes.
func (r *Reader) hydrate(ctx context.Context, notes []*model.Note) []*NoteView {
	views := make([]*NoteView, len(notes))
	byNote := make(map[string]*NoteView, len(notes))
	ids := make([]string, len(notes))
	for i, note := range notes {
		views[i] = &NoteView{Note: note, Tags: []string{}}
		byNote[note.ID] = views[i]
		ids[i] = note.ID
	}

	for chunk := range slices.Chunk(ids, r.chunk) {
		rows, err := r.store.ListNoteTagsByNoteIDs(ctx, chunk)
		if err != nil {
			logrus.Warnf("hydrate tags of %d notes, using denormalized names: %v", len(chunk), err)
			for _, id := range chunk {
				byNote[id].Tags = slices.Clone(byNote[id].Note.TagNames)
				if byNote[id].Tags == nil {
					byNote[id].Tags = []string{}
				}
			}
			continue
		}

		seen := make(map[string]mapset.Set[string], len(chunk))
		for _, row := range rows {
			view, ok := byNote[row.NoteID]
			if !ok {
				continue
			}
			if seen[row.NoteID] == nil {
				seen[row.NoteID] = mapset.NewThreadUnsafeSet[string]()
			}
			if !seen[row.NoteID].Add(tags.Key(row.Tag)) {
				continue
			}
			view.Tags = append(view.Tags, row.Tag)
		}
	}

	return views
}
