package store

import (
	"context"
	"time"

	"github.com/emrgen/notesync/internal/model"
	"gorm.io/gorm"
)

type Store interface {
	NoteStore
	TagStore
	NoteTagStore
	AttachmentRecordStore
	RevisionStore
	CollaboratorStore
	Transaction(ctx context.Context, f func(tx Store) error) error
	Migrate() error
}

// NoteCursor is the keyset position of the last note on a page.
type NoteCursor struct {
	CreatedAt time.Time
	ID        string
}

// NoteQuery selects notes for a listing. Scope, when set, replaces the owner filter.
type NoteQuery struct {
	OwnerID string
	Status  string
	Scope   func(db *gorm.DB) *gorm.DB
}

type NoteStore interface {
	// CreateNote creates a new note.
	CreateNote(ctx context.Context, note *model.Note) error
	// GetNote retrieves a note by ID.
	GetNote(ctx context.Context, id string) (*model.Note, error)
	// UpdateNote saves the title, content, format, visibility and status.
	UpdateNote(ctx context.Context, note *model.Note) error
	// UpdateNoteTagNames replaces the denormalized tag name list.
	UpdateNoteTagNames(ctx context.Context, id string, names []string) error
	// UpdateNoteAttachments replaces the embedded attachment list.
	UpdateNoteAttachments(ctx context.Context, id string, attachments []model.EmbeddedAttachmentMeta) error
	// DeleteNote deletes a note by ID.
	DeleteNote(ctx context.Context, id string) error
	// ListNotes lists notes newest first, starting after the cursor.
	ListNotes(ctx context.Context, query NoteQuery, after *NoteCursor, limit int) ([]*model.Note, error)
	// ListNotesUpdatedBetween retrieves the id and owner of notes updated in [from, to).
	ListNotesUpdatedBetween(ctx context.Context, from, to time.Time) ([]*model.Note, error)
}

type TagStore interface {
	// GetTag retrieves a tag by ID.
	GetTag(ctx context.Context, id string) (*model.Tag, error)
	// FindTagsByNameLower retrieves the owner's tags whose lowercase name is in names.
	FindTagsByNameLower(ctx context.Context, ownerID string, names []string) ([]*model.Tag, error)
	// ListTags retrieves all the owner's tags.
	ListTags(ctx context.Context, ownerID string) ([]*model.Tag, error)
	// CreateTag creates a tag, returns ErrDuplicateKey if (owner, nameLower) exists.
	CreateTag(ctx context.Context, tag *model.Tag) error
	// UpdateTagUsage overwrites the usage counter of a tag.
	UpdateTagUsage(ctx context.Context, id string, count int64) error
	// ListTagOwners retrieves every owner id that has at least one tag.
	ListTagOwners(ctx context.Context) ([]string, error)
}

type NoteTagStore interface {
	// ListNoteTags retrieves the pivot rows of a note.
	ListNoteTags(ctx context.Context, noteID string) ([]*model.NoteTag, error)
	// ListNoteTagsByNoteIDs retrieves the pivot rows of all the given notes in one query.
	ListNoteTagsByNoteIDs(ctx context.Context, noteIDs []string) ([]*model.NoteTag, error)
	// ListNoteTagsByOwner retrieves all the pivot rows of an owner.
	ListNoteTagsByOwner(ctx context.Context, ownerID string) ([]*model.NoteTag, error)
	// CreateNoteTag creates a pivot row.
	CreateNoteTag(ctx context.Context, row *model.NoteTag) error
	// DeleteNoteTag deletes a pivot row by ID.
	DeleteNoteTag(ctx context.Context, id string) error
	// SetNoteTagTagID points a pivot row at a tag.
	SetNoteTagTagID(ctx context.Context, id string, tagID string) error
	// CountNoteTagsByTag counts the owner's pivot rows per tag id.
	CountNoteTagsByTag(ctx context.Context, ownerID string) (map[string]int64, error)
}

type AttachmentRecordStore interface {
	// AttachmentRecordsEnabled reports whether the dedicated attachment table is configured.
	AttachmentRecordsEnabled() bool
	// CreateAttachmentRecord creates an attachment record.
	CreateAttachmentRecord(ctx context.Context, record *model.AttachmentRecord) error
	// ListAttachmentRecords retrieves the attachment records of a note.
	ListAttachmentRecords(ctx context.Context, noteID string) ([]*model.AttachmentRecord, error)
	// DeleteAttachmentRecords deletes the records of a note pointing at a blob and returns how many went.
	DeleteAttachmentRecords(ctx context.Context, noteID string, fileID string) (int64, error)
	// DeleteNoteAttachmentRecords deletes all the records of a note.
	DeleteNoteAttachmentRecords(ctx context.Context, noteID string) error
}

type RevisionStore interface {
	// MaxRevisionNumber returns the highest revision number of a note, 0 when none exist.
	MaxRevisionNumber(ctx context.Context, noteID string) (int64, error)
	// CreateRevision creates a revision, returns ErrDuplicateKey if the number is taken.
	CreateRevision(ctx context.Context, rev *model.NoteRevision) error
	// ListRevisions retrieves the revisions of a note, newest first.
	ListRevisions(ctx context.Context, noteID string) ([]*model.NoteRevision, error)
	// ListRevisionNumbers retrieves the revision numbers of a note, newest first.
	ListRevisionNumbers(ctx context.Context, noteID string) ([]int64, error)
	// GetRevision retrieves a revision by note and number.
	GetRevision(ctx context.Context, noteID string, number int64) (*model.NoteRevision, error)
	// DeleteRevisionsUpTo deletes revisions numbered at most number.
	DeleteRevisionsUpTo(ctx context.Context, noteID string, number int64) (int64, error)
	// DeleteNoteRevisions deletes all the revisions of a note.
	DeleteNoteRevisions(ctx context.Context, noteID string) error
}

type CollaboratorStore interface {
	// SaveCollaborator creates or updates a collaborator row.
	SaveCollaborator(ctx context.Context, c *model.NoteCollaborator) error
	// GetCollaborator retrieves the invitation of a user to a note.
	GetCollaborator(ctx context.Context, noteID string, userID string) (*model.NoteCollaborator, error)
	// IsAcceptedCollaborator reports whether the user accepted an invitation to the note.
	IsAcceptedCollaborator(ctx context.Context, noteID string, userID string) (bool, error)
	// DeleteNoteCollaborators deletes all the collaborators of a note.
	DeleteNoteCollaborators(ctx context.Context, noteID string) error
}
