package attachment

import (
	"context"
	"errors"
	"time"

	"github.com/emrgen/notesync/internal/access"
	"github.com/emrgen/notesync/internal/blob"
	"github.com/emrgen/notesync/internal/model"
	"github.com/emrgen/notesync/internal/plan"
	"github.com/emrgen/notesync/internal/report"
	"github.com/emrgen/notesync/internal/store"
	"github.com/emrgen/notesync/internal/token"
	"github.com/sirupsen/logrus"
)

// File is an upload before validation.
type File struct {
	Name string
	Mime string
	Data []byte
}

type Option func(*Manager)

// WithClock replaces time.Now for attachment timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new Manager. The collection store is used only when
// the store has an attachments table configured.
func NewManager(s store.Store, blobs blob.Store, plans plan.Provider, signer *token.Signer, opts ...Option) *Manager {
	var collection *CollectionAttachmentStore
	if s.AttachmentRecordsEnabled() {
		collection = NewCollectionAttachmentStore(s)
	}

	m := &Manager{
		store:       s,
		blobs:       blobs,
		plans:       plans,
		signer:      signer,
		access:      access.NewChecker(s),
		attachments: NewMergingAttachmentStore(NewEmbeddedAttachmentStore(s), collection),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Manager validates, stores and removes note attachments across the blob
// store, the embedded note array and the optional attachments table.
type Manager struct {
	store       store.Store
	blobs       blob.Store
	plans       plan.Provider
	signer      *token.Signer
	access      *access.Checker
	attachments *MergingAttachmentStore
	now         func() time.Time
}

func (m *Manager) getNote(ctx context.Context, noteID string) (*model.Note, error) {
	note, err := m.store.GetNote(ctx, noteID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoteNotFound
	}
	return note, err
}

func findAttachment(note *model.Note, id string) (model.EmbeddedAttachmentMeta, bool) {
	for _, a := range note.Attachments {
		if a.ID == id {
			return a, true
		}
	}
	return model.EmbeddedAttachmentMeta{}, false
}

// AddAttachment validates the file, uploads it and appends it to the note.
// Only the note owner may attach.
func (m *Manager) AddAttachment(ctx context.Context, noteID, callerID string, file File) (*Meta, *report.Report, error) {
	rep := report.New("add_attachment")

	note, err := m.getNote(ctx, noteID)
	if err != nil {
		return nil, rep, err
	}
	if err := m.access.RequireOwner(note, callerID); err != nil {
		return nil, rep, err
	}

	p, err := m.plans.PlanFor(ctx, note.OwnerID)
	if err != nil {
		return nil, rep, err
	}

	size := int64(len(file.Data))
	if size > p.AttachmentSizeBytes() {
		return nil, rep, &PolicyError{Code: CodeSizeLimit, LimitMB: p.AttachmentSizeMB}
	}

	mediaType, ok := CheckMime(file.Mime)
	if !ok {
		return nil, rep, &PolicyError{Code: CodeUnsupportedMimeType, Allowed: AllowedMimeTypes()}
	}

	name := SanitizeFilename(file.Name, mediaType)

	id, err := m.blobs.Put(ctx, &blob.Object{
		OwnerID: note.OwnerID,
		Name:    name,
		Mime:    mediaType,
		Size:    size,
		Data:    file.Data,
	})
	if errors.Is(err, blob.ErrMissingBucketConfig) {
		return nil, rep, &PolicyError{Code: CodeMissingBucketConfig, Err: err}
	}
	if err != nil {
		return nil, rep, err
	}

	meta := &Meta{
		ID:        id,
		NoteID:    noteID,
		Name:      name,
		Size:      size,
		Mime:      mediaType,
		CreatedAt: m.now().UTC(),
	}

	err = m.attachments.Add(ctx, noteID, note.OwnerID, meta)
	var partial *PartialError
	if errors.As(err, &partial) {
		rep.Record(partial.Step, id, partial.Err)
		return meta, rep, nil
	}
	if err != nil {
		rep.Record("delete_orphan_blob", id, m.blobs.Delete(ctx, note.OwnerID, id))
		return nil, rep, err
	}

	logrus.Debugf("attached %s (%d bytes) to note %s", id, size, noteID)

	return meta, rep, nil
}

// ListAttachments returns the attachments of a note the caller can read.
// A missing note or a caller without access gets an empty list.
func (m *Manager) ListAttachments(ctx context.Context, noteID, callerID string) ([]Meta, error) {
	note, err := m.getNote(ctx, noteID)
	if errors.Is(err, ErrNoteNotFound) {
		return []Meta{}, nil
	}
	if err != nil {
		return nil, err
	}

	ok, err := m.access.CanRead(ctx, note, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Meta{}, nil
	}

	return m.attachments.List(ctx, noteID)
}

// RemoveAttachment removes the attachment from the note, then deletes the blob
// and the record best-effort. Only the note owner may remove.
func (m *Manager) RemoveAttachment(ctx context.Context, noteID, callerID, id string) (bool, *report.Report, error) {
	rep := report.New("remove_attachment")

	note, err := m.getNote(ctx, noteID)
	if err != nil {
		return false, rep, err
	}
	if err := m.access.RequireOwner(note, callerID); err != nil {
		return false, rep, err
	}

	removed, err := m.attachments.Remove(ctx, noteID, id)
	var partial *PartialError
	if errors.As(err, &partial) {
		rep.Record(partial.Step, id, partial.Err)
	} else if err != nil {
		return false, rep, err
	}

	if removed {
		rep.Record("delete_blob", id, m.blobs.Delete(ctx, note.OwnerID, id))
	}

	return removed, rep, nil
}

// OpenAttachment returns the blob of an attachment the caller can read.
func (m *Manager) OpenAttachment(ctx context.Context, noteID, callerID, id string) (*blob.Object, error) {
	note, err := m.getNote(ctx, noteID)
	if err != nil {
		return nil, err
	}

	ok, err := m.access.CanRead(ctx, note, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAttachmentNotFound
	}

	return m.open(ctx, note, id)
}

// Download returns the blob a verified token grants.
func (m *Manager) Download(ctx context.Context, grant *token.Grant) (*blob.Object, error) {
	note, err := m.getNote(ctx, grant.NoteID)
	if err != nil {
		return nil, err
	}
	if note.OwnerID != grant.OwnerID {
		return nil, ErrAttachmentNotFound
	}

	return m.open(ctx, note, grant.FileID)
}

func (m *Manager) open(ctx context.Context, note *model.Note, id string) (*blob.Object, error) {
	if _, ok := findAttachment(note, id); !ok {
		return nil, ErrAttachmentNotFound
	}

	obj, err := m.blobs.Get(ctx, note.OwnerID, id)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, ErrAttachmentNotFound
	}

	return obj, err
}

// SignedURL issues a download url for an attachment the caller can read.
func (m *Manager) SignedURL(ctx context.Context, noteID, callerID, id string, ttl time.Duration) (*token.SignedURL, error) {
	if m.signer == nil || !m.signer.Enabled() {
		return nil, ErrSigningDisabled
	}

	note, err := m.getNote(ctx, noteID)
	if err != nil {
		return nil, err
	}

	ok, err := m.access.CanRead(ctx, note, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAttachmentNotFound
	}
	if _, found := findAttachment(note, id); !found {
		return nil, ErrAttachmentNotFound
	}

	signed := m.signer.Issue(noteID, note.OwnerID, id, ttl)
	if signed == nil {
		return nil, ErrSigningDisabled
	}

	return signed, nil
}

// PurgeNoteAttachments deletes every blob and record of a note. The embedded
// array is left to the note delete.
func (m *Manager) PurgeNoteAttachments(ctx context.Context, note *model.Note, rep *report.Report) {
	for _, a := range note.Attachments {
		rep.Record("delete_blob", a.ID, m.blobs.Delete(ctx, note.OwnerID, a.ID))
	}

	if m.store.AttachmentRecordsEnabled() {
		rep.Record("delete_records", note.ID, m.store.DeleteNoteAttachmentRecords(ctx, note.ID))
	}
}
