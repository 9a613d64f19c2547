package attachment

import (
	"context"
	"slices"
	"time"

	"github.com/emrgen/notesync/internal/model"
	"github.com/emrgen/notesync/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Meta is the merged view of an attachment. ID is the blob id, RecordID is set
// when a collection record exists.
type Meta struct {
	ID        string    `json:"id"`
	RecordID  string    `json:"recordId,omitempty"`
	NoteID    string    `json:"noteId"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Mime      string    `json:"mime"`
	CreatedAt time.Time `json:"createdAt"`
}

// AttachmentStore keeps attachment metadata of notes.
type AttachmentStore interface {
	List(ctx context.Context, noteID string) ([]Meta, error)
	Add(ctx context.Context, noteID, ownerID string, meta *Meta) error
	// Remove deletes the attachment with the blob id, it reports whether something was removed.
	Remove(ctx context.Context, noteID, id string) (bool, error)
}

var (
	_ AttachmentStore = (*EmbeddedAttachmentStore)(nil)
	_ AttachmentStore = (*CollectionAttachmentStore)(nil)
	_ AttachmentStore = (*MergingAttachmentStore)(nil)
)

// EmbeddedAttachmentStore reads and rewrites the whole Note.Attachments array.
// Concurrent writers are last-writer-wins.
type EmbeddedAttachmentStore struct {
	notes store.NoteStore
}

func NewEmbeddedAttachmentStore(notes store.NoteStore) *EmbeddedAttachmentStore {
	return &EmbeddedAttachmentStore{notes: notes}
}

func embeddedMeta(noteID string, a model.EmbeddedAttachmentMeta) Meta {
	return Meta{
		ID:        a.ID,
		NoteID:    noteID,
		Name:      a.Name,
		Size:      a.Size,
		Mime:      a.Mime,
		CreatedAt: a.CreatedAt,
	}
}

func (s *EmbeddedAttachmentStore) List(ctx context.Context, noteID string) ([]Meta, error) {
	note, err := s.notes.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}

	metas := make([]Meta, 0, len(note.Attachments))
	for _, a := range note.Attachments {
		metas = append(metas, embeddedMeta(noteID, a))
	}

	return metas, nil
}

func (s *EmbeddedAttachmentStore) Add(ctx context.Context, noteID, ownerID string, meta *Meta) error {
	note, err := s.notes.GetNote(ctx, noteID)
	if err != nil {
		return err
	}

	attachments := append(slices.Clone(note.Attachments), model.EmbeddedAttachmentMeta{
		ID:        meta.ID,
		Name:      meta.Name,
		Size:      meta.Size,
		Mime:      meta.Mime,
		CreatedAt: meta.CreatedAt,
	})

	return s.notes.UpdateNoteAttachments(ctx, noteID, attachments)
}

func (s *EmbeddedAttachmentStore) Remove(ctx context.Context, noteID, id string) (bool, error) {
	note, err := s.notes.GetNote(ctx, noteID)
	if err != nil {
		return false, err
	}

	kept := slices.DeleteFunc(slices.Clone(note.Attachments), func(a model.EmbeddedAttachmentMeta) bool {
		return a.ID == id
	})
	if len(kept) == len(note.Attachments) {
		return false, nil
	}

	if err := s.notes.UpdateNoteAttachments(ctx, noteID, kept); err != nil {
		return false, err
	}

	return true, nil
}

// CollectionAttachmentStore keeps one AttachmentRecord row per attachment.
type CollectionAttachmentStore struct {
	records store.AttachmentRecordStore
}

func NewCollectionAttachmentStore(records store.AttachmentRecordStore) *CollectionAttachmentStore {
	return &CollectionAttachmentStore{records: records}
}

func (s *CollectionAttachmentStore) List(ctx context.Context, noteID string) ([]Meta, error) {
	records, err := s.records.ListAttachmentRecords(ctx, noteID)
	if err != nil {
		return nil, err
	}

	metas := make([]Meta, 0, len(records))
	for _, r := range records {
		metas = append(metas, Meta{
			ID:        r.FileID,
			RecordID:  r.ID,
			NoteID:    r.NoteID,
			Name:      r.Filename,
			Size:      r.SizeBytes,
			Mime:      r.Mimetype,
			CreatedAt: r.CreatedAt,
		})
	}

	return metas, nil
}

func (s *CollectionAttachmentStore) Add(ctx context.Context, noteID, ownerID string, meta *Meta) error {
	record := &model.AttachmentRecord{
		ID:        uuid.New().String(),
		NoteID:    noteID,
		OwnerID:   ownerID,
		FileID:    meta.ID,
		Filename:  meta.Name,
		Mimetype:  meta.Mime,
		SizeBytes: meta.Size,
		CreatedAt: meta.CreatedAt,
	}
	if err := s.records.CreateAttachmentRecord(ctx, record); err != nil {
		return err
	}

	meta.RecordID = record.ID
	return nil
}

func (s *CollectionAttachmentStore) Remove(ctx context.Context, noteID, id string) (bool, error) {
	n, err := s.records.DeleteAttachmentRecords(ctx, noteID, id)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MergingAttachmentStore treats the embedded array as authoritative and the
// collection as a best-effort secondary. A nil collection is embedded-only mode.
// Failures of the secondary are returned as *PartialError.
type MergingAttachmentStore struct {
	embedded   *EmbeddedAttachmentStore
	collection *CollectionAttachmentStore
}

func NewMergingAttachmentStore(embedded *EmbeddedAttachmentStore, collection *CollectionAttachmentStore) *MergingAttachmentStore {
	return &MergingAttachmentStore{embedded: embedded, collection: collection}
}

// List returns the embedded attachments, with metadata from collection records when present.
func (s *MergingAttachmentStore) List(ctx context.Context, noteID string) ([]Meta, error) {
	metas, err := s.embedded.List(ctx, noteID)
	if err != nil || s.collection == nil || len(metas) == 0 {
		return metas, err
	}

	records, err := s.collection.List(ctx, noteID)
	if err != nil {
		logrus.Warnf("list attachment records of note %s: %v", noteID, err)
		return metas, nil
	}

	byFile := make(map[string]Meta, len(records))
	for _, r := range records {
		byFile[r.ID] = r
	}

	for i, m := range metas {
		if r, ok := byFile[m.ID]; ok {
			metas[i] = r
		}
	}

	return metas, nil
}

func (s *MergingAttachmentStore) Add(ctx context.Context, noteID, ownerID string, meta *Meta) error {
	if err := s.embedded.Add(ctx, noteID, ownerID, meta); err != nil {
		return err
	}
	if s.collection == nil {
		return nil
	}

	if err := s.collection.Add(ctx, noteID, ownerID, meta); err != nil {
		return &PartialError{Step: "create_record", Err: err}
	}

	return nil
}

func (s *MergingAttachmentStore) Remove(ctx context.Context, noteID, id string) (bool, error) {
	removed, err := s.embedded.Remove(ctx, noteID, id)
	if err != nil {
		return false, err
	}
	if s.collection == nil {
		return removed, nil
	}

	if _, err := s.collection.Remove(ctx, noteID, id); err != nil {
		return removed, &PartialError{Step: "delete_record", Err: err}
	}

	return removed, nil
}
