package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emrgen/notesync/internal/access"
	"github.com/emrgen/notesync/internal/attachment"
	"github.com/emrgen/notesync/internal/model"
	"github.com/emrgen/notesync/internal/report"
	"github.com/emrgen/notesync/internal/revision"
	"github.com/emrgen/notesync/internal/store"
	"github.com/emrgen/notesync/internal/tags"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type CreateNoteInput struct {
	ID       string   `json:"id" validate:"omitempty,uuid"`
	Title    string   `json:"title" validate:"max=512"`
	Content  string   `json:"content"`
	Format   string   `json:"format" validate:"omitempty,oneof=text doodle"`
	Tags     []string `json:"tags" validate:"max=64,dive,max=64"`
	IsPublic bool     `json:"isPublic"`
}

// UpdateNoteInput changes only the fields that are set. Tags replaces the tag list when not nil.
type UpdateNoteInput struct {
	Title    *string  `json:"title" validate:"omitempty,max=512"`
	Content  *string  `json:"content"`
	Format   *string  `json:"format" validate:"omitempty,oneof=text doodle"`
	Tags     []string `json:"tags" validate:"omitempty,max=64,dive,max=64"`
	IsPublic *bool    `json:"isPublic"`
	Status   *string  `json:"status" validate:"omitempty,oneof=active archived"`
	Cause    string   `json:"cause" validate:"omitempty,oneof=manual ai collab"`
}

var validate = validator.New()

func validateInput(in any) error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// NewNoteService creates a new NoteService.
func NewNoteService(store store.Store, syncer *tags.Synchronizer, revisions *revision.Tracker, attachments *attachment.Manager) *NoteService {
	return &NoteService{
		store:       store,
		tags:        syncer,
		revisions:   revisions,
		attachments: attachments,
		access:      access.NewChecker(store),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// NoteService writes notes and drives the tag, revision and attachment side effects.
// The note row is the primary write, everything after it is best-effort and
// reported in the returned report.
type NoteService struct {
	store       store.Store
	tags        *tags.Synchronizer
	revisions   *revision.Tracker
	attachments *attachment.Manager
	access      *access.Checker
	now         func() time.Time
}

func (s *NoteService) getNote(ctx context.Context, noteID string) (*model.Note, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoteNotFound
	}
	return note, err
}

// CreateNote creates a note owned by the caller, then syncs its tags.
func (s *NoteService) CreateNote(ctx context.Context, callerID string, in CreateNoteInput) (*model.Note, *report.Report, error) {
	rep := report.New("create_note")
	if callerID == "" {
		return nil, rep, ErrMissingCaller
	}
	if err := validateInput(in); err != nil {
		return nil, rep, err
	}

	note := &model.Note{
		ID:        in.ID,
		OwnerID:   callerID,
		Title:     in.Title,
		Content:   in.Content,
		Format:    in.Format,
		TagNames:  tags.Normalize(in.Tags),
		IsPublic:  in.IsPublic,
		Status:    model.NoteStatusActive,
		CreatedAt: s.now(),
	}
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	if note.Format == "" {
		note.Format = model.NoteFormatText
	}

	if err := s.store.CreateNote(ctx, note); err != nil {
		return nil, rep, err
	}

	if len(note.TagNames) > 0 {
		res, syncRep := s.tags.Sync(ctx, note.ID, note.OwnerID, note.TagNames)
		rep.Merge(syncRep)
		note.TagNames = res.TagNames
	}

	logrus.Debugf("note %s created by %s", note.ID, callerID)

	return note, rep, nil
}

// UpdateNote applies the changes, syncs tags when given, and records a revision.
// Visibility and status are owner-only.
func (s *NoteService) UpdateNote(ctx context.Context, noteID, callerID string, in UpdateNoteInput) (*model.Note, *report.Report, error) {
	rep := report.New("update_note")
	if err := validateInput(in); err != nil {
		return nil, rep, err
	}

	note, err := s.getNote(ctx, noteID)
	if err != nil {
		return nil, rep, err
	}
	if err := s.access.RequireEdit(ctx, note, callerID); err != nil {
		return nil, rep, err
	}
	if in.IsPublic != nil || in.Status != nil {
		if err := s.access.RequireOwner(note, callerID); err != nil {
			return nil, rep, err
		}
	}

	before := revision.Snapshot{Title: note.Title, Content: note.Content}
	if in.Title != nil {
		note.Title = *in.Title
	}
	if in.Content != nil {
		note.Content = *in.Content
	}
	if in.Format != nil {
		note.Format = *in.Format
	}
	if in.IsPublic != nil {
		note.IsPublic = *in.IsPublic
	}
	if in.Status != nil {
		note.Status = *in.Status
	}
	after := revision.Snapshot{Title: note.Title, Content: note.Content}

	if err := s.store.UpdateNote(ctx, note); err != nil {
		return nil, rep, err
	}

	if in.Tags != nil {
		res, syncRep := s.tags.Sync(ctx, note.ID, note.OwnerID, in.Tags)
		rep.Merge(syncRep)
		note.TagNames = res.TagNames
	}

	cause := in.Cause
	if cause == "" && callerID != note.OwnerID {
		cause = model.RevisionCauseCollab
	}

	_, err = s.revisions.RecordRevision(ctx, note.ID, note.OwnerID, before, after, cause)
	if !rep.Record("record_revision", note.ID, err) {
		s.revisions.SchedulePrune(note.ID, note.OwnerID)
	}

	return note, rep, nil
}

// SetNoteTags replaces the tags of a note.
func (s *NoteService) SetNoteTags(ctx context.Context, noteID, callerID string, names []string) (*tags.Result, *report.Report, error) {
	note, err := s.getNote(ctx, noteID)
	if err != nil {
		return nil, report.New("tag_sync"), err
	}
	if err := s.access.RequireEdit(ctx, note, callerID); err != nil {
		return nil, report.New("tag_sync"), err
	}

	res, rep := s.tags.Sync(ctx, note.ID, note.OwnerID, names)
	return res, rep, nil
}

// DeleteNote releases the note's tags, deletes it, then cleans up its attachments,
// revisions and collaborators. Only the owner may delete.
func (s *NoteService) DeleteNote(ctx context.Context, noteID, callerID string) (*report.Report, error) {
	rep := report.New("delete_note")

	note, err := s.getNote(ctx, noteID)
	if err != nil {
		return rep, err
	}
	if err := s.access.RequireOwner(note, callerID); err != nil {
		return rep, err
	}

	_, syncRep := s.tags.Sync(ctx, note.ID, note.OwnerID, nil)
	rep.Merge(syncRep)

	if err := s.store.DeleteNote(ctx, note.ID); err != nil {
		return rep, err
	}

	s.attachments.PurgeNoteAttachments(ctx, note, rep)
	rep.Record("delete_revisions", note.ID, s.store.DeleteNoteRevisions(ctx, note.ID))
	rep.Record("delete_collaborators", note.ID, s.store.DeleteNoteCollaborators(ctx, note.ID))

	return rep, nil
}

// AddCollaborator invites a user to a note. Only the owner may invite.
func (s *NoteService) AddCollaborator(ctx context.Context, noteID, callerID, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}

	note, err := s.getNote(ctx, noteID)
	if err != nil {
		return err
	}
	if err := s.access.RequireOwner(note, callerID); err != nil {
		return err
	}
	if userID == note.OwnerID {
		return fmt.Errorf("%w: the owner cannot be a collaborator", ErrInvalidInput)
	}

	existing, err := s.store.GetCollaborator(ctx, noteID, userID)
	if err == nil && existing.Status == model.CollaboratorAccepted {
		return nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	return s.store.SaveCollaborator(ctx, &model.NoteCollaborator{
		NoteID:    noteID,
		UserID:    userID,
		Status:    model.CollaboratorPending,
		CreatedAt: s.now(),
	})
}

// AcceptCollaborator accepts the caller's pending invitation to a note.
func (s *NoteService) AcceptCollaborator(ctx context.Context, noteID, callerID string) error {
	c, err := s.store.GetCollaborator(ctx, noteID, callerID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoInvitation
	}
	if err != nil {
		return err
	}
	if c.Status == model.CollaboratorAccepted {
		return nil
	}

	c.Status = model.CollaboratorAccepted
	return s.store.SaveCollaborator(ctx, c)
}

// ListRevisions returns the history of a note the caller can read, newest first.
func (s *NoteService) ListRevisions(ctx context.Context, noteID, callerID string) ([]*revision.Revision, error) {
	note, err := s.getNote(ctx, noteID)
	if err != nil {
		return nil, err
	}

	ok, err := s.access.CanRead(ctx, note, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoteNotFound
	}

	return s.revisions.ListRevisions(ctx, noteID)
}
