// Package access answers owner and collaborator questions about notes.
package access

import (
	"context"
	"errors"

	"github.com/emrgen/notesync/internal/model"
	"github.com/emrgen/notesync/internal/store"
)

var (
	// ErrNotOwner is returned when an owner-only operation is called by someone else.
	ErrNotOwner = errors.New("caller is not the note owner")
	// ErrForbidden is returned when the caller is neither owner nor accepted collaborator.
	ErrForbidden = errors.New("caller has no access to the note")
)

type Checker struct {
	collaborators store.CollaboratorStore
}

func NewChecker(collaborators store.CollaboratorStore) *Checker {
	return &Checker{collaborators: collaborators}
}

func (c *Checker) IsOwner(note *model.Note, userID string) bool {
	return userID != "" && note.OwnerID == userID
}

// CanRead reports whether the user owns the note or accepted a collaboration invite.
func (c *Checker) CanRead(ctx context.Context, note *model.Note, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if c.IsOwner(note, userID) {
		return true, nil
	}

	return c.collaborators.IsAcceptedCollaborator(ctx, note.ID, userID)
}

// CanEdit is CanRead, accepted collaborators may edit title, content and tags.
func (c *Checker) CanEdit(ctx context.Context, note *model.Note, userID string) (bool, error) {
	return c.CanRead(ctx, note, userID)
}

func (c *Checker) RequireOwner(note *model.Note, userID string) error {
	if !c.IsOwner(note, userID) {
		return ErrNotOwner
	}
	return nil
}

func (c *Checker) RequireEdit(ctx context.Context, note *model.Note, userID string) error {
	ok, err := c.CanEdit(ctx, note, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
