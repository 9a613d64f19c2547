package model

import "time"

const (
	CollaboratorPending  = "pending"
	CollaboratorAccepted = "accepted"
)

type NoteCollaborator struct {
	NoteID    string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;size:64"`
	Status    string `gorm:"size:16;not null;default:pending"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (NoteCollaborator) TableName() string {
	return "note_collaborators"
}
