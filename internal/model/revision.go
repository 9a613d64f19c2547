package model

import "time"

const (
	RevisionCauseManual = "manual"
	RevisionCauseAI     = "ai"
	RevisionCauseCollab = "collab"
)

// NoteRevision is an immutable history entry of a note.
// Content holds the post-update body encoded with Compression,
// Diff holds the incremental patch from the previous state and is empty for full snapshots.
type NoteRevision struct {
	ID             string `gorm:"primaryKey;size:36"`
	NoteID         string `gorm:"size:36;not null;uniqueIndex:idx_note_revisions_number,priority:1"`
	RevisionNumber int64  `gorm:"not null;uniqueIndex:idx_note_revisions_number,priority:2"`
	OwnerID        string `gorm:"size:64;not null"`
	Title          string
	Content        []byte
	Compression    string `gorm:"size:16"`
	Diff           string
	DiffFormat     string `gorm:"size:32"`
	FullSnapshot   bool   `gorm:"not null;default:false"`
	Cause          string `gorm:"size:16;not null"`
	CreatedAt      time.Time
}

func (NoteRevision) TableName() string {
	return "note_revisions"
}
