package model

import (
	"time"
)

const (
	NoteFormatText   = "text"
	NoteFormatDoodle = "doodle"

	NoteStatusActive   = "active"
	NoteStatusArchived = "archived"
)

// Note is the primary document. TagNames and Attachments are denormalized copies
// kept in sync with the tags/note_tags and attachments tables.
type Note struct {
	ID          string                   `gorm:"primaryKey;size:36"`
	OwnerID     string                   `gorm:"size:64;not null;index:idx_notes_owner_created,priority:1"`
	Title       string                   `gorm:"not null"`
	Content     string                   `gorm:"not null"`
	Format      string                   `gorm:"size:16;not null;default:text"`
	TagNames    []string                 `gorm:"serializer:json"`
	Attachments []EmbeddedAttachmentMeta `gorm:"serializer:json"`
	IsPublic    bool                     `gorm:"not null;default:false"`
	Status      string                   `gorm:"size:16;not null;default:active;index"`
	CreatedAt   time.Time                `gorm:"not null;index:idx_notes_owner_created,priority:2"`
	UpdatedAt   time.Time
}

func (Note) TableName() string {
	return "notes"
}

// EmbeddedAttachmentMeta is the legacy attachment form serialized inside Note.Attachments.
// ID is the underlying blob id.
type EmbeddedAttachmentMeta struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Mime      string    `json:"mime"`
	CreatedAt time.Time `json:"createdAt"`
}
