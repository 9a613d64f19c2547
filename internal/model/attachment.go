package model

import "time"

// AttachmentRecord is the richer attachment form stored in the optional attachments table.
type AttachmentRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	NoteID    string `gorm:"size:36;not null;index"`
	OwnerID   string `gorm:"size:64;not null"`
	FileID    string `gorm:"size:64;not null;index"`
	Filename  string `gorm:"not null"`
	Mimetype  string `gorm:"not null"`
	SizeBytes int64  `gorm:"not null"`
	CreatedAt time.Time
}
