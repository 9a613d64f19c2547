package model

import "time"

// Tag is unique per (OwnerID, NameLower).
type Tag struct {
	ID         string `gorm:"primaryKey;size:36"`
	OwnerID    string `gorm:"size:64;not null;uniqueIndex:idx_tags_owner_name_lower,priority:1"`
	Name       string `gorm:"not null"`
	NameLower  string `gorm:"not null;uniqueIndex:idx_tags_owner_name_lower,priority:2"`
	UsageCount int64  `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Tag) TableName() string {
	return "tags"
}

// NoteTag is a pivot row between a note and a tag.
// TagID is nil for legacy rows that have not been backfilled yet.
// The (NoteID, TagID) pair is expected to be unique but is not enforced by the schema,
// legacy rows may violate it and the audit needs to see them.
type NoteTag struct {
	ID        string  `gorm:"primaryKey;size:36"`
	NoteID    string  `gorm:"size:36;not null;index"`
	TagID     *string `gorm:"size:36;index"`
	Tag       string  `gorm:"not null"`
	OwnerID   string  `gorm:"size:64;not null;index"`
	CreatedAt time.Time
}

// NoteTagsTable is the default pivot table name, overridable through configuration.
const NoteTagsTable = "note_tags"
