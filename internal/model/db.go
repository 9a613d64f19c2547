package model

import "gorm.io/gorm"

// Tables holds the configurable table names.
// An empty Attachments disables the dedicated attachment table.
type Tables struct {
	NoteTags    string
	Attachments string
}

func DefaultTables() Tables {
	return Tables{NoteTags: NoteTagsTable}
}

func Migrate(db *gorm.DB, tables Tables) error {
	if tables.NoteTags == "" {
		tables.NoteTags = NoteTagsTable
	}

	if err := db.AutoMigrate(&Note{}, &Tag{}, &NoteRevision{}, &NoteCollaborator{}); err != nil {
		return err
	}

	if err := db.Table(tables.NoteTags).AutoMigrate(&NoteTag{}); err != nil {
		return err
	}

	if tables.Attachments != "" {
		if err := db.Table(tables.Attachments).AutoMigrate(&AttachmentRecord{}); err != nil {
			return err
		}
	}

	return nil
}
