package store

import (
	"context"
	"time"

	"github.com/emrgen/notesync/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Option func(*GormStore)

// WithTables overrides the pivot and attachment table names.
func WithTables(tables model.Tables) Option {
	return func(g *GormStore) {
		if tables.NoteTags != "" {
			g.tables.NoteTags = tables.NoteTags
		}
		g.tables.Attachments = tables.Attachments
	}
}

func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	g := &GormStore{
		db:     db,
		tables: model.DefaultTables(),
	}
	for _, opt := range opts {
		opt(g)
	}

	return g
}

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db     *gorm.DB
	tables model.Tables
}

func (g *GormStore) pivot(ctx context.Context) *gorm.DB {
	return g.db.WithContext(ctx).Table(g.tables.NoteTags)
}

func (g *GormStore) records(ctx context.Context) *gorm.DB {
	return g.db.WithContext(ctx).Table(g.tables.Attachments)
}

func (g *GormStore) CreateNote(ctx context.Context, note *model.Note) error {
	return translate(g.db.WithContext(ctx).Create(note).Error)
}

func (g *GormStore) GetNote(ctx context.Context, id string) (*model.Note, error) {
	var note model.Note
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&note).Error
	if err != nil {
		return nil, translate(err)
	}

	return &note, nil
}

// UpdateNote writes the editable columns, tag names and attachments have their own writers.
func (g *GormStore) UpdateNote(ctx context.Context, note *model.Note) error {
	res := g.db.WithContext(ctx).Model(note).
		Select("Title", "Content", "Format", "IsPublic", "Status", "UpdatedAt").
		Updates(note)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *GormStore) UpdateNoteTagNames(ctx context.Context, id string, names []string) error {
	if names == nil {
		names = []string{}
	}

	res := g.db.WithContext(ctx).Model(&model.Note{ID: id}).
		Select("TagNames", "UpdatedAt").
		Updates(&model.Note{TagNames: names, UpdatedAt: time.Now().UTC()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (g *GormStore) UpdateNoteAttachments(ctx context.Context, id string, attachments []model.EmbeddedAttachmentMeta) error {
	if attachments == nil {
		attachments = []model.EmbeddedAttachmentMeta{}
	}

	res := g.db.WithContext(ctx).Model(&model.Note{ID: id}).
		Select("Attachments", "UpdatedAt").
		Updates(&model.Note{Attachments: attachments, UpdatedAt: time.Now().UTC()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (g *GormStore) DeleteNote(ctx context.Context, id string) error {
	return translate(g.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Note{}).Error)
}

// ListNotes pages through notes by (created_at, id) descending.
func (g *GormStore) ListNotes(ctx context.Context, query NoteQuery, after *NoteCursor, limit int) ([]*model.Note, error) {
	tx := g.db.WithContext(ctx).Model(&model.Note{})
	if query.Scope != nil {
		tx = query.Scope(tx)
	} else {
		tx = tx.Where("owner_id = ?", query.OwnerID)
	}
	if query.Status != "" {
		tx = tx.Where("status = ?", query.Status)
	}
	if after != nil {
		tx = tx.Where("(created_at < ? OR (created_at = ? AND id < ?))", after.CreatedAt, after.CreatedAt, after.ID)
	}

	var notes []*model.Note
	err := tx.Order("created_at desc").Order("id desc").Limit(limit).Find(&notes).Error
	return notes, translate(err)
}

func (g *GormStore) ListNotesUpdatedBetween(ctx context.Context, from, to time.Time) ([]*model.Note, error) {
	var notes []*model.Note
	err := g.db.WithContext(ctx).Model(&model.Note{}).
		Select("id", "owner_id", "updated_at").
		Where("updated_at >= ? AND updated_at < ?", from, to).
		Order("updated_at").
		Find(&notes).Error
	return notes, translate(err)
}

func (g *GormStore) GetTag(ctx context.Context, id string) (*model.Tag, error) {
	var tag model.Tag
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&tag).Error
	if err != nil {
		return nil, translate(err)
	}

	return &tag, nil
}

func (g *GormStore) FindTagsByNameLower(ctx context.Context, ownerID string, names []string) ([]*model.Tag, error) {
	var tags []*model.Tag
	if len(names) == 0 {
		return tags, nil
	}

	err := g.db.WithContext(ctx).Where("owner_id = ? AND name_lower IN ?", ownerID, names).Find(&tags).Error
	return tags, translate(err)
}

func (g *GormStore) ListTags(ctx context.Context, ownerID string) ([]*model.Tag, error) {
	var tags []*model.Tag
	err := g.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("name_lower").Find(&tags).Error
	return tags, translate(err)
}

func (g *GormStore) CreateTag(ctx context.Context, tag *model.Tag) error {
	return translate(g.db.WithContext(ctx).Create(tag).Error)
}

func (g *GormStore) UpdateTagUsage(ctx context.Context, id string, count int64) error {
	res := g.db.WithContext(ctx).Model(&model.Tag{}).Where("id = ?", id).Update("usage_count", count)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (g *GormStore) ListTagOwners(ctx context.Context) ([]string, error) {
	var owners []string
	err := g.db.WithContext(ctx).Model(&model.Tag{}).Distinct().Order("owner_id").Pluck("owner_id", &owners).Error
	return owners, translate(err)
}

func (g *GormStore) ListNoteTags(ctx context.Context, noteID string) ([]*model.NoteTag, error) {
	var rows []*model.NoteTag
	err := g.pivot(ctx).Where("note_id = ?", noteID).Order("created_at").Order("id").Find(&rows).Error
	return rows, translate(err)
}

func (g *GormStore) ListNoteTagsByNoteIDs(ctx context.Context, noteIDs []string) ([]*model.NoteTag, error) {
	var rows []*model.NoteTag
	if len(noteIDs) == 0 {
		return rows, nil
	}

	err := g.pivot(ctx).Where("note_id IN ?", noteIDs).Order("created_at").Order("id").Find(&rows).Error
	return rows, translate(err)
}

func (g *GormStore) ListNoteTagsByOwner(ctx context.Context, ownerID string) ([]*model.NoteTag, error) {
	var rows []*model.NoteTag
	err := g.pivot(ctx).Where("owner_id = ?", ownerID).Order("created_at").Order("id").Find(&rows).Error
	return rows, translate(err)
}

func (g *GormStore) CreateNoteTag(ctx context.Context, row *model.NoteTag) error {
	return translate(g.pivot(ctx).Create(row).Error)
}

func (g *GormStore) DeleteNoteTag(ctx context.Context, id string) error {
	return translate(g.pivot(ctx).Where("id = ?", id).Delete(&model.NoteTag{}).Error)
}

func (g *GormStore) SetNoteTagTagID(ctx context.Context, id string, tagID string) error {
	res := g.pivot(ctx).Where("id = ?", id).Update("tag_id", tagID)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (g *GormStore) CountNoteTagsByTag(ctx context.Context, ownerID string) (map[string]int64, error) {
	var rows []struct {
		TagID string
		Count int64
	}
	err := g.pivot(ctx).
		Select("tag_id, count(*) as count").
		Where("owner_id = ? AND tag_id IS NOT NULL", ownerID).
		Group("tag_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.TagID] = row.Count
	}

	return counts, nil
}

func (g *GormStore) AttachmentRecordsEnabled() bool {
	return g.tables.Attachments != ""
}

func (g *GormStore) CreateAttachmentRecord(ctx context.Context, record *model.AttachmentRecord) error {
	return translate(g.records(ctx).Create(record).Error)
}

func (g *GormStore) ListAttachmentRecords(ctx context.Context, noteID string) ([]*model.AttachmentRecord, error) {
	var records []*model.AttachmentRecord
	err := g.records(ctx).Where("note_id = ?", noteID).Order("created_at").Find(&records).Error
	return records, translate(err)
}

func (g *GormStore) DeleteAttachmentRecords(ctx context.Context, noteID string, fileID string) (int64, error) {
	res := g.records(ctx).Where("note_id = ? AND file_id = ?", noteID, fileID).Delete(&model.AttachmentRecord{})
	return res.RowsAffected, translate(res.Error)
}

func (g *GormStore) DeleteNoteAttachmentRecords(ctx context.Context, noteID string) error {
	return translate(g.records(ctx).Where("note_id = ?", noteID).Delete(&model.AttachmentRecord{}).Error)
}

func (g *GormStore) MaxRevisionNumber(ctx context.Context, noteID string) (int64, error) {
	var latest int64
	err := g.db.WithContext(ctx).Model(&model.NoteRevision{}).
		Where("note_id = ?", noteID).
		Select("COALESCE(MAX(revision_number), 0)").
		Scan(&latest).Error
	return latest, translate(err)
}

func (g *GormStore) CreateRevision(ctx context.Context, rev *model.NoteRevision) error {
	return translate(g.db.WithContext(ctx).Create(rev).Error)
}

func (g *GormStore) ListRevisions(ctx context.Context, noteID string) ([]*model.NoteRevision, error) {
	var revs []*model.NoteRevision
	err := g.db.WithContext(ctx).Where("note_id = ?", noteID).Order("revision_number desc").Find(&revs).Error
	return revs, translate(err)
}

func (g *GormStore) ListRevisionNumbers(ctx context.Context, noteID string) ([]int64, error) {
	var numbers []int64
	err := g.db.WithContext(ctx).Model(&model.NoteRevision{}).
		Where("note_id = ?", noteID).
		Order("revision_number desc").
		Pluck("revision_number", &numbers).Error
	return numbers, translate(err)
}

func (g *GormStore) GetRevision(ctx context.Context, noteID string, number int64) (*model.NoteRevision, error) {
	var rev model.NoteRevision
	err := g.db.WithContext(ctx).Where("note_id = ? AND revision_number = ?", noteID, number).First(&rev).Error
	if err != nil {
		return nil, translate(err)
	}

	return &rev, nil
}

func (g *GormStore) DeleteRevisionsUpTo(ctx context.Context, noteID string, number int64) (int64, error) {
	res := g.db.WithContext(ctx).Where("note_id = ? AND revision_number <= ?", noteID, number).Delete(&model.NoteRevision{})
	return res.RowsAffected, translate(res.Error)
}

func (g *GormStore) DeleteNoteRevisions(ctx context.Context, noteID string) error {
	return translate(g.db.WithContext(ctx).Where("note_id = ?", noteID).Delete(&model.NoteRevision{}).Error)
}

func (g *GormStore) SaveCollaborator(ctx context.Context, c *model.NoteCollaborator) error {
	return translate(g.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(c).Error)
}

func (g *GormStore) GetCollaborator(ctx context.Context, noteID string, userID string) (*model.NoteCollaborator, error) {
	var c model.NoteCollaborator
	err := g.db.WithContext(ctx).Where("note_id = ? AND user_id = ?", noteID, userID).First(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (g *GormStore) IsAcceptedCollaborator(ctx context.Context, noteID string, userID string) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&model.NoteCollaborator{}).
		Where("note_id = ? AND user_id = ? AND status = ?", noteID, userID, model.CollaboratorAccepted).
		Count(&count).Error
	return count > 0, translate(err)
}

func (g *GormStore) DeleteNoteCollaborators(ctx context.Context, noteID string) error {
	return translate(g.db.WithContext(ctx).Where("note_id = ?", noteID).Delete(&model.NoteCollaborator{}).Error)
}

func (g *GormStore) Migrate() error {
	return model.Migrate(g.db, g.tables)
}

func (g *GormStore) Transaction(ctx context.Context, f func(tx Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return f(&GormStore{db: tx, tables: g.tables})
	})
}
