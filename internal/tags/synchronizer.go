// Package tags keeps a note's tag names, the tags table and the note_tags pivot in agreement.
package tags

import (
	"context"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/notesync/internal/model"
	"github.com/emrgen/notesync/internal/report"
	"github.com/emrgen/notesync/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store is the part of the document store the synchronizer touches.
type Store interface {
	store.TagStore
	store.NoteTagStore
	UpdateNoteTagNames(ctx context.Context, id string, names []string) error
}

// Result describes what a Sync changed.
type Result struct {
	// TagNames is the normalized target list written to the note.
	TagNames []string
	Added    []string
	Removed  []string
	Healed   int
}

// Synchronizer converges tags, pivot rows and Note.TagNames to a target name list.
// Every step is best-effort: failures are recorded in the returned report and the
// remaining steps still run.
type Synchronizer struct {
	store   Store
	counter CounterAdjuster
	now     func() time.Time
}

func NewSynchronizer(store Store, counter CounterAdjuster) *Synchronizer {
	return &Synchronizer{
		store:   store,
		counter: counter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sync makes the note carry exactly the given tag names. Running it again with the
// same names changes nothing.
func (s *Synchronizer) Sync(ctx context.Context, noteID, ownerID string, names []string) (*Result, *report.Report) {
	rep := report.New("tag_sync")
	target := Normalize(names)
	res := &Result{TagNames: target}

	targetKeys := mapset.NewThreadUnsafeSet[string]()
	for _, name := range target {
		targetKeys.Add(Key(name))
	}

	rows, err := s.store.ListNoteTags(ctx, noteID)
	if rep.Record("list_pivots", noteID, err) {
		rep.Record("update_tag_names", noteID, s.store.UpdateNoteTagNames(ctx, noteID, target))
		return res, rep
	}

	existing := make(map[string][]*model.NoteTag)
	existingKeys := mapset.NewThreadUnsafeSet[string]()
	for _, row := range rows {
		key := Key(row.Tag)
		existing[key] = append(existing[key], row)
		existingKeys.Add(key)
	}

	// removed names are resolved too, legacy rows without a tag id need them
	tagsByKey, err := s.fetchTags(ctx, ownerID, targetKeys.Union(existingKeys).ToSlice())
	rep.Record("fetch_tags", ownerID, err)

	for _, name := range target {
		key := Key(name)
		if _, ok := tagsByKey[key]; ok {
			continue
		}

		tag, err := s.ensureTag(ctx, ownerID, name)
		if rep.Record("create_tag", name, err) {
			continue
		}
		tagsByKey[key] = tag
	}

	toAdd := targetKeys.Difference(existingKeys)
	toRemove := existingKeys.Difference(targetKeys)

	for _, name := range target {
		key := Key(name)
		if !toAdd.Contains(key) {
			continue
		}

		tag, ok := tagsByKey[key]
		if !ok {
			continue
		}

		row := &model.NoteTag{
			ID:        uuid.New().String(),
			NoteID:    noteID,
			TagID:     &tag.ID,
			Tag:       tag.Name,
			OwnerID:   ownerID,
			CreatedAt: s.now(),
		}
		if rep.Record("create_pivot", name, s.store.CreateNoteTag(ctx, row)) {
			continue
		}
		res.Added = append(res.Added, name)

		_, err := s.counter.Adjust(ctx, tag.ID, 1)
		rep.Record("increment_usage", tag.ID, err)
	}

	removed := mapset.NewThreadUnsafeSet[string]()
	for _, row := range rows {
		key := Key(row.Tag)
		if !toRemove.Contains(key) {
			continue
		}

		if rep.Record("delete_pivot", row.ID, s.store.DeleteNoteTag(ctx, row.ID)) {
			continue
		}
		if removed.Add(key) {
			res.Removed = append(res.Removed, row.Tag)
		}

		// rows without a tag id were never counted
		if row.TagID == nil {
			continue
		}
		_, err := s.counter.Adjust(ctx, *row.TagID, -1)
		rep.Record("decrement_usage", *row.TagID, err)
	}

	// relink rows that miss a tag id or point at a tag that no longer matches
	for _, row := range rows {
		key := Key(row.Tag)
		if !targetKeys.Contains(key) {
			continue
		}

		tag, ok := tagsByKey[key]
		if !ok || (row.TagID != nil && *row.TagID == tag.ID) {
			continue
		}
		if rep.Record("heal_pivot", row.ID, s.store.SetNoteTagTagID(ctx, row.ID, tag.ID)) {
			continue
		}
		res.Healed++

		if row.TagID != nil {
			s.releaseStale(ctx, rep, *row.TagID)
		}
		_, err := s.counter.Adjust(ctx, tag.ID, 1)
		rep.Record("increment_usage", tag.ID, err)
	}

	rep.Record("update_tag_names", noteID, s.store.UpdateNoteTagNames(ctx, noteID, target))

	if len(res.Added) > 0 || len(res.Removed) > 0 || res.Healed > 0 {
		logrus.Infof("tag sync note %s: added %v removed %v healed %d", noteID, res.Added, res.Removed, res.Healed)
	}

	return res, rep
}

// releaseStale decrements the tag a relinked row used to point at, if it still exists.
func (s *Synchronizer) releaseStale(ctx context.Context, rep *report.Report, tagID string) {
	if _, err := s.store.GetTag(ctx, tagID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			rep.Record("fetch_stale_tag", tagID, err)
		}
		return
	}

	_, err := s.counter.Adjust(ctx, tagID, -1)
	rep.Record("decrement_usage", tagID, err)
}

func (s *Synchronizer) fetchTags(ctx context.Context, ownerID string, keys []string) (map[string]*model.Tag, error) {
	byKey := make(map[string]*model.Tag, len(keys))
	if len(keys) == 0 {
		return byKey, nil
	}

	found, err := s.store.FindTagsByNameLower(ctx, ownerID, keys)
	if err != nil {
		return byKey, err
	}
	for _, tag := range found {
		byKey[tag.NameLower] = tag
	}

	return byKey, nil
}

// ensureTag creates the tag or, when a concurrent caller created it first, fetches theirs.
func (s *Synchronizer) ensureTag(ctx context.Context, ownerID, name string) (*model.Tag, error) {
	now := s.now()
	tag := &model.Tag{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Name:       name,
		NameLower:  Key(name),
		UsageCount: 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.store.CreateTag(ctx, tag)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, store.ErrDuplicateKey) {
		return nil, err
	}

	found, err := s.store.FindTagsByNameLower(ctx, ownerID, []string{tag.NameLower})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("tag %q conflicted but could not be fetched", name)
	}

	return found[0], nil
}
