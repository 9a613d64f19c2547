// Package audit finds and repairs drift between notes, tag pivots and tag usage counters.
// Every operation is safe to run repeatedly.
package audit

import (
	"context"
	"fmt"
	"sort"

	"github.com/emrgen/notesync/internal/model"
	"github.com/emrgen/notesync/internal/report"
	"github.com/emrgen/notesync/internal/store"
	"github.com/emrgen/notesync/internal/tags"
	"github.com/sirupsen/logrus"
)

type Store interface {
	store.TagStore
	store.NoteTagStore
	Transaction(ctx context.Context, f func(tx store.Store) error) error
}

// DuplicatePair is a (note, tag) association held by more than one pivot row.
type DuplicatePair struct {
	NoteID string  `json:"noteId"`
	TagID  *string `json:"tagId"`
	Tag    string  `json:"tag"`
	Count  int     `json:"count"`
}

type Result struct {
	OwnerID           string          `json:"ownerId"`
	TotalRows         int             `json:"totalRows"`
	MissingTagIDCount int             `json:"missingTagIdCount"`
	OrphanCount       int             `json:"orphanCount"`
	DuplicatePairs    []DuplicatePair `json:"duplicatePairs"`
	Suggestions       []string        `json:"suggestions"`
}

type BackfillResult struct {
	Patched    int      `json:"patched"`
	Unresolved []string `json:"unresolved"`
}

type ReconcileResult struct {
	Checked   int `json:"checked"`
	Corrected int `json:"corrected"`
}

type DedupeResult struct {
	Removed int `json:"removed"`
}

type RepairResult struct {
	Backfill  *BackfillResult  `json:"backfill"`
	Dedupe    *DedupeResult    `json:"dedupe"`
	Reconcile *ReconcileResult `json:"reconcile"`
	Audit     *Result          `json:"audit"`
}

type Toolkit struct {
	store   Store
	counter tags.CounterAdjuster
}

func NewToolkit(s Store, counter tags.CounterAdjuster) *Toolkit {
	return &Toolkit{store: s, counter: counter}
}

func (t *Toolkit) load(ctx context.Context, ownerID string) ([]*model.NoteTag, map[string]*model.Tag, error) {
	rows, err := t.store.ListNoteTagsByOwner(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}

	list, err := t.store.ListTags(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[string]*model.Tag, len(list))
	for _, tag := range list {
		byID[tag.ID] = tag
	}

	return rows, byID, nil
}

// pairKey groups rows by tag id, or by lowercase name for rows without one.
func pairKey(row *model.NoteTag) string {
	if row.TagID != nil {
		return row.NoteID + "/id:" + *row.TagID
	}
	return row.NoteID + "/name:" + tags.Key(row.Tag)
}

// duplicates returns the rows of each duplicated pair, oldest first.
func duplicates(rows []*model.NoteTag) [][]*model.NoteTag {
	groups := make(map[string][]*model.NoteTag)
	var order []string
	for _, row := range rows {
		k := pairKey(row)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], row)
	}

	var dups [][]*model.NoteTag
	for _, k := range order {
		if len(groups[k]) > 1 {
			dups = append(dups, groups[k])
		}
	}

	return dups
}

// AuditTagPivots scans the pivot rows of an owner without writing anything.
func (t *Toolkit) AuditTagPivots(ctx context.Context, ownerID string) (*Result, error) {
	rows, byID, err := t.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		OwnerID:        ownerID,
		TotalRows:      len(rows),
		DuplicatePairs: []DuplicatePair{},
		Suggestions:    []string{},
	}

	for _, row := range rows {
		switch {
		case row.TagID == nil:
			res.MissingTagIDCount++
		case byID[*row.TagID] == nil:
			res.OrphanCount++
		}
	}

	for _, group := range duplicates(rows) {
		res.DuplicatePairs = append(res.DuplicatePairs, DuplicatePair{
			NoteID: group[0].NoteID,
			TagID:  group[0].TagID,
			Tag:    group[0].Tag,
			Count:  len(group),
		})
	}

	if res.MissingTagIDCount > 0 {
		res.Suggestions = append(res.Suggestions,
			fmt.Sprintf("%d pivot rows have no tag id, run tags backfill", res.MissingTagIDCount))
	}
	if res.OrphanCount > 0 {
		res.Suggestions = append(res.Suggestions,
			fmt.Sprintf("%d pivot rows point at deleted tags, run tags backfill to relink them by name", res.OrphanCount))
	}
	if len(res.DuplicatePairs) > 0 {
		res.Suggestions = append(res.Suggestions,
			fmt.Sprintf("%d note/tag pairs are duplicated, run tags dedupe then tags reconcile", len(res.DuplicatePairs)))
	}

	return res, nil
}

// BackfillNoteTagPivots links rows without a tag id, or with a dangling one,
// to the owner's tag of the same name. Rows whose name has no tag are left alone.
func (t *Toolkit) BackfillNoteTagPivots(ctx context.Context, ownerID string) (*BackfillResult, *report.Report, error) {
	rep := report.New("backfill_note_tags")

	rows, byID, err := t.load(ctx, ownerID)
	if err != nil {
		return nil, rep, err
	}

	byName := make(map[string]*model.Tag, len(byID))
	for _, tag := range byID {
		byName[tag.NameLower] = tag
	}

	res := &BackfillResult{Unresolved: []string{}}
	for _, row := range rows {
		if row.TagID != nil && byID[*row.TagID] != nil {
			continue
		}

		tag, ok := byName[tags.Key(row.Tag)]
		if !ok {
			res.Unresolved = append(res.Unresolved, row.ID)
			continue
		}

		if rep.Record("link_tag", row.ID, t.store.SetNoteTagTagID(ctx, row.ID, tag.ID)) {
			continue
		}
		res.Patched++
	}

	logrus.Infof("backfill owner %s: patched %d pivot rows, %d unresolved", ownerID, res.Patched, len(res.Unresolved))

	return res, rep, nil
}

// RemoveDuplicatePivots keeps the oldest row of every duplicated pair.
// Each pair is cleaned in its own transaction, a failed pair keeps all its rows.
func (t *Toolkit) RemoveDuplicatePivots(ctx context.Context, ownerID string) (*DedupeResult, *report.Report, error) {
	rep := report.New("dedupe_note_tags")

	rows, err := t.store.ListNoteTagsByOwner(ctx, ownerID)
	if err != nil {
		return nil, rep, err
	}

	res := &DedupeResult{}
	for _, group := range duplicates(rows) {
		extra := group[1:]
		err := t.store.Transaction(ctx, func(tx store.Store) error {
			for _, row := range extra {
				if err := tx.DeleteNoteTag(ctx, row.ID); err != nil {
					return fmt.Errorf("delete pivot %s: %w", row.ID, err)
				}
			}
			return nil
		})
		if !rep.Record("delete_duplicates", group[0].ID, err) {
			res.Removed += len(extra)
		}
	}

	return res, rep, nil
}

// ReconcileTagUsage sets every tag's usage count to the number of pivot rows referencing it.
func (t *Toolkit) ReconcileTagUsage(ctx context.Context, ownerID string) (*ReconcileResult, *report.Report, error) {
	rep := report.New("reconcile_tag_usage")

	list, err := t.store.ListTags(ctx, ownerID)
	if err != nil {
		return nil, rep, err
	}

	counts, err := t.store.CountNoteTagsByTag(ctx, ownerID)
	if err != nil {
		return nil, rep, err
	}

	sort.Slice(list, func(i, j int) bool { return list[i].NameLower < list[j].NameLower })

	res := &ReconcileResult{Checked: len(list)}
	for _, tag := range list {
		want := counts[tag.ID]
		if tag.UsageCount == want {
			continue
		}

		if rep.Record("set_usage", tag.ID, t.counter.Set(ctx, tag.ID, want)) {
			continue
		}
		logrus.Debugf("tag %s usage %d -> %d", tag.NameLower, tag.UsageCount, want)
		res.Corrected++
	}

	return res, rep, nil
}

// Repair runs backfill, dedupe and reconcile in order, then audits the result.
func (t *Toolkit) Repair(ctx context.Context, ownerID string) (*RepairResult, *report.Report, error) {
	rep := report.New("repair_tags")
	res := &RepairResult{}

	var (
		stepRep *report.Report
		err     error
	)

	if res.Backfill, stepRep, err = t.BackfillNoteTagPivots(ctx, ownerID); err != nil {
		return nil, rep, err
	}
	rep.Merge(stepRep)

	if res.Dedupe, stepRep, err = t.RemoveDuplicatePivots(ctx, ownerID); err != nil {
		return nil, rep, err
	}
	rep.Merge(stepRep)

	if res.Reconcile, stepRep, err = t.ReconcileTagUsage(ctx, ownerID); err != nil {
		return nil, rep, err
	}
	rep.Merge(stepRep)

	if res.Audit, err = t.AuditTagPivots(ctx, ownerID); err != nil {
		return nil, rep, err
	}

	return res, rep, nil
}

// Owners lists every owner that has tags.
func (t *Toolkit) Owners(ctx context.Context) ([]string, error) {
	return t.store.ListTagOwners(ctx)
}
