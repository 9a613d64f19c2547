package tags

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emrgen/notesync/internal/model"
	"github.com/emrgen/notesync/internal/store"
	"github.com/emrgen/notesync/internal/tester"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*store.GormStore, *Synchronizer) {
	s := store.NewGormStore(tester.TestDB(t), store.WithTables(tester.Tables))
	return s, NewSynchronizer(s, NewReadModifyWriteCounter(s))
}

func createNote(t *testing.T, s *store.GormStore, ownerID, title string) *model.Note {
	note := &model.Note{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     title,
		Format:    model.NoteFormatText,
		Status:    model.NoteStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateNote(context.TODO(), note))
	return note
}

func usage(t *testing.T, s *store.GormStore, ownerID, name string) int64 {
	found, err := s.FindTagsByNameLower(context.TODO(), ownerID, []string{Key(name)})
	require.NoError(t, err)
	require.Len(t, found, 1, "tag %s", name)
	return found[0].UsageCount
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "nil", in: nil, want: []string{}},
		{name: "case duplicates keep first", in: []string{"Q1", "q1", "  Launch "}, want: []string{"Q1", "Launch"}},
		{name: "drop empties", in: []string{"", "  ", "a"}, want: []string{"a"}},
		{name: "order kept", in: []string{"b", "A", "B", "a", "c"}, want: []string{"b", "A", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestSynchronizer_Roadmap(t *testing.T) {
	ctx := context.TODO()
	s, syncer := setup(t)
	note := createNote(t, s, "u1", "Roadmap")

	res, rep := syncer.Sync(ctx, note.ID, note.OwnerID, []string{"Q1", "q1", "  Launch "})
	require.True(t, rep.OK(), rep.Err())
	assert.Equal(t, []string{"Q1", "Launch"}, res.TagNames)
	assert.Equal(t, []string{"Q1", "Launch"}, res.Added)

	tags, err := s.ListTags(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, int64(1), usage(t, s, "u1", "q1"))
	assert.Equal(t, int64(1), usage(t, s, "u1", "launch"))

	rows, err := s.ListNoteTags(ctx, note.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	for _, row := range rows {
		assert.NotNil(t, row.TagID)
	}

	got, err := s.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Q1", "Launch"}, got.TagNames)
}

func TestSynchronizer_Idempotent(t *testing.T) {
	ctx := context.TODO()
	s, syncer := setup(t)
	note := createNote(t, s, "u1", "n")
	names := []string{"alpha", "Beta", "gamma"}

	_, rep := syncer.Sync(ctx, note.ID, "u1", names)
	require.True(t, rep.OK())
	first, err := s.ListNoteTags(ctx, note.ID)
	require.NoError(t, err)

	res, rep := syncer.Sync(ctx, note.ID, "u1", names)
	require.True(t, rep.OK())
	assert.Empty(t, res.Added)
	assert.Empty(t, res.Removed)
	assert.Zero(t, res.Healed)

	second, err := s.ListNoteTags(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	for _, name := range names {
		assert.Equal(t, int64(1), usage(t, s, "u1", name))
	}
}

func TestSynchronizer_AddRemove(t *testing.T) {
	ctx := context.TODO()
	s, syncer := setup(t)
	n1 := createNote(t, s, "u1", "one")
	n2 := createNote(t, s, "u1", "two")

	_, rep := syncer.Sync(ctx, n1.ID, "u1", []string{"a", "b"})
	require.True(t, rep.OK())
	_, rep = syncer.Sync(ctx, n2.ID, "u1", []string{"b"})
	require.True(t, rep.OK())
	assert.Equal(t, int64(2), usage(t, s, "u1", "b"))

	res, rep := syncer.Sync(ctx, n1.ID, "u1", []string{"B", "c"})
	require.True(t, rep.OK())
	assert.Equal(t, []string{"c"}, res.Added)
	assert.Equal(t, []string{"a"}, res.Removed)

	assert.Equal(t, int64(0), usage(t, s, "u1", "a"))
	assert.Equal(t, int64(2), usage(t, s, "u1", "b"))
	assert.Equal(t, int64(1), usage(t, s, "u1", "c"))

	got, err := s.GetNote(ctx, n1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "c"}, got.TagNames)

	_, rep = syncer.Sync(ctx, n1.ID, "u1", nil)
	require.True(t, rep.OK())
	rows, err := s.ListNoteTags(ctx, n1.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, int64(1), usage(t, s, "u1", "b"))
}

func TestSynchronizer_DecrementFloorsAtZero(t *testing.T) {
	ctx := context.TODO()
	s, syncer := setup(t)
	note := createNote(t, s, "u1", "n")

	_, rep := syncer.Sync(ctx, note.ID, "u1", []string{"x"})
	require.True(t, rep.OK())

	found, err := s.FindTagsByNameLower(ctx, "u1", []string{"x"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateTagUsage(ctx, found[0].ID, 0))

	_, rep = syncer.Sync(ctx, note.ID, "u1", []string{})
	require.True(t, rep.OK())
	assert.Equal(t, int64(0), usage(t, s, "u1", "x"))
}

// racingStore hides existing tags from the batch fetch, the way a concurrent
// creator that commits between fetch and insert would.
type racingStore struct {
	*store.GormStore
	hide atomic.Int32
}

func (r *racingStore) FindTagsByNameLower(ctx context.Context, ownerID string, names []string) ([]*model.Tag, error) {
	if r.hide.Add(-1) >= 0 {
		return nil, nil
	}
	return r.GormStore.FindTagsByNameLower(ctx, ownerID, names)
}

func TestSynchronizer_CreateTagRace(t *testing.T) {
	ctx := context.TODO()
	s, _ := setup(t)
	note := createNote(t, s, "u1", "n")

	existing := &model.Tag{ID: uuid.New().String(), OwnerID: "u1", Name: "Q1", NameLower: "q1"}
	require.NoError(t, s.CreateTag(ctx, existing))

	racing := &racingStore{GormStore: s}
	racing.hide.Store(1)
	syncer := NewSynchronizer(racing, NewReadModifyWriteCounter(s))

	_, rep := syncer.Sync(ctx, note.ID, "u1", []string{"q1"})
	require.True(t, rep.OK(), rep.Err())

	tags, err := s.ListTags(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, existing.ID, tags[0].ID)
	assert.Equal(t, int64(1), tags[0].UsageCount)

	rows, err := s.ListNoteTags(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, existing.ID, *rows[0].TagID)
}

func TestSynchronizer_ConcurrentCreators(t *testing.T) {
	ctx := context.TODO()
	s, syncer := setup(t)

	const writers = 8
	notes := make([]*model.Note, writers)
	for i := range notes {
		notes[i] = createNote(t, s, "u1", fmt.Sprintf("note %d", i))
	}

	var wg sync.WaitGroup
	for _, note := range notes {
		wg.Add(1)
		go func(note *model.Note) {
			defer wg.Done()
			_, rep := syncer.Sync(ctx, note.ID, "u1", []string{"shared", "Team"})
			assert.NotContains(t, rep.Steps(), "create_tag")
		}(note)
	}
	wg.Wait()

	tags, err := s.ListTags(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, tags, 2)

	rows, err := s.ListNoteTagsByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, rows, writers*2)
}

func TestSynchronizer_HealsLegacyRows(t *testing.T) {
	ctx := context.TODO()
	s, syncer := setup(t)
	note := createNote(t, s, "u1", "n")

	tag := &model.Tag{ID: uuid.New().String(), OwnerID: "u1", Name: "Q1", NameLower: "q1"}
	require.NoError(t, s.CreateTag(ctx, tag))
	legacy := &model.NoteTag{ID: uuid.New().String(), NoteID: note.ID, Tag: "Q1", OwnerID: "u1", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateNoteTag(ctx, legacy))

	res, rep := syncer.Sync(ctx, note.ID, "u1", []string{"q1"})
	require.True(t, rep.OK(), rep.Err())
	assert.Empty(t, res.Added)
	assert.Equal(t, 1, res.Healed)

	rows, err := s.ListNoteTags(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].TagID)
	assert.Equal(t, tag.ID, *rows[0].TagID)
	assert.Equal(t, int64(1), usage(t, s, "u1", "q1"))
}

func TestSynchronizer_RelinksDanglingTagID(t *testing.T) {
	ctx := context.TODO()
	s, syncer := setup(t)
	note := createNote(t, s, "u1", "n")

	deleted := uuid.New().String()
	dangling := &model.NoteTag{ID: uuid.New().String(), NoteID: note.ID, TagID: &deleted, Tag: "alpha", OwnerID: "u1", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateNoteTag(ctx, dangling))

	for i := 0; i < 2; i++ {
		res, rep := syncer.Sync(ctx, note.ID, "u1", []string{"alpha"})
		require.True(t, rep.OK(), rep.Err())
		assert.Empty(t, res.Added)
		if i == 0 {
			assert.Equal(t, 1, res.Healed)
		} else {
			assert.Zero(t, res.Healed)
		}
	}

	found, err := s.FindTagsByNameLower(ctx, "u1", []string{"alpha"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	rows, err := s.ListNoteTags(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].TagID)
	assert.Equal(t, found[0].ID, *rows[0].TagID)
	assert.Equal(t, int64(1), found[0].UsageCount)
}

func TestSynchronizer_RelinkReleasesMismatchedTag(t *testing.T) {
	ctx := context.TODO()
	s, syncer := setup(t)
	note := createNote(t, s, "u1", "n")

	wrong := &model.Tag{ID: uuid.New().String(), OwnerID: "u1", Name: "beta", NameLower: "beta", UsageCount: 1}
	right := &model.Tag{ID: uuid.New().String(), OwnerID: "u1", Name: "alpha", NameLower: "alpha"}
	require.NoError(t, s.CreateTag(ctx, wrong))
	require.NoError(t, s.CreateTag(ctx, right))
	require.NoError(t, s.CreateNoteTag(ctx, &model.NoteTag{ID: uuid.New().String(), NoteID: note.ID, TagID: &wrong.ID, Tag: "alpha", OwnerID: "u1", CreatedAt: time.Now().UTC()}))

	res, rep := syncer.Sync(ctx, note.ID, "u1", []string{"alpha"})
	require.True(t, rep.OK(), rep.Err())
	assert.Equal(t, 1, res.Healed)
	assert.Equal(t, int64(0), usage(t, s, "u1", "beta"))
	assert.Equal(t, int64(1), usage(t, s, "u1", "alpha"))
}

type flakyPivotStore struct {
	*store.GormStore
	failTag string
}

func (f *flakyPivotStore) CreateNoteTag(ctx context.Context, row *model.NoteTag) error {
	if row.Tag == f.failTag {
		return errors.New("write timeout")
	}
	return f.GormStore.CreateNoteTag(ctx, row)
}

func TestSynchronizer_FailureDoesNotAbortOthers(t *testing.T) {
	ctx := context.TODO()
	s, _ := setup(t)
	note := createNote(t, s, "u1", "n")

	syncer := NewSynchronizer(&flakyPivotStore{GormStore: s, failTag: "bad"}, NewReadModifyWriteCounter(s))
	res, rep := syncer.Sync(ctx, note.ID, "u1", []string{"good", "bad", "fine"})

	assert.False(t, rep.OK())
	assert.Equal(t, []string{"create_pivot"}, rep.Steps())
	assert.Equal(t, []string{"good", "fine"}, res.Added)
	assert.Equal(t, int64(0), usage(t, s, "u1", "bad"))

	got, err := s.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"good", "bad", "fine"}, got.TagNames)
}

func TestReadModifyWriteCounter(t *testing.T) {
	ctx := context.TODO()
	s, _ := setup(t)
	counter := NewReadModifyWriteCounter(s)

	tag := &model.Tag{ID: uuid.New().String(), OwnerID: "u1", Name: "x", NameLower: "x"}
	require.NoError(t, s.CreateTag(ctx, tag))

	n, err := counter.Adjust(ctx, tag.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = counter.Adjust(ctx, tag.ID, -5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, counter.Set(ctx, tag.ID, 7))
	got, err := s.GetTag(ctx, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UsageCount)

	_, err = counter.Adjust(ctx, "missing", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
