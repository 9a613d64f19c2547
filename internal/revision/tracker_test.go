package revision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/emrgen/notesync/internal/compress"
	"github.com/emrgen/notesync/internal/model"
	"github.com/emrgen/notesync/internal/plan"
	"github.com/emrgen/notesync/internal/store"
	"github.com/emrgen/notesync/internal/tester"
	"github.com/emrgen/notesync/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, retention int, opts ...Option) (*store.GormStore, *Tracker, *plan.StaticProvider) {
	s := store.NewGormStore(tester.TestDB(t), store.WithTables(tester.Tables))
	plans := plan.NewStaticProvider(map[string]plan.Plan{
		"test": {Name: "test", AttachmentSizeMB: 1, RevisionRetentionCount: retention},
	}, "test")
	pool := worker.NewPool("prune", 2, 10)
	t.Cleanup(pool.Shutdown)

	return s, NewTracker(s, plans, compress.NewGZip(), pool, opts...), plans
}

func edits(n int) []Snapshot {
	out := make([]Snapshot, n+1)
	for i := range out {
		out[i] = Snapshot{
			Title:   fmt.Sprintf("Roadmap v%d", i),
			Content: fmt.Sprintf("# Roadmap\n\n- launch\n- revision %d\n", i),
		}
	}
	return out
}

func TestTracker_Monotonic(t *testing.T) {
	ctx := context.TODO()
	_, tracker, _ := setup(t, 0)
	states := edits(5)

	for i := 1; i < len(states); i++ {
		rev, err := tracker.RecordRevision(ctx, "n1", "u1", states[i-1], states[i], "")
		require.NoError(t, err)
		assert.Equal(t, int64(i), rev.RevisionNumber)
		assert.Equal(t, model.RevisionCauseManual, rev.Cause)
	}

	revs, err := tracker.ListRevisions(ctx, "n1")
	require.NoError(t, err)
	require.Len(t, revs, 5)

	for i, rev := range revs {
		number := int64(5 - i)
		assert.Equal(t, number, rev.RevisionNumber)
		assert.Equal(t, states[number].Content, rev.Content)
		assert.Equal(t, states[number].Title, rev.Title)

		if number == 1 {
			assert.True(t, rev.FullSnapshot)
			assert.Equal(t, FormatSnapshot, rev.DiffFormat)
			assert.Empty(t, rev.Diff)
			continue
		}

		assert.False(t, rev.FullSnapshot)
		assert.Equal(t, FormatPatch, rev.DiffFormat)
		replayed, err := ApplyPatch(states[number-1], rev.Diff)
		require.NoError(t, err)
		assert.Equal(t, states[number], replayed)
	}
}

func TestTracker_ConcurrentWriters(t *testing.T) {
	ctx := context.TODO()
	_, tracker, _ := setup(t, 0)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tracker.RecordRevision(ctx, "n1", "u1", Snapshot{}, Snapshot{Content: fmt.Sprint(i)}, model.RevisionCauseCollab)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	revs, err := tracker.ListRevisions(ctx, "n1")
	require.NoError(t, err)
	require.Len(t, revs, 4)
	for i, rev := range revs {
		assert.Equal(t, int64(4-i), rev.RevisionNumber)
	}
}

func TestTracker_DiffFailureFallsBackToSnapshot(t *testing.T) {
	ctx := context.TODO()

	differs := map[string]Differ{
		"error": func(before, after Snapshot) (string, error) { return "", errors.New("too large") },
		"panic": func(before, after Snapshot) (string, error) { panic("bad input") },
	}

	for name, differ := range differs {
		t.Run(name, func(t *testing.T) {
			_, tracker, _ := setup(t, 0, WithDiffer(differ))
			states := edits(2)

			for i := 1; i < len(states); i++ {
				rev, err := tracker.RecordRevision(ctx, "n1", "u1", states[i-1], states[i], model.RevisionCauseAI)
				require.NoError(t, err)
				assert.True(t, rev.FullSnapshot)
				assert.Equal(t, int64(i), rev.RevisionNumber)
			}

			rev, err := tracker.GetRevision(ctx, "n1", 2)
			require.NoError(t, err)
			assert.Equal(t, states[2].Content, rev.Content)
		})
	}
}

func TestTracker_UnchangedSnapshot(t *testing.T) {
	ctx := context.TODO()
	_, tracker, _ := setup(t, 0)
	state := Snapshot{Title: "Roadmap", Content: "# Roadmap\n"}

	first, err := tracker.RecordRevision(ctx, "n1", "u1", Snapshot{}, state, "")
	require.NoError(t, err)
	assert.True(t, first.FullSnapshot)

	rev, err := tracker.RecordRevision(ctx, "n1", "u1", state, state, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev.RevisionNumber)
	assert.False(t, rev.FullSnapshot)
	assert.Equal(t, FormatPatch, rev.DiffFormat)
	assert.Empty(t, rev.Diff)

	got, err := tracker.GetRevision(ctx, "n1", 2)
	require.NoError(t, err)
	assert.Equal(t, state.Content, got.Content)

	applied, err := ApplyPatch(state, got.Diff)
	require.NoError(t, err)
	assert.Equal(t, state, applied)
}

func TestTracker_InvalidCause(t *testing.T) {
	_, tracker, _ := setup(t, 0)
	_, err := tracker.RecordRevision(context.TODO(), "n1", "u1", Snapshot{}, Snapshot{}, "robot")
	assert.ErrorIs(t, err, ErrInvalidCause)
}

func TestTracker_Prune(t *testing.T) {
	ctx := context.TODO()
	s, tracker, _ := setup(t, 3)
	states := edits(6)

	for i := 1; i < len(states); i++ {
		_, err := tracker.RecordRevision(ctx, "n1", "u1", states[i-1], states[i], "")
		require.NoError(t, err)
	}

	n, err := tracker.PruneRevisions(ctx, "n1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	numbers, err := s.ListRevisionNumbers(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 5, 4}, numbers)

	n, err = tracker.PruneRevisions(ctx, "n1", "u1")
	require.NoError(t, err)
	assert.Zero(t, n)

	// numbering continues after the pruned tail
	rev, err := tracker.RecordRevision(ctx, "n1", "u1", states[6], states[0], "")
	require.NoError(t, err)
	assert.Equal(t, int64(7), rev.RevisionNumber)
}

func TestTracker_UnlimitedRetention(t *testing.T) {
	ctx := context.TODO()
	_, tracker, _ := setup(t, 0)
	states := edits(4)
	for i := 1; i < len(states); i++ {
		_, err := tracker.RecordRevision(ctx, "n1", "u1", states[i-1], states[i], "")
		require.NoError(t, err)
	}

	n, err := tracker.PruneRevisions(ctx, "n1", "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTracker_SchedulePrune(t *testing.T) {
	ctx := context.TODO()
	s := store.NewGormStore(tester.TestDB(t), store.WithTables(tester.Tables))
	plans := plan.NewStaticProvider(map[string]plan.Plan{"test": {Name: "test", RevisionRetentionCount: 2}}, "test")
	pool := worker.NewPool("prune", 1, 10)
	tracker := NewTracker(s, plans, compress.NewBrotli(), pool)

	states := edits(5)
	for i := 1; i < len(states); i++ {
		_, err := tracker.RecordRevision(ctx, "n1", "u1", states[i-1], states[i], "")
		require.NoError(t, err)
	}

	tracker.SchedulePrune("n1", "u1")
	tracker.SchedulePrune("missing", "u1")
	pool.Shutdown()

	revs, err := tracker.ListRevisions(ctx, "n1")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, states[5].Content, revs[0].Content)
	assert.Equal(t, int64(4), revs[1].RevisionNumber)
}
